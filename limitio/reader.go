package limitio

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type Reader struct {
	ctx     context.Context
	source  io.Reader
	limiter *rate.Limiter
}

// NewReader returns a reader that implements io.Reader with rate limiting.
// Reading stops with the context error once ctx is cancelled.
func NewReader(ctx context.Context, r io.Reader) *Reader {
	return &Reader{
		ctx:    ctx,
		source: r,
	}
}

// Limit returns r limited to bytesPerSec, or r itself when bytesPerSec is zero
func Limit(ctx context.Context, r io.Reader, bytesPerSec int) io.Reader {
	if bytesPerSec <= 0 {
		return r
	}
	reader := NewReader(ctx, r)
	reader.SetRateLimit(float64(bytesPerSec), min(bytesPerSec, DefaultBurst))
	return reader
}

// SetRateLimit sets rate limit (bytes/sec) to the reader.
func (s *Reader) SetRateLimit(bytesPerSec float64, burst int) {
	s.limiter = newLimiter(bytesPerSec, burst)
}

// Read bytes into p.
func (s *Reader) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	if s.limiter == nil {
		return s.source.Read(p)
	}
	// never read more than one burst in one go
	if len(p) > s.limiter.Burst() {
		p = p[:s.limiter.Burst()]
	}
	n, err := s.source.Read(p)
	if n > 0 {
		if waitErr := wait(s.ctx, s.limiter, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
