package limitio

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type Writer struct {
	ctx     context.Context
	w       io.Writer
	limiter *rate.Limiter
}

// NewWriter returns a writer that implements io.Writer with rate limiting.
func NewWriter(ctx context.Context, w io.Writer) *Writer {
	return &Writer{
		ctx: ctx,
		w:   w,
	}
}

// LimitWriter returns w limited to bytesPerSec, or w itself when bytesPerSec is zero
func LimitWriter(ctx context.Context, w io.Writer, bytesPerSec int) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}
	writer := NewWriter(ctx, w)
	writer.SetRateLimit(float64(bytesPerSec), min(bytesPerSec, DefaultBurst))
	return writer
}

// SetRateLimit sets rate limit (bytes/sec) to the writer.
func (s *Writer) SetRateLimit(bytesPerSec float64, burst int) {
	s.limiter = newLimiter(bytesPerSec, burst)
}

// Write writes bytes from p, one burst at a time.
func (s *Writer) Write(p []byte) (int, error) {
	if s.limiter == nil {
		if err := s.ctx.Err(); err != nil {
			return 0, err
		}
		return s.w.Write(p)
	}
	written := 0
	for len(p) > 0 {
		chunk := p[:min(len(p), s.limiter.Burst())]
		if err := wait(s.ctx, s.limiter, len(chunk)); err != nil {
			return written, err
		}
		n, err := s.w.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
