package limitio

import (
	"context"

	"golang.org/x/time/rate"
)

// DefaultBurst is the burst used by Limit and LimitWriter
const DefaultBurst = 4 * 1024

func newLimiter(bytesPerSec float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = DefaultBurst
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// wait blocks until n bytes are allowed, asking for at most one burst at a time
func wait(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := limiter.WaitN(ctx, chunk); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		n -= chunk
	}
	return nil
}
