package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits step, 2*step, 3*step... between attempts.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// retry runs op up to maxRetries+1 times with linear backoff. Errors wrapped
// with backoff.Permanent stop the loop and are returned unwrapped.
func retry(ctx context.Context, maxRetries int, step time.Duration, op func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: step}, uint64(maxRetries)),
		ctx,
	)
	return backoff.Retry(op, policy)
}
