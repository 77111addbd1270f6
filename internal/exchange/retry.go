package exchange

import (
	"context"
	"time"

	"github.com/akornilov/crossarb/internal/domain"
)

// RetryPolicy is the single retry utility applied to exchange calls: at most
// MaxAttempts attempts with a fixed inter-attempt delay. Retryable decides
// which errors earn another attempt; when nil, domain.Retryable is used so
// only network-class failures retry.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

// Do runs op until it succeeds, exhausts MaxAttempts, hits a non-retryable
// error, or the context is cancelled. It returns the last error observed.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = domain.Retryable
	}

	var err error
	for i := 0; i < attempts; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = op(); err == nil {
			return nil
		}
		if !retryable(err) || i == attempts-1 {
			return err
		}
		if werr := sleep(ctx, p.Delay); werr != nil {
			return werr
		}
	}
	return err
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
