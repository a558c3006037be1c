package settlement

import (
	"context"
	"time"
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepWithTimer(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy is a bounded, fixed-delay retry budget.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// AttemptTimeout bounds a single gateway call. It is part of the lock TTL, so
	// every call must have one.
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Delay:          2 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// budget is an upper bound on how long a full sequence under p may take.
func (p RetryPolicy) budget() time.Duration {
	return time.Duration(p.MaxAttempts) * (p.Delay + p.AttemptTimeout)
}
