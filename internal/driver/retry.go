package driver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds connection attempts: Tries attempts in total, the
// first retry after Wait, each following delay multiplied by Backoff.
type RetryPolicy struct {
	Tries   int
	Wait    time.Duration
	Backoff float64

	// Timer replaces the real timer between attempts. Nil uses time.Timer.
	Timer backoff.Timer
}

// DefaultRetryPolicy is five attempts, 5s apart, doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Tries: 5, Wait: 5 * time.Second, Backoff: 2}
}

// backOff builds the deterministic schedule wait, wait*b, wait*b^2, ...
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	tries := p.Tries
	if tries < 1 {
		tries = 1
	}
	multiplier := p.Backoff
	if multiplier < 1 {
		multiplier = 1
	}

	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.Wait),
		backoff.WithMultiplier(multiplier),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(time.Duration(math.MaxInt64)),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(tries-1)), ctx) // #nosec G115 -- tries >= 1
}

// Do runs op until it succeeds, the attempts are exhausted or ctx ends.
// notify, when set, is called after each failed attempt with the delay
// before the next one. The last error is wrapped in ErrConnectFailed.
func (p RetryPolicy) Do(ctx context.Context, op func() error, notify func(err error, next time.Duration)) error {
	attempts := 0
	err := backoff.RetryNotifyWithTimer(func() error {
		attempts++
		return op()
	}, p.backOff(ctx), notify, p.Timer)
	if err != nil {
		return fmt.Errorf("%w after %d attempt(s): %w", ErrConnectFailed, attempts, err)
	}
	return nil
}
