// Package retry provides the backoff policy used when a driver call fails.
package retry

import (
	"context"
	"errors"
	"time"
)

// BackoffStrategy selects how the wait grows between attempts.
type BackoffStrategy int

const (
	BackoffStrategyLinear BackoffStrategy = iota
	BackoffStrategyExponential
)

// maxExponentialPeriod caps the exponential strategy.
const maxExponentialPeriod = 30 * time.Second

var (
	ErrCancel   = errors.New("retry: context canceled")
	ErrMaxRetry = errors.New("retry: max retries reached")
)

// Params holds the parameters for a retry loop.
type Params struct {
	Strategy BackoffStrategy
	// MaxTries <= 0 means retry until the context is done.
	MaxTries int
	Period   time.Duration
}

// DefaultRetryParams increases the interval linearly and gives up after 10 tries.
var DefaultRetryParams = Params{
	Strategy: BackoffStrategyLinear,
	MaxTries: 10,
	Period:   10 * time.Millisecond,
}

// Interval returns how long the caller waits before the given attempt.
func (p *Params) Interval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch p.Strategy {
	case BackoffStrategyExponential:
		d := p.Period
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= maxExponentialPeriod {
				return maxExponentialPeriod
			}
		}
		return d
	default:
		return time.Duration(attempt) * p.Period
	}
}

// Backoff sleeps for the interval of attempt. It returns ErrMaxRetry without
// sleeping once attempt reaches MaxTries, and ErrCancel if ctx is done first.
func (p *Params) Backoff(ctx context.Context, attempt int) error {
	if p.MaxTries > 0 && attempt >= p.MaxTries {
		return ErrMaxRetry
	}

	t := time.NewTimer(p.Interval(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ErrCancel
	case <-t.C:
		return nil
	}
}
