package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterval(t *testing.T) {
	linear := Params{Strategy: BackoffStrategyLinear, Period: time.Millisecond}
	assert.Equal(t, time.Millisecond, linear.Interval(0))
	assert.Equal(t, 3*time.Millisecond, linear.Interval(3))

	exp := Params{Strategy: BackoffStrategyExponential, Period: time.Millisecond}
	assert.Equal(t, time.Millisecond, exp.Interval(1))
	assert.Equal(t, 8*time.Millisecond, exp.Interval(4))
	assert.Equal(t, maxExponentialPeriod, exp.Interval(64))
}

func TestBackoff(t *testing.T) {
	t.Run("max retry", func(t *testing.T) {
		p := Params{MaxTries: 2, Period: time.Millisecond}
		assert.NoError(t, p.Backoff(context.Background(), 1))
		assert.Equal(t, ErrMaxRetry, p.Backoff(context.Background(), 2))
	})

	t.Run("cancel", func(t *testing.T) {
		p := Params{Period: time.Hour}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Equal(t, ErrCancel, p.Backoff(ctx, 1))
	})
}
