package publisher

import (
	"errors"
	"time"

	"github.com/silverswords/rclgeneric/pkg/retry"
)

type Option func(*GenericPublisher) error

func (p *GenericPublisher) applyOptions(opts ...Option) error {
	for _, fn := range opts {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// WithPublishSettings replaces the publisher's settings.
func WithPublishSettings(settings PublishSettings) Option {
	return func(p *GenericPublisher) error {
		p.PublishSettings = settings
		return nil
	}
}

// WithUnordered lets bundles reach the driver concurrently.
func WithUnordered() Option {
	return func(p *GenericPublisher) error {
		p.EnableMessageOrdering = false
		return nil
	}
}

// WithDelayThreshold sets how long a non-empty bundle may wait.
func WithDelayThreshold(d time.Duration) Option {
	return func(p *GenericPublisher) error {
		if d < 0 {
			return errors.New("publisher: negative delay threshold")
		}
		p.DelayThreshold = d
		return nil
	}
}

// WithRetry sets the retry policy for failed driver publishes. nil disables
// retries.
func WithRetry(params *retry.Params) Option {
	return func(p *GenericPublisher) error {
		p.RetryParams = params
		return nil
	}
}
