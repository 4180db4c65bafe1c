package subscription

import (
	"crypto/tls"
	"errors"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/silverswords/rclgeneric/pkg/message"
)

// Webhook relay headers.
const (
	HeaderTopic = "X-Topic"
	HeaderType  = "X-Topic-Type"
)

type Option func(*GenericSubscription) error

func (s *GenericSubscription) applyOptions(opts ...Option) error {
	for _, fn := range opts {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

// WithTypesupportIdentifier resolves the topic type with identifier instead
// of the default C++ type support.
func WithTypesupportIdentifier(identifier string) Option {
	return func(s *GenericSubscription) error {
		if identifier == "" {
			return errors.New("subscription: empty typesupport identifier")
		}
		s.TypesupportIdentifier = identifier
		return nil
	}
}

// WithMiddlewares runs handlers, in order, before the callback.
func WithMiddlewares(handlers ...Callback) Option {
	return func(s *GenericSubscription) error {
		s.handlers = append(s.handlers, handlers...)
		return nil
	}
}

// WithCount increments counter for every delivered message.
func WithCount(counter *uint64) Option {
	return func(s *GenericSubscription) error {
		s.handlers = append(s.handlers, func(*message.Serialized) {
			atomic.AddUint64(counter, 1)
		})
		return nil
	}
}

// WithWebHook posts every delivered payload to url before the callback runs.
// Failures are logged and do not stop delivery.
func WithWebHook(url string, timeout time.Duration, insecureSkipVerify bool) Option {
	return func(s *GenericSubscription) error {
		if url == "" {
			return errors.New("subscription: empty webhook url")
		}
		if timeout > 0 {
			s.WebHookRequestTimeout = timeout
		}
		client := &fasthttp.Client{
			MaxConnsPerHost: 512,
			ReadTimeout:     s.WebHookRequestTimeout,
		}
		if insecureSkipVerify {
			client.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}

		s.handlers = append(s.handlers, func(msg *message.Serialized) {
			req := fasthttp.AcquireRequest()
			resp := fasthttp.AcquireResponse()
			defer func() {
				fasthttp.ReleaseRequest(req)
				fasthttp.ReleaseResponse(resp)
			}()

			req.SetRequestURI(url)
			req.Header.SetMethod(fasthttp.MethodPost)
			req.Header.SetContentType("application/octet-stream")
			req.Header.Set(HeaderTopic, s.topicName)
			req.Header.Set(HeaderType, s.topicType)
			req.SetBody(msg.Bytes())

			if err := client.DoTimeout(req, resp, s.WebHookRequestTimeout); err != nil {
				log.Errorf("webhook %s for %s: %v", url, s.topicName, err)
				return
			}
			if code := resp.StatusCode(); code >= fasthttp.StatusBadRequest {
				log.Warnf("webhook %s for %s: status %d", url, s.topicName, code)
			}
		})
		return nil
	}
}
