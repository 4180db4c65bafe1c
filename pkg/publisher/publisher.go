// Package publisher implements GenericPublisher, the sending counterpart of
// a generic subscription: it publishes already serialized bytes under a
// message type name.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nuid"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/logger"
	"github.com/silverswords/rclgeneric/pkg/message"
	"github.com/silverswords/rclgeneric/pkg/metrics"
	"github.com/silverswords/rclgeneric/pkg/qos"
	"github.com/silverswords/rclgeneric/pkg/retry"
	"github.com/silverswords/rclgeneric/pkg/scheduler"
	"github.com/silverswords/rclgeneric/pkg/typesupport"
)

const (
	// MaxPublishRequestCount is the maximum number of messages handed to the
	// driver in one bundle.
	MaxPublishRequestCount = 1000

	// MaxPublishRequestBytes is the maximum size of one bundle in bytes.
	MaxPublishRequestBytes = 1e7 // 10m
)

var (
	log = logger.NewLogger("rclgeneric.publisher")

	ErrStopped    = errors.New("publisher: Stop has been called for this publisher")
	ErrNilMessage = errors.New("publisher: nil message")
)

// PublishSettings control the bundling of published messages.
type PublishSettings struct {
	// EnableMessageOrdering keeps the order of Publish calls on the wire. A
	// failed publish pauses the publisher until ResumePublish.
	EnableMessageOrdering bool

	// Publish a non-empty batch after this delay has passed.
	DelayThreshold time.Duration

	// Publish a batch when it has this many messages. The maximum is
	// MaxPublishRequestCount.
	CountThreshold int

	// Publish a batch when its size in bytes reaches this value.
	ByteThreshold int

	// The number of goroutines handing bundles to the driver.
	//
	// Defaults to a multiple of GOMAXPROCS.
	NumGoroutines int

	// The maximum time that the publisher will attempt to publish a bundle.
	Timeout time.Duration

	// The maximum number of bytes kept in memory before Publish fails with
	// bundler.ErrOverflow.
	BufferedByteLimit int

	// if nil, a failed driver publish is not retried.
	RetryParams *retry.Params
}

// DefaultPublishSettings holds the default values for PublishSettings.
var DefaultPublishSettings = PublishSettings{
	EnableMessageOrdering: true,
	DelayThreshold:        time.Millisecond,
	CountThreshold:        100,
	ByteThreshold:         1e6,
	NumGoroutines:         25 * runtime.GOMAXPROCS(0),
	Timeout:               60 * time.Second,
	BufferedByteLimit:     10 * MaxPublishRequestBytes,
	RetryParams:           &retry.DefaultRetryParams,
}

// GenericPublisher publishes serialized messages of one type on one topic.
// It keeps the type-support library of its type loaded until Stop.
type GenericPublisher struct {
	d        mq.Publisher
	topic    string
	typeName string
	codec    message.Codec
	profile  qos.Profile
	gid      string
	seq      uint64

	library     *typesupport.Library
	typesupport *typesupport.Handle

	// Settings for publishing messages. All changes must be made before the
	// first call to Publish.
	PublishSettings

	mu        sync.RWMutex
	stopped   bool
	scheduler *scheduler.PublishScheduler
}

// New creates a publisher on d for the already resolved topic. On success
// the publisher takes over the caller's reference to lib. A best effort
// profile disables retries.
func New(d mq.Publisher, topic string, lib *typesupport.Library, handle *typesupport.Handle, codec message.Codec, profile qos.Profile, opts ...Option) (*GenericPublisher, error) {
	if d == nil || lib == nil || handle == nil || codec == nil {
		return nil, errors.New("publisher: driver, type support and codec are required")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	p := &GenericPublisher{
		d:               d,
		topic:           topic,
		typeName:        handle.Type.String(),
		codec:           codec,
		profile:         profile,
		gid:             nuid.Next(),
		library:         lib,
		typesupport:     handle,
		PublishSettings: DefaultPublishSettings,
	}
	if profile.Reliability == qos.ReliabilityBestEffort {
		p.RetryParams = nil
	}
	if err := p.applyOptions(opts...); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *GenericPublisher) TopicName() string { return p.topic }

func (p *GenericPublisher) TopicType() string { return p.typeName }

func (p *GenericPublisher) QoSProfile() qos.Profile { return p.profile }

// GID identifies this publisher in every frame it sends.
func (p *GenericPublisher) GID() string { return p.gid }

// Publish sends a copy of msg asynchronously. The caller keeps its reference
// to msg. Messages are batched according to PublishSettings.
//
// Publish returns a non-nil PublishResult which will be ready when the
// message has been handed to the driver, or has failed to be.
func (p *GenericPublisher) Publish(ctx context.Context, msg *message.Serialized) *PublishResult {
	r := &PublishResult{ready: make(chan struct{})}
	if msg == nil || msg.Released() {
		r.set(0, ErrNilMessage)
		return r
	}
	return p.publish(ctx, msg.Copy(), r)
}

// PublishBytes is Publish for a plain byte slice.
func (p *GenericPublisher) PublishBytes(ctx context.Context, data []byte) *PublishResult {
	r := &PublishResult{ready: make(chan struct{})}
	buf := make([]byte, len(data))
	copy(buf, data)
	return p.publish(ctx, buf, r)
}

func (p *GenericPublisher) publish(ctx context.Context, data []byte, r *PublishResult) *PublishResult {
	if err := ctx.Err(); err != nil {
		r.set(0, err)
		return r
	}

	p.start()
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		r.set(0, ErrStopped)
		return r
	}

	key := p.orderingKey()
	if p.scheduler.IsPaused(key) {
		r.set(0, fmt.Errorf("publisher: publishing on %s paused due to previous error, call ResumePublish first", p.topic))
		return r
	}

	frame := &message.Frame{
		TypeName:     p.typeName,
		PublisherGID: p.gid,
		Sequence:     atomic.AddUint64(&p.seq, 1),
		SourceStamp:  time.Now().UnixNano(),
		Data:         data,
	}
	b, err := p.codec.Marshal(frame)
	if err != nil {
		r.set(0, err)
		return r
	}

	if err := p.scheduler.Add(key, &bundledMessage{seq: frame.Sequence, data: b, res: r}, len(b)); err != nil {
		p.scheduler.Pause(key)
		r.set(0, err)
	}
	return r
}

func (p *GenericPublisher) orderingKey() string {
	if p.EnableMessageOrdering {
		return p.gid
	}
	return ""
}

// ResumePublish accepts messages again after a failed ordered publish.
func (p *GenericPublisher) ResumePublish() {
	p.mu.RLock()
	noop := p.scheduler == nil
	p.mu.RUnlock()
	if noop {
		return
	}
	p.scheduler.Resume(p.orderingKey())
}

// Stop sends all remaining messages, stops the goroutines created for
// publishing and releases the type-support library. It returns once every
// outstanding message has been sent or has failed to be sent.
func (p *GenericPublisher) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	s := p.scheduler
	p.mu.Unlock()

	if s != nil {
		s.FlushAndStop()
	}
	p.library.Release()
}

// start creates the scheduler on first use.
func (p *GenericPublisher) start() {
	p.mu.RLock()
	onceStart := p.stopped || p.scheduler != nil
	p.mu.RUnlock()
	if onceStart {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// Must re-check, since we released the lock.
	if p.stopped || p.scheduler != nil {
		return
	}

	timeout := p.Timeout
	workers := p.NumGoroutines
	if workers == 0 {
		workers = 25 * runtime.GOMAXPROCS(0)
	}

	p.scheduler = scheduler.NewPublishScheduler(workers, func(bundle interface{}) {
		ctx := context.Background()
		if timeout != 0 {
			var cancel func()
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		p.publishMessageBundle(ctx, bundle.([]*bundledMessage))
	})
	p.scheduler.DelayThreshold = p.DelayThreshold
	p.scheduler.BundleCountThreshold = p.CountThreshold
	if p.scheduler.BundleCountThreshold > MaxPublishRequestCount {
		p.scheduler.BundleCountThreshold = MaxPublishRequestCount
	}
	p.scheduler.BundleByteThreshold = p.ByteThreshold

	bufferedByteLimit := DefaultPublishSettings.BufferedByteLimit
	if p.BufferedByteLimit > 0 {
		bufferedByteLimit = p.BufferedByteLimit
	}
	p.scheduler.BufferedByteLimit = bufferedByteLimit
	p.scheduler.BundleByteLimit = MaxPublishRequestBytes
}

type bundledMessage struct {
	seq  uint64
	data []byte
	res  *PublishResult
}

// publishMessageBundle hands a bundle to the driver in order. After the
// first failure on an ordered publisher the rest of the bundle fails too.
func (p *GenericPublisher) publishMessageBundle(ctx context.Context, bms []*bundledMessage) {
	key := p.orderingKey()
	for _, bm := range bms {
		if key != "" && p.scheduler.IsPaused(key) {
			bm.res.set(0, fmt.Errorf("publisher: publishing on %s paused due to previous error", p.topic))
			continue
		}

		err := p.publishMessage(ctx, bm.data)
		metrics.Published(ctx, p.topic, err)
		if err != nil {
			log.Errorf("publish on %s: %v", p.topic, err)
			p.scheduler.Pause(key)
			bm.res.set(0, err)
			continue
		}
		bm.res.set(bm.seq, nil)
	}
}

// publishMessage retries a failed driver publish per RetryParams.
func (p *GenericPublisher) publishMessage(ctx context.Context, data []byte) error {
	for attempt := 1; ; attempt++ {
		err := p.d.Publish(p.topic, data)
		if err == nil || p.RetryParams == nil || errors.Is(err, mq.ErrDraining) {
			return err
		}
		if berr := p.RetryParams.Backoff(ctx, attempt); berr != nil {
			return fmt.Errorf("%w: %v", berr, err)
		}
		log.Debugf("retrying publish on %s, attempt %d: %v", p.topic, attempt+1, err)
	}
}

// PublishResult help to know error because of sending goroutine is another goroutine.
type PublishResult struct {
	ready chan struct{}
	seq   uint64
	err   error
}

// Ready returns a channel that is closed when the result is ready.
// When the Ready channel is closed, Get is guaranteed not to block.
func (r *PublishResult) Ready() <-chan struct{} { return r.ready }

// Get returns the sequence number of the published message and/or the error
// result of a Publish call. Get blocks until the Publish call completes or
// the context is done.
func (r *PublishResult) Get(ctx context.Context) (seq uint64, err error) {
	// If the result is already ready, return it even if the context is done.
	select {
	case <-r.Ready():
		return r.seq, r.err
	default:
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-r.Ready():
		return r.seq, r.err
	}
}

func (r *PublishResult) set(seq uint64, err error) {
	r.seq = seq
	r.err = err
	close(r.ready)
}
