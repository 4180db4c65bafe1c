package redis

// https://redis.io/topics/pubsub
import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
)

const (
	DriverName = "redis"
	URL        = "redisURL"
	DefaultURL = "redis://localhost:6379/0"
)

func init() {
	mq.Registry.Register(DriverName, func() mq.Driver {
		return NewRedis()
	})
}

type metadata struct {
	options *redis.Options
}

func parseRedisMetadata(meta mq.Metadata) (m metadata, err error) {
	s, err := meta.String(URL, "")
	if err != nil {
		return m, fmt.Errorf("redis init error: %w", err)
	}
	if s == "" {
		return m, errors.New("redis init error: missing redis URL: Try redis://localhost:6379/0 if you have a local redis server")
	}
	m.options, err = redis.ParseURL(s)
	return m, err
}

type Driver struct {
	metadata
	redisClient *redis.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	subs map[*redis.PubSub]struct{}
}

func NewRedis() *Driver {
	return &Driver{subs: make(map[*redis.PubSub]struct{})}
}

// Init initializes the mq and init the connection to the server.
func (d *Driver) Init(metadata mq.Metadata) error {
	m, err := parseRedisMetadata(metadata)
	if err != nil {
		return err
	}
	d.metadata = m
	d.redisClient = redis.NewClient(m.options)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d.redisClient.Ping(d.ctx).Err()
}

// Publish publishes a message to the redis channel named topic.
func (d *Driver) Publish(topic string, in []byte) error {
	if d.ctx.Err() != nil {
		return mq.ErrDraining
	}
	return d.redisClient.Publish(d.ctx, topic, in).Err()
}

// Subscribe handle message from specific topic. Messages are handed to
// handler from a single goroutine per subscription.
func (d *Driver) Subscribe(topic string, handler func(msg []byte)) (mq.Closer, error) {
	if d.ctx.Err() != nil {
		return nil, mq.ErrDraining
	}

	sub := d.redisClient.Subscribe(d.ctx, topic)
	// wait for the subscription confirmation so no publish is missed
	if _, err := sub.Receive(d.ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	d.mu.Lock()
	d.subs[sub] = struct{}{}
	d.mu.Unlock()

	channel := sub.Channel()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for msg := range channel {
			handler([]byte(msg.Payload))
		}
	}()

	var once sync.Once
	return mq.CloserFunc(func() (err error) {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, sub)
			d.mu.Unlock()
			err = sub.Close()
		})
		return err
	}), nil
}

// Close stops all subscriptions and waits for their goroutines.
func (d *Driver) Close() error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()

	d.mu.Lock()
	for sub := range d.subs {
		_ = sub.Close()
	}
	d.subs = make(map[*redis.PubSub]struct{})
	d.mu.Unlock()

	d.wg.Wait()
	return d.redisClient.Close()
}

var _ mq.Driver = (*Driver)(nil)
