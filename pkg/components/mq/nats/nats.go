package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/logger"
)

const (
	DriverName = "nats"
	// URL -
	URL     = "natsURL"
	Options = "natsOptions"
	// QueueGroup makes subscriptions share deliveries within a queue group.
	QueueGroup = "natsQueueGroup"
	DefaultURL = nats.DefaultURL
)

var log = logger.NewLogger("rclgeneric.mq.nats")

func init() {
	// use to register the nats to pubsub mq factory
	mq.Registry.Register(DriverName, func() mq.Driver {
		return NewNats()
	})
}

func setupConnOptions(opts []nats.Option) []nats.Option {
	totalWait := 10 * time.Minute
	reconnectDelay := time.Second

	opts = append(opts, nats.ReconnectWait(reconnectDelay))
	opts = append(opts, nats.MaxReconnects(int(totalWait/reconnectDelay)))
	opts = append(opts, nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
		log.Warnf("disconnected due to: %v, will attempt reconnects for %.0fm", err, totalWait.Minutes())
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("reconnected [%s]", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ClosedHandler(func(nc *nats.Conn) {
		if err := nc.LastError(); err != nil {
			log.Errorf("connection closed: %v", err)
		}
	}))
	return opts
}

type metadata struct {
	natsURL        string
	natsOpts       []nats.Option
	queueGroupName string
}

func parseNATSMetadata(meta mq.Metadata) (metadata, error) {
	m := metadata{}
	var err error
	if m.natsURL, err = meta.String(URL, ""); err != nil {
		return m, fmt.Errorf("nats error: %w", err)
	}
	if m.natsURL == "" {
		return m, errors.New("nats error: missing nats URL")
	}

	if val, ok := meta.Properties[Options]; ok && val != nil {
		if m.natsOpts, ok = val.([]nats.Option); !ok {
			return m, errors.New("nats error: nats Options is not a []nats.Option")
		}
	} else {
		m.natsOpts = setupConnOptions(m.natsOpts)
	}

	if m.queueGroupName, err = meta.String(QueueGroup, ""); err != nil {
		return m, fmt.Errorf("nats error: %w", err)
	}
	return m, nil
}

// Driver -
type Driver struct {
	metadata
	Conn *nats.Conn
}

// NewNats -
func NewNats() *Driver {
	return &Driver{}
}

// Init initializes the mq and init the connection to the server.
func (n *Driver) Init(metadata mq.Metadata) error {
	m, err := parseNATSMetadata(metadata)
	if err != nil {
		return err
	}

	n.metadata = m
	conn, err := nats.Connect(m.natsURL, m.natsOpts...)
	if err != nil {
		return fmt.Errorf("nats: error connecting to nats at %s: %w", m.natsURL, err)
	}

	n.Conn = conn
	return nil
}

// Publish publishes a message to Nats Server with message destination topic.
func (n *Driver) Publish(topic string, in []byte) error {
	if err := n.Conn.Publish(subject(topic), in); err != nil {
		return fmt.Errorf("nats: error from publish: %w", err)
	}
	return nil
}

// Subscribe handle message from specific topic. With a queue group
// configured only one member of the group receives each message.
func (n *Driver) Subscribe(topic string, handler func(msg []byte)) (mq.Closer, error) {
	var (
		sub        *nats.Subscription
		err        error
		msgHandler = func(m *nats.Msg) {
			handler(m.Data)
		}
	)

	if n.metadata.queueGroupName == "" {
		sub, err = n.Conn.Subscribe(subject(topic), msgHandler)
	} else {
		sub, err = n.Conn.QueueSubscribe(subject(topic), n.metadata.queueGroupName, msgHandler)
	}
	if err != nil {
		return nil, fmt.Errorf("nats: error subscribe: %w", err)
	}

	return &subscriber{sub: sub}, nil
}

type subscriber struct {
	sub *nats.Subscription
}

// Close subscriber to unsubscribe topic but not close connection.
func (s *subscriber) Close() error {
	return s.sub.Drain()
}

// Close -
func (n *Driver) Close() error {
	if n.Conn == nil {
		return nil
	}
	return n.Conn.Drain()
}

var _ mq.Driver = (*Driver)(nil)
var _ mq.Closer = (*subscriber)(nil)
