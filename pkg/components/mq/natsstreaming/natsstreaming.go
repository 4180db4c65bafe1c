// Package natsstreaming is a durable driver on NATS Streaming. It honours the
// durability and history of a QoS profile.
package natsstreaming

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	stan "github.com/nats-io/stan.go"
	"github.com/nats-io/stan.go/pb"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/logger"
	"github.com/silverswords/rclgeneric/pkg/qos"
)

const (
	DriverName = "natsstreaming"

	URL            = "natsURL"
	ClusterID      = "natsStreamingClusterID"
	DurableName    = "durableSubscriptionName"
	QueueGroupName = "queueGroupName"
	AckWaitTime    = "ackWaitTime"

	DefaultURL       = nats.DefaultURL
	DefaultClusterID = "test-cluster"
)

var log = logger.NewLogger("rclgeneric.mq.natsstreaming")

func init() {
	mq.Registry.Register(DriverName, func() mq.Driver {
		return NewNatsStreamingDriver()
	})
}

type metadata struct {
	natsURL                 string
	natsStreamingClusterID  string
	durableSubscriptionName string
	queueGroupName          string
	ackWaitTime             time.Duration
}

func parseNATSStreamingMetadata(meta mq.Metadata) (metadata, error) {
	m := metadata{}
	var err error
	if m.natsURL, err = meta.String(URL, ""); err != nil {
		return m, fmt.Errorf("nats-streaming error: %w", err)
	}
	if m.natsURL == "" {
		return m, errors.New("nats-streaming error: missing nats URL")
	}
	if m.natsStreamingClusterID, err = meta.String(ClusterID, DefaultClusterID); err != nil {
		return m, fmt.Errorf("nats-streaming error: %w", err)
	}
	if m.durableSubscriptionName, err = meta.String(DurableName, ""); err != nil {
		return m, fmt.Errorf("nats-streaming error: %w", err)
	}
	if m.queueGroupName, err = meta.String(QueueGroupName, ""); err != nil {
		return m, fmt.Errorf("nats-streaming error: %w", err)
	}

	ack, err := meta.String(AckWaitTime, "")
	if err != nil {
		return m, fmt.Errorf("nats-streaming error: %w", err)
	}
	if ack != "" {
		if m.ackWaitTime, err = time.ParseDuration(ack); err != nil {
			return m, fmt.Errorf("nats-streaming error: invalid %s: %w", AckWaitTime, err)
		}
	}
	return m, nil
}

// Driver -
type Driver struct {
	metadata
	natsConn *nats.Conn
	Conn     stan.Conn
}

// NewNatsStreamingDriver returns a new NATS Streaming driver.
func NewNatsStreamingDriver() *Driver {
	return &Driver{}
}

// Init connects to the nats server and then to the streaming cluster.
func (d *Driver) Init(metadata mq.Metadata) error {
	m, err := parseNATSStreamingMetadata(metadata)
	if err != nil {
		return err
	}
	d.metadata = m

	clientID := nuid.Next()
	natsConn, err := nats.Connect(m.natsURL, nats.Name(clientID))
	if err != nil {
		return fmt.Errorf("nats-streaming: error connecting to nats server at %s: %w", m.natsURL, err)
	}
	conn, err := stan.Connect(m.natsStreamingClusterID, clientID, stan.NatsConn(natsConn))
	if err != nil {
		natsConn.Close()
		return fmt.Errorf("nats-streaming: error connecting to nats streaming server %s: %w", m.natsStreamingClusterID, err)
	}
	log.Debugf("connected to natsstreaming %s", m)

	d.natsConn = natsConn
	d.Conn = conn
	return nil
}

// Publish blocks until the streaming server acknowledges the message.
func (d *Driver) Publish(topic string, in []byte) error {
	if err := d.Conn.Publish(channel(topic), in); err != nil {
		return fmt.Errorf("nats-streaming: error from publish: %w", err)
	}
	return nil
}

// Subscribe uses the default QoS profile.
func (d *Driver) Subscribe(topic string, handler func(msg []byte)) (mq.Closer, error) {
	return d.SubscribeWithQoS(topic, qos.Default(), handler)
}

// SubscribeWithQoS maps transient local durability onto DeliverAllAvailable
// and a keep last depth onto MaxInflight.
func (d *Driver) SubscribeWithQoS(topic string, profile qos.Profile, handler func(msg []byte)) (mq.Closer, error) {
	msgHandler := func(m *stan.Msg) {
		handler(m.Data)
		if err := m.Ack(); err != nil {
			log.Warnf("nats-streaming: ack on %s: %v", topic, err)
		}
	}

	var (
		sub stan.Subscription
		err error
	)
	opts := d.subscriptionOptions(profile)
	if d.metadata.queueGroupName == "" {
		sub, err = d.Conn.Subscribe(channel(topic), msgHandler, opts...)
	} else {
		sub, err = d.Conn.QueueSubscribe(channel(topic), d.metadata.queueGroupName, msgHandler, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("nats-streaming: error subscribe: %w", err)
	}

	return mq.CloserFunc(sub.Close), nil
}

func (d *Driver) subscriptionOptions(profile qos.Profile) []stan.SubscriptionOption {
	var options []stan.SubscriptionOption

	if d.metadata.durableSubscriptionName != "" {
		options = append(options, stan.DurableName(d.metadata.durableSubscriptionName))
	}

	if profile.Durability == qos.DurabilityTransientLocal {
		options = append(options, stan.DeliverAllAvailable())
	} else {
		options = append(options, stan.StartAt(pb.StartPosition_NewOnly))
	}

	// manual ack so a message is acknowledged only after the handler ran
	options = append(options, stan.SetManualAckMode())

	if d.metadata.ackWaitTime > 0 {
		options = append(options, stan.AckWait(d.metadata.ackWaitTime))
	}
	if profile.History == qos.HistoryKeepLast && profile.Depth > 0 {
		options = append(options, stan.MaxInflight(profile.Depth))
	}

	return options
}

// channel maps a topic onto a streaming channel name, which may not
// contain slashes.
func channel(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

// Close -
func (d *Driver) Close() error {
	if d.Conn == nil {
		return nil
	}
	err := d.Conn.Close()
	d.natsConn.Close()
	return err
}

func (m metadata) String() string {
	return m.natsStreamingClusterID + "@" + m.natsURL + " ackWait=" + strconv.FormatInt(int64(m.ackWaitTime/time.Millisecond), 10) + "ms"
}

var (
	_ mq.Driver        = (*Driver)(nil)
	_ mq.QoSSubscriber = (*Driver)(nil)
)
