package nsq

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nuid"
	"github.com/nsqio/go-nsq"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
)

const (
	DriverName = "nsq"
	URL        = "nsqURL"
	DefaultURL = "127.0.0.1:4150"
)

func init() {
	mq.Registry.Register(DriverName, func() mq.Driver {
		return NewNsq()
	})
}

type metadata struct {
	nsqURL string
}

func parseMetadata(meta mq.Metadata) (metadata, error) {
	m := metadata{}
	var err error
	if m.nsqURL, err = meta.String(URL, ""); err != nil {
		return m, fmt.Errorf("nsq error: %w", err)
	}
	if m.nsqURL == "" {
		return m, errors.New("nsq error: missing nsq URL")
	}
	return m, nil
}

func NewNsq() *Driver {
	return &Driver{}
}

type Driver struct {
	metadata
	producer *nsq.Producer
}

func (n *Driver) Init(metadata mq.Metadata) error {
	m, err := parseMetadata(metadata)
	if err != nil {
		return err
	}
	n.metadata = m

	p, err := nsq.NewProducer(m.nsqURL, nsq.NewConfig())
	if err != nil {
		return err
	}
	n.producer = p
	return p.Ping()
}

func (n *Driver) Publish(topic string, in []byte) error {
	return n.producer.Publish(topicName(topic), in)
}

// Subscribe gives every subscription its own ephemeral channel so each one
// sees every message on the topic.
func (n *Driver) Subscribe(topic string, handler func(msg []byte)) (mq.Closer, error) {
	ch := nuid.Next() + "#ephemeral"
	con, err := nsq.NewConsumer(topicName(topic), ch, nsq.NewConfig())
	if err != nil {
		return nil, err
	}

	con.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		handler(m.Body)
		return nil
	}))
	if err = con.ConnectToNSQD(n.nsqURL); err != nil {
		con.Stop()
		return nil, err
	}

	return mq.CloserFunc(func() error {
		con.Stop()
		<-con.StopChan
		return nil
	}), nil
}

// topicName maps a topic onto the NSQ topic alphabet, which has no slashes.
func topicName(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (n *Driver) Close() error {
	if n.producer != nil {
		n.producer.Stop()
	}
	return nil
}

var _ mq.Driver = (*Driver)(nil)
