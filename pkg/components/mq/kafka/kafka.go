package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/nats-io/nuid"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/logger"
	"github.com/silverswords/rclgeneric/pkg/retry"
)

// consumeRetry paces re-joining the group after a failed session.
var consumeRetry = retry.Params{
	Strategy: retry.BackoffStrategyExponential,
	Period:   100 * time.Millisecond,
}

const (
	DriverName = "kafka"
	// URL is a comma separated broker list.
	URL        = "kafkaURL"
	DefaultURL = "127.0.0.1:9092"
)

var log = logger.NewLogger("rclgeneric.mq.kafka")

func init() {
	mq.Registry.Register(DriverName, func() mq.Driver {
		return NewKafka()
	})
}

func NewKafka() *Driver {
	return &Driver{}
}

type Driver struct {
	metadata
	producer sarama.SyncProducer
}

type metadata struct {
	brokers []string
}

func parseKafkaMetadata(meta mq.Metadata) (metadata, error) {
	m := metadata{}
	s, err := meta.String(URL, "")
	if err != nil {
		return m, fmt.Errorf("kafka error: %w", err)
	}
	if s == "" {
		return m, errors.New("kafka error: missing kafka URL")
	}
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			m.brokers = append(m.brokers, b)
		}
	}
	return m, nil
}

func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Partitioner = sarama.NewRandomPartitioner
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	return config
}

func consumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V0_10_2_0
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	return config
}

func (n *Driver) Init(metadata mq.Metadata) error {
	m, err := parseKafkaMetadata(metadata)
	if err != nil {
		return err
	}
	n.metadata = m

	p, err := sarama.NewSyncProducer(m.brokers, producerConfig())
	if err != nil {
		return err
	}
	n.producer = p
	return nil
}

func (n *Driver) Publish(topic string, in []byte) error {
	_, _, err := n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topicName(topic),
		Value: sarama.ByteEncoder(in),
	})
	return err
}

// Subscribe joins a fresh consumer group so each subscription receives every
// message published after it joined.
func (n *Driver) Subscribe(topic string, handler func(msg []byte)) (mq.Closer, error) {
	cg, err := sarama.NewConsumerGroup(n.brokers, nuid.Next(), consumerConfig())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &consumer{
		ready:   make(chan struct{}),
		handler: handler,
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		failures := 0
		for {
			log.Debugf("subscribed and listening to topic: %s", topic)
			err := cg.Consume(ctx, []string{topicName(topic)}, c)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				failures = 0
				continue
			}
			failures++
			log.Errorf("consume %s: %v", topic, err)
			if consumeRetry.Backoff(ctx, failures) != nil {
				return
			}
		}
	}()

	select {
	case <-c.ready:
	case <-done:
	}

	return mq.CloserFunc(func() error {
		cancel()
		<-done
		return cg.Close()
	}), nil
}

// consumer implements sarama.ConsumerGroupHandler.
type consumer struct {
	ready   chan struct{}
	handler func([]byte)
	once    sync.Once
}

func (c *consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		c.handler(message.Value)
		session.MarkMessage(message, "")
	}
	return nil
}

func (c *consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *consumer) Setup(sarama.ConsumerGroupSession) error {
	c.once.Do(func() {
		close(c.ready)
	})
	return nil
}

// topicName maps a topic onto the kafka topic alphabet.
func topicName(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (n *Driver) Close() error {
	if n.producer == nil {
		return nil
	}
	return n.producer.Close()
}

var _ mq.Driver = (*Driver)(nil)
var _ sarama.ConsumerGroupHandler = (*consumer)(nil)
