package kafka

import (
	"testing"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
)

func TestParseMetadata(t *testing.T) {
	md := mq.NewMetadata()
	_, err := parseKafkaMetadata(*md)
	assert.Error(t, err)

	md.Properties[URL] = "k1:9092, k2:9092,"
	m, err := parseKafkaMetadata(*md)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, m.brokers)
}

func TestConfigs(t *testing.T) {
	assert.NoError(t, producerConfig().Validate())
	assert.NoError(t, consumerConfig().Validate())
	assert.Equal(t, sarama.WaitForAll, producerConfig().Producer.RequiredAcks)
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "robot.scan", topicName("/robot/scan"))
}
