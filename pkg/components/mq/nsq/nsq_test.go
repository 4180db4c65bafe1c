package nsq

import (
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
)

func TestParseMetadata(t *testing.T) {
	md := mq.NewMetadata()
	_, err := parseMetadata(*md)
	assert.Error(t, err)

	md.Properties[URL] = DefaultURL
	m, err := parseMetadata(*md)
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, m.nsqURL)
}

func TestTopicName(t *testing.T) {
	for _, topic := range []string{"/scan", "/robot1/camera/image_raw"} {
		assert.True(t, nsq.IsValidTopicName(topicName(topic)), topic)
	}
}
