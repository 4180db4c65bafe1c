package natsstreaming

import (
	"testing"
	"time"

	stan "github.com/nats-io/stan.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/qos"
)

func TestParseMetadata(t *testing.T) {
	md := mq.NewMetadata()
	_, err := parseNATSStreamingMetadata(*md)
	assert.Error(t, err)

	md.Properties[URL] = DefaultURL
	m, err := parseNATSStreamingMetadata(*md)
	require.NoError(t, err)
	assert.Equal(t, DefaultClusterID, m.natsStreamingClusterID)
	assert.Zero(t, m.ackWaitTime)

	md.Properties[AckWaitTime] = "5s"
	md.Properties[DurableName] = "scan-recorder"
	m, err = parseNATSStreamingMetadata(*md)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, m.ackWaitTime)
	assert.Equal(t, "scan-recorder", m.durableSubscriptionName)
	assert.Equal(t, "test-cluster@"+DefaultURL+" ackWait=5000ms", m.String())

	md.Properties[AckWaitTime] = "soon"
	_, err = parseNATSStreamingMetadata(*md)
	assert.Error(t, err)
}

func applied(opts []stan.SubscriptionOption) stan.SubscriptionOptions {
	o := stan.DefaultSubscriptionOptions
	for _, opt := range opts {
		_ = opt(&o)
	}
	return o
}

func TestSubscriptionOptionsFollowQoS(t *testing.T) {
	d := NewNatsStreamingDriver()

	o := applied(d.subscriptionOptions(qos.KeepLast(3).TransientLocal()))
	assert.Equal(t, 3, o.MaxInflight)
	assert.True(t, o.ManualAcks)
	assert.Equal(t, "", o.DurableName)

	volatile := applied(d.subscriptionOptions(qos.KeepAll()))
	assert.NotEqual(t, o.StartAt, volatile.StartAt)
	assert.Equal(t, stan.DefaultSubscriptionOptions.MaxInflight, volatile.MaxInflight)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "robot.scan", channel("/robot/scan"))
}
