package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
)

func newDriver(t *testing.T) *Driver {
	md := mq.NewMetadata()
	md.Properties[BusName] = t.Name()
	d := NewEventBus()
	require.NoError(t, d.Init(*md))
	return d
}

func TestPublishSubscribe(t *testing.T) {
	d := newDriver(t)

	var a, b [][]byte
	ca, err := d.Subscribe("/chatter", func(in []byte) { a = append(a, in) })
	require.NoError(t, err)
	cb, err := d.Subscribe("/chatter", func(in []byte) { b = append(b, in) })
	require.NoError(t, err)

	require.NoError(t, d.Publish("/chatter", []byte("hi")))
	require.NoError(t, d.Publish("/other", []byte("nobody")))
	assert.Equal(t, [][]byte{[]byte("hi")}, a)
	assert.Equal(t, [][]byte{[]byte("hi")}, b)

	// closing one subscription leaves the other attached
	require.NoError(t, ca.Close())
	require.NoError(t, ca.Close())
	require.NoError(t, d.Publish("/chatter", []byte("again")))
	assert.Len(t, a, 1)
	assert.Len(t, b, 2)

	require.NoError(t, cb.Close())
	require.NoError(t, d.Publish("/chatter", []byte("gone")))
	assert.Len(t, b, 2)
}

func TestSharedBus(t *testing.T) {
	pub := newDriver(t)
	sub := newDriver(t)

	got := 0
	_, err := sub.Subscribe("/t", func([]byte) { got++ })
	require.NoError(t, err)
	require.NoError(t, pub.Publish("/t", []byte{1}))
	assert.Equal(t, 1, got)

	md := mq.NewMetadata()
	md.Properties[BusName] = t.Name() + "-isolated"
	other := NewEventBus()
	require.NoError(t, other.Init(*md))
	require.NoError(t, other.Publish("/t", []byte{1}))
	assert.Equal(t, 1, got)
}

func TestClosedDriver(t *testing.T) {
	d := newDriver(t)
	require.NoError(t, d.Close())

	assert.Equal(t, mq.ErrDraining, d.Publish("/t", nil))
	_, err := d.Subscribe("/t", func([]byte) {})
	assert.Equal(t, mq.ErrDraining, err)

	uninit := NewEventBus()
	assert.Equal(t, mq.ErrDraining, uninit.Publish("/t", nil))
}

func TestRegistered(t *testing.T) {
	d, err := mq.Registry.Create(DriverName)
	require.NoError(t, err)
	assert.IsType(t, &Driver{}, d)
}

func TestBadBusName(t *testing.T) {
	md := mq.NewMetadata()
	md.Properties[BusName] = 7
	assert.Error(t, NewEventBus().Init(*md))
}
