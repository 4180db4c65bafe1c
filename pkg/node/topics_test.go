package node

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverswords/rclgeneric/pkg/message"
)

func TestEntryQueue(t *testing.T) {
	a, b, c := &pending{data: []byte{1}}, &pending{data: []byte{2}}, &pending{data: []byte{3}}

	t.Run("keep last evicts oldest", func(t *testing.T) {
		e := &entry{depth: 2}
		assert.False(t, e.push(a))
		assert.False(t, e.push(b))
		assert.True(t, e.push(c))

		p, ok := e.pop()
		require.True(t, ok)
		assert.Same(t, b, p)
		p, ok = e.pop()
		require.True(t, ok)
		assert.Same(t, c, p)
		_, ok = e.pop()
		assert.False(t, ok)
	})

	t.Run("unbounded", func(t *testing.T) {
		e := &entry{}
		for i := 0; i < 100; i++ {
			assert.False(t, e.push(a))
		}
		assert.Len(t, e.queue, 100)
	})

	t.Run("remove", func(t *testing.T) {
		e := &entry{depth: 1}
		e.push(a)
		assert.False(t, e.remove(b))
		assert.True(t, e.remove(a))
		assert.False(t, e.remove(a))
		assert.Empty(t, e.queue)
	})
}

func TestReceiveCountsFramesForInactiveEntry(t *testing.T) {
	n := newNode(t, "listener")
	e := &entry{
		topic:    "/chatter",
		typeName: "std_msgs/msg/String",
		group:    n.DefaultCallbackGroup(),
	}
	in, err := n.codec.Marshal(&message.Frame{TypeName: "std_msgs/msg/String", Data: []byte("early")})
	require.NoError(t, err)

	n.receive(e)(in)

	assert.Equal(t, uint64(1), atomic.LoadUint64(&e.dropped))
	assert.Empty(t, e.queue)
}
