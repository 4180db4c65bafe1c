package node

import (
	"errors"
	"io"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/silverswords/rclgeneric/pkg/message"
	"github.com/silverswords/rclgeneric/pkg/metrics"
)

var (
	errTypeMismatch = errors.New("node: frame type does not match subscription type")
	errQueueFull    = errors.New("node: keep last depth exceeded, oldest message evicted")
	errInactive     = errors.New("node: subscription removed")
	errNotWritable  = errors.New("node: subscription message is not writable")
)

// receive returns the driver handler of e. It decodes the frame, checks the
// type, queues the payload on e and schedules one delivery on the executor
// under the key of e's callback group.
func (n *Node) receive(e *entry) func([]byte) {
	return func(in []byte) {
		var f message.Frame
		if err := n.codec.Unmarshal(in, &f); err != nil {
			n.drop(e, err)
			return
		}
		if f.TypeName != e.typeName {
			n.drop(e, errTypeMismatch)
			return
		}
		if !e.isActive() {
			n.drop(e, errInactive)
			return
		}

		p := &pending{data: f.Data, info: f.Info(time.Now())}
		if evicted := e.push(p); evicted {
			n.drop(e, errQueueFull)
		}
		err := n.executor.Add(e.group.SchedulingKey(), func() {
			if next, ok := e.pop(); ok {
				n.dispatch(e, next.data, next.info)
			}
		})
		if err != nil && e.remove(p) {
			n.drop(e, err)
		}
	}
}

// dispatch runs on the executor: take a message from the subscription,
// fill it, hand it over and give it back.
func (n *Node) dispatch(e *entry, data []byte, info message.Info) {
	if !e.isActive() {
		n.drop(e, errInactive)
		return
	}
	sub := e.sub

	if sub.CanLoanMessages() {
		sub.HandleLoanedMessage(unsafe.Pointer(&data), info)
		n.delivered(e, len(data))
		return
	}

	msg := sub.CreateMessage()
	w, ok := msg.(io.Writer)
	if !ok {
		sub.ReturnMessage(msg)
		n.drop(e, errNotWritable)
		return
	}
	if _, err := w.Write(data); err != nil {
		sub.ReturnMessage(msg)
		n.drop(e, err)
		return
	}

	sub.HandleMessage(msg, info)
	sub.ReturnMessage(msg)
	n.delivered(e, len(data))
}

func (n *Node) delivered(e *entry, size int) {
	atomic.AddUint64(&e.delivered, 1)
	metrics.Received(e.topic, size)
}

func (n *Node) drop(e *entry, reason error) {
	atomic.AddUint64(&e.dropped, 1)
	metrics.Dropped(e.topic, reason)
	log.Debugf("node %s: dropped message on %s: %v", n.FullyQualifiedName(), e.topic, reason)
}
