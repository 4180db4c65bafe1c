package node

import (
	"sync"
	"sync/atomic"

	"github.com/silverswords/rclgeneric/pkg/callbackgroup"
	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/message"
	"github.com/silverswords/rclgeneric/pkg/qos"
	"github.com/silverswords/rclgeneric/pkg/subscription"
	"github.com/silverswords/rclgeneric/pkg/typesupport"
)

// entry is the registry record of one subscription.
type entry struct {
	delivered uint64
	dropped   uint64

	sub      subscription.Base
	topic    string
	typeName string
	group    *callbackgroup.Group
	closer   mq.Closer

	// depth bounds queue for keep last histories; zero is unbounded.
	depth int

	active int32

	mu    sync.Mutex
	queue []*pending
}

// pending is a received payload waiting for the executor.
type pending struct {
	data []byte
	info message.Info
}

// push appends p. When the queue already holds depth payloads the oldest one
// is evicted and push reports true.
func (e *entry) push(p *pending) (evicted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.depth > 0 && len(e.queue) >= e.depth {
		e.queue[0] = nil
		e.queue = e.queue[1:]
		evicted = true
	}
	e.queue = append(e.queue, p)
	return evicted
}

// pop takes the oldest queued payload. It reports false when an eviction
// already consumed the payload this call was scheduled for.
func (e *entry) pop() (*pending, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil, false
	}
	p := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return p, true
}

// remove takes p out of the queue if it is still there.
func (e *entry) remove(p *pending) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, q := range e.queue {
		if q == p {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (e *entry) isActive() bool {
	return atomic.LoadInt32(&e.active) == 1
}

func (e *entry) info() SubscriptionInfo {
	profile := e.sub.QoSProfile()
	return SubscriptionInfo{
		Topic:         e.topic,
		Type:          e.typeName,
		QoS:           profile,
		QoSString:     profile.String(),
		CallbackGroup: e.group.String(),
		Delivered:     atomic.LoadUint64(&e.delivered),
		Dropped:       atomic.LoadUint64(&e.dropped),
	}
}

// AddSubscription opens a driver subscription for sub and registers it under
// group, or under the default group when group is nil. The subscription only
// becomes visible once the driver accepted it, so a failed call leaves the
// node unchanged.
func (n *Node) AddSubscription(sub subscription.Base, group *callbackgroup.Group) error {
	if group == nil {
		group = n.defaultGroup
	}
	topic, err := n.ResolveTopicName(sub.TopicName())
	if err != nil {
		return err
	}
	t, err := typesupport.ParseTypeName(sub.TopicType())
	if err != nil {
		return err
	}

	n.mu.RLock()
	_, known := n.groups[group]
	_, dup := n.subs[sub]
	closed := n.closed
	n.mu.RUnlock()
	switch {
	case closed:
		return ErrClosed
	case !known:
		return ErrForeignCallbackGroup
	case dup:
		return ErrAlreadyRegistered
	}

	e := &entry{
		sub:      sub,
		topic:    topic,
		typeName: t.String(),
		group:    group,
	}
	if profile := sub.QoSProfile(); profile.History == qos.HistoryKeepLast {
		e.depth = profile.Depth
	}
	closer, err := mq.Subscribe(n.driver, topic, sub.QoSProfile(), n.receive(e))
	if err != nil {
		return err
	}
	e.closer = closer

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		_ = closer.Close()
		return ErrClosed
	}
	if _, dup := n.subs[sub]; dup {
		n.mu.Unlock()
		_ = closer.Close()
		return ErrAlreadyRegistered
	}
	atomic.StoreInt32(&e.active, 1)
	n.subs[sub] = e
	n.mu.Unlock()

	log.Debugf("node %s: subscription on %s [%s] in %s", n.FullyQualifiedName(), topic, e.typeName, group)
	return nil
}

// RemoveSubscription unregisters sub and closes its driver subscription.
// Messages already queued for sub are dropped.
func (n *Node) RemoveSubscription(sub subscription.Base) error {
	n.mu.Lock()
	e, ok := n.subs[sub]
	if ok {
		delete(n.subs, sub)
		atomic.StoreInt32(&e.active, 0)
	}
	n.mu.Unlock()
	if !ok {
		return ErrSubscriptionNotFound
	}
	return e.closer.Close()
}
