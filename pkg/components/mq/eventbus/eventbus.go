// Package eventbus is the default in-process driver, registered under the
// empty name. Payloads are delivered synchronously on the publishing
// goroutine.
package eventbus

// from https://github.com/asaskevich/EventBus/blob/master/README.md
import (
	"sync"
	"sync/atomic"

	evb "github.com/asaskevich/EventBus"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
)

const (
	// DriverName is the registry name of this driver.
	DriverName = ""
	// BusName selects a named process wide bus. Drivers on the same bus see
	// each other's publishes.
	BusName = "eventbusName"
)

func init() {
	mq.Registry.Register(DriverName, func() mq.Driver {
		return NewEventBus()
	})
}

var (
	hubsMu sync.Mutex
	hubs   = make(map[string]*hub)
)

// hub owns one evb.Bus. It subscribes a single dispatcher per topic and fans
// out to its own handler table, because evb.Bus identifies handlers by
// function pointer and cannot tell two closures of the same literal apart.
type hub struct {
	// busMu guards dispatcher subscription. It is never held together with
	// mu, since the bus calls dispatch with its own lock held.
	busMu sync.Mutex
	bus   evb.Bus

	mu     sync.RWMutex
	nextID uint64
	topics map[string]map[uint64]func([]byte)
}

func getHub(name string) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	h, ok := hubs[name]
	if !ok {
		h = &hub{bus: evb.New(), topics: make(map[string]map[uint64]func([]byte))}
		hubs[name] = h
	}
	return h
}

func (h *hub) subscribe(topic string, handler func([]byte)) (uint64, error) {
	h.busMu.Lock()
	if !h.bus.HasCallback(topic) {
		if err := h.bus.Subscribe(topic, func(in []byte) { h.dispatch(topic, in) }); err != nil {
			h.busMu.Unlock()
			return 0, err
		}
	}
	h.busMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[uint64]func([]byte))
	}
	h.topics[topic][h.nextID] = handler
	return h.nextID, nil
}

func (h *hub) unsubscribe(topic string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[topic], id)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
}

func (h *hub) dispatch(topic string, in []byte) {
	h.mu.RLock()
	handlers := make([]func([]byte), 0, len(h.topics[topic]))
	for _, fn := range h.topics[topic] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(in)
	}
}

// Driver -
type Driver struct {
	hub     *hub
	stopped int32
}

// NewEventBus -
func NewEventBus() *Driver {
	return &Driver{}
}

// Init attaches the driver to the bus named by BusName, or to the default bus.
func (d *Driver) Init(metadata mq.Metadata) error {
	name, err := metadata.String(BusName, "")
	if err != nil {
		return err
	}
	d.hub = getHub(name)
	return nil
}

func (d *Driver) draining() bool {
	return atomic.LoadInt32(&d.stopped) == 1 || d.hub == nil
}

// Publish publishes a message to EventBus with message destination topic.
// Every subscriber has run when Publish returns.
func (d *Driver) Publish(topic string, in []byte) error {
	if d.draining() {
		return mq.ErrDraining
	}
	d.hub.bus.Publish(topic, in)
	return nil
}

// Subscribe handle message from specific topic.
func (d *Driver) Subscribe(topic string, handler func(msg []byte)) (mq.Closer, error) {
	if d.draining() {
		return nil, mq.ErrDraining
	}

	id, err := d.hub.subscribe(topic, handler)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return mq.CloserFunc(func() error {
		once.Do(func() { d.hub.unsubscribe(topic, id) })
		return nil
	}), nil
}

// Close stops publishing and subscribing. Subscriptions opened earlier stay
// attached until their own Close.
func (d *Driver) Close() error {
	atomic.StoreInt32(&d.stopped, 1)
	return nil
}

var _ mq.Driver = (*Driver)(nil)
