// Package mq holds the transport drivers a node talks through and the
// registry they are created from.
package mq

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/silverswords/rclgeneric/pkg/logger"
	"github.com/silverswords/rclgeneric/pkg/qos"
)

var log = logger.NewLogger("rclgeneric.mq")

// DriverNameKey is the metadata property naming the driver to create.
const DriverNameKey = "DriverName"

// ErrDraining is returned by drivers after Close.
var ErrDraining = errors.New("mq: draining")

// Registry is the process wide driver registry. Drivers register themselves
// from init.
var Registry = pubsubRegistry{
	buses: make(map[string]func() Driver),
}

type pubsubRegistry struct {
	mu    sync.RWMutex
	buses map[string]func() Driver
}

// Register makes a driver factory available under name. The empty name is the
// in-process default.
func (r *pubsubRegistry) Register(name string, factory func() Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buses[name] = factory
}

// Create instantiates a driver based on `name`.
func (r *pubsubRegistry) Create(name string) (Driver, error) {
	if name == "" {
		log.Debug("create default in-process mq")
	} else {
		log.Debugf("create mq %s", name)
	}

	r.mu.RLock()
	method, ok := r.buses[name]
	r.mu.RUnlock()
	if ok {
		return method(), nil
	}
	return nil, fmt.Errorf("couldn't find message bus %q", name)
}

// Names lists registered driver names in order.
func (r *pubsubRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.buses))
	for name := range r.buses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata carries driver configuration.
type Metadata struct {
	Properties map[string]interface{}
}

func NewMetadata() *Metadata {
	return &Metadata{Properties: make(map[string]interface{})}
}

// GetDriverName returns the configured driver. If driverName is empty, use
// default local mq, which couldn't cross process.
func (m *Metadata) GetDriverName() string {
	if driverName, ok := m.Properties[DriverNameKey]; ok {
		if nameString, ok := driverName.(string); ok {
			return nameString
		}
	}
	return ""
}

func (m *Metadata) SetDriver(driverName string) {
	if m.Properties == nil {
		m.Properties = make(map[string]interface{})
	}
	m.Properties[DriverNameKey] = driverName
}

// String returns the string property key, or def when it is absent. A present
// value of another type is an error.
func (m *Metadata) String(key, def string) (string, error) {
	val, ok := m.Properties[key]
	if !ok || val == nil {
		return def, nil
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("metadata %s is not a string", key)
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

type Driver interface {
	Initer
	Publisher
	Subscriber
	Closer
}

type Initer interface {
	Init(Metadata) error
}

// Publisher should realize the retry by themselves.
// Like nats, it retries when conn is reconnecting, it would be in the pending queue.
type Publisher interface {
	Publish(topic string, in []byte) error
}

// Subscriber delivers every payload received on topic to handler until the
// returned Closer is closed. handler may be called from a driver goroutine.
type Subscriber interface {
	Subscribe(topic string, handler func(out []byte)) (Closer, error)
}

// QoSSubscriber is implemented by drivers that can honour a QoS profile at
// the transport.
type QoSSubscriber interface {
	SubscribeWithQoS(topic string, profile qos.Profile, handler func(out []byte)) (Closer, error)
}

// Closer is the common interface for things that can be closed.
type Closer interface {
	Close() error
}

// CloserFunc adapts a function to Closer.
type CloserFunc func() error

func (c CloserFunc) Close() error {
	return c()
}

// Subscribe opens a subscription on d, using the QoS aware variant when d
// supports it.
func Subscribe(d Driver, topic string, profile qos.Profile, handler func(out []byte)) (Closer, error) {
	if qs, ok := d.(QoSSubscriber); ok {
		return qs.SubscribeWithQoS(topic, profile, handler)
	}
	return d.Subscribe(topic, handler)
}
