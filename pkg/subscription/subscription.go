// Package subscription implements GenericSubscription, a topic endpoint that
// receives the serialized bytes of any message type, named at runtime, and
// hands them to a callback without deserializing them.
package subscription

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/silverswords/rclgeneric/pkg/callbackgroup"
	"github.com/silverswords/rclgeneric/pkg/logger"
	"github.com/silverswords/rclgeneric/pkg/message"
	"github.com/silverswords/rclgeneric/pkg/qos"
	"github.com/silverswords/rclgeneric/pkg/typesupport"
)

const (
	DefaultWebHookRequestTimeout = 60 * time.Second
)

var (
	log = logger.NewLogger("rclgeneric.subscription")

	ErrNilNode        = errors.New("subscription: node is nil")
	ErrEmptyTopicName = errors.New("subscription: topic name is empty")
	ErrNilCallback    = errors.New("subscription: callback is nil")
)

// Callback receives the serialized message. The buffer belongs to the
// executor once the callback returns: Retain it, or Copy the bytes, to keep
// them longer.
type Callback func(msg *message.Serialized)

// Base is what the executor drives. A message is taken with CreateMessage,
// filled by the transport, delivered with HandleMessage and given back with
// ReturnMessage. HandleLoanedMessage is only used when CanLoanMessages is
// true.
type Base interface {
	TopicName() string
	TopicType() string
	QoSProfile() qos.Profile
	CreateMessage() message.Handle
	HandleMessage(msg message.Handle, info message.Info)
	HandleLoanedMessage(loaned unsafe.Pointer, info message.Info)
	CanLoanMessages() bool
	ReturnMessage(msg message.Handle)
	Close() error
}

// NodeBase is the part of a node a subscription needs during construction.
type NodeBase interface {
	FullyQualifiedName() string
	TypesupportLoader() *typesupport.Loader
}

// NodeTopics registers subscriptions with a node. A nil group selects the
// node's default callback group. AddSubscription either registers sub or
// leaves the node unchanged.
type NodeTopics interface {
	NodeBase() NodeBase
	AddSubscription(sub Base, group *callbackgroup.Group) error
	RemoveSubscription(sub Base) error
}

// ReceiveSettings configure a GenericSubscription.
type ReceiveSettings struct {
	// TypesupportIdentifier selects the type-support flavour to resolve
	// the topic type with.
	TypesupportIdentifier string

	// WebHookRequestTimeout is the timeout when the subscription relays a
	// message to a webhook via fasthttp.Client.
	WebHookRequestTimeout time.Duration
}

// DefaultReceiveSettings holds the default values for ReceiveSettings.
var DefaultReceiveSettings = ReceiveSettings{
	TypesupportIdentifier: typesupport.TypesupportCpp,
	WebHookRequestTimeout: DefaultWebHookRequestTimeout,
}

// GenericSubscription is a subscription whose message type is only known by
// name. It keeps the type-support library it resolved loaded until Close.
type GenericSubscription struct {
	topics    NodeTopics
	topicName string
	topicType string
	profile   qos.Profile
	callback  Callback
	handlers  []Callback

	library     *typesupport.Library
	typesupport *typesupport.Handle

	ReceiveSettings

	closeOnce sync.Once
	closeErr  error
}

// Create resolves topicType, builds the subscription and registers it with
// topics under group. On any failure nothing stays registered and the
// library reference taken during resolution is released.
func Create(topics NodeTopics, topicName, topicType string, profile qos.Profile, callback Callback, group *callbackgroup.Group, opts ...Option) (*GenericSubscription, error) {
	if topics == nil {
		return nil, ErrNilNode
	}
	if topicName == "" {
		return nil, ErrEmptyTopicName
	}
	if callback == nil {
		return nil, ErrNilCallback
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	s := &GenericSubscription{
		topics:          topics,
		topicName:       topicName,
		topicType:       topicType,
		profile:         profile,
		callback:        callback,
		ReceiveSettings: DefaultReceiveSettings,
	}
	if err := s.applyOptions(opts...); err != nil {
		return nil, err
	}

	loader := topics.NodeBase().TypesupportLoader()
	lib, err := loader.GetTypesupportLibrary(topicType, s.TypesupportIdentifier)
	if err != nil {
		return nil, err
	}
	handle, err := loader.GetTypesupportHandle(topicType, s.TypesupportIdentifier, lib)
	if err != nil {
		lib.Release()
		return nil, err
	}
	s.library, s.typesupport = lib, handle

	if err := topics.AddSubscription(s, group); err != nil {
		lib.Release()
		return nil, err
	}

	log.Debugf("%s subscribed to %s [%s]", topics.NodeBase().FullyQualifiedName(), topicName, topicType)
	return s, nil
}

func (s *GenericSubscription) TopicName() string { return s.topicName }

func (s *GenericSubscription) TopicType() string { return s.topicType }

// TypeSupport is the descriptor resolved for the topic type.
func (s *GenericSubscription) TypeSupport() *typesupport.Handle { return s.typesupport }

// QoSProfile returns the profile captured at construction.
func (s *GenericSubscription) QoSProfile() qos.Profile { return s.profile }

// CreateMessage returns an empty serialized message for the transport to fill.
func (s *GenericSubscription) CreateMessage() message.Handle {
	return s.CreateSerializedMessage()
}

func (s *GenericSubscription) CreateSerializedMessage() *message.Serialized {
	return message.NewSerialized()
}

// HandleMessage delivers msg to the callback. The message info is not
// forwarded.
func (s *GenericSubscription) HandleMessage(msg message.Handle, _ message.Info) {
	serialized, ok := msg.(*message.Serialized)
	if !ok || serialized == nil {
		log.Errorf("subscription %s: cannot handle %T as a serialized message", s.topicName, msg)
		return
	}

	for _, h := range s.handlers {
		h(serialized)
	}
	s.callback(serialized)
}

// HandleLoanedMessage does nothing: a generic subscription never takes loans.
func (s *GenericSubscription) HandleLoanedMessage(unsafe.Pointer, message.Info) {}

// CanLoanMessages is always false.
func (s *GenericSubscription) CanLoanMessages() bool { return false }

// ReturnMessage gives back a message obtained from CreateMessage.
func (s *GenericSubscription) ReturnMessage(msg message.Handle) {
	serialized, ok := msg.(*message.Serialized)
	if !ok {
		log.Errorf("subscription %s: cannot return %T as a serialized message", s.topicName, msg)
		return
	}
	s.ReturnSerializedMessage(serialized)
}

// ReturnSerializedMessage drops the subscription's reference to msg. The
// buffer is pooled again once no one else retains it.
func (s *GenericSubscription) ReturnSerializedMessage(msg *message.Serialized) {
	if msg == nil || msg.Released() {
		return
	}
	msg.Release()
}

// Close removes the subscription from its node and releases the type-support
// library. Calling Close again returns the first result.
func (s *GenericSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.topics.RemoveSubscription(s)
		s.library.Release()
		log.Debugf("subscription %s closed", s.topicName)
	})
	return s.closeErr
}

func (s *GenericSubscription) String() string {
	return fmt.Sprintf("%s [%s] %s", s.topicName, s.topicType, s.profile)
}

var _ Base = (*GenericSubscription)(nil)
