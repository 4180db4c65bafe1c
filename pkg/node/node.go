// Package node hosts topic endpoints on one transport driver. It owns the
// subscription registry, the callback groups and the executor that delivers
// received messages to subscriptions.
package node

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/silverswords/rclgeneric/pkg/callbackgroup"
	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/logger"
	"github.com/silverswords/rclgeneric/pkg/message"
	"github.com/silverswords/rclgeneric/pkg/publisher"
	"github.com/silverswords/rclgeneric/pkg/qos"
	"github.com/silverswords/rclgeneric/pkg/scheduler"
	"github.com/silverswords/rclgeneric/pkg/subscription"
	"github.com/silverswords/rclgeneric/pkg/typesupport"
)

var (
	log = logger.NewLogger("rclgeneric.node")

	ErrClosed               = errors.New("node: closed")
	ErrAlreadyRegistered    = errors.New("node: subscription already registered")
	ErrSubscriptionNotFound = errors.New("node: subscription not registered")
	ErrForeignCallbackGroup = errors.New("node: callback group was not created by this node")
)

// Node is a named participant owning endpoints on one driver.
type Node struct {
	name       string
	namespace  string
	instanceID string

	driver     mq.Driver
	driverName string
	codec      message.Codec
	loader     *typesupport.Loader
	executor   *scheduler.ReceiveScheduler
	workers    int

	defaultGroup *callbackgroup.Group

	mu         sync.RWMutex
	closed     bool
	groups     map[*callbackgroup.Group]struct{}
	subs       map[subscription.Base]*entry
	publishers map[*publisher.GenericPublisher]struct{}
}

// New creates a node named name, with the driver selected by md.
func New(name string, md mq.Metadata, opts ...Option) (*Node, error) {
	if err := validateNodeName(name); err != nil {
		return nil, err
	}

	n := &Node{
		name:       name,
		namespace:  "/",
		instanceID: uuid.New().String(),
		workers:    -1,
		groups:     make(map[*callbackgroup.Group]struct{}),
		subs:       make(map[subscription.Base]*entry),
		publishers: make(map[*publisher.GenericPublisher]struct{}),
	}
	if err := n.applyOptions(opts...); err != nil {
		return nil, err
	}

	if n.codec == nil {
		n.codec = message.JSONCodec{}
	}
	if n.loader == nil {
		n.loader = typesupport.NewLoader(typesupport.DefaultRegistry, typesupport.InstallTreeFromEnv())
	}

	if n.driver == nil {
		n.driverName = md.GetDriverName()
		d, err := mq.Registry.Create(n.driverName)
		if err != nil {
			return nil, err
		}
		if err := d.Init(md); err != nil {
			return nil, fmt.Errorf("node %s: init driver %q: %w", name, n.driverName, err)
		}
		n.driver = d
	}

	n.executor = scheduler.NewReceiveScheduler(n.workers)
	n.defaultGroup = n.CreateCallbackGroup(callbackgroup.MutuallyExclusive)

	log.Infof("node %s started on driver %q (instance %s)", n.FullyQualifiedName(), n.driverName, n.instanceID)
	return n, nil
}

func (n *Node) Name() string { return n.name }

func (n *Node) Namespace() string { return n.namespace }

// InstanceID distinguishes this node from a restarted node of the same name.
func (n *Node) InstanceID() string { return n.instanceID }

func (n *Node) FullyQualifiedName() string {
	return join(n.namespace, n.name)
}

func (n *Node) TypesupportLoader() *typesupport.Loader { return n.loader }

// NodeBase returns the node itself.
func (n *Node) NodeBase() subscription.NodeBase { return n }

// DefaultCallbackGroup is the mutually exclusive group used when an endpoint
// is created without one.
func (n *Node) DefaultCallbackGroup() *callbackgroup.Group { return n.defaultGroup }

// CreateCallbackGroup creates a group owned by this node.
func (n *Node) CreateCallbackGroup(kind callbackgroup.Kind) *callbackgroup.Group {
	g := callbackgroup.New(kind)
	n.mu.Lock()
	n.groups[g] = struct{}{}
	n.mu.Unlock()
	return g
}

// CreateGenericSubscription creates a subscription on this node. See
// subscription.Create.
func (n *Node) CreateGenericSubscription(topicName, topicType string, profile qos.Profile, callback subscription.Callback, group *callbackgroup.Group, opts ...subscription.Option) (*subscription.GenericSubscription, error) {
	return subscription.Create(n, topicName, topicType, profile, callback, group, opts...)
}

// CreateGenericPublisher creates a publisher of topicType on topicName. The
// publisher is stopped by Close if the caller has not stopped it.
func (n *Node) CreateGenericPublisher(topicName, topicType string, profile qos.Profile, opts ...publisher.Option) (*publisher.GenericPublisher, error) {
	topic, err := n.ResolveTopicName(topicName)
	if err != nil {
		return nil, err
	}
	lib, err := n.loader.GetTypesupportLibrary(topicType, typesupport.TypesupportCpp)
	if err != nil {
		return nil, err
	}
	handle, err := n.loader.GetTypesupportHandle(topicType, typesupport.TypesupportCpp, lib)
	if err != nil {
		lib.Release()
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		lib.Release()
		return nil, ErrClosed
	}
	p, err := publisher.New(n.driver, topic, lib, handle, n.codec, profile, opts...)
	if err != nil {
		lib.Release()
		return nil, err
	}
	n.publishers[p] = struct{}{}
	return p, nil
}

// SubscriptionCount is the number of registered subscriptions.
func (n *Node) SubscriptionCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// SubscriptionInfo describes a registered subscription.
type SubscriptionInfo struct {
	Topic         string      `json:"topic"`
	Type          string      `json:"type"`
	QoS           qos.Profile `json:"-"`
	QoSString     string      `json:"qos"`
	CallbackGroup string      `json:"callback_group"`
	Delivered     uint64      `json:"delivered"`
	Dropped       uint64      `json:"dropped"`
}

// Subscriptions lists the registered subscriptions ordered by topic.
func (n *Node) Subscriptions() []SubscriptionInfo {
	n.mu.RLock()
	infos := make([]SubscriptionInfo, 0, len(n.subs))
	for _, e := range n.subs {
		infos = append(infos, e.info())
	}
	n.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Topic == infos[j].Topic {
			return infos[i].CallbackGroup < infos[j].CallbackGroup
		}
		return infos[i].Topic < infos[j].Topic
	})
	return infos
}

// Close stops publishers, closes every subscription, waits for running
// callbacks and closes the driver.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	subs := make([]subscription.Base, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	pubs := make([]*publisher.GenericPublisher, 0, len(n.publishers))
	for p := range n.publishers {
		pubs = append(pubs, p)
	}
	n.publishers = make(map[*publisher.GenericPublisher]struct{})
	n.mu.Unlock()

	var g errgroup.Group
	for _, p := range pubs {
		p := p
		g.Go(func() error {
			p.Stop()
			return nil
		})
	}
	for _, sub := range subs {
		sub := sub
		g.Go(sub.Close)
	}
	err := g.Wait()

	n.executor.Shutdown()
	n.executor.Wait()

	if derr := n.driver.Close(); derr != nil && err == nil {
		err = derr
	}
	log.Infof("node %s closed", n.FullyQualifiedName())
	return err
}

var _ subscription.NodeTopics = (*Node)(nil)
var _ subscription.NodeBase = (*Node)(nil)
