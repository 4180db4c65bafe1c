package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/silverswords/rclgeneric/pkg/callbackgroup"
	"github.com/silverswords/rclgeneric/pkg/config"
	"github.com/silverswords/rclgeneric/pkg/message"
	"github.com/silverswords/rclgeneric/pkg/node"
	"github.com/silverswords/rclgeneric/pkg/publisher"
	"github.com/silverswords/rclgeneric/pkg/qos"
	"github.com/silverswords/rclgeneric/pkg/subscription"
	"github.com/silverswords/rclgeneric/pkg/typesupport"
)

// daemon owns the node, one generic subscription per configured topic and
// the publishers created through the HTTP API.
type daemon struct {
	cfg    *config.Config
	node   *node.Node
	groups map[callbackgroup.Kind]*callbackgroup.Group
	total  uint64

	mu         sync.Mutex
	publishers map[string]*publisher.GenericPublisher
	server     *http.Server
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	sources := []typesupport.Source{typesupport.DefaultRegistry}
	if len(cfg.Typesupport.Prefixes) > 0 {
		sources = append(sources, typesupport.NewInstallTree(cfg.Typesupport.Prefixes...))
	}
	sources = append(sources, typesupport.InstallTreeFromEnv())

	n, err := node.New(cfg.Node.Name, cfg.Metadata(),
		node.WithNamespace(cfg.Node.Namespace),
		node.WithCodec(cfg.Node.Codec),
		node.WithExecutorWorkers(cfg.Node.Workers),
		node.WithTypesupportLoader(typesupport.NewLoader(sources...)),
	)
	if err != nil {
		return nil, err
	}

	d := &daemon{
		cfg:        cfg,
		node:       n,
		groups:     make(map[callbackgroup.Kind]*callbackgroup.Group),
		publishers: make(map[string]*publisher.GenericPublisher),
	}
	for _, s := range cfg.Subscriptions {
		if err := d.subscribe(s); err != nil {
			_ = n.Close()
			return nil, fmt.Errorf("subscribe %s [%s]: %w", s.Topic, s.Type, err)
		}
	}
	return d, nil
}

func (d *daemon) subscribe(s config.SubscriptionConfig) error {
	profile, err := s.QoS.Profile()
	if err != nil {
		return err
	}

	var group *callbackgroup.Group
	if !s.UsesDefaultGroup() {
		kind, err := s.GroupKind()
		if err != nil {
			return err
		}
		if group = d.groups[kind]; group == nil {
			group = d.node.CreateCallbackGroup(kind)
			d.groups[kind] = group
		}
	}

	opts := []subscription.Option{subscription.WithCount(&d.total)}
	if d.cfg.Relay.URL != "" {
		opts = append(opts, subscription.WithWebHook(d.cfg.Relay.URL, d.cfg.Relay.Timeout, d.cfg.Relay.InsecureSkipVerify))
	}

	topic, typeName := s.Topic, s.Type
	_, err = d.node.CreateGenericSubscription(topic, typeName, profile, func(msg *message.Serialized) {
		log.Debugf("%s [%s]: %d bytes", topic, typeName, msg.Len())
	}, group, opts...)
	return err
}

// publisher returns the cached publisher for topic, type and profile.
func (d *daemon) publisher(topic, typeName string, profile qos.Profile) (*publisher.GenericPublisher, error) {
	key := topic + " " + typeName + " " + profile.String()
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.publishers[key]; ok {
		return p, nil
	}
	p, err := d.node.CreateGenericPublisher(topic, typeName, profile)
	if err != nil {
		return nil, err
	}
	d.publishers[key] = p
	return p, nil
}

func (d *daemon) received() uint64 {
	return atomic.LoadUint64(&d.total)
}

func (d *daemon) shutdown(ctx context.Context) error {
	d.mu.Lock()
	srv := d.server
	d.mu.Unlock()

	var err error
	if srv != nil {
		if serr := srv.Shutdown(ctx); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			err = serr
		}
	}
	if nerr := d.node.Close(); nerr != nil && err == nil {
		err = nerr
	}
	return err
}
