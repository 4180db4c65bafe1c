package node

import (
	"errors"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/message"
	"github.com/silverswords/rclgeneric/pkg/typesupport"
)

type Option func(*Node) error

func (n *Node) applyOptions(opts ...Option) error {
	for _, fn := range opts {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// WithNamespace places the node in ns. Relative namespaces are made absolute.
func WithNamespace(ns string) Option {
	return func(n *Node) error {
		normalized, err := normalizeNamespace(ns)
		if err != nil {
			return err
		}
		n.namespace = normalized
		return nil
	}
}

// WithTypesupportLoader resolves message types with loader.
func WithTypesupportLoader(loader *typesupport.Loader) Option {
	return func(n *Node) error {
		if loader == nil {
			return errors.New("node: nil typesupport loader")
		}
		n.loader = loader
		return nil
	}
}

// WithCodec selects the frame codec by name.
func WithCodec(name string) Option {
	return func(n *Node) error {
		c, err := message.CodecByName(name)
		if err != nil {
			return err
		}
		n.codec = c
		return nil
	}
}

// WithExecutorWorkers bounds the number of callbacks running at once. A
// negative value, the default, removes the bound.
func WithExecutorWorkers(workers int) Option {
	return func(n *Node) error {
		n.workers = workers
		return nil
	}
}

// WithDriver uses an already initialised driver instead of creating one from
// the metadata. The node closes it on Close.
func WithDriver(name string, d mq.Driver) Option {
	return func(n *Node) error {
		if d == nil {
			return errors.New("node: nil driver")
		}
		n.driverName = name
		n.driver = d
		return nil
	}
}
