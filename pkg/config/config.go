// Package config loads the YAML configuration of the genericd daemon.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/silverswords/rclgeneric/pkg/callbackgroup"
	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/logger"
	"github.com/silverswords/rclgeneric/pkg/message"
	"github.com/silverswords/rclgeneric/pkg/qos"
)

const (
	DefaultNodeName     = "generic_listener"
	DefaultHTTPAddress  = ":8080"
	DefaultRelayTimeout = 5 * time.Second
)

// Config is the daemon configuration.
type Config struct {
	AppID         string               `yaml:"app_id"`
	Log           logger.Options       `yaml:"log"`
	Node          NodeConfig           `yaml:"node"`
	Driver        DriverConfig         `yaml:"driver"`
	Typesupport   TypesupportConfig    `yaml:"typesupport"`
	HTTP          HTTPConfig           `yaml:"http"`
	Relay         RelayConfig          `yaml:"relay"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

type NodeConfig struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
	Codec     string `yaml:"codec"`
	// Workers bounds concurrent callbacks; negative means unbounded.
	Workers int `yaml:"workers"`
}

type DriverConfig struct {
	// Name selects a registered driver; empty is the in-process bus.
	Name       string                 `yaml:"name"`
	Properties map[string]interface{} `yaml:"properties"`
}

// TypesupportConfig adds install prefixes searched for interface
// definitions, on top of the built-in registry and AMENT_PREFIX_PATH.
type TypesupportConfig struct {
	Prefixes []string `yaml:"prefixes"`
}

type HTTPConfig struct {
	// Address of the introspection server; empty disables it.
	Address string `yaml:"address"`
}

type RelayConfig struct {
	// URL receives every message as an HTTP POST; empty disables relaying.
	URL                string        `yaml:"url"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

type QoSConfig struct {
	Preset      string `yaml:"preset"`
	History     string `yaml:"history"`
	Depth       int    `yaml:"depth"`
	Reliability string `yaml:"reliability"`
	Durability  string `yaml:"durability"`
}

type SubscriptionConfig struct {
	Topic         string    `yaml:"topic"`
	Type          string    `yaml:"type"`
	QoS           QoSConfig `yaml:"qos"`
	CallbackGroup string    `yaml:"callback_group"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Log: logger.DefaultOptions(),
		Node: NodeConfig{
			Name:    DefaultNodeName,
			Codec:   message.CodecJSON,
			Workers: -1,
		},
		HTTP:  HTTPConfig{Address: DefaultHTTPAddress},
		Relay: RelayConfig{Timeout: DefaultRelayTimeout},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (*Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML over Default and validates the result. Unknown keys are
// rejected.
func Parse(b []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration without touching the network.
func (c *Config) Validate() error {
	if c.Node.Name == "" {
		return errors.New("config: node.name is required")
	}
	if _, err := message.CodecByName(c.Node.Codec); err != nil {
		return fmt.Errorf("config: node.codec: %w", err)
	}
	if err := c.Log.SetOutputLevel(c.Log.OutputLevel); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Relay.Timeout < 0 {
		return errors.New("config: relay.timeout is negative")
	}

	seen := make(map[string]bool, len(c.Subscriptions))
	for i, s := range c.Subscriptions {
		if s.Topic == "" || s.Type == "" {
			return fmt.Errorf("config: subscriptions[%d]: topic and type are required", i)
		}
		key := s.Topic + " " + s.Type
		if seen[key] {
			return fmt.Errorf("config: subscriptions[%d]: duplicate %s [%s]", i, s.Topic, s.Type)
		}
		seen[key] = true
		if _, err := s.QoS.Profile(); err != nil {
			return fmt.Errorf("config: subscriptions[%d].qos: %w", i, err)
		}
		if _, err := s.GroupKind(); err != nil {
			return fmt.Errorf("config: subscriptions[%d]: %w", i, err)
		}
	}
	return nil
}

// Metadata is the driver metadata for mq.Registry.
func (c *Config) Metadata() mq.Metadata {
	md := mq.NewMetadata()
	for k, v := range c.Driver.Properties {
		md.Properties[k] = v
	}
	md.SetDriver(c.Driver.Name)
	return *md
}

// LoggerOptions returns the log options with the app id applied.
func (c *Config) LoggerOptions() logger.Options {
	opts := c.Log
	if c.AppID != "" {
		opts.SetAppID(c.AppID)
	}
	return opts
}

// Profile starts from the preset and applies every field that is set.
func (q QoSConfig) Profile() (qos.Profile, error) {
	p, err := qos.Preset(q.Preset)
	if err != nil {
		return p, err
	}
	if q.History != "" {
		if p.History, err = qos.ParseHistory(q.History); err != nil {
			return p, err
		}
	}
	if q.Depth > 0 {
		p.Depth = q.Depth
	}
	if q.Reliability != "" {
		if p.Reliability, err = qos.ParseReliability(q.Reliability); err != nil {
			return p, err
		}
	}
	if q.Durability != "" {
		if p.Durability, err = qos.ParseDurability(q.Durability); err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

// GroupKind maps callback_group onto a callback group kind. The node's
// default group is mutually exclusive.
func (s SubscriptionConfig) GroupKind() (callbackgroup.Kind, error) {
	switch s.CallbackGroup {
	case "", "default":
		return callbackgroup.MutuallyExclusive, nil
	case "mutually_exclusive":
		return callbackgroup.MutuallyExclusive, nil
	case "reentrant":
		return callbackgroup.Reentrant, nil
	}
	return 0, fmt.Errorf("unknown callback_group %q", s.CallbackGroup)
}

// UsesDefaultGroup reports whether the subscription goes in the node's
// default callback group.
func (s SubscriptionConfig) UsesDefaultGroup() bool {
	return s.CallbackGroup == "" || s.CallbackGroup == "default"
}
