// Package mqtt is the MQTT driver. Subscriptions map reliability onto the
// MQTT QoS level.
package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nuid"

	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/qos"
)

const (
	DriverName = "mqtt"
	// URL is the key for mqtt url in metadata
	URL = "mqttURL"
	// Options is the key for mqtt options in metadata
	Options = "mqttOptions"
	// DefaultURL -
	DefaultURL = "tcp://127.0.0.1:1883"

	defaultTimeout = 10 * time.Second
)

func init() {
	mq.Registry.Register(DriverName, func() mq.Driver {
		return NewMQTT()
	})
}

// Driver is the mqtt implementation for driver interface
type Driver struct {
	metadata
	client mqtt.Client
}

type metadata struct {
	mqttURL  string
	mqttOpts *mqtt.ClientOptions
}

// NewMQTT -
func NewMQTT() *Driver {
	return &Driver{}
}

func parseMQTTMetaData(md mq.Metadata) (metadata, error) {
	m := metadata{}
	var err error

	// required configuration settings
	if m.mqttURL, err = md.String(URL, ""); err != nil {
		return m, fmt.Errorf("mqtt error: %w", err)
	}
	if m.mqttURL == "" {
		return m, errors.New("mqtt error: missing mqtt URL")
	}

	if val, ok := md.Properties[Options]; ok && val != nil {
		if m.mqttOpts, ok = val.(*mqtt.ClientOptions); !ok {
			return m, errors.New("mqtt error: mqtt Options is not a *mqtt.ClientOptions")
		}
	} else {
		if m.mqttOpts, err = createClientOptions(m.mqttURL); err != nil {
			return m, err
		}
	}

	return m, nil
}

func createClientOptions(mqttURL string) (*mqtt.ClientOptions, error) {
	uri, err := url.Parse(mqttURL)
	if err != nil {
		return nil, err
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(uri.Scheme + "://" + uri.Host)
	opts.SetClientID(nuid.Next())
	opts.SetUsername(uri.User.Username())
	password, _ := uri.User.Password()
	opts.SetPassword(password)
	return opts, nil
}

// Init initializes the mq and init the connection to the server.
func (m *Driver) Init(metadata mq.Metadata) error {
	mqttMeta, err := parseMQTTMetaData(metadata)
	if err != nil {
		return err
	}
	m.metadata = mqttMeta

	m.client = mqtt.NewClient(m.mqttOpts)
	return wait(m.client.Connect())
}

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(defaultTimeout) {
		return errors.New("mqtt error: timed out")
	}
	return token.Error()
}

// levelFor maps reliability onto an MQTT QoS level.
func levelFor(profile qos.Profile) byte {
	if profile.Reliability == qos.ReliabilityBestEffort {
		return 0
	}
	return 1
}

// Publish the topic to mqtt pub sub.
func (m *Driver) Publish(topic string, in []byte) error {
	if err := wait(m.client.Publish(topic, 1, false, in)); err != nil {
		return fmt.Errorf("mqtt error from publish: %w", err)
	}
	return nil
}

// Subscribe to the mqtt pub sub topic with the default profile.
func (m *Driver) Subscribe(topic string, handler func(msg []byte)) (mq.Closer, error) {
	return m.SubscribeWithQoS(topic, qos.Default(), handler)
}

// SubscribeWithQoS subscribes at QoS 0 for best effort and QoS 1 otherwise.
func (m *Driver) SubscribeWithQoS(topic string, profile qos.Profile, handler func(msg []byte)) (mq.Closer, error) {
	token := m.client.Subscribe(topic, levelFor(profile), func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if err := wait(token); err != nil {
		return nil, fmt.Errorf("mqtt error from subscribe: %w", err)
	}

	return mq.CloserFunc(func() error {
		return wait(m.client.Unsubscribe(topic))
	}), nil
}

// Close closes the client
func (m *Driver) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

var (
	_ mq.Driver        = (*Driver)(nil)
	_ mq.QoSSubscriber = (*Driver)(nil)
)
