package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverswords/rclgeneric/pkg/components/mq/eventbus"
	"github.com/silverswords/rclgeneric/pkg/config"
	"github.com/silverswords/rclgeneric/pkg/qos"
)

func testDaemon(t *testing.T) *daemon {
	cfg := config.Default()
	cfg.HTTP.Address = ""
	cfg.Driver.Properties = map[string]interface{}{eventbus.BusName: t.Name()}
	cfg.Subscriptions = []config.SubscriptionConfig{
		{Topic: "/chatter", Type: "std_msgs/msg/String"},
		{Topic: "/scan", Type: "sensor_msgs/msg/LaserScan", QoS: config.QoSConfig{Preset: "sensor_data"}, CallbackGroup: "reentrant"},
	}

	d, err := newDaemon(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.node.Close() })
	return d
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	d := testDaemon(t)
	w := do(d.router(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestPublishReachesSubscription(t *testing.T) {
	d := testDaemon(t)
	r := d.router()

	w := do(r, http.MethodPost, "/publish/chatter?type=std_msgs/msg/String", "hello")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "/chatter", jsoniter.Get(w.Body.Bytes(), "topic").ToString())

	assert.Eventually(t, func() bool { return d.received() == 1 }, time.Second, 10*time.Millisecond)

	w = do(r, http.MethodGet, "/subscriptions", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.Bytes()
	assert.Equal(t, "/generic_listener", jsoniter.Get(body, "node").ToString())
	assert.Equal(t, 2, jsoniter.Get(body, "subscriptions").Size())
	assert.EqualValues(t, 1, jsoniter.Get(body, "received").ToUint64())
}

func TestPublisherPerProfile(t *testing.T) {
	d := testDaemon(t)
	r := d.router()

	for _, target := range []string{
		"/publish/chatter?type=std_msgs/msg/String",
		"/publish/chatter?type=std_msgs/msg/String&qos=sensor_data",
		"/publish/chatter?type=std_msgs/msg/String&qos=sensor_data",
	} {
		w := do(r, http.MethodPost, target, "hello")
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.publishers, 2)
	profiles := make(map[qos.Profile]bool)
	for _, p := range d.publishers {
		profiles[p.QoSProfile()] = true
	}
	assert.True(t, profiles[qos.Default()])
	assert.True(t, profiles[qos.SensorData()])
}

func TestPublishRejectsBadRequests(t *testing.T) {
	d := testDaemon(t)
	r := d.router()

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/publish/chatter", "x").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/publish/chatter?type=std_msgs/msg/String&qos=nope", "x").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/publish/chatter?type=nope_msgs/msg/Nope", "x").Code)
}

func TestNewDaemonRejectsUnknownType(t *testing.T) {
	cfg := config.Default()
	cfg.Driver.Properties = map[string]interface{}{eventbus.BusName: t.Name()}
	cfg.Subscriptions = []config.SubscriptionConfig{{Topic: "/x", Type: "nope_msgs/msg/Nope"}}

	_, err := newDaemon(cfg)
	assert.Error(t, err)
}
