package node

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silverswords/rclgeneric/pkg/callbackgroup"
	"github.com/silverswords/rclgeneric/pkg/components/mq"
	"github.com/silverswords/rclgeneric/pkg/components/mq/eventbus"
	"github.com/silverswords/rclgeneric/pkg/message"
	"github.com/silverswords/rclgeneric/pkg/qos"
	"github.com/silverswords/rclgeneric/pkg/typesupport"
	_ "github.com/silverswords/rclgeneric/pkg/typesupport/builtin"
)

const waitFor = 2 * time.Second

func busMetadata(t *testing.T) mq.Metadata {
	md := mq.NewMetadata()
	md.SetDriver(eventbus.DriverName)
	md.Properties[eventbus.BusName] = t.Name()
	return *md
}

func newNode(t *testing.T, name string, opts ...Option) *Node {
	n, err := New(name, busMetadata(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func receiveBytes(t *testing.T, ch <-chan []byte) []byte {
	select {
	case b := <-ch:
		return b
	case <-time.After(waitFor):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestScanEndToEnd(t *testing.T) {
	n := newNode(t, "lidar_listener")

	got := make(chan []byte, 4)
	sub, err := n.CreateGenericSubscription("/scan", "sensor_msgs/msg/LaserScan", qos.SensorData(), func(m *message.Serialized) {
		got <- m.Copy()
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n.SubscriptionCount())

	pub, err := n.CreateGenericPublisher("/scan", "sensor_msgs/msg/LaserScan", qos.SensorData())
	require.NoError(t, err)
	_, err = pub.PublishBytes(ctx(), []byte{0x01, 0x02}).Get(ctx())
	require.NoError(t, err)

	assert.Equal(t, []byte{0x01, 0x02}, receiveBytes(t, got))
	select {
	case extra := <-got:
		t.Fatalf("callback ran twice, second payload %v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, n.SubscriptionCount())
}

func TestAcrossNodes(t *testing.T) {
	for _, codec := range []string{message.CodecJSON, message.CodecCBOR} {
		t.Run(codec, func(t *testing.T) {
			listener := newNode(t, "listener", WithNamespace("robot1"), WithCodec(codec))
			talker := newNode(t, "talker", WithCodec(codec))

			got := make(chan []byte, 1)
			_, err := listener.CreateGenericSubscription("chatter", "std_msgs/String", qos.Default(), func(m *message.Serialized) {
				got <- m.Copy()
			}, nil)
			require.NoError(t, err)

			pub, err := talker.CreateGenericPublisher("/robot1/chatter", "std_msgs/msg/String", qos.Default())
			require.NoError(t, err)
			_, err = pub.PublishBytes(ctx(), []byte("hello")).Get(ctx())
			require.NoError(t, err)

			assert.Equal(t, []byte("hello"), receiveBytes(t, got))
			infos := listener.Subscriptions()
			require.Len(t, infos, 1)
			assert.Equal(t, "/robot1/chatter", infos[0].Topic)
			assert.Equal(t, "std_msgs/msg/String", infos[0].Type)
		})
	}
}

func TestUnresolvableTypeLeavesRegistryUnchanged(t *testing.T) {
	n := newNode(t, "listener")
	_, err := n.CreateGenericSubscription("/a", "std_msgs/msg/String", qos.Default(), func(*message.Serialized) {}, nil)
	require.NoError(t, err)

	sub, err := n.CreateGenericSubscription("/b", "nonexistent_pkg/msg/Nope", qos.Default(), func(*message.Serialized) {}, nil)
	assert.Nil(t, sub)
	assert.True(t, errors.Is(err, typesupport.ErrTypeResolution))
	assert.Equal(t, 1, n.SubscriptionCount())

	_, err = n.CreateGenericPublisher("/b", "nonexistent_pkg/msg/Nope", qos.Default())
	assert.True(t, errors.Is(err, typesupport.ErrTypeResolution))
}

func TestDropsForeignFrames(t *testing.T) {
	n := newNode(t, "listener")

	called := int32(0)
	_, err := n.CreateGenericSubscription("/scan", "sensor_msgs/msg/LaserScan", qos.Default(), func(*message.Serialized) {
		atomic.AddInt32(&called, 1)
	}, nil)
	require.NoError(t, err)

	wrongType, err := message.JSONCodec{}.Marshal(&message.Frame{TypeName: "std_msgs/msg/String", Data: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, n.driver.Publish("/scan", wrongType))
	require.NoError(t, n.driver.Publish("/scan", []byte("not a frame")))

	infos := n.Subscriptions()
	require.Len(t, infos, 1)
	assert.Equal(t, uint64(2), infos[0].Dropped)
	assert.Equal(t, uint64(0), infos[0].Delivered)

	require.NoError(t, n.Close())
	assert.Equal(t, int32(0), atomic.LoadInt32(&called))
}

func TestKeepLastEvictsOldest(t *testing.T) {
	n := newNode(t, "listener")

	var (
		calls   int32
		mu      sync.Mutex
		got     [][]byte
		started = make(chan struct{})
		release = make(chan struct{})
	)
	_, err := n.CreateGenericSubscription("/scan", "sensor_msgs/msg/LaserScan", qos.KeepLast(1), func(m *message.Serialized) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		mu.Lock()
		got = append(got, m.Copy())
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	pub, err := n.CreateGenericPublisher("/scan", "sensor_msgs/msg/LaserScan", qos.Default())
	require.NoError(t, err)

	_, err = pub.PublishBytes(ctx(), []byte{1}).Get(ctx())
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("first message not delivered")
	}

	for _, b := range []byte{2, 3} {
		_, err = pub.PublishBytes(ctx(), []byte{b}).Get(ctx())
		require.NoError(t, err)
	}
	close(release)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, waitFor, 5*time.Millisecond)

	infos := n.Subscriptions()
	require.Len(t, infos, 1)
	assert.Equal(t, uint64(1), infos[0].Dropped)

	require.NoError(t, n.Close())
	assert.Equal(t, [][]byte{{1}, {3}}, got)
}

func TestMutuallyExclusiveGroup(t *testing.T) {
	n := newNode(t, "listener")
	group := n.CreateCallbackGroup(callbackgroup.MutuallyExclusive)

	var (
		running, overlap int32
		wg               sync.WaitGroup
	)
	cb := func(*message.Serialized) {
		defer wg.Done()
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	}
	for _, topic := range []string{"/a", "/b"} {
		_, err := n.CreateGenericSubscription(topic, "std_msgs/msg/Empty", qos.Default(), cb, group)
		require.NoError(t, err)
	}

	pa, err := n.CreateGenericPublisher("/a", "std_msgs/msg/Empty", qos.Default())
	require.NoError(t, err)
	pb, err := n.CreateGenericPublisher("/b", "std_msgs/msg/Empty", qos.Default())
	require.NoError(t, err)

	wg.Add(10)
	for i := 0; i < 5; i++ {
		ra := pa.PublishBytes(ctx(), nil)
		rb := pb.PublishBytes(ctx(), nil)
		_, err = ra.Get(ctx())
		require.NoError(t, err)
		_, err = rb.Get(ctx())
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlap))
}

func TestReturnedMessageIsReleased(t *testing.T) {
	n := newNode(t, "listener")

	kept := make(chan *message.Serialized, 1)
	_, err := n.CreateGenericSubscription("/x", "std_msgs/msg/String", qos.Default(), func(m *message.Serialized) {
		m.Retain()
		kept <- m
	}, nil)
	require.NoError(t, err)

	pub, err := n.CreateGenericPublisher("/x", "std_msgs/msg/String", qos.Default())
	require.NoError(t, err)
	_, err = pub.PublishBytes(ctx(), []byte("keep me")).Get(ctx())
	require.NoError(t, err)

	var m *message.Serialized
	select {
	case m = <-kept:
	case <-time.After(waitFor):
		t.Fatal("no message delivered")
	}

	// Close waits for the executor, so the node has returned its reference.
	require.NoError(t, n.Close())
	assert.Equal(t, 1, m.RefCount())
	assert.Equal(t, []byte("keep me"), m.Bytes())
	assert.True(t, m.Release())
}

func TestClosedSubscriptionStopsDelivery(t *testing.T) {
	n := newNode(t, "listener")

	called := int32(0)
	sub, err := n.CreateGenericSubscription("/x", "std_msgs/msg/String", qos.Default(), func(*message.Serialized) {
		atomic.AddInt32(&called, 1)
	}, nil)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	pub, err := n.CreateGenericPublisher("/x", "std_msgs/msg/String", qos.Default())
	require.NoError(t, err)
	_, err = pub.PublishBytes(ctx(), []byte("late")).Get(ctx())
	require.NoError(t, err)

	require.NoError(t, n.Close())
	assert.Equal(t, int32(0), atomic.LoadInt32(&called))
	assert.Equal(t, ErrSubscriptionNotFound, n.RemoveSubscription(sub))
}

func TestNodeClose(t *testing.T) {
	n := newNode(t, "listener")
	sub, err := n.CreateGenericSubscription("/x", "std_msgs/msg/String", qos.Default(), func(*message.Serialized) {}, nil)
	require.NoError(t, err)

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.Equal(t, 0, n.SubscriptionCount())
	assert.Equal(t, 0, n.TypesupportLoader().Loaded())
	// the node already closed it
	assert.NoError(t, sub.Close())

	_, err = n.CreateGenericSubscription("/y", "std_msgs/msg/String", qos.Default(), func(*message.Serialized) {}, nil)
	assert.Equal(t, ErrClosed, err)
	assert.Equal(t, 0, n.TypesupportLoader().Loaded())

	_, err = n.CreateGenericPublisher("/y", "std_msgs/msg/String", qos.Default())
	assert.Equal(t, ErrClosed, err)
}

func TestForeignCallbackGroup(t *testing.T) {
	n := newNode(t, "listener")
	_, err := n.CreateGenericSubscription("/x", "std_msgs/msg/String", qos.Default(), func(*message.Serialized) {},
		callbackgroup.New(callbackgroup.Reentrant))
	assert.Equal(t, ErrForeignCallbackGroup, err)
	assert.Equal(t, 0, n.SubscriptionCount())
}

type brokenDriver struct {
	mq.Driver
}

func (brokenDriver) Subscribe(string, func([]byte)) (mq.Closer, error) {
	return nil, errors.New("broker unreachable")
}

func (brokenDriver) Close() error { return nil }

func TestDriverSubscribeFailure(t *testing.T) {
	n, err := New("listener", mq.Metadata{}, WithDriver("broken", brokenDriver{}))
	require.NoError(t, err)
	defer n.Close()

	sub, err := n.CreateGenericSubscription("/x", "std_msgs/msg/String", qos.Default(), func(*message.Serialized) {}, nil)
	assert.Nil(t, sub)
	assert.EqualError(t, err, "broker unreachable")
	assert.Equal(t, 0, n.SubscriptionCount())
	assert.Equal(t, 0, n.TypesupportLoader().Loaded())
}

func TestNewValidates(t *testing.T) {
	_, err := New("bad name", busMetadata(t))
	assert.True(t, errors.Is(err, ErrInvalidNodeName))

	_, err = New("ok", busMetadata(t), WithNamespace("/bad/"))
	assert.True(t, errors.Is(err, ErrInvalidNamespace))

	_, err = New("ok", busMetadata(t), WithCodec("xml"))
	assert.Error(t, err)

	md := mq.NewMetadata()
	md.SetDriver("no-such-driver")
	_, err = New("ok", *md)
	assert.Error(t, err)

	n := newNode(t, "talker", WithNamespace("robot1"))
	assert.Equal(t, "/robot1/talker", n.FullyQualifiedName())
	assert.Equal(t, "/robot1", n.Namespace())
	assert.Equal(t, "talker", n.Name())
	assert.NotEmpty(t, n.InstanceID())
	assert.Equal(t, callbackgroup.MutuallyExclusive, n.DefaultCallbackGroup().Kind)
}
