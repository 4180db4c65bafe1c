// Package metrics records message counts per topic with OpenCensus.
package metrics

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	KeyTopic  = tag.MustNewKey("topic")
	KeyStatus = tag.MustNewKey("status")
	KeyError  = tag.MustNewKey("error")
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

var (
	// ReceivedMessages counts payloads handed to subscription callbacks.
	ReceivedMessages = stats.Int64("rclgeneric/received_messages", "Number of messages delivered to subscriptions", stats.UnitDimensionless)
	// DroppedMessages counts payloads discarded before delivery.
	DroppedMessages = stats.Int64("rclgeneric/dropped_messages", "Number of messages dropped before delivery", stats.UnitDimensionless)
	// ReceivedBytes is the payload size distribution of delivered messages.
	ReceivedBytes = stats.Int64("rclgeneric/received_bytes", "Size of delivered payloads", stats.UnitBytes)
	// PublishedMessages counts publish attempts, tagged by status.
	PublishedMessages = stats.Int64("rclgeneric/published_messages", "Number of messages published", stats.UnitDimensionless)
)

var (
	ReceivedMessagesView = &view.View{
		Name:        "rclgeneric/received_messages",
		Measure:     ReceivedMessages,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyTopic},
	}
	DroppedMessagesView = &view.View{
		Name:        "rclgeneric/dropped_messages",
		Measure:     DroppedMessages,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyTopic, KeyError},
	}
	ReceivedBytesView = &view.View{
		Name:        "rclgeneric/received_bytes",
		Measure:     ReceivedBytes,
		Aggregation: view.Distribution(0, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576),
		TagKeys:     []tag.Key{KeyTopic},
	}
	PublishedMessagesView = &view.View{
		Name:        "rclgeneric/published_messages",
		Measure:     PublishedMessages,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyTopic, KeyStatus},
	}

	DefaultViews = []*view.View{ReceivedMessagesView, DroppedMessagesView, ReceivedBytesView, PublishedMessagesView}
)

// RegisterViews registers DefaultViews with the OpenCensus view package.
func RegisterViews() error {
	return view.Register(DefaultViews...)
}

// UnregisterViews undoes RegisterViews.
func UnregisterViews() {
	view.Unregister(DefaultViews...)
}

// Received records a delivered payload of n bytes on topic.
func Received(topic string, n int) {
	ctx, err := tag.New(context.Background(), tag.Upsert(KeyTopic, topic))
	if err != nil {
		return
	}
	stats.Record(ctx, ReceivedMessages.M(1), ReceivedBytes.M(int64(n)))
}

// Dropped records a payload on topic discarded for reason.
func Dropped(topic string, reason error) {
	mutators := []tag.Mutator{tag.Upsert(KeyTopic, topic)}
	if reason != nil {
		mutators = append(mutators, tag.Upsert(KeyError, reason.Error()))
	}
	ctx, err := tag.New(context.Background(), mutators...)
	if err != nil {
		return
	}
	stats.Record(ctx, DroppedMessages.M(1))
}

// Published records a publish on topic. err is the driver result.
func Published(ctx context.Context, topic string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	ctx, terr := tag.New(ctx, tag.Upsert(KeyTopic, topic), tag.Upsert(KeyStatus, status))
	if terr != nil {
		return
	}
	stats.Record(ctx, PublishedMessages.M(1))
}
