package message

import "time"

// Info is the delivery metadata that travels next to a message.
type Info struct {
	SourceTimestamp     time.Time
	ReceivedTimestamp   time.Time
	PublicationSequence uint64
	PublisherGID        string
	FromIntraProcess    bool
}
