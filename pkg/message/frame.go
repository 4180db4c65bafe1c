package message

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
)

const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

var (
	errReleased     = errors.New("message: serialized message already released")
	errUnknownCodec = errors.New("message: unknown frame codec")
)

// Frame is what a driver carries for one message: the serialized payload and
// enough metadata to rebuild an Info on the receiving side.
type Frame struct {
	TypeName     string `json:"type" cbor:"1,keyasint"`
	PublisherGID string `json:"gid" cbor:"2,keyasint"`
	Sequence     uint64 `json:"seq" cbor:"3,keyasint"`
	// SourceStamp is the publish time in unix nanoseconds.
	SourceStamp int64  `json:"stamp" cbor:"4,keyasint"`
	Data        []byte `json:"data" cbor:"5,keyasint"`
}

// Info rebuilds delivery metadata, stamping the receive time.
func (f *Frame) Info(received time.Time) Info {
	return Info{
		SourceTimestamp:     time.Unix(0, f.SourceStamp),
		ReceivedTimestamp:   received,
		PublicationSequence: f.Sequence,
		PublisherGID:        f.PublisherGID,
	}
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{type: %s, gid: %s, seq: %d, len: %d}", f.TypeName, f.PublisherGID, f.Sequence, len(f.Data))
}

// Codec turns frames into driver payloads and back.
type Codec interface {
	Name() string
	Marshal(f *Frame) ([]byte, error)
	Unmarshal(b []byte, f *Frame) error
}

// CodecByName returns the codec registered under name; "" selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecCBOR:
		return CBORCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownCodec, name)
}

// JSONCodec is the default codec, readable on any broker console.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Marshal(f *Frame) ([]byte, error) {
	return jsoniter.ConfigFastest.Marshal(f)
}

func (JSONCodec) Unmarshal(b []byte, f *Frame) error {
	return jsoniter.ConfigFastest.Unmarshal(b, f)
}

// CBORCodec keeps the payload binary and frames small.
type CBORCodec struct{}

func (CBORCodec) Name() string { return CodecCBOR }

func (CBORCodec) Marshal(f *Frame) ([]byte, error) {
	return cbor.Marshal(f)
}

func (CBORCodec) Unmarshal(b []byte, f *Frame) error {
	return cbor.Unmarshal(b, f)
}
