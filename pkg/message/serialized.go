package message

import (
	"fmt"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

var bufferPool bytebufferpool.Pool

// Serialized is an opaque serialized message: bytes plus length, nothing is
// parsed. Buffers come from a shared pool and go back to it when the last
// reference is released.
type Serialized struct {
	refs int32
	buf  *bytebufferpool.ByteBuffer
}

// NewSerialized returns an empty message holding one reference.
func NewSerialized() *Serialized {
	return &Serialized{refs: 1, buf: bufferPool.Get()}
}

// NewSerializedFrom returns a message holding one reference to a copy of b.
func NewSerializedFrom(b []byte) *Serialized {
	s := NewSerialized()
	_, _ = s.Write(b)
	return s
}

var _ Handle = (*Serialized)(nil)

func (s *Serialized) Retain() {
	for {
		n := atomic.LoadInt32(&s.refs)
		if n <= 0 {
			panic("message: Retain on a released serialized message")
		}
		if atomic.CompareAndSwapInt32(&s.refs, n, n+1) {
			return
		}
	}
}

func (s *Serialized) Release() bool {
	n := atomic.AddInt32(&s.refs, -1)
	switch {
	case n > 0:
		return false
	case n == 0:
		buf := s.buf
		s.buf = nil
		bufferPool.Put(buf)
		return true
	default:
		panic(fmt.Sprintf("message: serialized message released %d times too often", -n))
	}
}

// RefCount is the number of outstanding references.
func (s *Serialized) RefCount() int {
	return int(atomic.LoadInt32(&s.refs))
}

// Released reports whether the buffer went back to the pool.
func (s *Serialized) Released() bool {
	return atomic.LoadInt32(&s.refs) <= 0
}

// Write appends p to the payload.
func (s *Serialized) Write(p []byte) (int, error) {
	if s.buf == nil {
		return 0, errReleased
	}
	return s.buf.Write(p)
}

// SetBytes replaces the payload with a copy of p.
func (s *Serialized) SetBytes(p []byte) error {
	if s.buf == nil {
		return errReleased
	}
	s.buf.Set(p)
	return nil
}

// Bytes returns the payload. The slice is only valid while a reference is held.
func (s *Serialized) Bytes() []byte {
	if s.buf == nil {
		return nil
	}
	return s.buf.B
}

// Copy returns the payload in a new slice that outlives the message.
func (s *Serialized) Copy() []byte {
	b := s.Bytes()
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (s *Serialized) Len() int {
	if s.buf == nil {
		return 0
	}
	return s.buf.Len()
}

func (s *Serialized) String() string {
	return fmt.Sprintf("Serialized{len: %d, refs: %d}", s.Len(), s.RefCount())
}
