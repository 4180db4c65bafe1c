package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSerializedIsEmpty(t *testing.T) {
	for i := 0; i < 3; i++ {
		s := NewSerialized()
		assert.Zero(t, s.Len())
		assert.Empty(t, s.Bytes())
		assert.Equal(t, 1, s.RefCount())
	}
}

func TestSerializedWriteAndSet(t *testing.T) {
	s := NewSerialized()
	n, err := s.Write([]byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, _ = s.Write([]byte{0x03})
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, s.Bytes())

	require.NoError(t, s.SetBytes([]byte{0xff}))
	assert.Equal(t, []byte{0xff}, s.Bytes())
	assert.Equal(t, 1, s.Len())
}

func TestSerializedRefCounting(t *testing.T) {
	s := NewSerializedFrom([]byte("scan"))
	s.Retain()
	assert.Equal(t, 2, s.RefCount())

	assert.False(t, s.Release())
	assert.False(t, s.Released())
	assert.Equal(t, []byte("scan"), s.Bytes())

	assert.True(t, s.Release())
	assert.True(t, s.Released())
	assert.Nil(t, s.Bytes())
	assert.Zero(t, s.Len())

	_, err := s.Write([]byte{1})
	assert.Equal(t, errReleased, err)
	assert.Equal(t, errReleased, s.SetBytes([]byte{1}))
	assert.Panics(t, func() { s.Retain() })
	assert.Zero(t, s.RefCount())
	assert.True(t, s.Released())
}

func TestSerializedOverRelease(t *testing.T) {
	s := NewSerialized()
	s.Release()
	assert.Panics(t, func() { s.Release() })
}

func TestSerializedCopyOutlivesRelease(t *testing.T) {
	s := NewSerializedFrom([]byte{9, 8, 7})
	c := s.Copy()
	s.Release()
	assert.Equal(t, []byte{9, 8, 7}, c)
	assert.Nil(t, s.Copy())
}
