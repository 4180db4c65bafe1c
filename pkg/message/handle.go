// Package message holds the type-erased message representations exchanged
// between the transport, the executor and subscription callbacks.
package message

// Handle is a reference counted message buffer. The receive machinery owns one
// reference to every handle it creates and gives it back with Release once the
// callback has returned. Holders that keep a handle past the callback must
// Retain it first.
type Handle interface {
	// Retain adds a reference.
	Retain()
	// Release drops a reference and reports whether it was the last one.
	Release() bool
	// Len is the number of payload bytes.
	Len() int
}
