// Package callbackgroup controls which callbacks may run concurrently.
package callbackgroup

import (
	"fmt"

	"github.com/nats-io/nuid"
)

type Kind int

const (
	// MutuallyExclusive callbacks of one group never overlap.
	MutuallyExclusive Kind = iota
	// Reentrant callbacks may run in parallel, including with themselves.
	Reentrant
)

func (k Kind) String() string {
	switch k {
	case MutuallyExclusive:
		return "mutually_exclusive"
	case Reentrant:
		return "reentrant"
	}
	return "unknown"
}

// Group tags endpoints whose callbacks share a concurrency policy.
type Group struct {
	ID   string
	Kind Kind
}

func New(kind Kind) *Group {
	return &Group{ID: nuid.Next(), Kind: kind}
}

// SchedulingKey is the receive scheduler key: work under the same non-empty
// key runs sequentially, work under "" runs concurrently.
func (g *Group) SchedulingKey() string {
	if g.Kind == Reentrant {
		return ""
	}
	return g.ID
}

func (g *Group) String() string {
	return fmt.Sprintf("%s(%s)", g.Kind, g.ID)
}
