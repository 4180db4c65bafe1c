// Package qos describes the delivery semantics of a topic endpoint.
//
// A Profile is a plain value: builder methods return modified copies, so a
// profile handed to an endpoint can never change underneath it.
package qos

import (
	"errors"
	"fmt"
	"strings"
)

type HistoryPolicy int

const (
	HistorySystemDefault HistoryPolicy = iota
	HistoryKeepLast
	HistoryKeepAll
)

type ReliabilityPolicy int

const (
	ReliabilitySystemDefault ReliabilityPolicy = iota
	ReliabilityReliable
	ReliabilityBestEffort
)

type DurabilityPolicy int

const (
	DurabilitySystemDefault DurabilityPolicy = iota
	DurabilityTransientLocal
	DurabilityVolatile
)

// DefaultDepth is the history depth of Default().
const DefaultDepth = 10

var (
	ErrZeroDepth     = errors.New("qos: keep last history requires a depth greater than zero")
	ErrUnknownPolicy = errors.New("qos: unknown policy")
)

// Profile is a QoS snapshot. Depth is only meaningful with HistoryKeepLast.
type Profile struct {
	History     HistoryPolicy
	Depth       int
	Reliability ReliabilityPolicy
	Durability  DurabilityPolicy
}

// Default is keep last 10, reliable, volatile.
func Default() Profile {
	return Profile{
		History:     HistoryKeepLast,
		Depth:       DefaultDepth,
		Reliability: ReliabilityReliable,
		Durability:  DurabilityVolatile,
	}
}

// SensorData favours timeliness: keep last 5, best effort, volatile.
func SensorData() Profile {
	return Profile{
		History:     HistoryKeepLast,
		Depth:       5,
		Reliability: ReliabilityBestEffort,
		Durability:  DurabilityVolatile,
	}
}

// KeepLast returns Default() with a keep last history of depth.
func KeepLast(depth int) Profile {
	return Default().KeepLast(depth)
}

// KeepAll returns Default() with a keep all history.
func KeepAll() Profile {
	return Default().KeepAll()
}

func (p Profile) KeepLast(depth int) Profile {
	p.History = HistoryKeepLast
	p.Depth = depth
	return p
}

func (p Profile) KeepAll() Profile {
	p.History = HistoryKeepAll
	p.Depth = 0
	return p
}

func (p Profile) Reliable() Profile {
	p.Reliability = ReliabilityReliable
	return p
}

func (p Profile) BestEffort() Profile {
	p.Reliability = ReliabilityBestEffort
	return p
}

func (p Profile) TransientLocal() Profile {
	p.Durability = DurabilityTransientLocal
	return p
}

func (p Profile) DurabilityVolatile() Profile {
	p.Durability = DurabilityVolatile
	return p
}

// Validate reports whether the profile can be applied to an endpoint.
func (p Profile) Validate() error {
	if p.History < HistorySystemDefault || p.History > HistoryKeepAll {
		return fmt.Errorf("%w: history %d", ErrUnknownPolicy, p.History)
	}
	if p.Reliability < ReliabilitySystemDefault || p.Reliability > ReliabilityBestEffort {
		return fmt.Errorf("%w: reliability %d", ErrUnknownPolicy, p.Reliability)
	}
	if p.Durability < DurabilitySystemDefault || p.Durability > DurabilityVolatile {
		return fmt.Errorf("%w: durability %d", ErrUnknownPolicy, p.Durability)
	}
	if p.History == HistoryKeepLast && p.Depth <= 0 {
		return ErrZeroDepth
	}
	return nil
}

func (p Profile) String() string {
	history := p.History.String()
	if p.History == HistoryKeepLast {
		history = fmt.Sprintf("%s(%d)", history, p.Depth)
	}
	return fmt.Sprintf("history=%s reliability=%s durability=%s", history, p.Reliability, p.Durability)
}

func (h HistoryPolicy) String() string {
	switch h {
	case HistorySystemDefault:
		return "system_default"
	case HistoryKeepLast:
		return "keep_last"
	case HistoryKeepAll:
		return "keep_all"
	}
	return "unknown"
}

func (r ReliabilityPolicy) String() string {
	switch r {
	case ReliabilitySystemDefault:
		return "system_default"
	case ReliabilityReliable:
		return "reliable"
	case ReliabilityBestEffort:
		return "best_effort"
	}
	return "unknown"
}

func (d DurabilityPolicy) String() string {
	switch d {
	case DurabilitySystemDefault:
		return "system_default"
	case DurabilityTransientLocal:
		return "transient_local"
	case DurabilityVolatile:
		return "volatile"
	}
	return "unknown"
}

func ParseHistory(s string) (HistoryPolicy, error) {
	switch normalize(s) {
	case "", "system_default":
		return HistorySystemDefault, nil
	case "keep_last":
		return HistoryKeepLast, nil
	case "keep_all":
		return HistoryKeepAll, nil
	}
	return 0, fmt.Errorf("%w: history %q", ErrUnknownPolicy, s)
}

func ParseReliability(s string) (ReliabilityPolicy, error) {
	switch normalize(s) {
	case "", "system_default":
		return ReliabilitySystemDefault, nil
	case "reliable":
		return ReliabilityReliable, nil
	case "best_effort":
		return ReliabilityBestEffort, nil
	}
	return 0, fmt.Errorf("%w: reliability %q", ErrUnknownPolicy, s)
}

func ParseDurability(s string) (DurabilityPolicy, error) {
	switch normalize(s) {
	case "", "system_default":
		return DurabilitySystemDefault, nil
	case "transient_local":
		return DurabilityTransientLocal, nil
	case "volatile":
		return DurabilityVolatile, nil
	}
	return 0, fmt.Errorf("%w: durability %q", ErrUnknownPolicy, s)
}

// Preset returns a named profile: "default", "sensor_data".
func Preset(name string) (Profile, error) {
	switch normalize(name) {
	case "", "default":
		return Default(), nil
	case "sensor_data":
		return SensorData(), nil
	}
	return Profile{}, fmt.Errorf("%w: preset %q", ErrUnknownPolicy, name)
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}
