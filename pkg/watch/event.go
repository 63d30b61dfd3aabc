// Package watch implements the live-watch subsystem (spec §4.5): a
// registry of active watchers whose channel membership tracks a
// continuously changing topology, backed by a single serialized worker
// that performs adapter-level watch registration and teardown outside
// the manager's topology lock.
//
// The overall shape - a registry guarded by a lock shared with another
// subsystem, a single goroutine draining a buffered channel of typed
// messages, and lock-acquiring "do the work" wrappers around
// caller-already-locked internals - is adapted from the teacher's
// pkg/watch.Manager event loop and addWatch/doAddWatch pairing.
package watch

import (
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/values"
)

// EventKind discriminates a WatchEvent.
type EventKind int

const (
	ChannelAdded EventKind = iota
	ChannelRemoved
	EnterRange
	ExitRange
	EventError
)

func (k EventKind) String() string {
	switch k {
	case ChannelAdded:
		return "ChannelAdded"
	case ChannelRemoved:
		return "ChannelRemoved"
	case EnterRange:
		return "EnterRange"
	case ExitRange:
		return "ExitRange"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is delivered to a watcher's Sink. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind EventKind

	Channel ids.ChannelID

	// IsNewConnection is set on ChannelAdded: true when the channel was
	// just created, false when it started matching because of a tag
	// change.
	IsNewConnection bool

	// IsDisconnection is set on ChannelRemoved: true when the channel
	// itself was removed, false when it stopped matching because of a
	// tag change.
	IsDisconnection bool

	// Value is set on EnterRange/ExitRange.
	Value values.Value

	// Err is set on EventError.
	Err error
}

// Sink receives Events for the lifetime of one registered watch.
// Implementations must be safe for concurrent use: the worker and
// adapter-facing sinks built on its behalf may call Send from different
// goroutines (spec §5).
type Sink interface {
	Send(Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Send(e Event) { f(e) }
