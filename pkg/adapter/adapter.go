// Package adapter defines the capability set the core consumes from
// device drivers (spec §6). It is intentionally the only contact point
// between the manager and adapter implementations - concrete adapters
// (clock, Hue, ZWave, cameras, ...) are out of scope for this module and
// live elsewhere.
package adapter

import (
	"context"

	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/values"
)

// Adapter is the contract a device driver implements to participate in
// the manager. Every batch method receives the full set of channels the
// router or watch subsystem resolved for this adapter in one call, so
// adapters can amortize I/O (a single HTTP request for ten bulbs, say).
type Adapter interface {
	ID() ids.AdapterID
	Name() string
	Vendor() string
	Version() [4]uint32

	// FetchValues, SendValues and DeleteValues receive one entry per
	// channel the router resolved for this adapter; Payload is nil unless
	// the method call carried one. Results are returned in any order and
	// need not cover every request - missing entries are treated as
	// GenericInternal by the router.
	FetchValues(ctx context.Context, requests []ValueRequest, user ids.UserID) []ChannelResult
	SendValues(ctx context.Context, requests []ValueRequest, user ids.UserID) []ChannelResult
	DeleteValues(ctx context.Context, requests []ValueRequest, user ids.UserID) []ChannelResult

	// RegisterWatch installs a low-level watch for each requested channel
	// and returns one WatchRegistration per request (success carries a
	// WatchGuard, failure carries Err). Called by the watch worker, never
	// while the manager's topology lock is held.
	RegisterWatch(ctx context.Context, requests []WatchRequest) []WatchRegistration

	// Stop is called once, when the adapter is removed or the manager
	// shuts down. No further calls are made to this adapter afterwards.
	Stop(ctx context.Context)
}

// ValueRequest is one channel's half of a fetch/send/delete batch.
type ValueRequest struct {
	Channel ids.ChannelID
	Payload *values.Value
}

// ChannelResult is one channel's result from a fetch/send/delete batch.
type ChannelResult struct {
	Channel ids.ChannelID
	Value   *values.Value
	Err     error
}

// EventKind distinguishes the two adapter-level watch events.
type EventKind int

const (
	EventEnter EventKind = iota
	EventExit
)

// WatchEvent is what an adapter reports once a low-level watch is
// installed: a value entering or exiting whatever range the adapter
// itself is able to evaluate (typically none - most adapters report
// every value change as Enter and let the core apply the Predicate).
type WatchEvent struct {
	Kind    EventKind
	Channel ids.ChannelID
	Value   values.Value
}

// EventSink receives AdapterWatchEvents from an adapter for the lifetime
// of a single low-level watch. Implementations must be safe for
// concurrent use - adapters may call Send from any goroutine (spec §5).
type EventSink interface {
	Send(WatchEvent)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(WatchEvent)

func (f EventSinkFunc) Send(e WatchEvent) { f(e) }

// WatchGuard is returned by a successful low-level watch registration.
// Close cancels the underlying watch; it is the Go idiom for the spec's
// AdapterWatchGuard destructor.
type WatchGuard interface {
	Close()
}

// WatchGuardFunc adapts a plain function to WatchGuard.
type WatchGuardFunc func()

func (f WatchGuardFunc) Close() { f() }

// WatchRequest is one channel's half of a RegisterWatch batch.
type WatchRequest struct {
	Channel   ids.ChannelID
	Predicate *values.Predicate // nil for an Always group - the adapter reports every change; Never groups are not sent to adapters
	Sink      EventSink
}

// WatchRegistration is one channel's result from a RegisterWatch batch.
type WatchRegistration struct {
	Channel ids.ChannelID
	Guard   WatchGuard
	Err     error
}

// Base embeds into concrete adapters that do not implement every method.
// Each unset method yields NoSuchMethod for every entry in its batch,
// matching spec §6: "Defaults exist: a method not overridden yields
// NoSuchMethod for every entry in its batch."
type Base struct{}

func (Base) FetchValues(_ context.Context, requests []ValueRequest, _ ids.UserID) []ChannelResult {
	return noSuchMethodResults(requests, "fetch")
}

func (Base) SendValues(_ context.Context, requests []ValueRequest, _ ids.UserID) []ChannelResult {
	return noSuchMethodResults(requests, "send")
}

func (Base) DeleteValues(_ context.Context, requests []ValueRequest, _ ids.UserID) []ChannelResult {
	return noSuchMethodResults(requests, "delete")
}

func (Base) RegisterWatch(_ context.Context, requests []WatchRequest) []WatchRegistration {
	out := make([]WatchRegistration, len(requests))
	for i, r := range requests {
		out[i] = WatchRegistration{Channel: r.Channel, Err: noSuchMethodError(string(r.Channel), "watch")}
	}
	return out
}

func (Base) Stop(context.Context) {}
