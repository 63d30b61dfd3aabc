// Package ids defines the opaque identifier types shared across the
// adapter manager: adapters, services, channels, features, tags, watchers
// and the consumer issuing a request.
//
// Every identifier is a distinct string type so the compiler rejects
// accidental mixing (passing a ServiceID where a ChannelID is expected).
// Go strings are already immutable and cheap to copy, so unlike the
// original Rust implementation these types need no separate interning
// layer to be "clone-cheap" - the string header is the cheap handle.
package ids

import "github.com/google/uuid"

// AdapterID identifies an adapter. Adapters are expected to assign their
// own id and keep it stable across restarts.
type AdapterID string

// ServiceID identifies a service (device) published by an adapter.
type ServiceID string

// ChannelID identifies a channel (a read/write/watch endpoint) on a service.
type ChannelID string

// FeatureID names a capability a channel claims to implement.
type FeatureID string

// TagID names a user-assigned tag on a service or channel.
type TagID string

// UserID identifies the consumer placing a method call, passed through to
// adapters for authorization decisions the core does not make itself.
type UserID string

// WatchKey identifies a single registered watch. Allocated from a
// monotonic counter (see NewWatchKeyAllocator), never reused, so a stale
// key can never alias a live watcher.
type WatchKey uint64

// NewSurrogateID mints a random, stable-looking identifier for adapters
// that do not supply their own (e.g. sample/demo adapters). Real adapters
// are expected to assign identifiers that persist across restarts; this
// helper exists only for callers that have nothing better.
func NewSurrogateID() string {
	return uuid.NewString()
}

// WatchKeyAllocator hands out strictly increasing WatchKeys.
type WatchKeyAllocator struct {
	next uint64
}

// Allocate returns the next WatchKey. Not safe for concurrent use without
// external synchronization; the watch registry calls this while already
// holding its write lock.
func (a *WatchKeyAllocator) Allocate() WatchKey {
	a.next++
	return WatchKey(a.next)
}
