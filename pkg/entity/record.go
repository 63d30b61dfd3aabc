package entity

import (
	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/values"
)

// ExpectationKind discriminates a Signature slot.
type ExpectationKind int

const (
	Nothing ExpectationKind = iota
	Optional
	Required
)

// Expectation is one of a Signature's two slots (accepted argument,
// returned value): Nothing, Optional(Format) or Required(Format).
type Expectation struct {
	Kind   ExpectationKind
	Format values.Format
}

// NothingExpectation is the zero-value Expectation.
func NothingExpectation() Expectation { return Expectation{Kind: Nothing} }

// OptionalExpectation accepts/returns f if present, but does not require it.
func OptionalExpectation(f values.Format) Expectation { return Expectation{Kind: Optional, Format: f} }

// RequiredExpectation requires f to be present.
func RequiredExpectation(f values.Format) Expectation { return Expectation{Kind: Required, Format: f} }

// Signature describes one method (send/fetch/delete/watch) a channel may
// support: what it accepts as an argument, and what it returns.
type Signature struct {
	Accepts Expectation
	Returns Expectation
}

// MethodSignatures holds the (up to four) signatures a channel declares.
// A nil pointer means the channel does not support that method at all.
type MethodSignatures struct {
	Send   *Signature
	Fetch  *Signature
	Delete *Signature
	Watch  *Signature
}

// Adapter is the in-memory record for a registered adapter.
type Adapter struct {
	ID       ids.AdapterID
	Name     string
	Vendor   string
	Version  [4]uint32
	Impl     adapter.Adapter
	Services map[ids.ServiceID]struct{}
}

// Service is the in-memory record for a registered service. Tags is
// mutated in place under the Store's single lock - there is no separate
// per-record mutex (spec §9's "straightforward alternative": widen the
// write lock to cover tag ops rather than add interior mutability).
type Service struct {
	ID         ids.ServiceID
	Adapter    ids.AdapterID
	Tags       map[ids.TagID]struct{}
	Properties map[string]string
	Channels   map[ids.ChannelID]struct{}
}

// Channel is the in-memory record for a registered channel.
type Channel struct {
	ID         ids.ChannelID
	Service    ids.ServiceID
	Adapter    ids.AdapterID
	Implements map[ids.FeatureID]struct{}
	Tags       map[ids.TagID]struct{}
	Signatures MethodSignatures
}

// ServiceDescription is the read-only snapshot returned by GetServices.
type ServiceDescription struct {
	ID         ids.ServiceID
	Adapter    ids.AdapterID
	Tags       []ids.TagID
	Properties map[string]string
	Channels   []ids.ChannelID
}

// ChannelDescription is the read-only snapshot returned by GetChannels.
type ChannelDescription struct {
	ID         ids.ChannelID
	Service    ids.ServiceID
	Adapter    ids.AdapterID
	Implements []ids.FeatureID
	Tags       []ids.TagID
	Signatures MethodSignatures
}
