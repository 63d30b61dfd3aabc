package watch

import (
	"github.com/foxbox/adapters/pkg/selector"
	"github.com/foxbox/adapters/pkg/values"
)

// Spec is the argument to RegisterWatch: a TargetMap<ChannelSelector,
// Exactly<Predicate>> plus the sink that receives every event (spec
// §4.5.1).
type Spec struct {
	Targets []SpecEntry
	Sink    Sink
}

// SpecEntry is one (selectors, payload) group of a Spec. Payload.Kind
// governs what the group reports: Always notifies on every value update
// and topology change and never emits ExitRange; Never notifies only on
// topology changes; ExactlyValue maintains a per-channel inside-range bit
// and emits EnterRange/ExitRange on transition (spec §4.5.1).
type SpecEntry struct {
	Selectors []selector.Channel
	Payload   values.Exactly[*values.Predicate]
}
