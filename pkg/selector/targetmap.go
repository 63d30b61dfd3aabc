package selector

// TargetEntry pairs a group of selectors with a payload. Within the group,
// selectors are unioned (spec §3: "union across entries, intersection
// across selectors within the same Vec" - read literally: the selectors
// listed in one entry are alternatives for that entry's payload, and the
// entries themselves are unioned across the whole TargetMap, which is
// exactly union-of-unions since every selector is already itself a
// conjunction of criteria).
type TargetEntry[S, P any] struct {
	Selectors []S
	Payload   P
}

// TargetMap is a list of (selectors, payload) pairs, letting a single
// call address different payloads at different selector groups, or the
// same payload at several groups (spec §9). The router and the watch
// subsystem do not use this type; they carry the same shape in their own
// group types, router.Target and watch.SpecEntry.
type TargetMap[S, P any] []TargetEntry[S, P]
