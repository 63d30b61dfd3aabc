// Package selector implements the selector evaluation engine (spec §4.2):
// conjunctive predicates over service/channel attributes, matched with
// union-across/intersection-within semantics.
//
// The engine is pure and lock-free - it operates on attribute views
// (ServiceAttrs/ChannelAttrs) that pkg/entity builds from its live
// records while the caller holds the manager's lock (the tag and feature
// maps in them are the records' own maps, not copies), mirroring how
// teacher pkg/watch.Set's union/difference/contains helpers never touch a
// lock themselves.
package selector

import "github.com/foxbox/adapters/pkg/ids"

// Service is a conjunction of optional criteria matched against a service.
// A zero-value Service (no criteria set) matches every service.
type Service struct {
	ID         *ids.ServiceID
	Tags       []ids.TagID
	Implements []ids.FeatureID
	Adapter    *ids.AdapterID
}

// Channel is a conjunction of optional criteria matched against a
// channel. A zero-value Channel matches every channel.
type Channel struct {
	ID            *ids.ChannelID
	Tags          []ids.TagID
	Implements    []ids.FeatureID
	ParentService *ids.ServiceID
	Adapter       *ids.AdapterID
	Service       *Service // the owning service must satisfy this, if set
}

// ServiceAttrs is the attribute snapshot a Service selector is matched
// against. Built by pkg/entity from a live service record.
type ServiceAttrs struct {
	ID      ids.ServiceID
	Adapter ids.AdapterID
	Tags    map[ids.TagID]struct{}
	// Implements aggregates the FeatureIDs of all channels belonging to
	// this service, since "implements" on a service selector means "has a
	// channel implementing this feature" (spec §4.2/§9 nested selector).
	Implements map[ids.FeatureID]struct{}
}

// ChannelAttrs is the attribute snapshot a Channel selector is matched
// against.
type ChannelAttrs struct {
	ID            ids.ChannelID
	Service       ids.ServiceID
	Adapter       ids.AdapterID
	Tags          map[ids.TagID]struct{}
	Implements    map[ids.FeatureID]struct{}
	ServiceAttrs  ServiceAttrs // the owning service's attributes, for nested Service selectors
}

func hasAllTags(have map[ids.TagID]struct{}, want []ids.TagID) bool {
	for _, t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}

func hasAllFeatures(have map[ids.FeatureID]struct{}, want []ids.FeatureID) bool {
	for _, f := range want {
		if _, ok := have[f]; !ok {
			return false
		}
	}
	return true
}

// MatchService reports whether attrs satisfies sel, short-circuiting over
// conjuncts.
func MatchService(attrs ServiceAttrs, sel Service) bool {
	if sel.ID != nil && *sel.ID != attrs.ID {
		return false
	}
	if sel.Adapter != nil && *sel.Adapter != attrs.Adapter {
		return false
	}
	if !hasAllTags(attrs.Tags, sel.Tags) {
		return false
	}
	if !hasAllFeatures(attrs.Implements, sel.Implements) {
		return false
	}
	return true
}

// MatchChannel reports whether attrs satisfies sel, short-circuiting over
// conjuncts, including the nested Service selector when present.
func MatchChannel(attrs ChannelAttrs, sel Channel) bool {
	if sel.ID != nil && *sel.ID != attrs.ID {
		return false
	}
	if sel.ParentService != nil && *sel.ParentService != attrs.Service {
		return false
	}
	if sel.Adapter != nil && *sel.Adapter != attrs.Adapter {
		return false
	}
	if !hasAllTags(attrs.Tags, sel.Tags) {
		return false
	}
	if !hasAllFeatures(attrs.Implements, sel.Implements) {
		return false
	}
	if sel.Service != nil && !MatchService(attrs.ServiceAttrs, *sel.Service) {
		return false
	}
	return true
}

// MatchAnyService reports whether attrs matches any selector in sels
// (union). An empty slice matches everything.
func MatchAnyService(attrs ServiceAttrs, sels []Service) bool {
	if len(sels) == 0 {
		return true
	}
	for _, s := range sels {
		if MatchService(attrs, s) {
			return true
		}
	}
	return false
}

// MatchAnyChannel reports whether attrs matches any selector in sels
// (union). An empty slice matches everything.
func MatchAnyChannel(attrs ChannelAttrs, sels []Channel) bool {
	if len(sels) == 0 {
		return true
	}
	for _, s := range sels {
		if MatchChannel(attrs, s) {
			return true
		}
	}
	return false
}
