// Package tagstore defines the external tag-persistence contract (spec
// §4.3) and two implementations: a no-op used when no path is configured,
// and a YAML-file-backed store for single-process deployments.
package tagstore

import "github.com/foxbox/adapters/pkg/ids"

// Store persists the tag sets assigned to services and channels, keyed by
// the entity's string identifier. It is opened lazily and is assumed
// thread-safe by its own implementation (entity/manager never call it
// concurrently with itself from more than one in-flight mutation, since
// tag mutations go through the same write lock as everything else).
type Store interface {
	GetTagsFor(id string) (map[ids.TagID]struct{}, error)
	AddTags(id string, tags []ids.TagID) error
	RemoveTags(id string, tags []ids.TagID) error
}
