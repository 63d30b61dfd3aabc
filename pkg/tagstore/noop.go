package tagstore

import "github.com/foxbox/adapters/pkg/ids"

// NoOp is used when no tag-store path has been configured. Tag operations
// succeed but nothing persists, matching spec §4.3: "When the store is
// absent ... tag operations succeed but are not persisted."
type NoOp struct{}

func (NoOp) GetTagsFor(string) (map[ids.TagID]struct{}, error) { return nil, nil }
func (NoOp) AddTags(string, []ids.TagID) error                 { return nil }
func (NoOp) RemoveTags(string, []ids.TagID) error               { return nil }

var _ Store = NoOp{}
