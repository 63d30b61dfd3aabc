package tagstore

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/foxbox/adapters/pkg/ids"
)

// writeBackoff mirrors the teacher's pkg/cachemanager retry schedule for a
// flaky external dependency: a few quick retries before giving up and
// letting the caller log-and-swallow (spec §4.3/§7).
var writeBackoff = wait.Backoff{
	Duration: 50 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    3,
}

// File is a YAML-file-backed Store. It is opened lazily: the file is read
// on first access and written back after every mutation, under its own
// mutex so concurrent callers don't interleave writes.
type File struct {
	path string
	log  logr.Logger

	mu      sync.Mutex
	loaded  bool
	entries map[string][]ids.TagID
}

func NewFile(path string, log logr.Logger) *File {
	return &File{path: path, log: log}
}

func (f *File) ensureLoaded() error {
	if f.loaded {
		return nil
	}
	f.entries = make(map[string][]ids.TagID)
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, &f.entries); err != nil {
		return err
	}
	f.loaded = true
	return nil
}

func (f *File) persist() error {
	raw, err := yaml.Marshal(f.entries)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, raw, 0o600)
}

func (f *File) persistWithRetry() error {
	var lastErr error
	operation := func(ctx context.Context) (bool, error) {
		if err := f.persist(); err != nil {
			lastErr = err
			return false, nil
		}
		return true, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wait.ExponentialBackoffWithContext(ctx, writeBackoff, operation); err != nil {
		return lastErr
	}
	return nil
}

func (f *File) GetTagsFor(id string) (map[ids.TagID]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make(map[ids.TagID]struct{})
	for _, t := range f.entries[id] {
		out[t] = struct{}{}
	}
	return out, nil
}

func (f *File) AddTags(id string, tags []ids.TagID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(); err != nil {
		return err
	}
	have := make(map[ids.TagID]struct{})
	for _, t := range f.entries[id] {
		have[t] = struct{}{}
	}
	for _, t := range tags {
		have[t] = struct{}{}
	}
	f.entries[id] = mapKeys(have)
	return f.persistWithRetry()
}

func (f *File) RemoveTags(id string, tags []ids.TagID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(); err != nil {
		return err
	}
	remove := make(map[ids.TagID]struct{}, len(tags))
	for _, t := range tags {
		remove[t] = struct{}{}
	}
	kept := f.entries[id][:0]
	for _, t := range f.entries[id] {
		if _, gone := remove[t]; !gone {
			kept = append(kept, t)
		}
	}
	f.entries[id] = kept
	return f.persistWithRetry()
}

func mapKeys(m map[ids.TagID]struct{}) []ids.TagID {
	out := make([]ids.TagID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

var _ Store = (*File)(nil)
