package watch

import (
	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/entity"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/logging"
	"github.com/foxbox/adapters/pkg/metrics"
	"github.com/foxbox/adapters/pkg/selector"
	"github.com/foxbox/adapters/pkg/values"
)

var log = logging.Named("watch")

// RWLocker is the lock pkg/manager owns. Registry never constructs its
// own lock: topology mutation (entity.Store) and watcher-registry
// mutation share exactly the same reader/writer lock (spec §4.6), so
// every Registry entry point below assumes the caller already holds the
// appropriate half of it, mirroring the teacher's addWatch/doAddWatch
// split (lock-acquiring wrapper vs. "lock acquired by caller" internal).
type RWLocker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// pendingWatch is one channel queued for adapter-level watch
// registration.
type pendingWatch struct {
	channel   ids.ChannelID
	predicate *values.Predicate
}

type startMsg struct {
	key        ids.WatchKey
	perAdapter map[ids.AdapterID][]pendingWatch
}

type stopMsg struct {
	key ids.WatchKey
}

// Registry is the watcher registry plus its single serialized worker
// (spec §4.5.3). Construct with NewRegistry and never copy.
type Registry struct {
	lock  RWLocker
	store *entity.Store

	alloc ids.WatchKeyAllocator

	watchers        map[ids.WatchKey]*watcherData
	channelWatchers map[ids.ChannelID]map[ids.WatchKey]struct{}

	queue   chan any
	stopped chan struct{}

	metrics *metrics.WatchMetrics
}

// NewRegistry constructs a Registry sharing lock with the rest of the
// manager's topology state, and starts its worker goroutine. Call
// Shutdown to stop it.
func NewRegistry(lock RWLocker, store *entity.Store, m *metrics.WatchMetrics) *Registry {
	r := &Registry{
		lock:            lock,
		store:           store,
		watchers:        make(map[ids.WatchKey]*watcherData),
		channelWatchers: make(map[ids.ChannelID]map[ids.WatchKey]struct{}),
		queue:           make(chan any, 1024),
		stopped:         make(chan struct{}),
		metrics:         m,
	}
	go r.worker()
	return r
}

// Shutdown stops the worker goroutine. In-flight Start/Stop messages
// already read from the queue finish; anything still queued is dropped.
func (r *Registry) Shutdown() {
	close(r.stopped)
}

// Clear drops every watcher and channel backref (spec §7
// AdapterManager.stop(): "clear ... watchers"). The caller must already
// hold the write lock, and must have already closed out every watcher's
// own outstanding guards (Stop invokes every adapter's Stop first, which
// is expected to tear down the low-level watches those guards reference)
// - Clear itself does not call Guard.Close, it only forgets the registry's
// bookkeeping.
func (r *Registry) Clear() {
	r.watchers = make(map[ids.WatchKey]*watcherData)
	r.channelWatchers = make(map[ids.ChannelID]map[ids.WatchKey]struct{})
}

// RegisterWatch installs a new watcher (spec §4.5.2). The caller must
// already hold the write lock.
//
// A channel matching more than one SpecEntry is only subscribed through
// the first entry it matches, in Targets order - mirroring ReevaluateAdd's
// break after the first match. Without this, a channel matching two
// groups would enqueue two pendingWatch entries for the same channel, and
// processStart's collected[reg.Channel] = reg.Guard would silently drop
// the first adapter-level guard, leaking that subscription.
func (r *Registry) RegisterWatch(spec Spec) *Guard {
	key := r.alloc.Allocate()
	wd := newWatcherData(key, spec)
	r.watchers[key] = wd

	perAdapter := make(map[ids.AdapterID][]pendingWatch)
	seen := make(map[ids.ChannelID]struct{})
	for _, entry := range spec.Targets {
		for _, ch := range r.store.GetChannels(entry.Selectors) {
			if _, already := seen[ch.ID]; already {
				continue
			}
			seen[ch.ID] = struct{}{}
			r.addBackref(wd, ch.ID)
			if entry.Payload.Kind == values.Never {
				continue
			}
			perAdapter[ch.Adapter] = append(perAdapter[ch.Adapter], pendingWatch{
				channel:   ch.ID,
				predicate: predicateFor(entry.Payload),
			})
		}
	}
	r.enqueueStart(key, perAdapter)
	if r.metrics != nil {
		r.metrics.WatcherRegistered()
	}
	return newGuard(r, key, &wd.isDropped)
}

// ReevaluateAdd handles the add-channel/tag-on half of topology-change
// handling (spec §4.5.4). isNewConnection distinguishes a brand-new
// channel from one that merely started matching after a tag change. The
// caller must already hold the write lock.
func (r *Registry) ReevaluateAdd(channels map[ids.ChannelID]struct{}, isNewConnection bool) {
	perWatcher := make(map[ids.WatchKey]map[ids.AdapterID][]pendingWatch)
	for chID := range channels {
		attrs, ok := r.store.ChannelAttrs(chID)
		if !ok {
			continue
		}
		desc, ok := r.store.ChannelDescription(chID)
		if !ok {
			continue
		}
		for key, wd := range r.watchers {
			if wd.isDropped.Load() {
				continue
			}
			if _, already := wd.watched[chID]; already {
				continue
			}
			for _, entry := range wd.spec.Targets {
				if !selector.MatchAnyChannel(attrs, entry.Selectors) {
					continue
				}
				wd.spec.Sink.Send(Event{Kind: ChannelAdded, Channel: chID, IsNewConnection: isNewConnection})
				r.addBackref(wd, chID)
				if entry.Payload.Kind != values.Never {
					if perWatcher[key] == nil {
						perWatcher[key] = make(map[ids.AdapterID][]pendingWatch)
					}
					perWatcher[key][desc.Adapter] = append(perWatcher[key][desc.Adapter], pendingWatch{
						channel:   chID,
						predicate: predicateFor(entry.Payload),
					})
				}
				break
			}
		}
	}
	for key, perAdapter := range perWatcher {
		r.enqueueStart(key, perAdapter)
	}
}

// ReevaluateRemove handles the remove-channel/tag-off half of
// topology-change handling (spec §4.5.4). isDisconnection distinguishes
// the channel itself being removed from it merely losing a matching tag.
// The caller must already hold the write lock.
func (r *Registry) ReevaluateRemove(channels map[ids.ChannelID]struct{}, isDisconnection bool) {
	for chID := range channels {
		set, ok := r.channelWatchers[chID]
		if !ok {
			continue
		}
		attrs, stillExists := r.store.ChannelAttrs(chID)
		for key := range set {
			wd, ok := r.watchers[key]
			if !ok {
				continue
			}
			stillMatches := false
			if stillExists {
				for _, entry := range wd.spec.Targets {
					if selector.MatchAnyChannel(attrs, entry.Selectors) {
						stillMatches = true
						break
					}
				}
			}
			if stillMatches {
				continue
			}
			wd.spec.Sink.Send(Event{Kind: ChannelRemoved, Channel: chID, IsDisconnection: isDisconnection})
			if g, ok := wd.guards[chID]; ok {
				g.Close()
				delete(wd.guards, chID)
				if r.metrics != nil {
					r.metrics.AdapterWatchesDelta(-1)
				}
			}
			wd.dropRange(chID)
			r.removeBackref(wd, chID)
		}
	}
}

func (r *Registry) addBackref(wd *watcherData, ch ids.ChannelID) {
	set, ok := r.channelWatchers[ch]
	if !ok {
		set = make(map[ids.WatchKey]struct{})
		r.channelWatchers[ch] = set
	}
	set[wd.key] = struct{}{}
	wd.watched[ch] = struct{}{}
}

func (r *Registry) removeBackref(wd *watcherData, ch ids.ChannelID) {
	if set, ok := r.channelWatchers[ch]; ok {
		delete(set, wd.key)
		if len(set) == 0 {
			delete(r.channelWatchers, ch)
		}
	}
	delete(wd.watched, ch)
}

func (r *Registry) enqueueStart(key ids.WatchKey, perAdapter map[ids.AdapterID][]pendingWatch) {
	if len(perAdapter) == 0 {
		return
	}
	select {
	case r.queue <- startMsg{key: key, perAdapter: perAdapter}:
	case <-r.stopped:
	}
}

func (r *Registry) enqueueStop(key ids.WatchKey) {
	select {
	case r.queue <- stopMsg{key: key}:
	case <-r.stopped:
	}
}

func (r *Registry) adapterImpl(id ids.AdapterID) (adapter.Adapter, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.store.AdapterImpl(id)
}

func (r *Registry) watcherByKey(key ids.WatchKey) (*watcherData, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	wd, ok := r.watchers[key]
	return wd, ok
}
