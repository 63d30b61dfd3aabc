package watch

import (
	"sync"
	"sync/atomic"

	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/ids"
)

// watcherData is the strong registry entry for one registered watch
// (spec §4.5.2 step 1). guards and is touched only while the caller holds
// the Registry's lock - worker commits and Stop teardown both run inside
// that lock, never concurrently with each other (spec §4.5.3/§4.6).
type watcherData struct {
	key  ids.WatchKey
	spec Spec

	// isDropped is set by Guard.Close (spec §4.5.5 step 1) and observed
	// both by the worker before touching the watcher and inside every
	// adapter-facing sink built on the watcher's behalf, so a drop racing
	// with in-flight events is caught at the first safe boundary.
	isDropped atomic.Bool

	// guards holds one adapter-level cancellation handle per channel
	// currently being watched at the device level.
	guards map[ids.ChannelID]adapter.WatchGuard

	// watched is this watcher's half of the channel<->watcher weak
	// back-reference index (the Registry holds the other half, keyed by
	// channel). Touched only under the Registry's lock.
	watched map[ids.ChannelID]struct{}

	// rangesMu guards ranges independently of the Registry lock: adapter
	// goroutines deliver values through a sink built once at Start and
	// must never contend with topology mutation to do so.
	rangesMu sync.Mutex
	ranges   map[ids.ChannelID]*rangeState
}

func newWatcherData(key ids.WatchKey, spec Spec) *watcherData {
	return &watcherData{
		key:     key,
		spec:    spec,
		guards:  make(map[ids.ChannelID]adapter.WatchGuard),
		watched: make(map[ids.ChannelID]struct{}),
		ranges:  make(map[ids.ChannelID]*rangeState),
	}
}

func (w *watcherData) rangeFor(channel ids.ChannelID) *rangeState {
	w.rangesMu.Lock()
	defer w.rangesMu.Unlock()
	if rs, ok := w.ranges[channel]; ok {
		return rs
	}
	rs := &rangeState{}
	w.ranges[channel] = rs
	return rs
}

func (w *watcherData) dropRange(channel ids.ChannelID) {
	w.rangesMu.Lock()
	defer w.rangesMu.Unlock()
	delete(w.ranges, channel)
}

// rangeState tracks one channel's inside-range bit for an Exactly(pred)
// watch group. Its mutex serializes concurrent Send calls from an
// adapter's own goroutines against the same channel.
type rangeState struct {
	mu     sync.Mutex
	inside bool
	armed  bool // false until the first value is observed
}

// transition records v's containment and reports the edge, if any.
// Returns (kindIsEnter, emit).
func (rs *rangeState) transition(nowInside bool) (enter bool, emit bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.armed {
		rs.armed = true
		rs.inside = nowInside
		return nowInside, nowInside
	}
	if rs.inside == nowInside {
		return nowInside, false
	}
	rs.inside = nowInside
	return nowInside, true
}
