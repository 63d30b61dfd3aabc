package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/onsi/gomega"
	"github.com/stretchr/testify/require"

	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/entity"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/selector"
	"github.com/foxbox/adapters/pkg/tagstore"
	"github.com/foxbox/adapters/pkg/values"
)

// fakeWatchAdapter hands out synchronous, in-process guards so tests never
// need a real device driver.
type fakeWatchAdapter struct {
	adapter.Base
	id ids.AdapterID

	mu       sync.Mutex
	sinks    map[ids.ChannelID]adapter.EventSink
	closed   map[ids.ChannelID]bool
	requests map[ids.ChannelID]int
	failAll  bool
}

func newFakeWatchAdapter(id ids.AdapterID) *fakeWatchAdapter {
	return &fakeWatchAdapter{
		id:       id,
		sinks:    make(map[ids.ChannelID]adapter.EventSink),
		closed:   make(map[ids.ChannelID]bool),
		requests: make(map[ids.ChannelID]int),
	}
}

func (f *fakeWatchAdapter) ID() ids.AdapterID  { return f.id }
func (f *fakeWatchAdapter) Name() string       { return string(f.id) }
func (f *fakeWatchAdapter) Vendor() string     { return "test" }
func (f *fakeWatchAdapter) Version() [4]uint32 { return [4]uint32{1} }

func (f *fakeWatchAdapter) RegisterWatch(_ context.Context, requests []adapter.WatchRequest) []adapter.WatchRegistration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]adapter.WatchRegistration, len(requests))
	for i, r := range requests {
		f.requests[r.Channel]++
		if f.failAll {
			out[i] = adapter.WatchRegistration{Channel: r.Channel, Err: errRegisterWatchFailed}
			continue
		}
		f.sinks[r.Channel] = r.Sink
		ch := r.Channel
		out[i] = adapter.WatchRegistration{
			Channel: r.Channel,
			Guard:   adapter.WatchGuardFunc(func() { f.markClosed(ch) }),
		}
	}
	return out
}

func (f *fakeWatchAdapter) requestCount(ch ids.ChannelID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[ch]
}

func (f *fakeWatchAdapter) markClosed(ch ids.ChannelID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[ch] = true
}

func (f *fakeWatchAdapter) isClosed(ch ids.ChannelID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[ch]
}

func (f *fakeWatchAdapter) hasSink(ch ids.ChannelID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[ch] != nil
}

func (f *fakeWatchAdapter) deliver(ch ids.ChannelID, v values.Value) {
	f.mu.Lock()
	sink := f.sinks[ch]
	f.mu.Unlock()
	if sink != nil {
		sink.Send(adapter.WatchEvent{Kind: adapter.EventEnter, Channel: ch, Value: v})
	}
}

type registerWatchFailedError struct{}

func (*registerWatchFailedError) Error() string { return "register watch failed" }

var errRegisterWatchFailed = &registerWatchFailedError{}

// recordingSink collects every Event delivered to it, safe for concurrent
// use since adapters may deliver from their own goroutines.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Send(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) countKind(k EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func newTestHarness(t *testing.T) (*sync.RWMutex, *entity.Store, *Registry, *fakeWatchAdapter) {
	t.Helper()
	var lock sync.RWMutex
	store := entity.NewStore(tagstore.NoOp{})
	impl := newFakeWatchAdapter("a1")
	require.NoError(t, store.AddAdapter("a1", "n", "v", [4]uint32{}, impl))
	require.NoError(t, store.AddService(&entity.Service{ID: "s1", Adapter: "a1"}))
	reg := NewRegistry(&lock, store, nil)
	t.Cleanup(reg.Shutdown)
	return &lock, store, reg, impl
}

func chanSel(id ids.ChannelID) []selector.Channel {
	return []selector.Channel{{ID: &id}}
}

func TestRegisterWatchAlwaysForwardsEveryValue(t *testing.T) {
	g := gomega.NewWithT(t)
	lock, store, reg, impl := newTestHarness(t)

	lock.Lock()
	_, err := store.AddChannel(&entity.Channel{ID: "thermometer", Service: "s1", Adapter: "a1"})
	require.NoError(t, err)
	lock.Unlock()

	sink := &recordingSink{}
	lock.Lock()
	guard := reg.RegisterWatch(Spec{
		Targets: []SpecEntry{{Selectors: chanSel("thermometer"), Payload: values.AlwaysMatch[*values.Predicate]()}},
		Sink:    sink,
	})
	lock.Unlock()
	t.Cleanup(guard.Close)

	g.Eventually(func() bool { return impl.hasSink("thermometer") }, time.Second, time.Millisecond).Should(gomega.BeTrue())

	impl.deliver("thermometer", values.NewTemperature(21))
	impl.deliver("thermometer", values.NewTemperature(21)) // same value again: Always never suppresses

	g.Eventually(func() int { return sink.countKind(EnterRange) }, time.Second, time.Millisecond).Should(gomega.Equal(2))
	g.Expect(sink.countKind(ExitRange)).To(gomega.Equal(0))
}

func TestRegisterWatchPredicateSuppressesCoincidentTransitions(t *testing.T) {
	g := gomega.NewWithT(t)
	lock, store, reg, impl := newTestHarness(t)

	lock.Lock()
	_, err := store.AddChannel(&entity.Channel{ID: "thermometer", Service: "s1", Adapter: "a1"})
	require.NoError(t, err)
	lock.Unlock()

	sink := &recordingSink{}
	pred := values.RangePredicate(values.NewTemperature(18), values.NewTemperature(22))
	lock.Lock()
	guard := reg.RegisterWatch(Spec{
		Targets: []SpecEntry{{Selectors: chanSel("thermometer"), Payload: values.ExactlyEqual(&pred)}},
		Sink:    sink,
	})
	lock.Unlock()
	t.Cleanup(guard.Close)

	g.Eventually(func() bool { return impl.hasSink("thermometer") }, time.Second, time.Millisecond).Should(gomega.BeTrue())

	impl.deliver("thermometer", values.NewTemperature(20)) // first observation: inside, always emits
	impl.deliver("thermometer", values.NewTemperature(21)) // still inside: suppressed
	impl.deliver("thermometer", values.NewTemperature(25)) // exits range: emits
	impl.deliver("thermometer", values.NewTemperature(26)) // still outside: suppressed
	impl.deliver("thermometer", values.NewTemperature(19)) // re-enters: emits

	g.Eventually(func() int {
		return sink.countKind(EnterRange) + sink.countKind(ExitRange)
	}, time.Second, time.Millisecond).Should(gomega.Equal(3))
	g.Expect(sink.countKind(EnterRange)).To(gomega.Equal(2))
	g.Expect(sink.countKind(ExitRange)).To(gomega.Equal(1))
}

// TestReevaluateAddNotifiesLateMatchingChannel exercises the add-channel
// half of topology re-evaluation: a watcher registered before a matching
// channel exists still picks it up once it's added.
func TestReevaluateAddNotifiesLateMatchingChannel(t *testing.T) {
	g := gomega.NewWithT(t)
	lock, store, reg, impl := newTestHarness(t)

	sink := &recordingSink{}
	lock.Lock()
	guard := reg.RegisterWatch(Spec{
		Targets: []SpecEntry{{Selectors: []selector.Channel{{Implements: []ids.FeatureID{"thermometer"}}}, Payload: values.AlwaysMatch[*values.Predicate]()}},
		Sink:    sink,
	})
	reeval, err := store.AddChannel(&entity.Channel{
		ID:         "thermometer",
		Service:    "s1",
		Adapter:    "a1",
		Implements: map[ids.FeatureID]struct{}{"thermometer": {}},
	})
	require.NoError(t, err)
	reg.ReevaluateAdd(reeval, true)
	lock.Unlock()
	t.Cleanup(guard.Close)

	g.Eventually(func() int { return sink.countKind(ChannelAdded) }, time.Second, time.Millisecond).Should(gomega.Equal(1))
	g.Eventually(func() bool { return impl.hasSink("thermometer") }, time.Second, time.Millisecond).Should(gomega.BeTrue())
}

// TestReevaluateRemoveClosesGuardAndStopsDelivery exercises the
// remove-channel half: once a channel is removed, its guard is closed and
// no further adapter-side events reach the sink.
func TestReevaluateRemoveClosesGuardAndStopsDelivery(t *testing.T) {
	g := gomega.NewWithT(t)
	lock, store, reg, impl := newTestHarness(t)

	lock.Lock()
	_, err := store.AddChannel(&entity.Channel{ID: "thermometer", Service: "s1", Adapter: "a1"})
	require.NoError(t, err)
	lock.Unlock()

	sink := &recordingSink{}
	lock.Lock()
	guard := reg.RegisterWatch(Spec{
		Targets: []SpecEntry{{Selectors: chanSel("thermometer"), Payload: values.AlwaysMatch[*values.Predicate]()}},
		Sink:    sink,
	})
	lock.Unlock()
	t.Cleanup(guard.Close)

	g.Eventually(func() bool { return impl.hasSink("thermometer") }, time.Second, time.Millisecond).Should(gomega.BeTrue())

	lock.Lock()
	require.NoError(t, store.RemoveChannel("thermometer"))
	reg.ReevaluateRemove(map[ids.ChannelID]struct{}{"thermometer": {}}, true)
	lock.Unlock()

	g.Eventually(func() bool { return impl.isClosed("thermometer") }, time.Second, time.Millisecond).Should(gomega.BeTrue())
	g.Expect(sink.countKind(ChannelRemoved)).To(gomega.Equal(1))
}

// TestGuardCloseStopsFurtherAdapterWatching covers the drop/start race
// from spec §4.5.6: the guard is closed right after registration, racing
// the worker's processStart. If the drop is seen first, Start skips the
// adapter entirely; if Start runs first, the adapter-level guard it got
// is closed (at commit or by Stop). Either way, once the worker has
// processed Stop, no adapter-level watch for the channel is left open.
func TestGuardCloseStopsFurtherAdapterWatching(t *testing.T) {
	g := gomega.NewWithT(t)
	lock, store, reg, impl := newTestHarness(t)

	lock.Lock()
	_, err := store.AddChannel(&entity.Channel{ID: "thermometer", Service: "s1", Adapter: "a1"})
	require.NoError(t, err)
	lock.Unlock()

	sink := &recordingSink{}
	lock.Lock()
	guard := reg.RegisterWatch(Spec{
		Targets: []SpecEntry{{Selectors: chanSel("thermometer"), Payload: values.AlwaysMatch[*values.Predicate]()}},
		Sink:    sink,
	})
	lock.Unlock()

	guard.Close() // drop immediately, racing the worker's processStart

	// processStop runs after processStart on the serialized worker, so the
	// watcher leaving the registry means both have finished.
	g.Eventually(func() bool {
		_, ok := reg.watcherByKey(guard.key)
		return ok
	}, time.Second, time.Millisecond).Should(gomega.BeFalse())
	g.Expect(!impl.hasSink("thermometer") || impl.isClosed("thermometer")).To(gomega.BeTrue(),
		"an adapter-level watch installed for a dropped watcher must be closed")
}

// TestRegisterWatchDedupesChannelMatchingTwoGroups covers a watch Spec
// whose two SpecEntry groups both match the same channel (spec.md §4.5.2,
// "different payloads at different groups in one call"): the channel must
// only be subscribed through the first matching entry, not once per
// group. Before the dedup fix, the second group's pendingWatch would
// overwrite the first group's guard in processStart's collected map,
// leaking the first adapter-level subscription.
func TestRegisterWatchDedupesChannelMatchingTwoGroups(t *testing.T) {
	g := gomega.NewWithT(t)
	lock, store, reg, impl := newTestHarness(t)

	lock.Lock()
	_, err := store.AddChannel(&entity.Channel{
		ID:         "thermometer",
		Service:    "s1",
		Adapter:    "a1",
		Implements: map[ids.FeatureID]struct{}{"thermometer": {}},
	})
	require.NoError(t, err)
	lock.Unlock()

	sink := &recordingSink{}
	pred := values.RangePredicate(values.NewTemperature(18), values.NewTemperature(22))
	lock.Lock()
	guard := reg.RegisterWatch(Spec{
		Targets: []SpecEntry{
			{Selectors: chanSel("thermometer"), Payload: values.AlwaysMatch[*values.Predicate]()},
			{Selectors: []selector.Channel{{Implements: []ids.FeatureID{"thermometer"}}}, Payload: values.ExactlyEqual(&pred)},
		},
		Sink: sink,
	})
	lock.Unlock()
	t.Cleanup(guard.Close)

	g.Eventually(func() bool { return impl.hasSink("thermometer") }, time.Second, time.Millisecond).Should(gomega.BeTrue())
	g.Consistently(func() int { return impl.requestCount("thermometer") }, 50*time.Millisecond, time.Millisecond).Should(gomega.Equal(1))
}

func TestRegisterWatchHandlesAdapterRegistrationFailure(t *testing.T) {
	g := gomega.NewWithT(t)
	lock, store, reg, impl := newTestHarness(t)
	impl.failAll = true

	lock.Lock()
	_, err := store.AddChannel(&entity.Channel{ID: "thermometer", Service: "s1", Adapter: "a1"})
	require.NoError(t, err)
	lock.Unlock()

	sink := &recordingSink{}
	lock.Lock()
	guard := reg.RegisterWatch(Spec{
		Targets: []SpecEntry{{Selectors: chanSel("thermometer"), Payload: values.AlwaysMatch[*values.Predicate]()}},
		Sink:    sink,
	})
	lock.Unlock()
	t.Cleanup(guard.Close)

	g.Eventually(func() int { return sink.countKind(EventError) }, time.Second, time.Millisecond).Should(gomega.Equal(1))
}
