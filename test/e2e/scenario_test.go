// Package e2e runs the eight end-to-end scenarios against a fake
// multi-channel adapter through the full manager.Manager stack, the
// closest analogue to the teacher's pkg/watch/manager_integration_test.go
// and pkg/cachemanager's integration suite.
package e2e

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/onsi/gomega"

	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/apierror"
	"github.com/foxbox/adapters/pkg/entity"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/manager"
	"github.com/foxbox/adapters/pkg/router"
	"github.com/foxbox/adapters/pkg/selector"
	"github.com/foxbox/adapters/pkg/tagstore"
	"github.com/foxbox/adapters/pkg/values"
	"github.com/foxbox/adapters/pkg/watch"
)

// fakeAdapter is a controllable multi-channel adapter: tests push
// WatchEvents through stored sinks and count Fetch/Send calls to verify
// "no adapter call is made" assertions.
type fakeAdapter struct {
	adapter.Base
	id ids.AdapterID

	mu         sync.Mutex
	sinks      map[ids.ChannelID]adapter.EventSink
	sendCalls  int
	fetchCalls int
}

func newFakeAdapter(id ids.AdapterID) *fakeAdapter {
	return &fakeAdapter{id: id, sinks: make(map[ids.ChannelID]adapter.EventSink)}
}

func (f *fakeAdapter) ID() ids.AdapterID  { return f.id }
func (f *fakeAdapter) Name() string       { return string(f.id) }
func (f *fakeAdapter) Vendor() string     { return "test" }
func (f *fakeAdapter) Version() [4]uint32 { return [4]uint32{1} }

func (f *fakeAdapter) FetchValues(_ context.Context, requests []adapter.ValueRequest, _ ids.UserID) []adapter.ChannelResult {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	out := make([]adapter.ChannelResult, len(requests))
	for i, r := range requests {
		v := values.NewOnOff(values.On)
		out[i] = adapter.ChannelResult{Channel: r.Channel, Value: &v}
	}
	return out
}

func (f *fakeAdapter) SendValues(_ context.Context, requests []adapter.ValueRequest, _ ids.UserID) []adapter.ChannelResult {
	f.mu.Lock()
	f.sendCalls++
	f.mu.Unlock()
	out := make([]adapter.ChannelResult, len(requests))
	for i, r := range requests {
		v := values.Unit()
		out[i] = adapter.ChannelResult{Channel: r.Channel, Value: &v}
	}
	return out
}

func (f *fakeAdapter) RegisterWatch(_ context.Context, requests []adapter.WatchRequest) []adapter.WatchRegistration {
	out := make([]adapter.WatchRegistration, len(requests))
	for i, r := range requests {
		channel := r.Channel
		sink := r.Sink
		f.mu.Lock()
		f.sinks[channel] = sink
		f.mu.Unlock()
		out[i] = adapter.WatchRegistration{
			Channel: channel,
			Guard: adapter.WatchGuardFunc(func() {
				f.mu.Lock()
				delete(f.sinks, channel)
				f.mu.Unlock()
			}),
		}
	}
	return out
}

// emit delivers a value as if the device itself reported it, only if a
// sink is still registered for channel (mirrors a real device's complete
// indifference to whether anyone is still listening).
func (f *fakeAdapter) emit(channel ids.ChannelID, v values.Value) {
	f.mu.Lock()
	sink, ok := f.sinks[channel]
	f.mu.Unlock()
	if ok {
		sink.Send(adapter.WatchEvent{Kind: adapter.EventEnter, Channel: channel, Value: v})
	}
}

func (f *fakeAdapter) Stop(context.Context) {}

func chanSel(id ids.ChannelID) selector.Channel { return selector.Channel{ID: &id} }

// recordingSink accumulates every Event delivered to a registered watch.
type recordingSink struct {
	mu     sync.Mutex
	events []watch.Event
}

func (s *recordingSink) Send(e watch.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) snapshot() []watch.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]watch.Event(nil), s.events...)
}

func (s *recordingSink) count(k watch.EventKind) int {
	n := 0
	for _, e := range s.snapshot() {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func TestDuplicateAdapter(t *testing.T) {
	g := gomega.NewWithT(t)
	m := manager.New(manager.Options{Tags: tagstore.NoOp{}})

	g.Expect(m.AddAdapter("A1", "n", "v", [4]uint32{}, newFakeAdapter("A1"))).To(gomega.Succeed())
	err := m.AddAdapter("A1", "n", "v", [4]uint32{}, newFakeAdapter("A1"))
	g.Expect(err).To(gomega.HaveOccurred())
	kind, ok := apierror.KindOf(err)
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(kind).To(gomega.Equal(apierror.KindDuplicateAdapter))
}

func TestServiceRequiresKnownAdapter(t *testing.T) {
	g := gomega.NewWithT(t)
	m := manager.New(manager.Options{Tags: tagstore.NoOp{}})

	err := m.AddService(&entity.Service{ID: "S1", Adapter: "A1"})
	g.Expect(err).To(gomega.HaveOccurred())
	kind, ok := apierror.KindOf(err)
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(kind).To(gomega.Equal(apierror.KindNoSuchAdapter))
}

func TestCascadingRemoval(t *testing.T) {
	g := gomega.NewWithT(t)
	m := manager.New(manager.Options{Tags: tagstore.NoOp{}})

	g.Expect(m.AddAdapter("A1", "n", "v", [4]uint32{}, newFakeAdapter("A1"))).To(gomega.Succeed())
	g.Expect(m.AddService(&entity.Service{ID: "S1", Adapter: "A1"})).To(gomega.Succeed())
	g.Expect(m.AddChannel(&entity.Channel{ID: "C1", Service: "S1", Adapter: "A1"})).To(gomega.Succeed())

	g.Expect(m.RemoveService("S1")).To(gomega.Succeed())

	g.Expect(m.GetChannels([]selector.Channel{chanSel("C1")})).To(gomega.BeEmpty())
	g.Expect(m.GetServices([]selector.Service{{ID: svcPtr("S1")}})).To(gomega.BeEmpty())

	// A1 is still present: a second service can still be added under it.
	g.Expect(m.AddService(&entity.Service{ID: "S2", Adapter: "A1"})).To(gomega.Succeed())
}

func TestSelectorUnionAndIntersection(t *testing.T) {
	g := gomega.NewWithT(t)
	m := manager.New(manager.Options{Tags: tagstore.NoOp{}})
	g.Expect(m.AddAdapter("A1", "n", "v", [4]uint32{}, newFakeAdapter("A1"))).To(gomega.Succeed())

	g.Expect(m.AddService(&entity.Service{ID: "S1", Adapter: "A1", Tags: map[ids.TagID]struct{}{"a": {}}})).To(gomega.Succeed())
	g.Expect(m.AddService(&entity.Service{ID: "S2", Adapter: "A1", Tags: map[ids.TagID]struct{}{"a": {}, "b": {}}})).To(gomega.Succeed())
	g.Expect(m.AddService(&entity.Service{ID: "S3", Adapter: "A1", Tags: map[ids.TagID]struct{}{"b": {}}})).To(gomega.Succeed())

	union := m.GetServices([]selector.Service{{Tags: []ids.TagID{"a"}}, {Tags: []ids.TagID{"b"}}})
	seen := make(map[ids.ServiceID]struct{}, len(union))
	for _, s := range union {
		seen[s.ID] = struct{}{}
	}
	g.Expect(seen).To(gomega.HaveLen(3))

	intersection := m.GetServices([]selector.Service{{Tags: []ids.TagID{"a", "b"}}})
	g.Expect(intersection).To(gomega.HaveLen(1))
	g.Expect(intersection[0].ID).To(gomega.Equal(ids.ServiceID("S2")))
}

func TestWatchTopologyNotifications(t *testing.T) {
	g := gomega.NewWithT(t)
	m := manager.New(manager.Options{Tags: tagstore.NoOp{}})
	g.Expect(m.AddAdapter("A1", "n", "v", [4]uint32{}, newFakeAdapter("A1"))).To(gomega.Succeed())
	g.Expect(m.AddService(&entity.Service{ID: "kitchen", Adapter: "A1", Tags: map[ids.TagID]struct{}{"room:kitchen": {}}})).To(gomega.Succeed())

	sink := &recordingSink{}
	guard := m.RegisterWatch(watch.Spec{
		Targets: []watch.SpecEntry{{
			Selectors: []selector.Channel{{Service: &selector.Service{Tags: []ids.TagID{"room:kitchen"}}}},
			Payload:   values.AlwaysMatch[*values.Predicate](),
		}},
		Sink: sink,
	})
	defer guard.Close()

	g.Expect(m.AddChannel(&entity.Channel{ID: "Clight", Service: "kitchen", Adapter: "A1"})).To(gomega.Succeed())

	g.Eventually(func() []watch.Event { return sink.snapshot() }, time.Second).Should(gomega.ContainElement(
		gomega.WithTransform(func(e watch.Event) bool {
			return e.Kind == watch.ChannelAdded && e.Channel == "Clight" && e.IsNewConnection
		}, gomega.BeTrue()),
	))

	g.Expect(m.RemoveServiceTags([]selector.Service{{ID: svcPtr("kitchen")}}, []ids.TagID{"room:kitchen"})).To(gomega.Equal(1))

	g.Eventually(func() []watch.Event { return sink.snapshot() }, time.Second).Should(gomega.ContainElement(
		gomega.WithTransform(func(e watch.Event) bool {
			return e.Kind == watch.ChannelRemoved && e.Channel == "Clight" && !e.IsDisconnection
		}, gomega.BeTrue()),
	))

	before := len(sink.snapshot())
	g.Expect(m.RemoveChannel("Clight")).To(gomega.Succeed())
	g.Consistently(func() []watch.Event { return sink.snapshot() }, 200*time.Millisecond).Should(gomega.HaveLen(before))
}

func svcPtr(id ids.ServiceID) *ids.ServiceID { return &id }

func TestRangePredicate(t *testing.T) {
	g := gomega.NewWithT(t)
	m := manager.New(manager.Options{Tags: tagstore.NoOp{}})
	impl := newFakeAdapter("A1")
	g.Expect(m.AddAdapter("A1", "n", "v", [4]uint32{}, impl)).To(gomega.Succeed())
	g.Expect(m.AddService(&entity.Service{ID: "S1", Adapter: "A1"})).To(gomega.Succeed())
	g.Expect(m.AddChannel(&entity.Channel{ID: "Clight", Service: "S1", Adapter: "A1"})).To(gomega.Succeed())

	sink := &recordingSink{}
	pred := values.EqualPredicate(values.NewOnOff(values.On))
	guard := m.RegisterWatch(watch.Spec{
		Targets: []watch.SpecEntry{{
			Selectors: []selector.Channel{chanSel("Clight")},
			Payload:   values.ExactlyEqual[*values.Predicate](&pred),
		}},
		Sink: sink,
	})
	defer guard.Close()

	g.Eventually(func() bool {
		impl.mu.Lock()
		_, ok := impl.sinks["Clight"]
		impl.mu.Unlock()
		return ok
	}, time.Second).Should(gomega.BeTrue())

	impl.emit("Clight", values.NewOnOff(values.On))
	g.Eventually(func() int { return sink.count(watch.EnterRange) }, time.Second).Should(gomega.Equal(1))

	impl.emit("Clight", values.NewOnOff(values.On))
	g.Consistently(func() int { return sink.count(watch.EnterRange) }, 200*time.Millisecond).Should(gomega.Equal(1))

	impl.emit("Clight", values.NewOnOff(values.Off))
	g.Eventually(func() int { return sink.count(watch.ExitRange) }, time.Second).Should(gomega.Equal(1))
}

func TestDropCancels(t *testing.T) {
	g := gomega.NewWithT(t)
	m := manager.New(manager.Options{Tags: tagstore.NoOp{}})
	impl := newFakeAdapter("A1")
	g.Expect(m.AddAdapter("A1", "n", "v", [4]uint32{}, impl)).To(gomega.Succeed())
	g.Expect(m.AddService(&entity.Service{ID: "S1", Adapter: "A1"})).To(gomega.Succeed())
	g.Expect(m.AddChannel(&entity.Channel{ID: "Clight", Service: "S1", Adapter: "A1"})).To(gomega.Succeed())

	sink := &recordingSink{}
	guard := m.RegisterWatch(watch.Spec{
		Targets: []watch.SpecEntry{{
			Selectors: []selector.Channel{chanSel("Clight")},
			Payload:   values.AlwaysMatch[*values.Predicate](),
		}},
		Sink: sink,
	})

	g.Eventually(func() bool {
		impl.mu.Lock()
		_, ok := impl.sinks["Clight"]
		impl.mu.Unlock()
		return ok
	}, time.Second).Should(gomega.BeTrue())

	guard.Close()
	impl.emit("Clight", values.NewOnOff(values.On))

	g.Consistently(func() []watch.Event { return sink.snapshot() }, 200*time.Millisecond).Should(gomega.BeEmpty())
}

// TestMethodTypeChecking reproduces the spirit of the scenario ("calling
// a method with a payload the channel's signature rejects returns
// TypeError and never reaches the adapter"). The signature mismatch this
// test exercises is the Nothing contract: a payload sent to a send method
// that accepts none. The OnOff-vs-OpenClosed case (JSONFormat writes
// them as "On"/"Off" and "Open"/"Closed", which SniffType tells apart) is
// covered by pkg/router's TestPlaceCallRejectsWrongValueKind.
func TestMethodTypeChecking(t *testing.T) {
	g := gomega.NewWithT(t)
	m := manager.New(manager.Options{Tags: tagstore.NoOp{}})
	impl := newFakeAdapter("A1")
	g.Expect(m.AddAdapter("A1", "n", "v", [4]uint32{}, impl)).To(gomega.Succeed())
	g.Expect(m.AddService(&entity.Service{ID: "S1", Adapter: "A1"})).To(gomega.Succeed())
	g.Expect(m.AddChannel(&entity.Channel{
		ID:      "C1",
		Service: "S1",
		Adapter: "A1",
		Signatures: entity.MethodSignatures{
			Send: &entity.Signature{Accepts: entity.NothingExpectation()},
		},
	})).To(gomega.Succeed())

	results := m.SendValues(context.Background(), []router.Target{
		{Selectors: []selector.Channel{chanSel("C1")}, Payload: json.RawMessage(`true`)},
	}, "user1")

	g.Expect(results).To(gomega.HaveLen(1))
	g.Expect(results[0].Err).To(gomega.HaveOccurred())
	kind, ok := apierror.KindOf(results[0].Err)
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(kind).To(gomega.Equal(apierror.KindTypeError))

	impl.mu.Lock()
	calls := impl.sendCalls
	impl.mu.Unlock()
	g.Expect(calls).To(gomega.Equal(0))
}
