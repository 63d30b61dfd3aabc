// Package manager composes the entity store, selector engine, tag
// store, method router and watch subsystem behind a single
// sync.RWMutex, exactly as the teacher's CacheManager composes a
// watch.Set and watch.Registrar behind one sync.RWMutex (spec §4.6,
// §6.6). This is the module's public Consumer API.
package manager

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/entity"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/logging"
	"github.com/foxbox/adapters/pkg/metrics"
	"github.com/foxbox/adapters/pkg/router"
	"github.com/foxbox/adapters/pkg/selector"
	"github.com/foxbox/adapters/pkg/tagstore"
	"github.com/foxbox/adapters/pkg/values"
	"github.com/foxbox/adapters/pkg/watch"
)

var log = logging.Named("manager")

// Manager is the Adapter Manager: the in-process broker mediating
// between adapters and consumers (spec §1). The zero value is not
// usable; construct with New.
type Manager struct {
	mu       sync.RWMutex
	store    *entity.Store
	registry *watch.Registry
	tags     tagstore.Store

	decode values.Decoder
	encode values.Encoder

	group *errgroup.Group
}

// Options configures New.
type Options struct {
	// Tags persists user-assigned tags; pass tagstore.NoOp{} to disable
	// persistence entirely.
	Tags tagstore.Store
	// Metrics is optional; pass nil to disable watch-subsystem metrics.
	Metrics *metrics.WatchMetrics
	// Decode/Encode translate between the wire payload and values.Value.
	// Nil defaults to values.DefaultDecoder/DefaultEncoder.
	Decode values.Decoder
	Encode values.Encoder
}

// New constructs a Manager. The returned Manager owns a background
// watch worker goroutine; call Stop to shut it down cleanly.
func New(opts Options) *Manager {
	if opts.Tags == nil {
		opts.Tags = tagstore.NoOp{}
	}
	if opts.Decode == nil {
		opts.Decode = values.DefaultDecoder
	}
	if opts.Encode == nil {
		opts.Encode = values.DefaultEncoder
	}

	m := &Manager{
		store:  entity.NewStore(opts.Tags),
		tags:   opts.Tags,
		decode: opts.Decode,
		encode: opts.Encode,
		group:  &errgroup.Group{},
	}
	m.registry = watch.NewRegistry(&m.mu, m.store, opts.Metrics)
	return m
}

// AddAdapter registers a new adapter.
func (m *Manager) AddAdapter(id ids.AdapterID, name, vendor string, version [4]uint32, impl adapter.Adapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.AddAdapter(id, name, vendor, version, impl)
}

// RemoveAdapter unregisters id, notifying every watcher observing one of
// its channels before the adapter's own Stop is invoked outside the
// lock (spec §4.1, §7 AdapterManager.stop()).
func (m *Manager) RemoveAdapter(ctx context.Context, id ids.AdapterID) error {
	m.mu.Lock()
	impl, hadImpl := m.store.AdapterImpl(id)
	removed, err := m.store.RemoveAdapter(id)
	if len(removed) > 0 {
		m.registry.ReevaluateRemove(removed, true)
	}
	m.mu.Unlock()

	if hadImpl {
		impl.Stop(ctx)
	}
	log.V(logging.DebugLevel).Info("adapter removed", "adapter", id, "channelsRemoved", len(removed))
	return err
}

// AddService registers svc.
func (m *Manager) AddService(svc *entity.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.AddService(svc)
}

// RemoveService unregisters id and cascades channel removal, notifying
// watchers for each removed channel.
func (m *Manager) RemoveService(id ids.ServiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed, err := m.store.RemoveService(id)
	if len(removed) > 0 {
		m.registry.ReevaluateRemove(removed, true)
	}
	return err
}

// AddChannel registers ch and notifies any watcher whose selectors now
// match it.
func (m *Manager) AddChannel(ch *entity.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reeval, err := m.store.AddChannel(ch)
	if err != nil {
		return err
	}
	m.registry.ReevaluateAdd(reeval, true)
	return nil
}

// RemoveChannel unregisters id and notifies any watcher observing it.
func (m *Manager) RemoveChannel(id ids.ChannelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reeval := map[ids.ChannelID]struct{}{id: {}}
	if err := m.store.RemoveChannel(id); err != nil {
		return err
	}
	m.registry.ReevaluateRemove(reeval, true)
	return nil
}

// GetServices returns every service matching sels (empty matches all).
func (m *Manager) GetServices(sels []selector.Service) []entity.ServiceDescription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetServices(sels)
}

// GetChannels returns every channel matching sels (empty matches all).
func (m *Manager) GetChannels(sels []selector.Channel) []entity.ChannelDescription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetChannels(sels)
}

// AddServiceTags merges tags into every service matching sels and
// notifies watchers for the affected channels.
func (m *Manager) AddServiceTags(sels []selector.Service, tags []ids.TagID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched, reeval := m.store.AddServiceTags(sels, tags)
	if len(reeval) > 0 {
		m.registry.ReevaluateAdd(reeval, false)
	}
	return matched
}

// RemoveServiceTags removes tags from every service matching sels.
func (m *Manager) RemoveServiceTags(sels []selector.Service, tags []ids.TagID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched, reeval := m.store.RemoveServiceTags(sels, tags)
	if len(reeval) > 0 {
		m.registry.ReevaluateRemove(reeval, false)
	}
	return matched
}

// AddChannelTags merges tags into every channel matching sels.
func (m *Manager) AddChannelTags(sels []selector.Channel, tags []ids.TagID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched, reeval := m.store.AddChannelTags(sels, tags)
	if len(reeval) > 0 {
		m.registry.ReevaluateAdd(reeval, false)
	}
	return matched
}

// RemoveChannelTags removes tags from every channel matching sels.
func (m *Manager) RemoveChannelTags(sels []selector.Channel, tags []ids.TagID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched, reeval := m.store.RemoveChannelTags(sels, tags)
	if len(reeval) > 0 {
		m.registry.ReevaluateRemove(reeval, false)
	}
	return matched
}

// FetchValues, SendValues and DeleteValues place a method call through
// the router (spec §4.4).
func (m *Manager) FetchValues(ctx context.Context, targets []router.Target, user ids.UserID) []router.Result {
	return router.PlaceCall(ctx, &m.mu, m.store, router.Fetch, targets, user, m.decode, m.encode)
}

func (m *Manager) SendValues(ctx context.Context, targets []router.Target, user ids.UserID) []router.Result {
	return router.PlaceCall(ctx, &m.mu, m.store, router.Send, targets, user, m.decode, m.encode)
}

func (m *Manager) DeleteValues(ctx context.Context, targets []router.Target, user ids.UserID) []router.Result {
	return router.PlaceCall(ctx, &m.mu, m.store, router.Delete, targets, user, m.decode, m.encode)
}

// RegisterWatch installs watch and returns a Guard; dropping it (Close)
// deterministically cancels the watch (spec §4.5).
func (m *Manager) RegisterWatch(spec watch.Spec) *watch.Guard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.RegisterWatch(spec)
}

// Stop cascades a stop() call to every registered adapter - including
// ones with no service attached - then clears every index and watcher
// and tears down the watch worker (spec §7 AdapterManager.stop(): "invoke
// each adapter's stop, clear all indexes and watchers").
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.RLock()
	impls := m.store.AllAdapterImpls()
	m.mu.RUnlock()

	for _, impl := range impls {
		impl := impl
		m.group.Go(func() error {
			impl.Stop(ctx)
			return nil
		})
	}
	err := m.group.Wait()

	m.mu.Lock()
	m.store.Clear()
	m.registry.Clear()
	m.mu.Unlock()
	m.registry.Shutdown()

	return err
}
