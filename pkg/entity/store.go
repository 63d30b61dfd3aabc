// Package entity implements the in-memory topology store (spec §4.1):
// adapters, services and channels plus the indexes that let selectors and
// the router find them in O(1)/O(matches).
//
// Store itself holds no lock. Its methods mutate shared maps and are
// documented as requiring external synchronization, exactly as spec §4.1
// says ("all operations take &mut self on the shared state, protected by
// §4.6"). pkg/manager is the harness that actually owns the
// sync.RWMutex and decides when a Store method may run - this mirrors
// the original Rust implementation, where the State struct guarded by
// adapters/manager.rs has no lock of its own either; the surrounding
// MainLock<State> provides it.
package entity

import (
	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/apierror"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/logging"
	"github.com/foxbox/adapters/pkg/selector"
	"github.com/foxbox/adapters/pkg/tagstore"
)

var log = logging.Named("entity")

// Store owns adapter/service/channel records and their indexes.
type Store struct {
	tags tagstore.Store

	adapters map[ids.AdapterID]*Adapter
	services map[ids.ServiceID]*Service
	channels map[ids.ChannelID]*Channel
}

// NewStore creates an empty Store backed by tags for tag persistence. Pass
// tagstore.NoOp{} when no persistence is configured.
func NewStore(tags tagstore.Store) *Store {
	return &Store{
		tags:     tags,
		adapters: make(map[ids.AdapterID]*Adapter),
		services: make(map[ids.ServiceID]*Service),
		channels: make(map[ids.ChannelID]*Channel),
	}
}

// AddAdapter registers a new adapter.
func (s *Store) AddAdapter(id ids.AdapterID, name, vendor string, version [4]uint32, impl adapter.Adapter) error {
	if _, exists := s.adapters[id]; exists {
		return apierror.DuplicateAdapter(string(id))
	}
	s.adapters[id] = &Adapter{
		ID:       id,
		Name:     name,
		Vendor:   vendor,
		Version:  version,
		Impl:     impl,
		Services: make(map[ids.ServiceID]struct{}),
	}
	return nil
}

// RemoveAdapter removes an adapter and cascades removal of its services
// and channels. Returns the set of channel ids that were removed, so the
// caller can notify watchers for each before the adapter's Stop() is
// invoked. On internal inconsistency, cleans up best-effort and still
// returns an error (spec §4.1).
func (s *Store) RemoveAdapter(id ids.AdapterID) (removedChannels map[ids.ChannelID]struct{}, err error) {
	a, ok := s.adapters[id]
	if !ok {
		return nil, apierror.NoSuchAdapter(string(id))
	}
	removedChannels = make(map[ids.ChannelID]struct{})
	var inconsistent bool
	for svcID := range a.Services {
		removed, rErr := s.removeServiceChannels(svcID)
		for c := range removed {
			removedChannels[c] = struct{}{}
		}
		if rErr != nil {
			inconsistent = true
		}
		delete(s.services, svcID)
	}
	delete(s.adapters, id)
	if inconsistent {
		return removedChannels, apierror.GenericInternal("inconsistent index while removing adapter " + string(id))
	}
	return removedChannels, nil
}

// AddService registers svc, which must not yet have channels (spec
// §4.1/§4.7 InvalidInitialService). Previously persisted tags for this
// service id are merged in.
func (s *Store) AddService(svc *Service) error {
	a, ok := s.adapters[svc.Adapter]
	if !ok {
		return apierror.NoSuchAdapter(string(svc.Adapter))
	}
	if _, exists := s.services[svc.ID]; exists {
		return apierror.DuplicateService(string(svc.ID))
	}
	if len(svc.Channels) > 0 {
		return apierror.InvalidInitialService(string(svc.ID))
	}
	if svc.Tags == nil {
		svc.Tags = make(map[ids.TagID]struct{})
	}
	if svc.Channels == nil {
		svc.Channels = make(map[ids.ChannelID]struct{})
	}
	if persisted, tErr := s.tags.GetTagsFor(string(svc.ID)); tErr == nil {
		for t := range persisted {
			svc.Tags[t] = struct{}{}
		}
	}
	s.services[svc.ID] = svc
	a.Services[svc.ID] = struct{}{}
	return nil
}

// RemoveService removes a service and cascades channel removal. Returns
// the set of channel ids that were removed.
func (s *Store) RemoveService(id ids.ServiceID) (removedChannels map[ids.ChannelID]struct{}, err error) {
	svc, ok := s.services[id]
	if !ok {
		return nil, apierror.NoSuchService(string(id))
	}
	removedChannels, err = s.removeServiceChannels(id)
	delete(s.services, id)
	if a, ok := s.adapters[svc.Adapter]; ok {
		delete(a.Services, id)
	}
	return removedChannels, err
}

func (s *Store) removeServiceChannels(id ids.ServiceID) (map[ids.ChannelID]struct{}, error) {
	svc, ok := s.services[id]
	removed := make(map[ids.ChannelID]struct{})
	if !ok {
		return removed, apierror.GenericInternal("service " + string(id) + " missing during cascade")
	}
	for chID := range svc.Channels {
		delete(s.channels, chID)
		removed[chID] = struct{}{}
	}
	return removed, nil
}

// AddChannel registers ch. Returns the set of channel ids that must be
// re-evaluated against watchers - always just {ch.ID} (spec §4.1).
func (s *Store) AddChannel(ch *Channel) (map[ids.ChannelID]struct{}, error) {
	svc, ok := s.services[ch.Service]
	if !ok {
		return nil, apierror.NoSuchService(string(ch.Service))
	}
	if ch.Adapter != svc.Adapter {
		return nil, apierror.ConflictingAdapter(string(ch.ID))
	}
	if _, exists := s.channels[ch.ID]; exists {
		return nil, apierror.DuplicateChannel(string(ch.ID))
	}
	if ch.Tags == nil {
		ch.Tags = make(map[ids.TagID]struct{})
	}
	if ch.Implements == nil {
		ch.Implements = make(map[ids.FeatureID]struct{})
	}
	if persisted, tErr := s.tags.GetTagsFor(string(ch.ID)); tErr == nil {
		for t := range persisted {
			ch.Tags[t] = struct{}{}
		}
	}
	s.channels[ch.ID] = ch
	svc.Channels[ch.ID] = struct{}{}
	return map[ids.ChannelID]struct{}{ch.ID: {}}, nil
}

// RemoveChannel removes a single channel.
func (s *Store) RemoveChannel(id ids.ChannelID) error {
	ch, ok := s.channels[id]
	if !ok {
		return apierror.NoSuchChannel(string(id))
	}
	delete(s.channels, id)
	if svc, ok := s.services[ch.Service]; ok {
		delete(svc.Channels, id)
	}
	return nil
}

// serviceAttrs builds the selector.ServiceAttrs snapshot for svc,
// aggregating the FeatureIDs of all its channels.
func (s *Store) serviceAttrs(svc *Service) selector.ServiceAttrs {
	implements := make(map[ids.FeatureID]struct{})
	for chID := range svc.Channels {
		if ch, ok := s.channels[chID]; ok {
			for f := range ch.Implements {
				implements[f] = struct{}{}
			}
		}
	}
	return selector.ServiceAttrs{
		ID:         svc.ID,
		Adapter:    svc.Adapter,
		Tags:       svc.Tags,
		Implements: implements,
	}
}

// ChannelDescription returns a snapshot of the single channel id, or
// false if it does not exist.
func (s *Store) ChannelDescription(id ids.ChannelID) (ChannelDescription, bool) {
	ch, ok := s.channels[id]
	if !ok {
		return ChannelDescription{}, false
	}
	return describeChannel(ch), true
}

// AdapterImpl returns the registered adapter implementation for id, used
// by the watch worker and router to dispatch outside the topology lock.
func (s *Store) AdapterImpl(id ids.AdapterID) (adapter.Adapter, bool) {
	a, ok := s.adapters[id]
	if !ok {
		return nil, false
	}
	return a.Impl, true
}

// AllAdapterImpls returns every registered adapter's implementation,
// independent of whether it has any services attached (spec §7
// AdapterManager.stop(): every adapter is stopped, not just ones with a
// service). Adapters registered with a nil Impl are skipped.
func (s *Store) AllAdapterImpls() []adapter.Adapter {
	out := make([]adapter.Adapter, 0, len(s.adapters))
	for _, a := range s.adapters {
		if a.Impl != nil {
			out = append(out, a.Impl)
		}
	}
	return out
}

// Clear removes every adapter, service and channel, resetting the store
// to an empty topology (spec §7 AdapterManager.stop(): "clear all
// indexes"). Callers are responsible for stopping adapters and notifying
// watchers before calling Clear.
func (s *Store) Clear() {
	s.adapters = make(map[ids.AdapterID]*Adapter)
	s.services = make(map[ids.ServiceID]*Service)
	s.channels = make(map[ids.ChannelID]*Channel)
}

// ChannelAttrs builds the selector.ChannelAttrs snapshot for id, or false
// if the channel no longer exists (used by the watch subsystem when
// re-evaluating a channel that may have just been removed).
func (s *Store) ChannelAttrs(id ids.ChannelID) (selector.ChannelAttrs, bool) {
	ch, ok := s.channels[id]
	if !ok {
		return selector.ChannelAttrs{}, false
	}
	return s.channelAttrs(ch), true
}

func (s *Store) channelAttrs(ch *Channel) selector.ChannelAttrs {
	var svcAttrs selector.ServiceAttrs
	if svc, ok := s.services[ch.Service]; ok {
		svcAttrs = s.serviceAttrs(svc)
	}
	return selector.ChannelAttrs{
		ID:           ch.ID,
		Service:      ch.Service,
		Adapter:      ch.Adapter,
		Tags:         ch.Tags,
		Implements:   ch.Implements,
		ServiceAttrs: svcAttrs,
	}
}

// AddServiceTags merges tags into every service matching sels. Returns the
// number of services matched (not changed, spec §8-property 3) and the set
// of channels belonging to those services, which must be re-evaluated
// against watchers (spec §4.1).
func (s *Store) AddServiceTags(sels []selector.Service, tags []ids.TagID) (int, map[ids.ChannelID]struct{}) {
	matched := 0
	reeval := make(map[ids.ChannelID]struct{})
	for _, svc := range s.services {
		if !selector.MatchAnyService(s.serviceAttrs(svc), sels) {
			continue
		}
		matched++
		for _, t := range tags {
			svc.Tags[t] = struct{}{}
		}
		if err := s.tags.AddTags(string(svc.ID), tags); err != nil {
			log.Error(err, "tag store add failed, continuing with in-memory update only", "service", svc.ID)
		}
		for ch := range svc.Channels {
			reeval[ch] = struct{}{}
		}
	}
	return matched, reeval
}

// RemoveServiceTags removes tags from every service matching sels. A tag
// not present on a matched service is a no-op for that tag and still
// counts the service as matched (spec §8-property 3).
func (s *Store) RemoveServiceTags(sels []selector.Service, tags []ids.TagID) (int, map[ids.ChannelID]struct{}) {
	matched := 0
	reeval := make(map[ids.ChannelID]struct{})
	for _, svc := range s.services {
		if !selector.MatchAnyService(s.serviceAttrs(svc), sels) {
			continue
		}
		matched++
		for _, t := range tags {
			delete(svc.Tags, t)
		}
		if err := s.tags.RemoveTags(string(svc.ID), tags); err != nil {
			log.Error(err, "tag store remove failed, continuing with in-memory update only", "service", svc.ID)
		}
		for ch := range svc.Channels {
			reeval[ch] = struct{}{}
		}
	}
	return matched, reeval
}

// AddChannelTags merges tags into every channel matching sels. Returns the
// number of channels matched and the set of channels to re-evaluate -
// here always the matched channels themselves, since a channel's own tag
// set directly affects its own selector membership.
func (s *Store) AddChannelTags(sels []selector.Channel, tags []ids.TagID) (int, map[ids.ChannelID]struct{}) {
	matched := 0
	reeval := make(map[ids.ChannelID]struct{})
	for _, ch := range s.channels {
		if !selector.MatchAnyChannel(s.channelAttrs(ch), sels) {
			continue
		}
		matched++
		for _, t := range tags {
			ch.Tags[t] = struct{}{}
		}
		if err := s.tags.AddTags(string(ch.ID), tags); err != nil {
			log.Error(err, "tag store add failed, continuing with in-memory update only", "channel", ch.ID)
		}
		reeval[ch.ID] = struct{}{}
	}
	return matched, reeval
}

// RemoveChannelTags removes tags from every channel matching sels.
func (s *Store) RemoveChannelTags(sels []selector.Channel, tags []ids.TagID) (int, map[ids.ChannelID]struct{}) {
	matched := 0
	reeval := make(map[ids.ChannelID]struct{})
	for _, ch := range s.channels {
		if !selector.MatchAnyChannel(s.channelAttrs(ch), sels) {
			continue
		}
		matched++
		for _, t := range tags {
			delete(ch.Tags, t)
		}
		if err := s.tags.RemoveTags(string(ch.ID), tags); err != nil {
			log.Error(err, "tag store remove failed, continuing with in-memory update only", "channel", ch.ID)
		}
		reeval[ch.ID] = struct{}{}
	}
	return matched, reeval
}

// GetServices returns descriptions of every service matching sels (empty
// sels matches all, spec §4.1).
func (s *Store) GetServices(sels []selector.Service) []ServiceDescription {
	var out []ServiceDescription
	for _, svc := range s.services {
		if selector.MatchAnyService(s.serviceAttrs(svc), sels) {
			out = append(out, describeService(svc))
		}
	}
	return out
}

// GetChannels returns descriptions of every channel matching sels (empty
// sels matches all, spec §4.1).
func (s *Store) GetChannels(sels []selector.Channel) []ChannelDescription {
	var out []ChannelDescription
	for _, ch := range s.channels {
		if selector.MatchAnyChannel(s.channelAttrs(ch), sels) {
			out = append(out, describeChannel(ch))
		}
	}
	return out
}

func describeService(svc *Service) ServiceDescription {
	return ServiceDescription{
		ID:         svc.ID,
		Adapter:    svc.Adapter,
		Tags:       tagSlice(svc.Tags),
		Properties: svc.Properties,
		Channels:   channelSlice(svc.Channels),
	}
}

func describeChannel(ch *Channel) ChannelDescription {
	return ChannelDescription{
		ID:         ch.ID,
		Service:    ch.Service,
		Adapter:    ch.Adapter,
		Implements: featureSlice(ch.Implements),
		Tags:       tagSlice(ch.Tags),
		Signatures: ch.Signatures,
	}
}

func tagSlice(m map[ids.TagID]struct{}) []ids.TagID {
	out := make([]ids.TagID, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	return out
}

func featureSlice(m map[ids.FeatureID]struct{}) []ids.FeatureID {
	out := make([]ids.FeatureID, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	return out
}

func channelSlice(m map[ids.ChannelID]struct{}) []ids.ChannelID {
	out := make([]ids.ChannelID, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return out
}
