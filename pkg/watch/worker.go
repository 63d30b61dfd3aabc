package watch

import (
	"context"

	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/apierror"
	"github.com/foxbox/adapters/pkg/ids"
)

// worker drains the message queue one at a time (spec §4.5.3): Start and
// Stop for a given watcher can never run concurrently with each other,
// which is what makes the race analysis in spec §4.5.6 hold.
func (r *Registry) worker() {
	for {
		select {
		case msg := <-r.queue:
			switch m := msg.(type) {
			case startMsg:
				r.processStart(m.key, m.perAdapter)
			case stopMsg:
				r.processStop(m.key)
			}
		case <-r.stopped:
			return
		}
	}
}

// processStart upgrades the watcher's weak reference, calls each
// involved adapter's RegisterWatch outside any lock, then commits the
// resulting guards under the write lock (spec §4.5.3 Start).
func (r *Registry) processStart(key ids.WatchKey, perAdapter map[ids.AdapterID][]pendingWatch) {
	wd, ok := r.watcherByKey(key)
	if !ok || wd.isDropped.Load() {
		return
	}

	collected := make(map[ids.ChannelID]adapter.WatchGuard)
	for adapterID, pendings := range perAdapter {
		impl, ok := r.adapterImpl(adapterID)
		if !ok {
			log.Info("adapter vanished before watch start, skipping batch", "adapter", adapterID, "watchKey", key)
			for _, p := range pendings {
				wd.spec.Sink.Send(Event{Kind: EventError, Channel: p.channel, Err: apierror.NoSuchAdapter(string(adapterID))})
			}
			continue
		}

		requests := make([]adapter.WatchRequest, len(pendings))
		for i, p := range pendings {
			requests[i] = adapter.WatchRequest{
				Channel:   p.channel,
				Predicate: p.predicate,
				Sink:      r.adapterSink(wd, p.channel, p.predicate),
			}
		}

		regs := impl.RegisterWatch(context.Background(), requests)
		for _, reg := range regs {
			if reg.Err != nil {
				wd.spec.Sink.Send(Event{Kind: EventError, Channel: reg.Channel, Err: reg.Err})
				continue
			}
			collected[reg.Channel] = reg.Guard
		}
	}

	if len(collected) == 0 {
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if wd.isDropped.Load() {
		for _, g := range collected {
			g.Close()
		}
		return
	}
	for ch, g := range collected {
		wd.guards[ch] = g
	}
	if r.metrics != nil {
		r.metrics.AdapterWatchesDelta(len(collected))
	}
}

// processStop removes the watcher from the registry and drops every
// adapter-level guard it held, cancelling each low-level watch (spec
// §4.5.3 Stop, §4.5.5 step 2).
func (r *Registry) processStop(key ids.WatchKey) {
	r.lock.Lock()
	defer r.lock.Unlock()

	wd, ok := r.watchers[key]
	if !ok {
		return
	}
	for ch := range wd.watched {
		r.removeBackref(wd, ch)
	}
	if r.metrics != nil && len(wd.guards) > 0 {
		r.metrics.AdapterWatchesDelta(-len(wd.guards))
	}
	for _, g := range wd.guards {
		g.Close()
	}
	delete(r.watchers, key)
	if r.metrics != nil {
		r.metrics.WatcherUnregistered()
	}
}
