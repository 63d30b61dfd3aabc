package watch

import (
	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/values"
)

// adapterSink builds the per-channel, per-watcher EventSink handed to an
// adapter's RegisterWatch (spec §4.5.3). It rejects events once the
// watcher is dropped, and for Exactly(pred) groups turns a stream of
// values into Enter/ExitRange edges, suppressing coincident
// true->true/false->false updates. predicate is nil for an Always group,
// in which case every value is forwarded as EnterRange and ExitRange is
// never emitted (spec §4.5.1).
func (r *Registry) adapterSink(wd *watcherData, channel ids.ChannelID, predicate *values.Predicate) adapter.EventSink {
	rs := wd.rangeFor(channel)
	return adapter.EventSinkFunc(func(ev adapter.WatchEvent) {
		if wd.isDropped.Load() {
			return
		}
		if predicate == nil {
			wd.spec.Sink.Send(Event{Kind: EnterRange, Channel: channel, Value: ev.Value})
			return
		}
		nowInside := predicate.Matches(ev.Value)
		enter, emit := rs.transition(nowInside)
		if !emit {
			return
		}
		kind := ExitRange
		if enter {
			kind = EnterRange
		}
		wd.spec.Sink.Send(Event{Kind: kind, Channel: channel, Value: ev.Value})
	})
}

// predicateFor extracts the predicate a pendingWatch should hand to the
// adapter for a SpecEntry's payload. Always yields nil (no filtering);
// Never never reaches here (callers skip it before building pendingWatch
// entries); ExactlyValue yields the stored predicate.
func predicateFor(payload values.Exactly[*values.Predicate]) *values.Predicate {
	if payload.Kind == values.ExactlyValue {
		return payload.Value
	}
	return nil
}
