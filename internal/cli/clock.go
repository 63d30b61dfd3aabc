package cli

import (
	"context"
	"sync"
	"time"

	"github.com/foxbox/adapters/pkg/adapter"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/values"
)

// clockAdapter is the one demo adapter this binary ships with: a single
// channel reporting the current time once a second. It exists so the CLI
// has something to serve out of the box; real device drivers live in
// their own modules.
type clockAdapter struct {
	adapter.Base
	id      ids.AdapterID
	channel ids.ChannelID
}

func newClockAdapter(channel ids.ChannelID) *clockAdapter {
	return &clockAdapter{id: ids.AdapterID("clock"), channel: channel}
}

func (c *clockAdapter) ID() ids.AdapterID  { return c.id }
func (c *clockAdapter) Name() string       { return "clock" }
func (c *clockAdapter) Vendor() string     { return "foxbox" }
func (c *clockAdapter) Version() [4]uint32 { return [4]uint32{1, 0, 0, 0} }

func (c *clockAdapter) FetchValues(_ context.Context, requests []adapter.ValueRequest, _ ids.UserID) []adapter.ChannelResult {
	out := make([]adapter.ChannelResult, len(requests))
	now := values.NewTimeStamp(time.Now())
	for i, r := range requests {
		v := now
		out[i] = adapter.ChannelResult{Channel: r.Channel, Value: &v}
	}
	return out
}

func (c *clockAdapter) RegisterWatch(_ context.Context, requests []adapter.WatchRequest) []adapter.WatchRegistration {
	out := make([]adapter.WatchRegistration, len(requests))
	for i, r := range requests {
		stop := make(chan struct{})
		go c.tick(r.Channel, r.Sink, stop)
		out[i] = adapter.WatchRegistration{
			Channel: r.Channel,
			Guard:   adapter.WatchGuardFunc(sync.OnceFunc(func() { close(stop) })),
		}
	}
	return out
}

func (c *clockAdapter) tick(channel ids.ChannelID, sink adapter.EventSink, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			sink.Send(adapter.WatchEvent{Kind: adapter.EventEnter, Channel: channel, Value: values.NewTimeStamp(now)})
		case <-stop:
			return
		}
	}
}

func (c *clockAdapter) Stop(context.Context) {}
