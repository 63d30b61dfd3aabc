package watch

import (
	"sync"
	"sync/atomic"

	"github.com/foxbox/adapters/pkg/ids"
)

// Guard is returned by RegisterWatch. Close implements the drop protocol
// of spec §4.5.5: it is the Go idiom standing in for the original
// WatchGuard destructor. Safe to call more than once or concurrently;
// only the first call has an effect.
type Guard struct {
	registry  *Registry
	key       ids.WatchKey
	isDropped *atomic.Bool
	once      sync.Once
}

func newGuard(r *Registry, key ids.WatchKey, isDropped *atomic.Bool) *Guard {
	return &Guard{registry: r, key: key, isDropped: isDropped}
}

// Close stores true into is_dropped, then enqueues Stop(key) to the
// worker best-effort - if the worker has already shut down, the enqueue
// is simply dropped (spec §4.5.5 step 2).
func (g *Guard) Close() {
	g.once.Do(func() {
		g.isDropped.Store(true)
		g.registry.enqueueStop(g.key)
	})
}
