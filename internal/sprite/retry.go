// internal/sprite/retry.go
//
// Readiness retry, signature invalidation, and per-map lifecycle.
//
// Context
// -------
// An engine whose style is still loading rejects AddImage.  Finished builds
// for such a map are parked in mapState.pending and flushed by a single
// OnStyleLoad callback; further misses while that callback is outstanding
// only add to the pending set.
package sprite

import (
	"sort"

	"github.com/yanizio/labelsprite/internal/engine"
	"github.com/yanizio/labelsprite/internal/metrics"
)

// Stats is a point-in-time summary of the cache.
type Stats struct {
	Entries   int `json:"entries"`
	Generated int `json:"generated"`
	InView    int `json:"in_view"`
	Priority  int `json:"priority"`
	InFlight  int `json:"in_flight"`
	Pending   int `json:"pending"`
}

/*──────────────────────────── readiness retry ─────────────────────────────*/

func (c *Cache) state(mapID string) *mapState {
	st, ok := c.maps[mapID]
	if !ok {
		st = &mapState{pending: make(map[string]struct{})}
		c.maps[mapID] = st
	}
	return st
}

// scheduleRetry parks id until eng reports its style loaded.  At most one
// callback is outstanding per map.
func (c *Cache) scheduleRetry(eng engine.Engine, id string) {
	c.mu.Lock()
	st := c.state(eng.ID())
	st.pending[id] = struct{}{}
	if st.retryScheduled {
		c.mu.Unlock()
		return
	}
	st.retryScheduled = true
	c.mu.Unlock()

	metrics.SpriteRetryScheduledTotal.Inc()
	c.log.Debugw("engine not ready; retry scheduled", "map", eng.ID(), "id", id)
	eng.OnStyleLoad(func() { c.flush(eng) })

	// The style may have finished loading between the readiness check and
	// the callback registration.
	if eng.StyleLoaded() {
		c.flush(eng)
	}
}

// flush registers every parked id that still has a generated composite.
func (c *Cache) flush(eng engine.Engine) {
	c.mu.Lock()
	st, ok := c.maps[eng.ID()]
	if !ok || !st.retryScheduled {
		c.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(st.pending))
	for id := range st.pending {
		ids = append(ids, id)
	}
	st.pending = make(map[string]struct{})
	st.retryScheduled = false
	c.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		if m, ok := c.reg.Get(id); ok && m.Generated() {
			c.register(eng, id, nil)
		}
	}
	c.log.Debugw("pending sprites flushed", "map", eng.ID(), "count", len(ids))
}

/*──────────────────────────── lifecycle ───────────────────────────────────*/

// InvalidateSignature drops every composite when sig differs from the last
// seen signature (style or asset set changed).  The first call only records
// sig.  It reports whether anything was invalidated.
func (c *Cache) InvalidateSignature(eng engine.Engine, sig string) bool {
	c.mu.Lock()
	prev := c.signature
	c.signature = sig
	c.mu.Unlock()
	if prev == "" || prev == sig {
		return false
	}

	ids := c.reg.Clear()
	for _, id := range ids {
		c.builds.Forget(id)
		if eng != nil {
			c.removeImages(eng, id)
		}
	}
	if eng != nil {
		metrics.SpritesRegistered.WithLabelValues(eng.ID()).Set(0)
	}
	c.log.Infow("label sprites invalidated", "from", prev, "to", sig, "dropped", len(ids))
	return true
}

// ResetMap forgets per-map state: the high-zoom suspension and any parked
// retries.  Call it when a map instance is torn down or its style reset.
func (c *Cache) ResetMap(mapID string) {
	c.enforcer.ResetMap(mapID)
	c.mu.Lock()
	delete(c.maps, mapID)
	c.mu.Unlock()
}

// Stats summarises the registry and the in-flight builds.
func (c *Cache) Stats() Stats {
	var s Stats
	for _, e := range c.reg.Snapshot(false) {
		s.Entries++
		if e.Generated() {
			s.Generated++
		}
		if e.InView {
			s.InView++
		}
		if e.Priority {
			s.Priority++
		}
	}
	s.InFlight = int(c.inflight.Load())

	c.mu.Lock()
	for _, st := range c.maps {
		s.Pending += len(st.pending)
	}
	c.mu.Unlock()
	return s
}
