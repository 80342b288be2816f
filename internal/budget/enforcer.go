// internal/budget/enforcer.go
//
// Capacity enforcement for registered label composites.
//
// Context
// -------
// The rendering engine caps how many images may be registered.  Enforce
// trims the registry's generated entries down to capacity minus headroom,
// evicting the least valuable first.  Value order, highest first:
//
//  1. keep-listed for this pass (never evicted)
//  2. in view
//  3. priority
//  4. most recently used
//
// Each eviction clears the row's images, drops any in-flight build record,
// and unregisters both engine images.  Engine errors are logged at debug and
// swallowed; the registry is the source of truth.
//
// Once a map is seen above the high-zoom threshold, enforcement is
// suspended for that map until ResetMap.
package budget

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/yanizio/labelsprite/internal/engine"
	"github.com/yanizio/labelsprite/internal/metrics"
	"github.com/yanizio/labelsprite/internal/registry"
)

// Forgetter drops in-flight build bookkeeping for an identity.
type Forgetter interface {
	Forget(id string)
}

// Enforcer is safe for concurrent use; passes are serialised.
type Enforcer struct {
	reg      *registry.Registry
	inflight Forgetter
	highZoom float64
	log      *zap.SugaredLogger

	mu        sync.Mutex
	retainAll map[string]bool // map ID → sticky suspension
}

// New returns an Enforcer.  highZoom ≤ 0 disables suspension.  inflight
// and log may be nil.
func New(reg *registry.Registry, inflight Forgetter, highZoom float64, log *zap.SugaredLogger) *Enforcer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Enforcer{
		reg:       reg,
		inflight:  inflight,
		highZoom:  highZoom,
		log:       log,
		retainAll: make(map[string]bool),
	}
}

// Enforce trims generated entries to capacity-headroom and returns the
// evicted ids.  capacity ≤ 0 means unlimited.
func (e *Enforcer) Enforce(eng engine.Engine, capacity, headroom int, keep []string) []string {
	return e.enforce(eng, capacity, headroom, keep, "")
}

// MakeRoom is the pass run just before incoming is added to the engine.  It
// trims every other generated entry to capacity-headroom, so incoming lands
// without pushing the total past capacity.
func (e *Enforcer) MakeRoom(eng engine.Engine, capacity, headroom int, incoming string, keep []string) []string {
	return e.enforce(eng, capacity, headroom, keep, incoming)
}

func (e *Enforcer) enforce(eng engine.Engine, capacity, headroom int, keep []string, exclude string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		metrics.SpritesRegistered.WithLabelValues(eng.ID()).Set(float64(e.reg.Generated()))
	}()

	if capacity <= 0 || e.suspendedLocked(eng) {
		return nil
	}
	target := capacity - headroom
	if target < 0 {
		target = 0
	}

	entries := e.reg.Snapshot(true)
	if exclude != "" {
		n := 0
		for _, en := range entries {
			if en.ID != exclude {
				entries[n] = en
				n++
			}
		}
		entries = entries[:n]
	}
	if len(entries) <= target {
		return nil
	}

	victims := Victims(entries, target, keep)
	for _, id := range victims {
		e.evict(eng, id)
	}

	if len(victims) > 0 {
		e.log.Debugw("label sprites evicted",
			"map", eng.ID(),
			"evicted", len(victims),
			"target", target,
			"kept", len(entries)-len(victims),
		)
	}
	return victims
}

// Victims returns the ids to evict so that at most target entries remain,
// never choosing a keep-listed id.  When the keep-list alone exceeds target
// every other entry is evicted.
func Victims(entries []registry.Entry, target int, keep []string) []string {
	protected := make(map[string]bool, len(keep))
	for _, id := range keep {
		protected[id] = true
	}

	rest := make([]registry.Entry, 0, len(entries))
	kept := 0
	for _, en := range entries {
		if protected[en.ID] {
			kept++
			continue
		}
		rest = append(rest, en)
	}
	sort.SliceStable(rest, func(i, j int) bool { return Outranks(rest[i], rest[j]) })

	room := target - kept
	if room < 0 {
		room = 0
	}
	if room >= len(rest) {
		return nil
	}
	out := make([]string, 0, len(rest)-room)
	for _, en := range rest[room:] {
		out = append(out, en.ID)
	}
	return out
}

// Outranks reports whether a is more valuable than b, ignoring keep-lists.
func Outranks(a, b registry.Entry) bool {
	if a.InView != b.InView {
		return a.InView
	}
	if a.Priority != b.Priority {
		return a.Priority
	}
	if a.LastUsed != b.LastUsed {
		return a.LastUsed > b.LastUsed
	}
	return a.ID < b.ID
}

func (e *Enforcer) evict(eng engine.Engine, id string) {
	e.reg.Evict(id)
	if e.inflight != nil {
		e.inflight.Forget(id)
	}
	for _, name := range []string{engine.BaseName(id), engine.HighlightName(id)} {
		if !eng.HasImage(name) {
			continue
		}
		if err := eng.RemoveImage(name); err != nil {
			e.log.Debugw("remove image failed", "map", eng.ID(), "image", name, "err", err)
		}
	}
	metrics.SpriteEvictTotal.Inc()
}

/*──────────────────────────── suspension ──────────────────────────────────*/

// Suspended reports whether enforcement is suspended for eng, latching the
// suspension when the current zoom exceeds the threshold.
func (e *Enforcer) Suspended(eng engine.Engine) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspendedLocked(eng)
}

func (e *Enforcer) suspendedLocked(eng engine.Engine) bool {
	id := eng.ID()
	if e.retainAll[id] {
		return true
	}
	if e.highZoom > 0 && eng.Zoom() > e.highZoom {
		e.retainAll[id] = true
		e.log.Infow("label sprite eviction suspended", "map", id, "zoom", eng.Zoom())
		return true
	}
	return false
}

// ResetMap clears the sticky suspension for a map instance.
func (e *Enforcer) ResetMap(mapID string) {
	e.mu.Lock()
	delete(e.retainAll, mapID)
	e.mu.Unlock()
}
