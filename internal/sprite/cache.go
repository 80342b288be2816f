// internal/sprite/cache.go
//
// Registration orchestrator for marker-label composites.
//
// Context
// -------
// Cache is the one entry point the map layer talks to.  RegisterOrBuild
// flow:
//
//  1. Upsert the registry row (content, priority, recency).
//  2. Fast path: row generated, content unchanged, engine already has the
//     image → return its name.
//  3. Build through the per-identity singleflight gate and store the
//     result.  A content change first unregisters the stale images so a
//     failed rebuild leaves nothing behind in the engine.
//  4. Engine not ready → queue the id and schedule one readiness retry for
//     that map.  Otherwise make room (headroom) → add both variants →
//     enforce (strict).
//
// A build failure yields ("", false); callers draw a neutral placeholder.
// Engine errors are logged at debug and swallowed.  The registry is the
// source of truth and the engine is treated as a mirror of it.
package sprite

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/labelsprite/internal/budget"
	"github.com/yanizio/labelsprite/internal/composite"
	"github.com/yanizio/labelsprite/internal/engine"
	"github.com/yanizio/labelsprite/internal/metrics"
	"github.com/yanizio/labelsprite/internal/registry"
	"github.com/yanizio/labelsprite/internal/viewport"
)

// Static defaults.  Override via config.
const (
	DefaultCapacity      = 300
	DefaultHeadroom      = 1
	DefaultLabelProperty = "labelId"
)

// Builder produces composites.  *composite.Builder satisfies it.
type Builder interface {
	Build(ctx context.Context, req composite.Request) (composite.Result, error)
}

// Config tunes a Cache.
type Config struct {
	Capacity      int     // max registered identities; ≤ 0 means unlimited
	Headroom      int     // slots kept free while a new image lands
	HighZoom      float64 // zoom above which eviction is suspended; ≤ 0 disables
	LabelLayers   []string
	LabelProperty string
}

// Request is one registration call.
type Request struct {
	ID       string
	IconRef  string
	Line1    string
	Line2    string
	IsMulti  bool
	Priority *bool    // nil leaves the stored flag alone
	Keep     []string // extra ids protected during this call's enforcement
}

// Cache is safe for concurrent use.
type Cache struct {
	cfg      Config
	reg      *registry.Registry
	builds   singleflight.Group
	inflight atomic.Int32
	builder  Builder
	enforcer *budget.Enforcer
	tracker  *viewport.Tracker
	log      *zap.SugaredLogger

	mu        sync.Mutex
	maps      map[string]*mapState
	signature string
}

// mapState is per-map-instance bookkeeping for the readiness retry.
type mapState struct {
	retryScheduled bool
	pending        map[string]struct{}
}

// Option customises New.
type Option func(*options)

type options struct {
	clock registry.Clock
	log   *zap.SugaredLogger
}

// WithClock injects the recency clock.
func WithClock(c registry.Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger.  Default is a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(o *options) { o.log = l } }

// New constructs a Cache around builder.
func New(cfg Config, builder Builder, opts ...Option) *Cache {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}
	if cfg.Headroom < 0 {
		cfg.Headroom = 0
	}
	if cfg.LabelProperty == "" {
		cfg.LabelProperty = DefaultLabelProperty
	}

	c := &Cache{
		cfg:     cfg,
		reg:     registry.New(o.clock),
		builder: builder,
		log:     o.log,
		maps:    make(map[string]*mapState),
	}
	c.enforcer = budget.New(c.reg, &c.builds, cfg.HighZoom, o.log)
	c.tracker = viewport.New(c.reg, cfg.LabelLayers, cfg.LabelProperty, o.log)
	return c
}

/*──────────────────────────── public API ──────────────────────────────────*/

// RegisterOrBuild returns the engine image name for req.ID, building and
// registering the composite when needed.
func (c *Cache) RegisterOrBuild(ctx context.Context, eng engine.Engine, req Request) (string, bool) {
	if req.ID == "" {
		return "", false
	}
	name := engine.BaseName(req.ID)
	content := registry.Content{
		IconRef: req.IconRef,
		Line1:   req.Line1,
		Line2:   req.Line2,
		IsMulti: req.IsMulti,
	}

	m, changed := c.reg.Upsert(req.ID, registry.Patch{
		Content:  &content,
		Priority: req.Priority,
		Touch:    true,
	})
	if m.Generated() && !changed && eng.HasImage(name) {
		return name, true
	}
	if changed {
		c.removeImages(eng, req.ID)
	}

	if !m.Generated() {
		if !c.build(ctx, eng, req.ID, content) {
			return "", false
		}
	}

	if !eng.StyleLoaded() {
		c.scheduleRetry(eng, req.ID)
		return name, true
	}
	if !c.register(eng, req.ID, req.Keep) {
		return "", false
	}
	return name, true
}

// RefreshInView re-reads the rendered label features and returns the ids in
// view.
func (c *Cache) RefreshInView(eng engine.Engine) []string {
	return c.tracker.Refresh(eng)
}

// Enforce trims registered composites to capacity, protecting keep.
func (c *Cache) Enforce(eng engine.Engine, keep []string) []string {
	return c.enforcer.Enforce(eng, c.cfg.Capacity, 0, keep)
}

// Touch refreshes recency, and priority when non-nil, without rebuilding.
// It reports whether the identity is known.
func (c *Cache) Touch(id string, priority *bool) bool {
	if _, ok := c.reg.Get(id); !ok {
		return false
	}
	c.reg.Upsert(id, registry.Patch{Priority: priority, Touch: true})
	return true
}

// Lookup returns a copy of the registry row for id.
func (c *Cache) Lookup(id string) (registry.Metadata, bool) {
	return c.reg.Get(id)
}

/*──────────────────────────── build ───────────────────────────────────────*/

// build runs the gated builder until the stored images match content.  A
// second attempt covers the case where the content changed while a shared
// build for older content was in flight.
func (c *Cache) build(ctx context.Context, eng engine.Engine, id string, content registry.Content) bool {
	for attempt := 0; attempt < 2; attempt++ {
		led := false
		_, err, shared := c.builds.Do(id, func() (any, error) {
			led = true
			c.inflight.Add(1)
			defer c.inflight.Add(-1)

			row, _ := c.reg.Get(id)
			req := composite.RequestFor(row, eng.PixelRatio())
			res, err := c.builder.Build(context.WithoutCancel(ctx), req)
			if err != nil {
				return nil, err
			}
			c.reg.SetImages(id, row.Content(), res.Images())
			metrics.SpriteBuildTotal.Inc()
			return res, nil
		})
		// singleflight reports shared to the leader too.
		if shared && !led {
			metrics.SpriteDedupJoinsTotal.Inc()
		}
		if err != nil {
			metrics.SpriteBuildErrorsTotal.Inc()
			c.log.Warnw("label sprite build failed", "id", id, "err", err)
			return false
		}

		cur, ok := c.reg.Get(id)
		if ok && cur.Generated() {
			return true
		}
		// Row cleared mid-build, or content moved on; rebuild once.
		if !ok {
			c.reg.Upsert(id, registry.Patch{Content: &content, Touch: true})
		}
	}
	return false
}

/*──────────────────────────── engine registration ────────────────────────*/

// register makes room, adds both variants, then trims back to the strict
// limit.  id is never a victim of either pass.
func (c *Cache) register(eng engine.Engine, id string, keep []string) bool {
	protect := make([]string, 0, len(keep)+1)
	protect = append(protect, keep...)
	protect = append(protect, id)

	c.enforcer.MakeRoom(eng, c.cfg.Capacity, c.cfg.Headroom, id, keep)

	m, ok := c.reg.Get(id)
	if !ok || !m.Generated() {
		return false
	}
	c.addImage(eng, engine.BaseName(id), m.Image, m.ImageOptions)
	hl, hlOpts := m.Highlight()
	c.addImage(eng, engine.HighlightName(id), hl, hlOpts)

	c.enforcer.Enforce(eng, c.cfg.Capacity, 0, protect)
	return true
}

// removeImages unregisters both variants of id from eng.
func (c *Cache) removeImages(eng engine.Engine, id string) {
	for _, name := range []string{engine.BaseName(id), engine.HighlightName(id)} {
		if !eng.HasImage(name) {
			continue
		}
		if err := eng.RemoveImage(name); err != nil {
			c.log.Debugw("remove image failed", "map", eng.ID(), "image", name, "err", err)
		}
	}
}

// addImage replaces whatever the engine holds under name (a placeholder or
// a stale composite).
func (c *Cache) addImage(eng engine.Engine, name string, img *image.RGBA, opts registry.ImageOptions) {
	if eng.HasImage(name) {
		if err := eng.RemoveImage(name); err != nil {
			c.log.Debugw("remove image failed", "map", eng.ID(), "image", name, "err", err)
		}
	}
	if err := eng.AddImage(name, img, engine.ImageOptions{PixelRatio: opts.PixelRatio}); err != nil {
		c.log.Debugw("add image failed", "map", eng.ID(), "image", name, "err", err)
	}
}
