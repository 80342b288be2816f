package sprite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yanizio/labelsprite/internal/composite"
	"github.com/yanizio/labelsprite/internal/engine"
	"github.com/yanizio/labelsprite/internal/engine/memengine"
	"github.com/yanizio/labelsprite/internal/metrics"
	"github.com/yanizio/labelsprite/internal/registry"
)

// fakeBuilder returns 4x2 composites.  When gate is non-nil every build
// blocks until it is closed.
type fakeBuilder struct {
	calls atomic.Int32
	gate  chan struct{}
	fail  error

	mu   sync.Mutex
	reqs []composite.Request
}

func (f *fakeBuilder) Build(_ context.Context, req composite.Request) (composite.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	if f.fail != nil {
		return composite.Result{}, f.fail
	}
	opts := registry.ImageOptions{PixelRatio: req.PixelRatio}
	return composite.Result{
		Image:            image.NewRGBA(image.Rect(0, 0, 4, 2)),
		Options:          opts,
		Highlight:        image.NewRGBA(image.Rect(0, 0, 4, 2)),
		HighlightOptions: opts,
	}, nil
}

type clock struct{ now atomic.Int64 }

func (c *clock) tick() int64 { return c.now.Add(1) }

func newCache(cfg Config, b Builder) *Cache {
	ck := &clock{}
	return New(cfg, b, WithClock(ck.tick))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRegisterOrBuild_RegistersBothVariants(t *testing.T) {
	b := &fakeBuilder{}
	c := newCache(Config{Capacity: 10}, b)
	eng := memengine.New("m")
	eng.SetPixelRatio(2)

	name, ok := c.RegisterOrBuild(context.Background(), eng, Request{ID: "e1", Line1: "Jazz", IconRef: "music"})
	if !ok || name != engine.BaseName("e1") {
		t.Fatalf("got %q, %v", name, ok)
	}
	if !eng.HasImage(engine.BaseName("e1")) || !eng.HasImage(engine.HighlightName("e1")) {
		t.Fatalf("engine holds %v", eng.Names())
	}
	reg, _ := eng.Image(engine.BaseName("e1"))
	if reg.Opts.PixelRatio != 2 {
		t.Fatalf("pixel ratio = %v", reg.Opts.PixelRatio)
	}
	m, _ := c.Lookup("e1")
	if !m.Generated() || m.HighlightImage == nil || m.Line1 != "Jazz" {
		t.Fatalf("row = %+v", m)
	}
	if b.reqs[0].IconRef != "music" || b.reqs[0].PixelRatio != 2 {
		t.Fatalf("builder request = %+v", b.reqs[0])
	}
}

func TestRegisterOrBuild_FastPath(t *testing.T) {
	b := &fakeBuilder{}
	c := newCache(Config{Capacity: 10}, b)
	eng := memengine.New("m")
	req := Request{ID: "e1", Line1: "Jazz"}

	c.RegisterOrBuild(context.Background(), eng, req)
	adds, _ := eng.Counts()
	before, _ := c.Lookup("e1")

	name, ok := c.RegisterOrBuild(context.Background(), eng, req)
	if !ok || name != engine.BaseName("e1") {
		t.Fatalf("got %q, %v", name, ok)
	}
	if b.calls.Load() != 1 {
		t.Fatalf("builds = %d, want 1", b.calls.Load())
	}
	if a, _ := eng.Counts(); a != adds {
		t.Fatalf("fast path re-added images")
	}
	after, _ := c.Lookup("e1")
	if after.LastUsed <= before.LastUsed {
		t.Fatalf("hit did not refresh recency")
	}
}

func TestRegisterOrBuild_ConcurrentCallersShareOneBuild(t *testing.T) {
	b := &fakeBuilder{gate: make(chan struct{})}
	c := newCache(Config{Capacity: 10}, b)
	eng := memengine.New("m")
	joins := testutil.ToFloat64(metrics.SpriteDedupJoinsTotal)

	const n = 3
	var wg sync.WaitGroup
	names := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names[i], _ = c.RegisterOrBuild(context.Background(), eng, Request{ID: "e1", Line1: "Jazz"})
		}(i)
	}
	waitFor(t, func() bool { return b.calls.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	close(b.gate)
	wg.Wait()

	if b.calls.Load() != 1 {
		t.Fatalf("builds = %d, want 1", b.calls.Load())
	}
	for _, name := range names {
		if name != engine.BaseName("e1") {
			t.Fatalf("names = %v", names)
		}
	}
	if got := testutil.ToFloat64(metrics.SpriteDedupJoinsTotal) - joins; got < 0 || got > n-1 {
		t.Fatalf("build joins = %v, want at most %d", got, n-1)
	}
	if c.Stats().InFlight != 0 {
		t.Fatalf("build still in flight")
	}
}

func TestRegisterOrBuild_BuildFailure(t *testing.T) {
	b := &fakeBuilder{fail: errors.New("background unavailable")}
	c := newCache(Config{Capacity: 10}, b)
	eng := memengine.New("m")

	name, ok := c.RegisterOrBuild(context.Background(), eng, Request{ID: "e1", Line1: "Jazz"})
	if ok || name != "" {
		t.Fatalf("got %q, %v", name, ok)
	}
	if len(eng.Names()) != 0 {
		t.Fatalf("engine holds %v", eng.Names())
	}
	m, found := c.Lookup("e1")
	if !found || m.Generated() {
		t.Fatalf("row = %+v, %v", m, found)
	}
}

func TestRegisterOrBuild_EmptyID(t *testing.T) {
	c := newCache(Config{}, &fakeBuilder{})
	if _, ok := c.RegisterOrBuild(context.Background(), memengine.New("m"), Request{}); ok {
		t.Fatalf("empty id accepted")
	}
}

func TestRegisterOrBuild_ContentChangeRebuilds(t *testing.T) {
	b := &fakeBuilder{}
	c := newCache(Config{Capacity: 10}, b)
	eng := memengine.New("m")

	c.RegisterOrBuild(context.Background(), eng, Request{ID: "e1", Line1: "Jazz"})
	first, _ := eng.Image(engine.BaseName("e1"))

	c.RegisterOrBuild(context.Background(), eng, Request{ID: "e1", Line1: "Jazz Night"})
	if b.calls.Load() != 2 {
		t.Fatalf("builds = %d, want 2", b.calls.Load())
	}
	second, _ := eng.Image(engine.BaseName("e1"))
	if first.Image == second.Image {
		t.Fatalf("engine still holds the stale composite")
	}
	if m, _ := c.Lookup("e1"); m.Line1 != "Jazz Night" {
		t.Fatalf("row = %+v", m)
	}
}

func TestRegisterOrBuild_FailedRebuildUnregistersStaleImages(t *testing.T) {
	b := &fakeBuilder{}
	c := newCache(Config{Capacity: 1}, b)
	eng := memengine.New("m")
	ctx := context.Background()

	if _, ok := c.RegisterOrBuild(ctx, eng, Request{ID: "a", Line1: "v1"}); !ok {
		t.Fatalf("first build failed")
	}

	b.fail = errors.New("background unavailable")
	if _, ok := c.RegisterOrBuild(ctx, eng, Request{ID: "a", Line1: "v2"}); ok {
		t.Fatalf("failing rebuild reported success")
	}
	if eng.HasImage(engine.BaseName("a")) || eng.HasImage(engine.HighlightName("a")) {
		t.Fatalf("stale images left behind: %v", eng.Names())
	}

	b.fail = nil
	if _, ok := c.RegisterOrBuild(ctx, eng, Request{ID: "b", Line1: "b"}); !ok {
		t.Fatalf("register b failed")
	}
	if got := eng.Names(); len(got) != 2 {
		t.Fatalf("engine holds %v, want only b's two variants", got)
	}
}

// clearingEngine runs onReady once, the first time readiness is checked.
type clearingEngine struct {
	*memengine.Map
	onReady func()
}

func (e *clearingEngine) StyleLoaded() bool {
	if e.onReady != nil {
		e.onReady()
		e.onReady = nil
	}
	return e.Map.StyleLoaded()
}

func TestRegisterOrBuild_RowDroppedBeforeRegistration(t *testing.T) {
	c := newCache(Config{Capacity: 10}, &fakeBuilder{})
	eng := &clearingEngine{Map: memengine.New("m")}
	eng.onReady = func() { c.reg.Clear() }

	name, ok := c.RegisterOrBuild(context.Background(), eng, Request{ID: "a", Line1: "a"})
	if ok || name != "" {
		t.Fatalf("got %q, %v; want failure when nothing was registered", name, ok)
	}
	if len(eng.Names()) != 0 {
		t.Fatalf("engine holds %v", eng.Names())
	}
}

func TestRegisteredGaugeTracksEachMap(t *testing.T) {
	c := newCache(Config{Capacity: 10}, &fakeBuilder{})
	eng := memengine.New("gauge-map")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		c.RegisterOrBuild(ctx, eng, Request{ID: id, Line1: id})
	}
	gauge := metrics.SpritesRegistered.WithLabelValues("gauge-map")
	if got := testutil.ToFloat64(gauge); got != 3 {
		t.Fatalf("registered gauge = %v, want 3", got)
	}

	c.InvalidateSignature(eng, "v1")
	c.InvalidateSignature(eng, "v2")
	if got := testutil.ToFloat64(gauge); got != 0 {
		t.Fatalf("registered gauge = %v after invalidation, want 0", got)
	}
}

func TestRegisterOrBuild_EngineNotReady(t *testing.T) {
	b := &fakeBuilder{}
	c := newCache(Config{Capacity: 10}, b)
	eng := memengine.New("m")
	eng.SetStyleLoaded(false)

	for _, id := range []string{"e1", "e2"} {
		name, ok := c.RegisterOrBuild(context.Background(), eng, Request{ID: id, Line1: id})
		if !ok || name != engine.BaseName(id) {
			t.Fatalf("got %q, %v", name, ok)
		}
	}
	if len(eng.Names()) != 0 {
		t.Fatalf("images added before style load: %v", eng.Names())
	}
	if eng.PendingCallbacks() != 1 {
		t.Fatalf("callbacks = %d, want 1", eng.PendingCallbacks())
	}
	if c.Stats().Pending != 2 {
		t.Fatalf("pending = %d, want 2", c.Stats().Pending)
	}

	eng.SetStyleLoaded(true)
	for _, id := range []string{"e1", "e2"} {
		if !eng.HasImage(engine.BaseName(id)) || !eng.HasImage(engine.HighlightName(id)) {
			t.Fatalf("%s not registered after style load: %v", id, eng.Names())
		}
	}
	if c.Stats().Pending != 0 {
		t.Fatalf("pending not drained")
	}
}

func TestRegisterOrBuild_CapacityHeld(t *testing.T) {
	b := &fakeBuilder{}
	c := newCache(Config{Capacity: 3, Headroom: 1}, b)
	eng := memengine.New("m")

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("e%d", i)
		if _, ok := c.RegisterOrBuild(context.Background(), eng, Request{ID: id, Line1: id}); !ok {
			t.Fatalf("register %s failed", id)
		}
		if got := c.Stats().Generated; got > 3 {
			t.Fatalf("after %s: %d generated, capacity 3", id, got)
		}
		if !eng.HasImage(engine.BaseName(id)) {
			t.Fatalf("just-registered %s was evicted", id)
		}
	}
	if got := len(eng.Names()); got > 6 {
		t.Fatalf("engine holds %d images", got)
	}
	for _, id := range []string{"e7", "e8", "e9"} {
		if m, _ := c.Lookup(id); !m.Generated() {
			t.Fatalf("%s evicted; want the most recent three kept", id)
		}
	}
}

func TestRegisterOrBuild_KeepProtectsOthers(t *testing.T) {
	c := newCache(Config{Capacity: 2}, &fakeBuilder{})
	eng := memengine.New("m")
	ctx := context.Background()

	c.RegisterOrBuild(ctx, eng, Request{ID: "a", Line1: "a"})
	c.RegisterOrBuild(ctx, eng, Request{ID: "b", Line1: "b"})
	c.RegisterOrBuild(ctx, eng, Request{ID: "c", Line1: "c", Keep: []string{"a"}})

	if m, _ := c.Lookup("a"); !m.Generated() {
		t.Fatalf("kept id evicted")
	}
	if m, _ := c.Lookup("b"); m.Generated() {
		t.Fatalf("b retained over the keep list")
	}
}

func TestTouchAndRefreshInView(t *testing.T) {
	c := newCache(Config{Capacity: 2, LabelLayers: []string{"labels"}}, &fakeBuilder{})
	eng := memengine.New("m")
	ctx := context.Background()

	c.RegisterOrBuild(ctx, eng, Request{ID: "a", Line1: "a"})
	c.RegisterOrBuild(ctx, eng, Request{ID: "b", Line1: "b"})

	yes := true
	if !c.Touch("a", &yes) {
		t.Fatalf("Touch of a known id failed")
	}
	if c.Touch("zzz", nil) {
		t.Fatalf("Touch of an unknown id succeeded")
	}

	eng.SetRendered("labels", DefaultLabelProperty, "b")
	if got := c.RefreshInView(eng); len(got) != 1 || got[0] != "b" {
		t.Fatalf("in view = %v", got)
	}

	// Capacity 2: registering c pushes one of a (priority) and b (in view)
	// out, and in-view ranks higher.
	c.RegisterOrBuild(ctx, eng, Request{ID: "c", Line1: "c"})

	a, _ := c.Lookup("a")
	b, _ := c.Lookup("b")
	if a.Generated() || !a.Priority {
		t.Fatalf("a=%+v, want evicted with priority kept", a)
	}
	if !b.Generated() || !b.InView {
		t.Fatalf("b=%+v", b)
	}
	if m, _ := c.Lookup("c"); !m.Generated() {
		t.Fatalf("just-registered c evicted")
	}
	if s := c.Stats(); s.Generated != 2 || s.Priority != 1 || s.InView != 1 || s.Entries != 3 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestInvalidateSignature(t *testing.T) {
	b := &fakeBuilder{}
	c := newCache(Config{Capacity: 10}, b)
	eng := memengine.New("m")
	ctx := context.Background()

	if c.InvalidateSignature(eng, "v1") {
		t.Fatalf("first signature invalidated")
	}
	c.RegisterOrBuild(ctx, eng, Request{ID: "a", Line1: "a"})
	if c.InvalidateSignature(eng, "v1") {
		t.Fatalf("unchanged signature invalidated")
	}
	if !c.InvalidateSignature(eng, "v2") {
		t.Fatalf("changed signature ignored")
	}
	if len(eng.Names()) != 0 {
		t.Fatalf("engine holds %v", eng.Names())
	}
	if _, ok := c.Lookup("a"); ok {
		t.Fatalf("row survived invalidation")
	}

	c.RegisterOrBuild(ctx, eng, Request{ID: "a", Line1: "a"})
	if b.calls.Load() != 2 || !eng.HasImage(engine.BaseName("a")) {
		t.Fatalf("no rebuild after invalidation")
	}
}

func TestResetMap(t *testing.T) {
	c := newCache(Config{Capacity: 1, HighZoom: 15}, &fakeBuilder{})
	eng := memengine.New("m")
	ctx := context.Background()

	eng.SetZoom(16)
	c.RegisterOrBuild(ctx, eng, Request{ID: "a", Line1: "a"})
	c.RegisterOrBuild(ctx, eng, Request{ID: "b", Line1: "b"})
	if got := c.Stats().Generated; got != 2 {
		t.Fatalf("generated = %d while suspended, want 2", got)
	}

	eng.SetZoom(10)
	c.ResetMap("m")
	if ev := c.Enforce(eng, nil); len(ev) != 1 || ev[0] != "a" {
		t.Fatalf("evicted %v after reset, want [a]", ev)
	}
}
