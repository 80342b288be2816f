// internal/engine/memengine/memengine.go
//
// In-memory Engine used by tests and the preview server.
//
// It keeps registered images in a map, reports whatever rendered features
// and zoom the caller last set, and fires OnStyleLoad callbacks when
// SetStyleLoaded(true) is called.
package memengine

import (
	"errors"
	"image"
	"sort"
	"sync"

	"github.com/yanizio/labelsprite/internal/engine"
)

// ErrDuplicate is returned by AddImage when the name is taken.
var ErrDuplicate = errors.New("memengine: image already registered")

// ErrMissing is returned by RemoveImage for unknown names.
var ErrMissing = errors.New("memengine: image not registered")

// ErrNotReady is returned by AddImage before the style has loaded.
var ErrNotReady = errors.New("memengine: style not loaded")

// Registered is one stored image.
type Registered struct {
	Image image.Image
	Opts  engine.ImageOptions
}

// Map implements engine.Engine.  Safe for concurrent use.
type Map struct {
	id string

	mu         sync.Mutex
	images     map[string]Registered
	features   []engine.Feature
	zoom       float64
	pixelRatio float64
	ready      bool
	onLoad     []func()

	adds, removes int
}

// New returns a ready Map with pixel ratio 1.
func New(id string) *Map {
	return &Map{
		id:         id,
		images:     make(map[string]Registered),
		pixelRatio: 1,
		ready:      true,
	}
}

// ID returns the id given to New.
func (m *Map) ID() string { return m.id }

// QueryRenderedFeatures returns the stored features on any of layers.
func (m *Map) QueryRenderedFeatures(layers []string) []engine.Feature {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(layers))
	for _, l := range layers {
		want[l] = true
	}
	var out []engine.Feature
	for _, f := range m.features {
		if want[f.Layer] {
			out = append(out, f)
		}
	}
	return out
}

// HasImage reports whether name is registered.
func (m *Map) HasImage(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.images[name]
	return ok
}

// AddImage registers img under name.  It fails with ErrNotReady while the
// style is loading and ErrDuplicate when name is taken.
func (m *Map) AddImage(name string, img image.Image, opts engine.ImageOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotReady
	}
	if _, ok := m.images[name]; ok {
		return ErrDuplicate
	}
	m.images[name] = Registered{Image: img, Opts: opts}
	m.adds++
	return nil
}

// RemoveImage unregisters name, or returns ErrMissing.
func (m *Map) RemoveImage(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[name]; !ok {
		return ErrMissing
	}
	delete(m.images, name)
	m.removes++
	return nil
}

// Zoom returns the zoom set by SetZoom.
func (m *Map) Zoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

// PixelRatio returns the ratio set by SetPixelRatio, 1 by default.
func (m *Map) PixelRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pixelRatio
}

// StyleLoaded reports readiness.  New maps start ready.
func (m *Map) StyleLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// OnStyleLoad queues fn for the next SetStyleLoaded(true).  It does not
// fire for a map that is already ready.
func (m *Map) OnStyleLoad(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLoad = append(m.onLoad, fn)
}

/*──────────────────────────── test controls ───────────────────────────────*/

// SetStyleLoaded flips readiness.  Turning it on runs and drops every
// pending OnStyleLoad callback, outside the lock.
func (m *Map) SetStyleLoaded(ready bool) {
	m.mu.Lock()
	m.ready = ready
	var fns []func()
	if ready {
		fns, m.onLoad = m.onLoad, nil
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SetZoom sets the reported zoom.
func (m *Map) SetZoom(z float64) {
	m.mu.Lock()
	m.zoom = z
	m.mu.Unlock()
}

// SetPixelRatio sets the reported device pixel ratio.
func (m *Map) SetPixelRatio(r float64) {
	m.mu.Lock()
	m.pixelRatio = r
	m.mu.Unlock()
}

// SetRendered replaces the rendered features with one feature per id on
// layer, carrying the id under prop.
func (m *Map) SetRendered(layer, prop string, ids ...string) {
	fs := make([]engine.Feature, 0, len(ids))
	for _, id := range ids {
		fs = append(fs, engine.Feature{Layer: layer, Properties: map[string]any{prop: id}})
	}
	m.mu.Lock()
	m.features = fs
	m.mu.Unlock()
}

// SetFeatures replaces the rendered features verbatim.
func (m *Map) SetFeatures(fs []engine.Feature) {
	m.mu.Lock()
	m.features = fs
	m.mu.Unlock()
}

// Image returns a registered image.
func (m *Map) Image(name string) (Registered, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.images[name]
	return r, ok
}

// Names lists registered image names in sorted order.
func (m *Map) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.images))
	for n := range m.images {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// PendingCallbacks reports how many OnStyleLoad callbacks are queued.
func (m *Map) PendingCallbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.onLoad)
}

// Counts reports cumulative successful AddImage and RemoveImage calls.
func (m *Map) Counts() (adds, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds, m.removes
}
