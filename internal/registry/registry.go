// internal/registry/registry.go
//
// Owned store of composite metadata keyed by label identity.
//
// Context
// -------
// Every component that needs label state goes through this type.  Each
// mutation is a read-merge-write of one row under the mutex, so a reader
// never sees a half-applied update.  The API is intentionally small:
//
//   - Get / Snapshot     - copies out
//   - Upsert             - content, priority, and recency updates
//   - SetImages          - store a finished build
//   - MarkInView         - viewport tracker only
//   - Evict / Clear      - drop images or everything
//
// LastUsed comes from an injectable clock and never moves backwards for a
// live row.
package registry

import (
	"image"
	"sync"
	"time"
)

// Clock returns a monotonic tick.
type Clock func() int64

// MonotonicClock returns nanoseconds elapsed since the clock was created.
// time.Since reads the monotonic component, so wall-clock jumps are ignored.
func MonotonicClock() Clock {
	start := time.Now()
	return func() int64 { return int64(time.Since(start)) }
}

// Registry is safe for concurrent use.  Zero value is invalid; use New.
type Registry struct {
	mu    sync.RWMutex
	rows  map[string]*Metadata
	clock Clock
}

// New returns an empty Registry.  A nil clock selects MonotonicClock.
func New(clock Clock) *Registry {
	if clock == nil {
		clock = MonotonicClock()
	}
	return &Registry{rows: make(map[string]*Metadata), clock: clock}
}

// Get returns a copy of the row for id.
func (r *Registry) Get(id string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.rows[id]
	if !ok {
		return Metadata{}, false
	}
	return *m, true
}

// Upsert creates or updates the row for id and returns the merged copy.
// changed is true when the content differs from a previously generated
// image; the stale images are dropped in that case so the next request
// rebuilds.
func (r *Registry) Upsert(id string, p Patch) (m Metadata, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		row = &Metadata{}
		r.rows[id] = row
	}
	if p.Content != nil && row.content() != *p.Content {
		changed = row.Generated()
		row.IconRef = p.Content.IconRef
		row.Line1 = p.Content.Line1
		row.Line2 = p.Content.Line2
		row.IsMulti = p.Content.IsMulti
		if changed {
			clearImages(row)
		}
	}
	if p.Priority != nil {
		row.Priority = *p.Priority
	}
	if p.Touch {
		r.touch(row)
	}
	return *row, changed
}

// Images is a finished build as stored by SetImages.
type Images struct {
	Image            *image.RGBA
	Options          ImageOptions
	Highlight        *image.RGBA
	HighlightOptions ImageOptions
}

// SetImages stores a finished build of content.  It returns false, and
// stores nothing, when the row no longer exists (the registry was cleared
// mid-build) or its content has moved on.
func (r *Registry) SetImages(id string, content Content, img Images) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.content() != content {
		return false
	}
	row.Image, row.ImageOptions = img.Image, img.Options
	row.HighlightImage, row.HighlightOptions = img.Highlight, img.HighlightOptions
	return true
}

// MarkInView sets InView for every id in present and clears it for every
// other row.  Rows entering or staying in view are touched; rows leaving
// view keep their LastUsed.  Ids without a row are ignored.
func (r *Registry) MarkInView(present map[string]struct{}) (entered, left int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if _, ok := present[id]; ok {
			if !row.InView {
				entered++
			}
			row.InView = true
			r.touch(row)
			continue
		}
		if row.InView {
			row.InView = false
			left++
		}
	}
	return entered, left
}

// Evict drops the generated images of id and flags it not-in-view.  The
// row itself stays.  It reports whether an image was present.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return false
	}
	had := row.Generated()
	clearImages(row)
	row.InView = false
	return had
}

// Clear drops every row and returns the ids that had generated images.
func (r *Registry) Clear() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, row := range r.rows {
		if row.Generated() {
			ids = append(ids, id)
		}
	}
	r.rows = make(map[string]*Metadata)
	return ids
}

// Entry pairs an id with a row copy.
type Entry struct {
	ID string
	Metadata
}

// Snapshot copies every row.  When generatedOnly is set, rows without a
// base image are skipped.
func (r *Registry) Snapshot(generatedOnly bool) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.rows))
	for id, row := range r.rows {
		if generatedOnly && !row.Generated() {
			continue
		}
		out = append(out, Entry{ID: id, Metadata: *row})
	}
	return out
}

// Generated reports how many rows hold a base image.
func (r *Registry) Generated() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, row := range r.rows {
		if row.Image != nil {
			n++
		}
	}
	return n
}

// Len reports the number of rows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

func (r *Registry) touch(row *Metadata) {
	if now := r.clock(); now > row.LastUsed {
		row.LastUsed = now
	}
}

func clearImages(row *Metadata) {
	row.Image, row.ImageOptions = nil, ImageOptions{}
	row.HighlightImage, row.HighlightOptions = nil, ImageOptions{}
}
