// internal/registry/metadata.go
//
// Composite metadata row.
//
// Context
// -------
// One Metadata value exists per label identity.  The registry hands out
// copies only, so callers can read a row freely without holding the lock.
// Image fields are nil until the composite builder succeeds and are cleared
// again when the budget enforcer evicts the identity.
package registry

import "image"

// ImageOptions carries registration hints for the rendering engine.
type ImageOptions struct {
	PixelRatio float64
}

// Metadata describes one marker label.
type Metadata struct {
	IconRef string
	Line1   string
	Line2   string
	IsMulti bool

	Priority bool
	InView   bool
	LastUsed int64 // monotonic tick; ordering only

	Image            *image.RGBA
	ImageOptions     ImageOptions
	HighlightImage   *image.RGBA
	HighlightOptions ImageOptions
}

// Generated reports whether the base variant exists.
func (m Metadata) Generated() bool { return m.Image != nil }

// Highlight returns the accent variant, or the base variant when no distinct
// accent was produced.
func (m Metadata) Highlight() (*image.RGBA, ImageOptions) {
	if m.HighlightImage != nil {
		return m.HighlightImage, m.HighlightOptions
	}
	return m.Image, m.ImageOptions
}

// Content is the part of a row that determines what the composite looks
// like.  A content change invalidates any generated image.
type Content struct {
	IconRef string
	Line1   string
	Line2   string
	IsMulti bool
}

// Content returns the row's content fields.
func (m Metadata) Content() Content {
	return m.content()
}

func (m Metadata) content() Content {
	return Content{IconRef: m.IconRef, Line1: m.Line1, Line2: m.Line2, IsMulti: m.IsMulti}
}

// Patch is a partial update applied by Upsert.  Nil fields are left alone.
// InView is deliberately absent; only MarkInView writes it.
type Patch struct {
	Content  *Content
	Priority *bool
	Touch    bool
}
