// internal/engine/engine.go
//
// Narrow contract for the map-rendering engine.
//
// Context
// -------
// The sprite cache never talks to a concrete map library.  Whatever hosts
// the map implements Engine and injects it per call.  ID identifies the map
// instance so per-map state (retain-all, pending retries) can live in the
// cache instead of on the engine object.
//
// Image names are derived from the label identity by BaseName and
// HighlightName; nothing else in the repo should build those strings.
package engine

import "image"

// Feature is one rendered feature returned by QueryRenderedFeatures.
type Feature struct {
	Layer      string
	Properties map[string]any
}

// ImageOptions mirrors the engine's addImage options.
type ImageOptions struct {
	PixelRatio float64
}

// Engine is implemented by the host map.
type Engine interface {
	// ID is stable for the life of one map instance.
	ID() string

	// QueryRenderedFeatures returns features currently drawn on layers.
	QueryRenderedFeatures(layers []string) []Feature

	HasImage(name string) bool
	AddImage(name string, img image.Image, opts ImageOptions) error
	RemoveImage(name string) error

	Zoom() float64
	PixelRatio() float64

	// StyleLoaded reports whether the image registry accepts images.
	StyleLoaded() bool
	// OnStyleLoad runs fn once, the next time the style becomes ready.
	OnStyleLoad(fn func())
}

const namePrefix = "label-sprite:"

// BaseName is the engine image name for the base variant of id.
func BaseName(id string) string { return namePrefix + id }

// HighlightName is the engine image name for the accent variant of id.
func HighlightName(id string) string { return namePrefix + id + ":hl" }
