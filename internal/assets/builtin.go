package assets

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"net/url"
)

// Builtin synthesises template backgrounds so the cache works without any
// static files.  Known names:
//
//	builtin:pill         white pill with a light border
//	builtin:pill-accent  accent-filled pill
type Builtin struct {
	Width, Height int        // natural size; zero selects 160×40
	Accent        color.RGBA // fill for pill-accent; zero selects a blue
}

// Load implements Loader.
func (b Builtin) Load(_ context.Context, rawURL string) (image.Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	name := u.Opaque
	if name == "" {
		name = u.Host
	}

	w, h := b.Width, b.Height
	if w <= 0 || h <= 0 {
		w, h = 160, 40
	}
	switch name {
	case "pill":
		return Pill(w, h, color.RGBA{255, 255, 255, 255}, color.RGBA{208, 215, 222, 255}), nil
	case "pill-accent":
		accent := b.Accent
		if accent.A == 0 {
			accent = color.RGBA{31, 111, 235, 255}
		}
		return Pill(w, h, accent, accent), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
}

// Pill draws an anti-aliased rounded rectangle with a one-pixel border.
func Pill(w, h int, fill, border color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r := float64(h) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := pillDistance(float64(x)+0.5, float64(y)+0.5, float64(w), float64(h), r)
			cov := clamp01(0.5 - d)
			if cov == 0 {
				continue
			}
			c := fill
			if d > -1.5 {
				c = border
			}
			img.SetRGBA(x, y, premul(c, cov))
		}
	}
	return img
}

// pillDistance is the signed distance from (px, py) to the pill outline;
// negative inside.
func pillDistance(px, py, w, h, r float64) float64 {
	cx := math.Max(r, math.Min(px, w-r))
	cy := h / 2
	return math.Hypot(px-cx, py-cy) - r
}

func premul(c color.RGBA, a float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * a),
		G: uint8(float64(c.G) * a),
		B: uint8(float64(c.B) * a),
		A: uint8(float64(c.A) * a),
	}
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }
