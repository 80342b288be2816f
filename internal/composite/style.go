package composite

import (
	"fmt"
	"image/color"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Style is the fixed visual template.  Lengths are logical pixels; the
// builder multiplies them by the pixel ratio of each request.
type Style struct {
	BackgroundURL   string
	AccentURL       string // empty disables a distinct highlight
	IconURLTemplate string // "{icon}" is replaced by the icon ref

	FontSize    float64
	LineGap     float64
	Padding     float64
	IconSize    float64
	IconGap     float64
	ShadowShift float64

	TextColor          color.RGBA
	MultiColor         color.RGBA // zero derives a dimmed TextColor
	HighlightTextColor color.RGBA
	ShadowColor        color.RGBA
	BaseTint           color.RGBA // zero alpha disables tinting
	AccentTint         color.RGBA
}

// DefaultStyle matches the builtin pill background.
func DefaultStyle() Style {
	return Style{
		BackgroundURL:      "builtin:pill",
		AccentURL:          "builtin:pill-accent",
		IconURLTemplate:    "icons/{icon}.png",
		FontSize:           12,
		LineGap:            1,
		Padding:            8,
		IconSize:           22,
		IconGap:            6,
		ShadowShift:        1,
		TextColor:          color.RGBA{36, 41, 47, 255},
		HighlightTextColor: color.RGBA{255, 255, 255, 255},
		ShadowColor:        color.RGBA{0, 0, 0, 48},
	}
}

// IconURL expands the icon template for ref.
func (s Style) IconURL(ref string) string {
	if s.IconURLTemplate == "" {
		return ref
	}
	return strings.ReplaceAll(s.IconURLTemplate, "{icon}", ref)
}

// ParseColor reads "#rrggbb" or "#rrggbbaa".  An empty string yields the
// zero colour.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return color.RGBA{}, nil
	}
	alpha := uint8(255)
	if len(s) == 9 {
		var a uint32
		if _, err := fmt.Sscanf(s[7:], "%02x", &a); err != nil {
			return color.RGBA{}, fmt.Errorf("parse colour %q: %w", s, err)
		}
		alpha = uint8(a)
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("parse colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return premultiply(color.RGBA{R: r, G: g, B: b, A: 255}, alpha), nil
}

// dimmed blends c toward white in Lab space, used for the second line of
// multi-listing labels.
func dimmed(c color.RGBA) color.RGBA {
	base, ok := colorful.MakeColor(c)
	if !ok {
		return c
	}
	r, g, b := base.BlendLab(colorful.Color{R: 1, G: 1, B: 1}, 0.45).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: c.A}
}

func premultiply(c color.RGBA, a uint8) color.RGBA {
	f := float64(a) / 255
	return color.RGBA{
		R: uint8(float64(c.R) * f),
		G: uint8(float64(c.G) * f),
		B: uint8(float64(c.B) * f),
		A: a,
	}
}
