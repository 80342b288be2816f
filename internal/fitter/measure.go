package fitter

import (
	"golang.org/x/image/font"
)

// FaceMeasurer measures strings with a font.Face.  The face is not safe for
// concurrent use, so callers keep one measurer per goroutine.
type FaceMeasurer struct {
	Face font.Face
}

// Width implements Measurer using the face's advances, kerning included.
func (m FaceMeasurer) Width(s string) float64 {
	adv := font.MeasureString(m.Face, s)
	return float64(adv) / 64
}

// FixedMeasurer gives every rune the same advance.  Handy for tests and for
// monospaced faces.
type FixedMeasurer float64

// Width implements Measurer.
func (m FixedMeasurer) Width(s string) float64 {
	var n int
	for range s {
		n++
	}
	return float64(n) * float64(m)
}
