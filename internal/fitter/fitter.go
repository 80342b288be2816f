// internal/fitter/fitter.go
//
// Pixel-budget text fitting for marker labels.
//
// Context
// -------
// Labels are drawn into a fixed-width composite, so every line must fit a
// pixel budget.  Two entry points cover the cases the composite builder and
// callers need:
//
//   - Truncate  - one line, longest fitting prefix plus a trailing ellipsis.
//   - Split     - up to N lines, word-boundary aware, last line truncated.
//
// Both are pure; all measuring goes through a Measurer so tests can use a
// fixed-advance fake instead of a real font face.
package fitter

import (
	"strings"
	"unicode"
)

// Ellipsis is appended to truncated lines.
const Ellipsis = "…"

// Measurer reports the rendered width of s in pixels.
type Measurer interface {
	Width(s string) float64
}

// MeasureFunc adapts a plain function to Measurer.
type MeasureFunc func(string) float64

// Width implements Measurer.
func (f MeasureFunc) Width(s string) float64 { return f(s) }

// Normalize collapses runs of whitespace to single spaces and trims both
// ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate returns s unchanged when it fits maxWidth.  Otherwise it returns
// the longest rune prefix whose width, ellipsis included, is within the
// budget.  A non-positive budget skips fitting.
func Truncate(m Measurer, s string, maxWidth float64) string {
	if maxWidth <= 0 || m.Width(s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	n := longestPrefix(len(runes), func(i int) bool {
		return m.Width(trimPrefix(runes, i)+Ellipsis) <= maxWidth
	})
	return trimPrefix(runes, n) + Ellipsis
}

// Split breaks s into at most maxLines lines of at most maxWidth pixels.
// The final line is always produced by Truncate so the loop terminates even
// for unbreakable input.
func Split(m Measurer, s string, maxWidth float64, maxLines int) []string {
	text := Normalize(s)
	if text == "" {
		return nil
	}
	if maxWidth <= 0 || maxLines <= 0 {
		return []string{text}
	}
	if m.Width(text) <= maxWidth {
		return []string{text}
	}

	lines := make([]string, 0, maxLines)
	rest := []rune(text)
	for len(lines) < maxLines && len(rest) > 0 {
		if len(lines) == maxLines-1 {
			lines = append(lines, Truncate(m, string(rest), maxWidth))
			break
		}
		if m.Width(string(rest)) <= maxWidth {
			lines = append(lines, string(rest))
			break
		}

		n := longestPrefix(len(rest), func(i int) bool {
			return m.Width(trimPrefix(rest, i)) <= maxWidth
		})
		n = wordBoundary(m, rest, n, maxWidth)

		line := trimPrefix(rest, n)
		if line == "" {
			lines = append(lines, Truncate(m, string(rest), maxWidth))
			break
		}
		lines = append(lines, line)
		rest = []rune(strings.TrimLeftFunc(string(rest[n:]), unicode.IsSpace))
	}
	return lines
}

// longestPrefix binary-searches [0, n] for the largest i where fits(i)
// holds.  fits(0) is assumed true.
func longestPrefix(n int, fits func(int) bool) int {
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// wordBoundary moves a split point that lands inside a word back to the
// preceding space, provided the shortened line still fits.
func wordBoundary(m Measurer, runes []rune, n int, maxWidth float64) int {
	if n <= 0 || n >= len(runes) {
		return n
	}
	if unicode.IsSpace(runes[n]) || unicode.IsSpace(runes[n-1]) {
		return n
	}
	for i := n - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			if m.Width(trimPrefix(runes, i)) <= maxWidth {
				return i
			}
			break
		}
	}
	return n
}

func trimPrefix(runes []rune, n int) string {
	return strings.TrimRightFunc(string(runes[:n]), unicode.IsSpace)
}
