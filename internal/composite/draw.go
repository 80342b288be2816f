package composite

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/yanizio/labelsprite/internal/fitter"
)

/*──────────────────────────── fonts ───────────────────────────────────────*/

// fontSet holds the parsed Go fonts.  Parsed fonts are shareable; faces are
// not, so each draw creates its own.
type fontSet struct {
	title *opentype.Font
	body  *opentype.Font
}

var (
	fontsOnce sync.Once
	fontsVal  *fontSet
	fontsErr  error
)

func loadFonts() (*fontSet, error) {
	fontsOnce.Do(func() {
		title, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontsErr = err
			return
		}
		body, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontsErr = err
			return
		}
		fontsVal = &fontSet{title: title, body: body}
	})
	return fontsVal, fontsErr
}

// faceFunc builds a face of f at px pixels.
type faceFunc func(f *opentype.Font, px float64) (font.Face, error)

func newFace(f *opentype.Font, px float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    px,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

/*──────────────────────────── drawing ─────────────────────────────────────*/

type variant struct {
	w, h       int
	ratio      float64
	background image.Image
	tint       color.RGBA
	icon       image.Image
	text       color.RGBA
	second     color.RGBA
}

// draw renders one variant onto a fresh canvas.  A font face that cannot
// be built fails the variant with ErrDraw.
func (b *Builder) draw(v variant, req Request) (*image.RGBA, error) {
	dst := image.NewRGBA(image.Rect(0, 0, v.w, v.h))
	s := b.style

	// 1. background
	draw.CatmullRom.Scale(dst, dst.Bounds(), v.background, v.background.Bounds(), draw.Over, nil)
	if v.tint.A != 0 {
		tint(dst, v.tint)
	}

	// 2. icon
	pad := s.Padding * v.ratio
	textX := pad
	if v.icon != nil && s.IconSize > 0 {
		box := s.IconSize * v.ratio
		r := fitBox(v.icon.Bounds(), box)
		x := int(math.Round(pad))
		y := (v.h - r.Dy()) / 2
		draw.ApproxBiLinear.Scale(dst, r.Add(image.Pt(x, y)), v.icon, v.icon.Bounds(), draw.Over, nil)
		textX = pad + box + s.IconGap*v.ratio
	}

	// 3. text block
	if req.Line1 == "" && req.Line2 == "" {
		return dst, nil
	}
	maxW := float64(v.w) - textX - pad
	px := s.FontSize * v.ratio

	title, err := b.faces(b.fonts.title, px)
	if err != nil {
		return nil, fmt.Errorf("%w: title face: %v", ErrDraw, err)
	}
	defer title.Close()

	var body font.Face
	spans := layout(fitter.FaceMeasurer{Face: title}, req, maxW)
	lines := make([]textLine, 0, len(spans))
	for _, sp := range spans {
		if !sp.second {
			lines = append(lines, textLine{face: title, text: sp.text, color: v.text})
			continue
		}
		if body == nil {
			if body, err = b.faces(b.fonts.body, px*0.92); err != nil {
				return nil, fmt.Errorf("%w: body face: %v", ErrDraw, err)
			}
			defer body.Close()
		}
		lines = append(lines, textLine{face: body, text: sp.text, color: v.second})
	}
	drawBlock(dst, lines, textX, maxW, s.LineGap*v.ratio, s.ShadowShift*v.ratio, s.ShadowColor)
	return dst, nil
}

// span is one text row; second marks the secondary line's face and colour.
type span struct {
	text   string
	second bool
}

// layout picks the rows for req.  A lone first line that overflows maxW
// wraps onto the second row instead of being cut short.
func layout(m fitter.Measurer, req Request, maxW float64) []span {
	if req.Line2 == "" {
		var out []span
		for _, t := range fitter.Split(m, req.Line1, maxW, 2) {
			out = append(out, span{text: t})
		}
		return out
	}
	out := make([]span, 0, 2)
	if req.Line1 != "" {
		out = append(out, span{text: req.Line1})
	}
	return append(out, span{text: req.Line2, second: true})
}

type textLine struct {
	face  font.Face
	text  string
	color color.RGBA
}

// drawBlock left-aligns lines at x and centres them vertically as a block.
// Each line is truncated to maxW with the label fitter.
func drawBlock(dst *image.RGBA, lines []textLine, x, maxW, gap, shadow float64, shadowColor color.RGBA) {
	if len(lines) == 0 {
		return
	}
	var block float64
	for i, l := range lines {
		block += lineHeight(l.face)
		if i > 0 {
			block += gap
		}
	}

	y := (float64(dst.Bounds().Dy()) - block) / 2
	for _, l := range lines {
		m := l.face.Metrics()
		text := fitter.Truncate(fitter.FaceMeasurer{Face: l.face}, l.text, maxW)
		baseline := y + float64(m.Ascent)/64

		if shadow > 0 && shadowColor.A != 0 {
			drawString(dst, l.face, text, x+shadow, baseline+shadow, shadowColor)
		}
		drawString(dst, l.face, text, x, baseline, l.color)
		y += lineHeight(l.face) + gap
	}
}

func drawString(dst *image.RGBA, face font.Face, s string, x, y float64, c color.RGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)},
	}
	d.DrawString(s)
}

func lineHeight(face font.Face) float64 {
	m := face.Metrics()
	return float64(m.Ascent+m.Descent) / 64
}

// fitBox scales src to fit inside a box×box square, keeping aspect ratio.
func fitBox(src image.Rectangle, box float64) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	if sw <= 0 || sh <= 0 {
		return image.Rectangle{}
	}
	k := math.Min(box/sw, box/sh)
	return image.Rect(0, 0, int(math.Round(sw*k)), int(math.Round(sh*k)))
}

// tint multiplies every pixel by c.  Works on premultiplied values since
// the multiplication is per channel.
func tint(img *image.RGBA, c color.RGBA) {
	r, g, b := uint32(c.R), uint32(c.G), uint32(c.B)
	p := img.Pix
	for i := 0; i+3 < len(p); i += 4 {
		p[i] = uint8(uint32(p[i]) * r / 255)
		p[i+1] = uint8(uint32(p[i+1]) * g / 255)
		p[i+2] = uint8(uint32(p[i+2]) * b / 255)
	}
}
