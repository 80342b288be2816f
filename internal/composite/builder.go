// internal/composite/builder.go
//
// Composite builder for marker labels.
//
// Context
// -------
// Build turns one label (icon ref, two text lines, multi flag) into a base
// image and a highlight image at the requested pixel ratio.  Steps:
//
//  1. Load background, accent background, and icon in parallel.
//  2. Size the canvas from the background's natural size × pixel ratio.
//  3. Draw background → icon → text block, once per variant.
//
// Failure policy
// --------------
//   - background load failure  → ErrBackground, no result
//   - empty canvas             → ErrCanvas, no result
//   - font face failure        → ErrDraw, no result
//   - icon load failure        → composite without icon
//   - accent load failure      → highlight reuses the base image
package composite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/labelsprite/internal/assets"
	"github.com/yanizio/labelsprite/internal/registry"
)

var (
	// ErrBackground is returned when the background template cannot load.
	ErrBackground = errors.New("composite: background unavailable")
	// ErrCanvas is returned when the canvas would be empty.
	ErrCanvas = errors.New("composite: cannot allocate canvas")
	// ErrDraw is returned when a text line cannot be drawn.
	ErrDraw = errors.New("composite: cannot draw text")
)

// Request is one label to build.
type Request struct {
	IconRef    string
	Line1      string
	Line2      string
	IsMulti    bool
	PixelRatio float64
}

// RequestFor builds a Request from a registry row.
func RequestFor(m registry.Metadata, pixelRatio float64) Request {
	return Request{
		IconRef:    m.IconRef,
		Line1:      m.Line1,
		Line2:      m.Line2,
		IsMulti:    m.IsMulti,
		PixelRatio: pixelRatio,
	}
}

// Result holds both variants.  Highlight == Image when no distinct accent
// variant could be produced.
type Result struct {
	Image            *image.RGBA
	Options          registry.ImageOptions
	Highlight        *image.RGBA
	HighlightOptions registry.ImageOptions
}

// Images converts the result into the registry's storage form.
func (r Result) Images() registry.Images {
	return registry.Images{
		Image:            r.Image,
		Options:          r.Options,
		Highlight:        r.Highlight,
		HighlightOptions: r.HighlightOptions,
	}
}

// Builder is safe for concurrent use; per-build font faces are created on
// demand.
type Builder struct {
	loader assets.Loader
	style  Style
	fonts  *fontSet
	faces  faceFunc
	log    *zap.SugaredLogger
}

// NewBuilder returns a Builder drawing with style and loading through
// loader.
func NewBuilder(loader assets.Loader, style Style, log *zap.SugaredLogger) (*Builder, error) {
	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if style.MultiColor.A == 0 {
		style.MultiColor = dimmed(style.TextColor)
	}
	return &Builder{loader: loader, style: style, fonts: fonts, faces: newFace, log: log}, nil
}

// Style returns the builder's template.
func (b *Builder) Style() Style { return b.style }

type loaded struct {
	background image.Image
	accent     image.Image
	icon       image.Image
}

// Build draws both variants of req.
func (b *Builder) Build(ctx context.Context, req Request) (Result, error) {
	ratio := req.PixelRatio
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		ratio = 1
	}

	in, err := b.load(ctx, req.IconRef)
	if err != nil {
		return Result{}, err
	}

	bb := in.background.Bounds()
	w := int(math.Round(float64(bb.Dx()) * ratio))
	h := int(math.Round(float64(bb.Dy()) * ratio))
	if w <= 0 || h <= 0 {
		return Result{}, fmt.Errorf("%w: %dx%d", ErrCanvas, w, h)
	}

	opts := registry.ImageOptions{PixelRatio: ratio}
	base, err := b.draw(variant{
		w: w, h: h, ratio: ratio,
		background: in.background,
		tint:       b.style.BaseTint,
		icon:       in.icon,
		text:       b.style.TextColor,
		second:     b.secondColor(req.IsMulti, false),
	}, req)
	if err != nil {
		return Result{}, err
	}

	res := Result{Image: base, Options: opts, Highlight: base, HighlightOptions: opts}
	if in.accent != nil {
		hl, err := b.draw(variant{
			w: w, h: h, ratio: ratio,
			background: in.accent,
			tint:       b.style.AccentTint,
			icon:       in.icon,
			text:       b.style.HighlightTextColor,
			second:     b.secondColor(req.IsMulti, true),
		}, req)
		if err != nil {
			return Result{}, err
		}
		res.Highlight = hl
	}
	return res, nil
}

// load fetches the three inputs concurrently.  Only the background is
// mandatory.
func (b *Builder) load(ctx context.Context, iconRef string) (loaded, error) {
	var in loaded
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		img, err := b.loader.Load(gctx, b.style.BackgroundURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackground, err)
		}
		in.background = img
		return nil
	})
	if b.style.AccentURL != "" {
		g.Go(func() error {
			img, err := b.loader.Load(gctx, b.style.AccentURL)
			if err != nil {
				b.log.Debugw("accent background unavailable", "url", b.style.AccentURL, "err", err)
				return nil
			}
			in.accent = img
			return nil
		})
	}
	if iconRef != "" {
		g.Go(func() error {
			u := b.style.IconURL(iconRef)
			img, err := b.loader.Load(gctx, u)
			if err != nil {
				b.log.Debugw("icon unavailable", "icon", iconRef, "url", u, "err", err)
				return nil
			}
			in.icon = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return loaded{}, err
	}
	if in.background == nil {
		return loaded{}, ErrBackground
	}
	return in, nil
}

// secondColor picks the colour of line two.  Multi-listing labels get a
// dimmed line; on the accent variant that means a translucent text colour.
func (b *Builder) secondColor(multi, highlight bool) color.RGBA {
	switch {
	case !multi && highlight:
		return b.style.HighlightTextColor
	case !multi:
		return b.style.TextColor
	case highlight:
		return premultiply(b.style.HighlightTextColor, 200)
	default:
		return b.style.MultiColor
	}
}
