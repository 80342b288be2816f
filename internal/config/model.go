// internal/config/model.go
//
// Typed configuration model for the sprite service.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/sprites.yaml`                       – primary static file,
//   • `SPRITES_`-prefixed environment overrides – highest precedence.
//
// Zero values are replaced by the package defaults before validation, so
// a minimal YAML file (or none of the optional sections) is enough to boot.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Colours are "#rrggbb" or "#rrggbbaa" strings; Style() converts them.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import (
	"fmt"
	"image/color"
	"time"

	"github.com/yanizio/labelsprite/internal/composite"
	"github.com/yanizio/labelsprite/internal/sprite"
)

//
// Cache section
//

// Cache tunes the label sprite cache.
type Cache struct {
	Capacity      int      `koanf:"capacity"       validate:"gte=0"`
	Headroom      int      `koanf:"headroom"       validate:"gte=0"`
	HighZoom      float64  `koanf:"high_zoom"      validate:"gte=0"`
	LabelLayers   []string `koanf:"label_layers"   validate:"dive,required"`
	LabelProperty string   `koanf:"label_property" validate:"required"`
}

// Sprite converts the section into the cache's own config type.
func (c Cache) Sprite() sprite.Config {
	return sprite.Config{
		Capacity:      c.Capacity,
		Headroom:      c.Headroom,
		HighZoom:      c.HighZoom,
		LabelLayers:   c.LabelLayers,
		LabelProperty: c.LabelProperty,
	}
}

//
// Composite section
//

// Composite holds the visual template.
type Composite struct {
	BackgroundURL   string  `koanf:"background_url"    validate:"required"`
	AccentURL       string  `koanf:"accent_url"`
	IconURLTemplate string  `koanf:"icon_url_template"`
	FontSize        float64 `koanf:"font_size"         validate:"gt=0"`
	LineGap         float64 `koanf:"line_gap"          validate:"gte=0"`
	Padding         float64 `koanf:"padding"           validate:"gte=0"`
	IconSize        float64 `koanf:"icon_size"         validate:"gte=0"`
	IconGap         float64 `koanf:"icon_gap"          validate:"gte=0"`
	ShadowShift     float64 `koanf:"shadow_shift"      validate:"gte=0"`

	TextColor          string `koanf:"text_color"           validate:"omitempty,hexcolor"`
	MultiColor         string `koanf:"multi_color"          validate:"omitempty,hexcolor"`
	HighlightTextColor string `koanf:"highlight_text_color" validate:"omitempty,hexcolor"`
	ShadowColor        string `koanf:"shadow_color"         validate:"omitempty,hexcolor"`
	BaseTint           string `koanf:"base_tint"            validate:"omitempty,hexcolor"`
	AccentTint         string `koanf:"accent_tint"          validate:"omitempty,hexcolor"`
}

// Style converts the section into a composite.Style.  Empty colour strings
// keep the default colour; tints stay disabled unless set.
func (c Composite) Style() (composite.Style, error) {
	s := composite.DefaultStyle()
	s.BackgroundURL = c.BackgroundURL
	s.AccentURL = c.AccentURL
	s.IconURLTemplate = c.IconURLTemplate
	s.FontSize = c.FontSize
	s.LineGap = c.LineGap
	s.Padding = c.Padding
	s.IconSize = c.IconSize
	s.IconGap = c.IconGap
	s.ShadowShift = c.ShadowShift

	for _, f := range []struct {
		name string
		hex  string
		dst  *color.RGBA
	}{
		{"text_color", c.TextColor, &s.TextColor},
		{"multi_color", c.MultiColor, &s.MultiColor},
		{"highlight_text_color", c.HighlightTextColor, &s.HighlightTextColor},
		{"shadow_color", c.ShadowColor, &s.ShadowColor},
		{"base_tint", c.BaseTint, &s.BaseTint},
		{"accent_tint", c.AccentTint, &s.AccentTint},
	} {
		if f.hex == "" {
			continue
		}
		rgba, err := composite.ParseColor(f.hex)
		if err != nil {
			return composite.Style{}, fmt.Errorf("composite.%s: %w", f.name, err)
		}
		*f.dst = rgba
	}
	return s, nil
}

//
// Assets section
//

// Assets tunes background and icon loading.
type Assets struct {
	BaseDir      string        `koanf:"base_dir"`
	Timeout      time.Duration `koanf:"timeout"       validate:"gt=0"`
	Retries      int           `koanf:"retries"       validate:"gte=0,lte=10"`
	CacheEntries int           `koanf:"cache_entries" validate:"gt=0"`
}

//
// HTTP section
//

// HTTP holds preview-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Log section
//

// Log controls the file logger.  Dir is relative to Paths.Root unless
// absolute.
type Log struct {
	Dir   string `koanf:"dir"`
	Tee   bool   `koanf:"tee"`
	Debug bool   `koanf:"debug"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime and never set in YAML or env.
type Paths struct {
	Root string // SPRITES_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load().
type Config struct {
	Cache     Cache     `koanf:"cache"`
	Composite Composite `koanf:"composite"`
	Assets    Assets    `koanf:"assets"`
	HTTP      HTTP      `koanf:"http"`
	Log       Log       `koanf:"log"`
	Paths     Paths     `koanf:"-"`
}
