// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from four layers (highest
precedence last):

  0. Built-in defaults (see `defaults`).
  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/sprites.yaml`.
  3. Environment variables prefixed `SPRITES_`, where `__` maps to "."
     (e.g., `SPRITES_CACHE__CAPACITY → cache.capacity`).

After merging, the tree is unmarshalled into strongly-typed structs,
validated, and enriched with the runtime root path.  main loads once at
start-up and passes the sections down; nothing reads config globally.

Instrumentation
---------------
  • DEBUG spans - root discovery, YAML read.
  • ERROR spans - YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  - final "config loaded" with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/sprites.yaml`;
    this lets `go run ./cmd/spritepreview` work from any sub-directory.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/labelsprite/internal/assets"
	"github.com/yanizio/labelsprite/internal/sprite"
)

const (
	envPrefix = "SPRITES_"
	fileName  = "sprites.yaml"
)

// defaults seeds the Koanf tree before any file or env layer.
var defaults = map[string]any{
	"cache.capacity":       sprite.DefaultCapacity,
	"cache.headroom":       sprite.DefaultHeadroom,
	"cache.high_zoom":      0.0,
	"cache.label_layers":   []string{"labels"},
	"cache.label_property": sprite.DefaultLabelProperty,

	"composite.background_url":    "builtin:pill",
	"composite.accent_url":        "builtin:pill-accent",
	"composite.icon_url_template": "icons/{icon}.png",
	"composite.font_size":         12.0,
	"composite.line_gap":          1.0,
	"composite.padding":           8.0,
	"composite.icon_size":         22.0,
	"composite.icon_gap":          6.0,
	"composite.shadow_shift":      1.0,

	"assets.timeout":       "5s",
	"assets.retries":       2,
	"assets.cache_entries": assets.DefaultCacheEntries,

	"http.listen_addr": ":8080",

	"log.dir":   "logs",
	"log.tee":   false,
	"log.debug": false,
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves SPRITES_ROOT or climbs directories until
// conf/sprites.yaml is found.  Falls back to executable heuristic for
// production layout.
func rootDir() string {
	if r := os.Getenv(envPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", fileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads defaults, .env, YAML, env overrides, validates, and caches
// Config.
func Load() (*Config, error) {
	return LoadFrom(rootDir())
}

// LoadFrom is Load with an explicit root directory.
func LoadFrom(root string) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	yamlPath := filepath.Join(root, "conf", fileName)
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: SPRITES_CACHE__CAPACITY → cache.capacity
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, envPrefix), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if cfg.Log.Dir != "" && !filepath.IsAbs(cfg.Log.Dir) {
		cfg.Log.Dir = filepath.Join(root, cfg.Log.Dir)
	}
	if cfg.Assets.BaseDir == "" {
		cfg.Assets.BaseDir = root
	} else if !filepath.IsAbs(cfg.Assets.BaseDir) {
		cfg.Assets.BaseDir = filepath.Join(root, cfg.Assets.BaseDir)
	}

	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}
	if _, err := cfg.Composite.Style(); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"capacity", cfg.Cache.Capacity,
		"headroom", cfg.Cache.Headroom,
		"asset_timeout", cfg.Assets.Timeout.Round(time.Millisecond),
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}
