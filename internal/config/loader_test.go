package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConf(t *testing.T, yaml string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", fileName), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return root
}

func TestLoadFrom_LayersDefaultsFileAndEnv(t *testing.T) {
	root := writeConf(t, `
cache:
  capacity: 50
  label_layers: [poi-labels, event-labels]
composite:
  text_color: "#102030"
assets:
  timeout: 750ms
`)
	t.Setenv("SPRITES_CACHE__HIGH_ZOOM", "16.5")
	t.Setenv("SPRITES_HTTP__LISTEN_ADDR", "127.0.0.1:9090")

	cfg, err := LoadFrom(root)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Cache.Capacity != 50 || cfg.Cache.Headroom != 1 {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.HighZoom != 16.5 {
		t.Fatalf("env override lost: high_zoom = %v", cfg.Cache.HighZoom)
	}
	if len(cfg.Cache.LabelLayers) != 2 || cfg.Cache.LabelLayers[1] != "event-labels" {
		t.Fatalf("label layers = %v", cfg.Cache.LabelLayers)
	}
	if cfg.Cache.LabelProperty != "labelId" {
		t.Fatalf("label property default lost: %q", cfg.Cache.LabelProperty)
	}
	if cfg.Assets.Timeout != 750*time.Millisecond || cfg.Assets.Retries != 2 {
		t.Fatalf("assets = %+v", cfg.Assets)
	}
	if cfg.HTTP.ListenAddr != "127.0.0.1:9090" {
		t.Fatalf("listen addr = %q", cfg.HTTP.ListenAddr)
	}
	if cfg.Paths.Root != root || cfg.Log.Dir != filepath.Join(root, "logs") || cfg.Assets.BaseDir != root {
		t.Fatalf("paths not resolved: %+v %+v %+v", cfg.Paths, cfg.Log, cfg.Assets)
	}
	s, err := cfg.Composite.Style()
	if err != nil {
		t.Fatalf("Style: %v", err)
	}
	if s.TextColor.R != 0x10 || s.TextColor.G != 0x20 || s.TextColor.B != 0x30 {
		t.Fatalf("text colour = %v", s.TextColor)
	}
	if s.BackgroundURL != "builtin:pill" || s.FontSize != 12 {
		t.Fatalf("style defaults lost: %+v", s)
	}
	if sc := cfg.Cache.Sprite(); sc.Capacity != 50 || sc.HighZoom != 16.5 {
		t.Fatalf("sprite config = %+v", sc)
	}
}

func TestLoadFrom_RejectsHeadroomAtCapacity(t *testing.T) {
	root := writeConf(t, "cache:\n  capacity: 2\n  headroom: 2\n")
	if _, err := LoadFrom(root); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadFrom_UnlimitedCapacityAllowsHeadroom(t *testing.T) {
	root := writeConf(t, "cache:\n  capacity: 0\n")
	cfg, err := LoadFrom(root)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Cache.Capacity != 0 || cfg.Cache.Headroom != 1 {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
}

func TestLoadFrom_RejectsBadColour(t *testing.T) {
	root := writeConf(t, "composite:\n  shadow_color: \"red\"\n")
	if _, err := LoadFrom(root); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	if _, err := LoadFrom(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing conf/%s", fileName)
	}
}

func TestRootDir_EnvOverride(t *testing.T) {
	t.Setenv("SPRITES_ROOT", "/srv/sprites")
	if got := rootDir(); got != "/srv/sprites" {
		t.Fatalf("rootDir = %q", got)
	}
}
