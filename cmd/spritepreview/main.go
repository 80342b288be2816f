// cmd/spritepreview/main.go
//
// Label sprite preview server – HTTP entry point.
//
// Start-up
// --------
//
//  1. Load config (defaults → conf/.env → conf/sprites.yaml → SPRITES_ env).
//
//  2. Start daily rotating logger (tees to console when running in a TTY
//     or when log.tee is set).
//
//  3. Build the asset stack: builtin templates, files under assets.base_dir,
//     and http(s) through a retrying client, all behind one LRU cache.
//
//  4. Build the composite builder from the configured template.
//
//  5. Mount the preview routes and Prometheus /metrics.
//
//  6. Serve until SIGINT or SIGTERM, then shut down gracefully.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/labelsprite/internal/assets"
	"github.com/yanizio/labelsprite/internal/composite"
	"github.com/yanizio/labelsprite/internal/config"
	"github.com/yanizio/labelsprite/internal/logger"
	"github.com/yanizio/labelsprite/internal/preview"
	"github.com/yanizio/labelsprite/internal/server"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(cfg.Log.Dir, cfg.Log.Tee || runningInTTY(), cfg.Log.Debug)
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 1.  Assets ──────────────────────────────────────────────────────
	//
	httpLoader := assets.NewHTTPLoader(cfg.Assets.Timeout, cfg.Assets.Retries, logOut)
	files := assets.NewFileLoader(cfg.Assets.BaseDir)
	loader := assets.NewCache(assets.Mux{
		"builtin": assets.Builtin{},
		"http":    httpLoader,
		"https":   httpLoader,
		"file":    files,
		"":        files,
	}, cfg.Assets.CacheEntries)

	//
	// ── 2.  Composite builder ───────────────────────────────────────────
	//
	style, err := cfg.Composite.Style()
	if err != nil {
		logOut.Fatalw("composite style", "err", err)
	}
	builder, err := composite.NewBuilder(loader, style, logOut)
	if err != nil {
		logOut.Fatalw("composite builder", "err", err)
	}

	//
	// ── 3.  Routes ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", preview.New(cfg.Cache.Sprite(), builder, logOut).Routes())

	//
	// ── 4.  Serve ───────────────────────────────────────────────────────
	//
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, server.New(cfg.HTTP.ListenAddr, r), logOut); err != nil {
		logOut.Fatalw("http server", "err", err)
	}
	logOut.Infow("preview server stopped")
}
