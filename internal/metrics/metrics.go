// Package metrics holds Prometheus instruments used across the sprite
// cache.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SpritesRegistered is labelled by map ID; each map instance has its
	// own cache and registry.
	SpritesRegistered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "label_sprites_registered",
			Help: "Number of label identities with a generated composite, per map.",
		}, []string{"map"})

	SpriteBuildTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "label_sprite_build_total",
			Help: "Cumulative number of composite builds that succeeded.",
		})

	SpriteBuildErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "label_sprite_build_errors_total",
			Help: "Cumulative number of composite builds that failed.",
		})

	SpriteDedupJoinsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "label_sprite_dedup_joins_total",
			Help: "Requests that waited on an in-flight build instead of starting one.",
		})

	SpriteEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "label_sprite_evict_total",
			Help: "Cumulative number of composites evicted for capacity.",
		})

	SpriteRetryScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "label_sprite_retry_scheduled_total",
			Help: "Readiness retries scheduled because the map style was not loaded.",
		})

	AssetLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "label_sprite_asset_load_total",
			Help: "Asset loads by outcome (hit, loaded, error).",
		}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		SpritesRegistered,
		SpriteBuildTotal,
		SpriteBuildErrorsTotal,
		SpriteDedupJoinsTotal,
		SpriteEvictTotal,
		SpriteRetryScheduledTotal,
		AssetLoadTotal,
	)
}
