// Package metrics registers the prometheus counters/gauges exported by
// the pipeline, grounded on the teacher's promauto usage in
// internal/pipeline/exec/ffmpeg/runner.go (package-level promauto
// vars, CounterVec by outcome label).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_claims_total",
		Help: "Total number of successful asset claims, by stage role.",
	}, []string{"role"})

	ClaimEmptyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_claim_empty_total",
		Help: "Total number of claim attempts that found no eligible work.",
	}, []string{"role"})

	AssetsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_assets_failed_total",
		Help: "Total number of asset processing failures, by stage role and error class.",
	}, []string{"role", "class"})

	AssetsPoisonedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_assets_poisoned_total",
		Help: "Total number of assets poisoned after exceeding the retry cap.",
	}, []string{"role"})

	LeasesReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediasearch_leases_reclaimed_total",
		Help: "Total number of expired leases reclaimed by the sweeper.",
	})

	ScenesClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_scenes_closed_total",
		Help: "Total number of video scenes closed, by close reason.",
	}, []string{"reason"})

	PhashDesyncTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediasearch_video_desync_total",
		Help: "Total number of pixel/PTS stream desync timeouts detected.",
	})

	ScanFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_scan_files_total",
		Help: "Total number of files observed by the scanner, by outcome.",
	}, []string{"outcome"})

	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediasearch_processing_duration_seconds",
		Help:    "Time spent processing one claimed asset, by stage role.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"role"})
)
