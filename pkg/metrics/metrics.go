package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 扫描指标
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_scans_total",
			Help: "Total number of scan runs",
		},
		[]string{"status"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallery_scan_duration_seconds",
			Help:    "Duration of a full scan in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	ScanInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_scan_in_progress",
			Help: "Number of scans currently running",
		},
	)

	FilesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_files_processed_total",
			Help: "Total number of new media files written to the catalog",
		},
	)

	DuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_duplicates_total",
			Help: "Total number of files skipped because their content hash already exists",
		},
	)

	FileFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_file_failures_total",
			Help: "Total number of per-file failures by pipeline stage",
		},
		[]string{"stage"},
	)

	FileProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallery_file_processing_duration_seconds",
			Help:    "Time spent processing a single new file",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

// 缩略图指标
var (
	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_thumbnails_total",
			Help: "Total number of thumbnail requests by result",
		},
		[]string{"result"}, // "created", "skipped", "failed"
	)
)

// 指纹指标
var (
	FingerprintsBackfilledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_fingerprints_backfilled_total",
			Help: "Total number of perceptual hashes computed by backfill",
		},
	)
)
