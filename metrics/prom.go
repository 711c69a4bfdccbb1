package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRevealed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_paste_revealed_total",
		Help: "no. of successful content reveals",
	})
	UnlockFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_unlock_failed_total",
		Help: "no. of failed password attempts",
	})
	UploadStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_upload_stored_total",
		Help: "no. of files stored",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_cache_hits_total",
		Help: "no. of upload cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_cache_misses_total",
		Help: "no. of upload cache misses",
	})
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_sweep_cycles_total",
		Help: "no. of reaper sweeps",
	})
	SweepDeletedUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_sweep_deleted_uploads_total",
		Help: "no. of expired uploads removed",
	})
	SweepDeletedPastes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_sweep_deleted_pastes_total",
		Help: "no. of expired pastes removed",
	})
	BlobDeleteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinderbin_blob_delete_errors_total",
		Help: "no. of best-effort blob deletions that failed",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinderbin_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)
