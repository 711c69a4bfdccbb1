package svc

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"cinderbin/metrics"
	"cinderbin/svc/blob"
	"cinderbin/svc/cache"
	"cinderbin/svc/db"
	"cinderbin/svc/util"
)

const reapBatchSize = 200

// Reaper deletes expired uploads and pastes along with their blobs. Sweeps
// are idempotent and safe to run concurrently with request handlers and
// with other sweeps; each sweep re-queries current state.
type Reaper struct {
	store   *db.Store
	blobs   blob.Store
	lru     *cache.LRU
	rdb     *db.Redis
	limiter *rate.Limiter
}

// SweepReport is the best-effort outcome of one sweep. Blob errors never
// fail the sweep; only record-store errors do.
type SweepReport struct {
	DeletedUploads int      `json:"deleted_uploads"`
	DeletedPastes  int      `json:"deleted_pastes"`
	BlobErrors     []string `json:"blob_errors,omitempty"`
}

func NewReaper(store *db.Store, blobs blob.Store, lru *cache.LRU, rdb *db.Redis, blobDeletesPerSec int) *Reaper {
	if store == nil || blobs == nil || lru == nil {
		panic("reaper: nil dependency")
	}
	if blobDeletesPerSec <= 0 {
		blobDeletesPerSec = 50
	}
	return &Reaper{
		store:   store,
		blobs:   blobs,
		lru:     lru,
		rdb:     rdb,
		limiter: rate.NewLimiter(rate.Limit(blobDeletesPerSec), blobDeletesPerSec),
	}
}

// Sweep removes everything expired as of now. Independently expired uploads
// keep their record when the blob delete fails, so the next sweep retries
// them. Expired pastes are always deleted, cascading their upload rows at
// the storage layer; a blob left behind by a failed delete there is an
// accepted orphan.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	report := &SweepReport{}
	metrics.SweepCycles.Inc()

	// Phase 1: uploads past their own 24h clock, attached or not.
	failed := make(map[string]bool)
	for {
		ups, err := r.store.ExpiredUploads(ctx, now, reapBatchSize)
		if err != nil {
			return report, err
		}
		progress := false
		for _, u := range ups {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if failed[u.ID] {
				continue
			}
			if err := r.deleteBlob(ctx, u.BlobPath); err != nil {
				report.BlobErrors = append(report.BlobErrors, fmt.Sprintf("%s: %v", u.BlobPath, err))
				metrics.BlobDeleteErrors.Inc()
				failed[u.ID] = true
				continue
			}
			if err := r.store.DeleteUpload(ctx, u.ID); err != nil {
				return report, err
			}
			r.evict(ctx, u.ID)
			report.DeletedUploads++
			metrics.SweepDeletedUploads.Inc()
			progress = true
		}
		if len(ups) < reapBatchSize || !progress {
			break
		}
	}

	// Phase 2: expired pastes with whatever uploads they still hold.
	for {
		pastes, err := r.store.ExpiredPastes(ctx, now, reapBatchSize)
		if err != nil {
			return report, err
		}
		for _, paste := range pastes {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			for _, u := range paste.Uploads {
				if err := r.deleteBlob(ctx, u.BlobPath); err != nil {
					report.BlobErrors = append(report.BlobErrors, fmt.Sprintf("%s: %v", u.BlobPath, err))
					metrics.BlobDeleteErrors.Inc()
				}
				r.evict(ctx, u.ID)
			}
			if err := r.store.DeletePaste(ctx, paste.ID); err != nil {
				return report, err
			}
			report.DeletedPastes++
			metrics.SweepDeletedPastes.Inc()
		}
		if len(pastes) < reapBatchSize {
			break
		}
	}

	return report, nil
}

func (r *Reaper) deleteBlob(ctx context.Context, pathname string) error {
	if pathname == "" {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return r.blobs.Delete(opCtx, pathname)
}

func (r *Reaper) evict(ctx context.Context, uploadID string) {
	r.lru.Delete(uploadID)
	if r.rdb != nil {
		if err := r.rdb.DeleteUpload(ctx, uploadID); err != nil {
			util.Warn().Err(err).Str("id", uploadID).Msg("failed to evict upload from redis")
		}
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().Dur("interval", interval).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			util.Info().Msg("reaper shutting down")
			return
		case <-ticker.C:
			report, err := r.Sweep(ctx, time.Now())
			if err != nil {
				util.Error().Err(err).Msg("sweep failed")
				continue
			}
			if report.DeletedUploads > 0 || report.DeletedPastes > 0 || len(report.BlobErrors) > 0 {
				util.Info().
					Int("deleted_uploads", report.DeletedUploads).
					Int("deleted_pastes", report.DeletedPastes).
					Int("blob_errors", len(report.BlobErrors)).
					Msg("sweep completed")
			}
		}
	}
}
