package importer

// sweeper.go re-offers intake files that were never relocated.
//
// A file stays under the intake prefix when its notification was lost, when
// the importer was busy or down, or when a run failed before relocation.
// The sweeper lists the prefix periodically and offers every object older
// than the minimum age; younger objects are left to their notification.
// A version that already failed to parse is skipped until it is overwritten.

import (
	"context"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/storage/objects"
)

// SweepConfig controls the sweeper.
type SweepConfig struct {
	Interval time.Duration // how often to sweep; 0 disables
	MinAge   time.Duration // ignore objects newer than this
}

// RunSweeper sweeps once immediately and then every Interval until ctx ends.
func (im *Importer) RunSweeper(ctx context.Context, cfg SweepConfig) {
	if cfg.Interval <= 0 {
		im.logger.Info("intake sweeper disabled")
		return
	}
	im.logger.Info("intake sweeper started", "interval", cfg.Interval, "min_age", cfg.MinAge)

	im.Sweep(ctx, cfg.MinAge, time.Now())

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			im.logger.Info("intake sweeper stopped")
			return
		case now := <-ticker.C:
			im.Sweep(ctx, cfg.MinAge, now)
		}
	}
}

// Sweep offers every intake object last modified at least minAge before now
// and returns how many were offered.
func (im *Importer) Sweep(ctx context.Context, minAge time.Duration, now time.Time) int {
	start := time.Now()
	objs, err := im.store.List(ctx, im.opts.UploadPrefix)
	if err != nil {
		im.logger.Error("sweep list failed", "prefix", im.opts.UploadPrefix, "error", err)
		return 0
	}

	im.pruneRejected(objs)

	offered, skipped := 0, 0
	for _, obj := range objs {
		if now.Sub(obj.LastModified) < minAge {
			continue
		}
		if im.isRejected(obj) {
			skipped++
			continue
		}
		if ctx.Err() != nil {
			break
		}
		im.offerLogged(ctx, obj.Key, "sweeper")
		offered++
	}

	im.logger.Info("sweep completed",
		"listed", len(objs),
		"offered", offered,
		"skipped_rejected", skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return offered
}

func (im *Importer) isRejected(obj objects.Object) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	etag, ok := im.rejected[obj.Key]
	return ok && etag == obj.ETag
}

// pruneRejected forgets keys that are no longer under the intake prefix.
func (im *Importer) pruneRejected(listed []objects.Object) {
	present := make(map[string]bool, len(listed))
	for _, obj := range listed {
		present[obj.Key] = true
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	for key := range im.rejected {
		if !present[key] {
			delete(im.rejected, key)
		}
	}
}
