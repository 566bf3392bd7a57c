// Package maintenance implements the periodic housekeeping pass spec §5
// and §7 describe in prose but never give a component of their own:
// expired-lease reclamation, stale worker-row pruning, poisoned-asset
// retry, and the temp-file GC sweep. It is deliberately stateless and
// safe to run repeatedly from an operator's cron or the `maintenance
// run` CLI verb.
package maintenance

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
)

// StaleWorkerThreshold is how long a worker row can sit with no
// heartbeat before PruneStaleWorkers is allowed to delete it (spec §4.2
// offline-state cleanup; a multiple of the default heartbeat interval).
const StaleWorkerThreshold = 5 * time.Minute

// TempFileCeiling is spec §5's "temp files older than 4 hours" bound.
const TempFileCeiling = 4 * time.Hour

// Result tallies what one sweep did, printed by the CLI and useful for
// tests.
type Result struct {
	LeasesReclaimed    int
	AssetsPoisoned     int
	StaleWorkersPruned int
	PoisonedRetried    int
	TempFilesRemoved   int
	TempFilesSkipped   int
}

// Sweep runs one maintenance pass. librarySlug empty means unscoped for
// the lease/worker/temp-file steps; RetryPoisoned always takes a slug
// since un-poisoning is scoped to one library's queue (spec §7 point 3).
func Sweep(ctx context.Context, st store.Store, dataDir, librarySlug string, retryPoisoned, dryRun bool) (Result, error) {
	var res Result

	// None of Reclaim/Prune/RetryPoisoned has a read-only preview form,
	// so --dry-run skips them entirely rather than reporting invented
	// counts; only the temp-file sweep (the one irreversible, disk-level
	// action) supports a real dry run.
	if !dryRun {
		reclaimed, poisoned, err := st.ReclaimExpiredLeases(ctx, time.Now())
		if err != nil {
			return res, fmt.Errorf("maintenance: reclaim expired leases: %w", err)
		}
		res.LeasesReclaimed, res.AssetsPoisoned = reclaimed, poisoned

		pruned, err := st.PruneStaleWorkers(ctx, StaleWorkerThreshold)
		if err != nil {
			return res, fmt.Errorf("maintenance: prune stale workers: %w", err)
		}
		res.StaleWorkersPruned = pruned

		if retryPoisoned {
			retried, err := st.RetryPoisoned(ctx, librarySlug)
			if err != nil {
				return res, fmt.Errorf("maintenance: retry poisoned: %w", err)
			}
			res.PoisonedRetried = retried
		}
	}

	removed, skipped, err := sweepTempFiles(ctx, st, dataDir, librarySlug, dryRun)
	if err != nil {
		return res, fmt.Errorf("maintenance: sweep temp files: %w", err)
	}
	res.TempFilesRemoved, res.TempFilesSkipped = removed, skipped

	return res, nil
}

// sweepTempFiles implements spec §9's open question literally: before
// deleting an old temp file, check whether this host itself is reported
// as actively transcoding. Cross-host coordination isn't specified, so
// the guard is hostname-only — if this host has no worker_status row
// claiming to be mid-transcode, its temp files older than the ceiling
// are fair game.
func sweepTempFiles(ctx context.Context, st store.Store, dataDir, librarySlug string, dryRun bool) (removed, skipped int, err error) {
	root := filepath.Join(dataDir, "tmp")
	if librarySlug != "" {
		root = filepath.Join(root, librarySlug)
	}
	if _, statErr := os.Stat(root); os.IsNotExist(statErr) {
		return 0, 0, nil
	}

	host, _ := os.Hostname()
	activeLocalTranscode, err := hostHasActiveTranscode(ctx, st, host)
	if err != nil {
		return 0, 0, err
	}

	cutoff := time.Now().Add(-TempFileCeiling)
	logger := log.WithComponent("maintenance")

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if activeLocalTranscode {
			skipped++
			return nil
		}
		if dryRun {
			removed++
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn().Str("path", path).Err(rmErr).Msg("failed to remove stale temp file")
			return nil
		}
		removed++
		return nil
	})
	if walkErr != nil {
		return removed, skipped, fmt.Errorf("walk %s: %w", root, walkErr)
	}
	return removed, skipped, nil
}

// hostHasActiveTranscode reports whether any video-proxy worker on host
// is currently in the processing state.
func hostHasActiveTranscode(ctx context.Context, st store.Store, host string) (bool, error) {
	statuses, err := st.ListWorkerStatuses(ctx)
	if err != nil {
		return false, fmt.Errorf("list worker statuses: %w", err)
	}
	for _, ws := range statuses {
		if ws.Hostname != host || ws.State != model.WorkerProcessing {
			continue
		}
		if strings.HasPrefix(ws.WorkerID, "video-proxy-") {
			return true, nil
		}
	}
	return false, nil
}
