package proxy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mediasearch/mediasearch/internal/ffmpegio"
	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/paths"
	"github.com/mediasearch/mediasearch/internal/store"
)

// Stage is the worker.Stage implementation for the "proxy" role (C4,
// spec §4.1, §11.5): claims pending image assets, runs the still-image
// cascade, and marks the asset proxied. Grounded on the teacher's
// per-role stage shape (e.g. internal/pipeline/worker's claim-then-act
// loop), narrowed to the image family — internal/videoproxy covers
// video. --repair is a distinct, non-claiming resetter pass
// (repair_scan.go), not a mode of this Stage, per spec §4.4's "it is
// only a resetter".
type Stage struct {
	Store      store.Store
	DataDir    string
	FFmpegBin  string
	FFprobeBin string
}

// Role identifies this stage in worker ids, logs, and metric labels.
func (s *Stage) Role() string { return "proxy" }

// ClaimParams restricts this stage to pending image assets.
func (s *Stage) ClaimParams(workerID string, leaseTTL time.Duration) store.ClaimParams {
	return store.ClaimParams{
		AcceptedStatuses: []model.AssetStatus{model.StatusPending},
		Kind:             model.KindImage,
		WorkerID:         workerID,
		LeaseTTL:         leaseTTL,
	}
}

// PriorStatus is what the asset reverts to if Process is interrupted.
func (s *Stage) PriorStatus(asset *model.Asset) model.AssetStatus {
	return model.StatusPending
}

// Process generates the proxy/thumbnail cascade for one image asset.
func (s *Stage) Process(ctx context.Context, asset *model.Asset, shouldStop func() bool) error {
	lib, err := s.Store.GetLibrary(ctx, asset.LibrarySlug, true)
	if err != nil {
		return fmt.Errorf("proxy: load library %s: %w", asset.LibrarySlug, err)
	}

	proxyAbs := filepath.Join(s.DataDir, paths.Proxy(asset.LibrarySlug, asset.ID))
	thumbAbs := filepath.Join(s.DataDir, paths.Thumbnail(asset.LibrarySlug, asset.ID))

	if shouldStop() {
		return context.Canceled
	}

	srcPath := filepath.Join(lib.SourceRoot, asset.RelPath)
	if err := ensureParentDirs(proxyAbs, thumbAbs); err != nil {
		return err
	}

	args, err := BuildStillArgs(StillSpec{SourcePath: srcPath, ProxyPath: proxyAbs, ThumbPath: thumbAbs})
	if err != nil {
		return err
	}

	proc, err := ffmpegio.Start(ctx, s.FFmpegBin, args, nil)
	if err != nil {
		return fmt.Errorf("proxy: start ffmpeg: %w", err)
	}
	go drainStdout(proc)
	if err := proc.Wait(); err != nil {
		return fmt.Errorf("proxy: cascade for %s: %w", asset.RelPath, err)
	}

	return s.Store.MarkProxied(ctx, asset.ID, "", nil)
}
