package videoproxy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mediasearch/mediasearch/internal/ffmpegio"
	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/paths"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/video"
)

// Stage is the worker.Stage implementation for the "video-proxy" role
// (C4, spec §4.4): transcodes once, derives a thumbnail and head-clip
// from the ephemeral transcode, then hands the *original* source to the
// Scene Engine so full-resolution representative frames are never
// limited by the 720p proxy.
type Stage struct {
	Store      store.Store
	Engine     *video.Engine
	DataDir    string
	FFmpegBin  string
	FFprobeBin string
}

// Role identifies this stage in worker ids, logs, and metric labels.
func (s *Stage) Role() string { return "video-proxy" }

// ClaimParams restricts this stage to pending video assets.
func (s *Stage) ClaimParams(workerID string, leaseTTL time.Duration) store.ClaimParams {
	return store.ClaimParams{
		AcceptedStatuses: []model.AssetStatus{model.StatusPending},
		Kind:             model.KindVideo,
		WorkerID:         workerID,
		LeaseTTL:         leaseTTL,
	}
}

// PriorStatus is what the asset reverts to if Process is interrupted.
func (s *Stage) PriorStatus(asset *model.Asset) model.AssetStatus {
	return model.StatusPending
}

// Process runs the full video proxy contract for one claimed asset.
func (s *Stage) Process(ctx context.Context, asset *model.Asset, shouldStop func() bool) error {
	logger := log.WithComponent("video-proxy")

	lib, err := s.Store.GetLibrary(ctx, asset.LibrarySlug, true)
	if err != nil {
		return fmt.Errorf("videoproxy: load library %s: %w", asset.LibrarySlug, err)
	}
	srcPath := filepath.Join(lib.SourceRoot, asset.RelPath)

	tmpRel := paths.Temp(asset.LibrarySlug, uuid.New().String()+".mp4")
	tmpAbs := filepath.Join(s.DataDir, tmpRel)
	if err := os.MkdirAll(filepath.Dir(tmpAbs), 0o755); err != nil {
		return fmt.Errorf("videoproxy: create tmp dir: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(tmpAbs); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn().Str("path", tmpAbs).Err(rmErr).Msg("videoproxy: failed to remove ephemeral transcode")
		}
	}()

	if shouldStop() {
		return context.Canceled
	}
	if err := s.runFFmpeg(ctx, BuildTranscodeArgs(srcPath, tmpAbs)); err != nil {
		return fmt.Errorf("videoproxy: transcode %s: %w", asset.RelPath, err)
	}

	if shouldStop() {
		return context.Canceled
	}

	thumbAbs := filepath.Join(s.DataDir, paths.Thumbnail(asset.LibrarySlug, asset.ID))
	headClipRel := paths.HeadClip(asset.LibrarySlug, asset.ID)
	headClipAbs := filepath.Join(s.DataDir, headClipRel)
	if err := os.MkdirAll(filepath.Dir(thumbAbs), 0o755); err != nil {
		return fmt.Errorf("videoproxy: create thumbnail dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(headClipAbs), 0o755); err != nil {
		return fmt.Errorf("videoproxy: create head-clip dir: %w", err)
	}

	// Thumbnail and head-clip each read the ephemeral transcode
	// independently, so they run concurrently (spec §4.4; the teacher's
	// pack uses errgroup for exactly this shape of independent,
	// error-collecting fan-out over one shared input).
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.runFFmpeg(gCtx, BuildThumbnailArgs(tmpAbs, thumbAbs))
	})
	g.Go(func() error {
		return s.runFFmpeg(gCtx, BuildHeadClipArgs(tmpAbs, headClipAbs))
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("videoproxy: derive thumbnail/head-clip for %s: %w", asset.RelPath, err)
	}

	if shouldStop() {
		return context.Canceled
	}

	if _, err := s.Engine.InvalidateIfStale(ctx, asset); err != nil {
		return err
	}
	if err := s.Engine.Segment(ctx, asset, srcPath, shouldStop); err != nil {
		return err
	}

	segVersion := s.Engine.Params.Version()
	return s.Store.MarkProxied(ctx, asset.ID, headClipRel, &segVersion)
}

func (s *Stage) runFFmpeg(ctx context.Context, args []string) error {
	proc, err := ffmpegio.Start(ctx, s.FFmpegBin, args, nil)
	if err != nil {
		return err
	}
	go func() { _, _ = io.Copy(io.Discard, proc.Stdout) }()
	return proc.Wait()
}
