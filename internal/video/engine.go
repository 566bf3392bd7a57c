package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/metrics"
	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/taxonomy"
)

// durationEpsilon is the completion-check slack from spec §4.5.1: the
// last observed PTS may trail the probed duration by this much and still
// count as a clean finish (container/container duration rounding).
const durationEpsilon = 1.5

// resumeOverlap is the 2-second overlap applied to the resume seek point
// to tolerate ffmpeg seek imprecision (spec §4.5.4 step 3).
const resumeOverlap = 2.0

// Engine ties the frame extractor, scene segmenter, and store checkpoint
// together into the resumable per-asset segmentation run (spec §4.5,
// generalizing the teacher's Runner+LineRing single-process pattern into
// a crash-resumable loop over many small transactions).
type Engine struct {
	Store      store.Store
	FFmpegBin  string
	FFprobeBin string
	DataDir    string
	Params     Params
	LeaseTTL   time.Duration
}

// NewEngine builds an Engine with spec-default segmentation parameters.
func NewEngine(st store.Store, ffmpegBin, ffprobeBin, dataDir string, leaseTTL time.Duration) *Engine {
	return &Engine{
		Store:      st,
		FFmpegBin:  ffmpegBin,
		FFprobeBin: ffprobeBin,
		DataDir:    dataDir,
		Params:     DefaultParams(),
		LeaseTTL:   leaseTTL,
	}
}

// InvalidateIfStale implements spec §4.5.5: if the asset's persisted
// segmentation_version differs from the engine's current version, its
// existing scenes and active state are discarded so segmentation starts
// clean. Assets with a nil version are legacy and left alone.
func (e *Engine) InvalidateIfStale(ctx context.Context, asset *model.Asset) (bool, error) {
	if asset.SegmentationVersion == nil {
		return false, nil
	}
	if *asset.SegmentationVersion == e.Params.Version() {
		return false, nil
	}
	if err := e.Store.InvalidateSegmentation(ctx, asset.ID); err != nil {
		return false, fmt.Errorf("video: invalidate stale segmentation: %w", err)
	}
	return true, nil
}

// Segment runs (or resumes) the frame extraction and scene segmentation
// loop for one video asset, persisting each closed scene in its own
// transaction (spec §5 "many small transactions"). sourcePath is the
// absolute path to the original file on the library's source root.
func (e *Engine) Segment(ctx context.Context, asset *model.Asset, sourcePath string, shouldStop func() bool) error {
	logger := log.WithComponent("video")

	dims, err := ProbeDimensions(ctx, e.FFprobeBin, sourcePath)
	if err != nil {
		return taxonomy.Tag(taxonomy.ClassCorrupt, err)
	}
	scaled := dims.ScaledSize()

	duration, err := ProbeDuration(ctx, e.FFprobeBin, sourcePath)
	if err != nil {
		return taxonomy.Tag(taxonomy.ClassCorrupt, err)
	}

	seekTo, resumeThreshold, segmenter, err := e.resumeState(ctx, asset.ID)
	if err != nil {
		return err
	}

	extractor, err := NewFrameExtractor(ctx, e.FFmpegBin, sourcePath, scaled, seekTo)
	if err != nil {
		return err
	}

	discarding := resumeThreshold > 0

	for {
		if shouldStop() {
			_ = extractor.Close(0, 0)
			return errStopped
		}

		frame, err := extractor.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if taxonomy.ClassOf(err) == taxonomy.ClassDesync {
				metrics.PhashDesyncTotal.Inc()
			}
			_ = extractor.Close(0, 0)
			return err
		}

		if discarding {
			if frame.PTS < resumeThreshold {
				continue
			}
			discarding = false
		}

		hash := ComputePHash(frame.RGB, scaled.Width, scaled.Height)
		sharp := Sharpness(frame.RGB, scaled.Width, scaled.Height)

		closed, active := segmenter.Process(frame.PTS, hash, sharp)
		if closed != nil {
			if err := e.persistScene(ctx, asset, sourcePath, closed, &active, false); err != nil {
				_ = extractor.Close(0, 0)
				return err
			}
		}
	}

	if err := extractor.Close(duration, durationEpsilon); err != nil {
		return err
	}

	endTS := extractor.LastPTS()
	if duration > endTS {
		endTS = duration
	}
	if final := segmenter.Flush(endTS); final != nil {
		if err := e.persistScene(ctx, asset, sourcePath, final, nil, true); err != nil {
			return err
		}
	}

	logger.Info().Int64("asset_id", asset.ID).Msg("video segmentation completed")
	return nil
}

// errStopped signals cooperative cancellation (spec §4.5 "should_stop").
// internal/videoproxy returns it unchanged; worker.Runner then sees
// shouldStop set and releases the lease instead of failing the asset.
var errStopped = errors.New("video: stopped cooperatively")

// IsStopped reports whether err is the cooperative-cancellation sentinel.
func IsStopped(err error) bool { return errors.Is(err, errStopped) }

func (e *Engine) resumeState(ctx context.Context, assetID int64) (seekTo, resumeThreshold float64, seg *Segmenter, err error) {
	m, err := e.Store.MaxSceneEndTS(ctx, assetID)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("video: resume max scene end: %w", err)
	}

	seg = NewSegmenter(e.Params)
	if m <= 0 {
		return 0, 0, seg, nil
	}

	active, err := e.Store.GetActiveState(ctx, assetID)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("video: resume load active state: %w", err)
	}
	if active != nil {
		seg.Prime(anchorFromModel(active), active.SceneStartTS, active.BestFrameTS, active.BestSharpness)
	}

	seekTo = m - resumeOverlap
	if seekTo < 0 {
		seekTo = 0
	}
	return seekTo, m, seg, nil
}

func (e *Engine) persistScene(ctx context.Context, asset *model.Asset, sourcePath string, closed *ClosedScene, active *ActiveSnapshot, final bool) error {
	repPath := ScenePath(asset.LibrarySlug, asset.ID, closed.StartTS, closed.EndTS)
	absPath := filepath.Join(e.DataDir, repPath)
	if err := ExtractRepFrame(ctx, e.FFmpegBin, sourcePath, absPath, closed.RepFramePTS); err != nil {
		return err
	}

	sc := store.SceneClose{
		Asset: model.VideoScene{
			AssetID:      asset.ID,
			StartTS:      closed.StartTS,
			EndTS:        closed.EndTS,
			RepFramePath: repPath,
			Sharpness:    closed.Sharpness,
			CloseReason:  model.CloseReason(closed.CloseReason),
		},
		LeaseTTL: e.LeaseTTL,
	}
	if !final && active != nil {
		next := &model.VideoActiveState{AssetID: asset.ID, SceneStartTS: active.SceneStartTS, BestFrameTS: active.BestFrameTS, BestSharpness: active.BestSharpness}
		anchorToModel(next, active.Anchor)
		sc.NextActiveState = next
	}

	if _, err := e.Store.CloseScene(ctx, asset.ID, sc); err != nil {
		return fmt.Errorf("video: persist scene close: %w", err)
	}
	metrics.ScenesClosedTotal.WithLabelValues(string(closed.CloseReason)).Inc()
	return nil
}
