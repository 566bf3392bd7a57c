package visionstage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mediasearch/mediasearch/internal/analyzer"
	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
)

// modelIDKey is the key the scene's Metadata JSON blob carries the
// model id under that produced its description+tags (spec §4.5.6 rule 2
// needs per-scene model tracking; VideoScene has no dedicated column
// for it, so it rides along in the same free-form map as ocr_text).
const modelIDKey = "model_id"
const ocrTextKey = "ocr_text"
const tagsKey = "tags"

// VideoStage is the AI stage for video (spec §4.5.6, `ai video`): claims
// videos in proxied/analyzed_light status that already have scenes (the
// video-proxy stage always produces at least one scene before handing
// off), and applies the vision pass to each scene's representative frame
// under the strict merge policy.
type VideoStage struct {
	Store    store.Store
	Analyzer analyzer.Analyzer
	ModelID  int64
	Mode     Mode
	DataDir  string
}

func (s *VideoStage) Role() string {
	if s.Mode == ModeFull {
		return "ai-video-full"
	}
	return "ai-video-light"
}

func (s *VideoStage) ClaimParams(workerID string, leaseTTL time.Duration) store.ClaimParams {
	status := model.StatusProxied
	if s.Mode == ModeFull {
		status = model.StatusAnalyzedLight
	}
	return store.ClaimParams{
		AcceptedStatuses: []model.AssetStatus{status},
		Kind:             model.KindVideo,
		ModelID:          &s.ModelID,
		WorkerID:         workerID,
		LeaseTTL:         leaseTTL,
	}
}

func (s *VideoStage) PriorStatus(asset *model.Asset) model.AssetStatus {
	if s.Mode == ModeFull {
		return model.StatusAnalyzedLight
	}
	return model.StatusProxied
}

func (s *VideoStage) Process(ctx context.Context, asset *model.Asset, shouldStop func() bool) error {
	if err := s.Mode.validate(); err != nil {
		return err
	}
	scenes, err := s.Store.ListScenes(ctx, asset.ID)
	if err != nil {
		return fmt.Errorf("visionstage: list scenes for asset %d: %w", asset.ID, err)
	}
	if len(scenes) == 0 {
		return fmt.Errorf("visionstage: asset %d has no scenes to analyze", asset.ID)
	}

	for _, scene := range scenes {
		if shouldStop() {
			return ctx.Err()
		}
		if err := s.processScene(ctx, scene); err != nil {
			return err
		}
	}

	// Rule 4: before transitioning, verify every scene carries the
	// fields this mode expects; rerun whichever pass is missing rather
	// than transitioning with a partially analyzed asset.
	fresh, err := s.Store.ListScenes(ctx, asset.ID)
	if err != nil {
		return fmt.Errorf("visionstage: re-read scenes for asset %d: %w", asset.ID, err)
	}
	for _, scene := range fresh {
		if !sceneComplete(scene, s.Mode) {
			log.WithComponent(s.Role()).Warn().Int64("asset_id", asset.ID).Int64("scene_id", scene.ID).
				Msg("scene incomplete after pass, rerunning")
			if err := s.processScene(ctx, scene); err != nil {
				return err
			}
		}
	}

	if s.Mode == ModeFull {
		return s.Store.MarkCompleted(ctx, asset.ID, s.ModelID)
	}
	return s.Store.MarkAnalyzedLight(ctx, asset.ID, s.ModelID)
}

// processScene applies one scene's vision pass and writes it back.
func (s *VideoStage) processScene(ctx context.Context, scene *model.VideoScene) error {
	framePath := filepath.Join(s.DataDir, scene.RepFramePath)

	// Rule 1: re-read the scene's metadata from the database just
	// before writing; never overlay against the stale copy the caller
	// is iterating over.
	fresh, err := s.sceneByID(ctx, scene.AssetID, scene.ID)
	if err != nil {
		return err
	}

	storedModelID, _ := fresh.Metadata[modelIDKey].(float64)
	modelMatches := int64(storedModelID) == s.ModelID && fresh.Metadata[modelIDKey] != nil

	// Rule 2: a stale model id means merge, not rerun-on-top-of-merge —
	// the light pass runs fresh instead.
	if s.Mode == ModeLight || !modelMatches {
		result, err := s.Analyzer.Describe(ctx, framePath)
		if err != nil {
			return fmt.Errorf("visionstage: describe scene %d: %w", scene.ID, err)
		}
		meta := cloneMeta(fresh.Metadata)
		meta[modelIDKey] = s.ModelID
		meta[tagsKey] = result.Tags
		delete(meta, ocrTextKey) // a rerun light pass invalidates any prior OCR
		if err := s.Store.UpdateSceneMetadata(ctx, scene.ID, &result.Description, meta); err != nil {
			return fmt.Errorf("visionstage: write light metadata for scene %d: %w", scene.ID, err)
		}
		if s.Mode == ModeLight {
			return nil
		}
		// Full mode continuing past a forced rerun: re-read once more
		// so the OCR write below merges against what was just stored.
		fresh, err = s.sceneByID(ctx, scene.AssetID, scene.ID)
		if err != nil {
			return err
		}
	}

	if s.Mode == ModeLight {
		return nil
	}

	// Rule 3: full mode only ever adds ocr_text, never touching the
	// description/tags a light pass already wrote.
	ocrText, err := s.Analyzer.OCR(ctx, framePath)
	if err != nil {
		return fmt.Errorf("visionstage: ocr scene %d: %w", scene.ID, err)
	}
	meta := cloneMeta(fresh.Metadata)
	meta[ocrTextKey] = ocrText
	return s.Store.UpdateSceneMetadata(ctx, scene.ID, fresh.Description, meta)
}

func (s *VideoStage) sceneByID(ctx context.Context, assetID, sceneID int64) (*model.VideoScene, error) {
	scenes, err := s.Store.ListScenes(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("visionstage: re-read scene %d: %w", sceneID, err)
	}
	for _, sc := range scenes {
		if sc.ID == sceneID {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("visionstage: scene %d vanished from asset %d", sceneID, assetID)
}

func sceneComplete(scene *model.VideoScene, mode Mode) bool {
	if scene.Description == nil || scene.Metadata[tagsKey] == nil {
		return false
	}
	if mode == ModeFull {
		if _, ok := scene.Metadata[ocrTextKey]; !ok {
			return false
		}
	}
	return true
}

func cloneMeta(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+2)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
