package visionstage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mediasearch/mediasearch/internal/analyzer"
	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/paths"
	"github.com/mediasearch/mediasearch/internal/store"
)

// ImageStage is the AI stage for images (spec §4.5.6, `ai start`):
// light mode claims proxied images and writes description+tags from the
// proxy JPEG/WebP; full mode claims analyzed_light images and adds
// ocr_text, never touching description/tags.
type ImageStage struct {
	Store    store.Store
	Analyzer analyzer.Analyzer
	ModelID  int64
	Mode     Mode
	DataDir  string
}

func (s *ImageStage) Role() string {
	if s.Mode == ModeFull {
		return "ai-full"
	}
	return "ai-light"
}

func (s *ImageStage) ClaimParams(workerID string, leaseTTL time.Duration) store.ClaimParams {
	status := model.StatusProxied
	if s.Mode == ModeFull {
		status = model.StatusAnalyzedLight
	}
	return store.ClaimParams{
		AcceptedStatuses: []model.AssetStatus{status},
		Kind:             model.KindImage,
		ModelID:          &s.ModelID,
		WorkerID:         workerID,
		LeaseTTL:         leaseTTL,
	}
}

func (s *ImageStage) PriorStatus(asset *model.Asset) model.AssetStatus {
	if s.Mode == ModeFull {
		return model.StatusAnalyzedLight
	}
	return model.StatusProxied
}

func (s *ImageStage) Process(ctx context.Context, asset *model.Asset, shouldStop func() bool) error {
	if err := s.Mode.validate(); err != nil {
		return err
	}
	framePath := filepath.Join(s.DataDir, paths.Proxy(asset.LibrarySlug, asset.ID))

	if shouldStop() {
		return ctx.Err()
	}

	if s.Mode == ModeLight {
		result, err := s.Analyzer.Describe(ctx, framePath)
		if err != nil {
			return fmt.Errorf("visionstage: describe asset %d: %w", asset.ID, err)
		}
		if err := s.Store.UpdateAssetMetadata(ctx, asset.ID, &result.Description, result.Tags, nil); err != nil {
			return fmt.Errorf("visionstage: write light metadata for asset %d: %w", asset.ID, err)
		}
		return s.Store.MarkAnalyzedLight(ctx, asset.ID, s.ModelID)
	}

	// Full mode. Re-read just before deciding what to do (rule 1): the
	// asset this worker claimed may have been tagged by a different
	// model version than the one currently loaded.
	fresh, err := s.Store.GetAsset(ctx, asset.ID)
	if err != nil {
		return fmt.Errorf("visionstage: re-read asset %d: %w", asset.ID, err)
	}
	if fresh.TagsModelID == nil || *fresh.TagsModelID != s.ModelID {
		log.WithComponent(s.Role()).Warn().Int64("asset_id", asset.ID).Msg("light pass model mismatch, rerunning")
		result, err := s.Analyzer.Describe(ctx, framePath)
		if err != nil {
			return fmt.Errorf("visionstage: rerun describe asset %d: %w", asset.ID, err)
		}
		if err := s.Store.UpdateAssetMetadata(ctx, asset.ID, &result.Description, result.Tags, nil); err != nil {
			return fmt.Errorf("visionstage: write rerun metadata for asset %d: %w", asset.ID, err)
		}
		if err := s.Store.MarkAnalyzedLight(ctx, asset.ID, s.ModelID); err != nil {
			return fmt.Errorf("visionstage: mark analyzed_light after rerun for asset %d: %w", asset.ID, err)
		}
	}

	if shouldStop() {
		return ctx.Err()
	}

	ocrText, err := s.Analyzer.OCR(ctx, framePath)
	if err != nil {
		return fmt.Errorf("visionstage: ocr asset %d: %w", asset.ID, err)
	}
	// rule 3: full mode only ever writes ocr_text, nil description/tags
	// so UpdateAssetMetadata's COALESCE leaves the light pass's fields alone.
	if err := s.Store.UpdateAssetMetadata(ctx, asset.ID, nil, nil, &ocrText); err != nil {
		return fmt.Errorf("visionstage: write ocr_text for asset %d: %w", asset.ID, err)
	}
	return s.Store.MarkCompleted(ctx, asset.ID, s.ModelID)
}
