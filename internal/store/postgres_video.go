package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mediasearch/mediasearch/internal/model"
)

// CloseScene commits the atomic scene-close transaction from spec
// §4.5.4: insert the closed scene, upsert (or delete) the active
// checkpoint, and renew the asset's lease, in one transaction so a
// crash between any two of these steps cannot happen.
func (p *Postgres) CloseScene(ctx context.Context, assetID int64, sc SceneClose) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: begin scene close tx: %w", err)
	}
	defer tx.Rollback(ctx)

	metaJSON, err := json.Marshal(sc.Asset.Metadata)
	if err != nil {
		return 0, fmt.Errorf("store: marshal scene metadata: %w", err)
	}

	var sceneID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO video_scenes (asset_id, start_ts, end_ts, rep_frame_path, sharpness, close_reason, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		assetID, sc.Asset.StartTS, sc.Asset.EndTS, sc.Asset.RepFramePath, sc.Asset.Sharpness,
		string(sc.Asset.CloseReason), sc.Asset.Description, metaJSON).Scan(&sceneID)
	if err != nil {
		return 0, fmt.Errorf("store: insert scene: %w", err)
	}

	if sc.NextActiveState != nil {
		a := sc.NextActiveState
		_, err = tx.Exec(ctx, `
			INSERT INTO video_active_state
				(asset_id, anchor_phash_0, anchor_phash_1, anchor_phash_2, anchor_phash_3,
				 scene_start_ts, best_frame_ts, best_sharpness)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (asset_id) DO UPDATE SET
				anchor_phash_0 = EXCLUDED.anchor_phash_0, anchor_phash_1 = EXCLUDED.anchor_phash_1,
				anchor_phash_2 = EXCLUDED.anchor_phash_2, anchor_phash_3 = EXCLUDED.anchor_phash_3,
				scene_start_ts = EXCLUDED.scene_start_ts, best_frame_ts = EXCLUDED.best_frame_ts,
				best_sharpness = EXCLUDED.best_sharpness`,
			assetID, phashWord(a, 0), phashWord(a, 1), phashWord(a, 2), phashWord(a, 3),
			a.SceneStartTS, a.BestFrameTS, a.BestSharpness)
		if err != nil {
			return 0, fmt.Errorf("store: upsert active state: %w", err)
		}
	} else {
		_, err = tx.Exec(ctx, `DELETE FROM video_active_state WHERE asset_id = $1`, assetID)
		if err != nil {
			return 0, fmt.Errorf("store: delete active state: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE assets SET lease_expires_at = now() + ($2 || ' seconds')::interval
		WHERE id = $1 AND status = 'processing'`, assetID, int64(sc.LeaseTTL/time.Second))
	if err != nil {
		return 0, fmt.Errorf("store: renew lease on scene close: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit scene close tx: %w", err)
	}
	return sceneID, nil
}

func (p *Postgres) GetActiveState(ctx context.Context, assetID int64) (*model.VideoActiveState, error) {
	var w0, w1, w2, w3 uint64
	var s model.VideoActiveState
	err := p.pool.QueryRow(ctx, `
		SELECT asset_id, anchor_phash_0, anchor_phash_1, anchor_phash_2, anchor_phash_3,
		       scene_start_ts, best_frame_ts, best_sharpness
		FROM video_active_state WHERE asset_id = $1`, assetID).
		Scan(&s.AssetID, &w0, &w1, &w2, &w3, &s.SceneStartTS, &s.BestFrameTS, &s.BestSharpness)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get active state: %w", err)
	}
	setPHashWords(&s, w0, w1, w2, w3)
	return &s, nil
}

func (p *Postgres) MaxSceneEndTS(ctx context.Context, assetID int64) (float64, error) {
	var maxTS *float64
	err := p.pool.QueryRow(ctx, `SELECT max(end_ts) FROM video_scenes WHERE asset_id = $1`, assetID).Scan(&maxTS)
	if err != nil {
		return 0, fmt.Errorf("store: max scene end ts: %w", err)
	}
	if maxTS == nil {
		return 0, nil
	}
	return *maxTS, nil
}

func (p *Postgres) ListScenes(ctx context.Context, assetID int64) ([]*model.VideoScene, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, asset_id, start_ts, end_ts, rep_frame_path, sharpness, close_reason, description, metadata
		FROM video_scenes WHERE asset_id = $1 ORDER BY start_ts`, assetID)
	if err != nil {
		return nil, fmt.Errorf("store: list scenes: %w", err)
	}
	defer rows.Close()

	var out []*model.VideoScene
	for rows.Next() {
		var sc model.VideoScene
		var closeReason string
		var metaJSON []byte
		if err := rows.Scan(&sc.ID, &sc.AssetID, &sc.StartTS, &sc.EndTS, &sc.RepFramePath,
			&sc.Sharpness, &closeReason, &sc.Description, &metaJSON); err != nil {
			return nil, fmt.Errorf("store: scan scene: %w", err)
		}
		sc.CloseReason = model.CloseReason(closeReason)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &sc.Metadata); err != nil {
				return nil, fmt.Errorf("store: unmarshal scene metadata: %w", err)
			}
		}
		out = append(out, &sc)
	}
	return out, rows.Err()
}

// InvalidateSegmentation discards all scenes and checkpoint state for an
// asset whose segmentation parameters changed (spec §4.5 "parameter
// invalidation"), forcing a clean re-segment from t=0.
func (p *Postgres) InvalidateSegmentation(ctx context.Context, assetID int64) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin invalidate tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM video_scenes WHERE asset_id = $1`, assetID); err != nil {
		return fmt.Errorf("store: delete scenes: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM video_active_state WHERE asset_id = $1`, assetID); err != nil {
		return fmt.Errorf("store: delete active state: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE assets SET segmentation_version = NULL, preview_path = '' WHERE id = $1`, assetID); err != nil {
		return fmt.Errorf("store: clear segmentation version: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) UpdateSceneMetadata(ctx context.Context, sceneID int64, description *string, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("store: marshal scene metadata: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		UPDATE video_scenes SET description = $2, metadata = $3 WHERE id = $1`,
		sceneID, description, metaJSON)
	if err != nil {
		return fmt.Errorf("store: update scene metadata: %w", err)
	}
	return nil
}
