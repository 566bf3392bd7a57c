package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
)

func (s *Store) CloseScene(ctx context.Context, assetID int64, sc store.SceneClose) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: begin scene close tx: %w", err)
	}
	defer tx.Rollback()

	metaJSON, err := json.Marshal(sc.Asset.Metadata)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: marshal scene metadata: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO video_scenes (asset_id, start_ts, end_ts, rep_frame_path, sharpness, close_reason, description, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		assetID, sc.Asset.StartTS, sc.Asset.EndTS, sc.Asset.RepFramePath, sc.Asset.Sharpness,
		string(sc.Asset.CloseReason), sc.Asset.Description, string(metaJSON))
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: insert scene: %w", err)
	}
	sceneID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: scene last insert id: %w", err)
	}

	if sc.NextActiveState != nil {
		a := sc.NextActiveState
		_, err = tx.ExecContext(ctx, `
			INSERT INTO video_active_state
				(asset_id, anchor_phash_0, anchor_phash_1, anchor_phash_2, anchor_phash_3,
				 scene_start_ts, best_frame_ts, best_sharpness)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(asset_id) DO UPDATE SET
				anchor_phash_0 = excluded.anchor_phash_0, anchor_phash_1 = excluded.anchor_phash_1,
				anchor_phash_2 = excluded.anchor_phash_2, anchor_phash_3 = excluded.anchor_phash_3,
				scene_start_ts = excluded.scene_start_ts, best_frame_ts = excluded.best_frame_ts,
				best_sharpness = excluded.best_sharpness`,
			assetID, phashWord(a, 0), phashWord(a, 1), phashWord(a, 2), phashWord(a, 3),
			a.SceneStartTS, a.BestFrameTS, a.BestSharpness)
		if err != nil {
			return 0, fmt.Errorf("sqlitestore: upsert active state: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `DELETE FROM video_active_state WHERE asset_id = ?`, assetID); err != nil {
			return 0, fmt.Errorf("sqlitestore: delete active state: %w", err)
		}
	}

	leaseExpires := time.Now().Add(sc.LeaseTTL).UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		UPDATE assets SET lease_expires_at = ? WHERE id = ? AND status = 'processing'`,
		leaseExpires, assetID); err != nil {
		return 0, fmt.Errorf("sqlitestore: renew lease on scene close: %w", err)
	}

	return sceneID, tx.Commit()
}

func (s *Store) GetActiveState(ctx context.Context, assetID int64) (*model.VideoActiveState, error) {
	var v model.VideoActiveState
	var w0, w1, w2, w3 uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT asset_id, anchor_phash_0, anchor_phash_1, anchor_phash_2, anchor_phash_3,
		       scene_start_ts, best_frame_ts, best_sharpness
		FROM video_active_state WHERE asset_id = ?`, assetID).
		Scan(&v.AssetID, &w0, &w1, &w2, &w3, &v.SceneStartTS, &v.BestFrameTS, &v.BestSharpness)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlitestore: get active state: %w", err)
	}
	setPHashWords(&v, w0, w1, w2, w3)
	return &v, nil
}

func (s *Store) MaxSceneEndTS(ctx context.Context, assetID int64) (float64, error) {
	var maxTS sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT max(end_ts) FROM video_scenes WHERE asset_id = ?`, assetID).Scan(&maxTS)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: max scene end ts: %w", err)
	}
	return maxTS.Float64, nil
}

func (s *Store) ListScenes(ctx context.Context, assetID int64) ([]*model.VideoScene, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_id, start_ts, end_ts, rep_frame_path, sharpness, close_reason, description, metadata
		FROM video_scenes WHERE asset_id = ? ORDER BY start_ts`, assetID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list scenes: %w", err)
	}
	defer rows.Close()

	var out []*model.VideoScene
	for rows.Next() {
		var sc model.VideoScene
		var closeReason string
		var metaJSON *string
		if err := rows.Scan(&sc.ID, &sc.AssetID, &sc.StartTS, &sc.EndTS, &sc.RepFramePath,
			&sc.Sharpness, &closeReason, &sc.Description, &metaJSON); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan scene: %w", err)
		}
		sc.CloseReason = model.CloseReason(closeReason)
		if metaJSON != nil && *metaJSON != "" {
			if err := json.Unmarshal([]byte(*metaJSON), &sc.Metadata); err != nil {
				return nil, fmt.Errorf("sqlitestore: unmarshal scene metadata: %w", err)
			}
		}
		out = append(out, &sc)
	}
	return out, rows.Err()
}

func (s *Store) InvalidateSegmentation(ctx context.Context, assetID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin invalidate tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM video_scenes WHERE asset_id = ?`, assetID); err != nil {
		return fmt.Errorf("sqlitestore: delete scenes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM video_active_state WHERE asset_id = ?`, assetID); err != nil {
		return fmt.Errorf("sqlitestore: delete active state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE assets SET segmentation_version = NULL, preview_path = '' WHERE id = ?`, assetID); err != nil {
		return fmt.Errorf("sqlitestore: clear segmentation version: %w", err)
	}
	return tx.Commit()
}

func (s *Store) UpdateSceneMetadata(ctx context.Context, sceneID int64, description *string, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal scene metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE video_scenes SET description = ?, metadata = ? WHERE id = ?`,
		description, string(metaJSON), sceneID)
	if err != nil {
		return fmt.Errorf("sqlitestore: update scene metadata: %w", err)
	}
	return nil
}

func phashWord(v *model.VideoActiveState, i int) uint64 { return v.AnchorPHash[i] }

func setPHashWords(v *model.VideoActiveState, w0, w1, w2, w3 uint64) {
	v.AnchorPHash[0] = w0
	v.AnchorPHash[1] = w1
	v.AnchorPHash[2] = w2
	v.AnchorPHash[3] = w3
}
