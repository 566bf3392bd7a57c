package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
)

// Claim approximates the Postgres SKIP LOCKED claim with a single
// writer-serialized transaction: since this backend caps the pool at
// one connection, "skip locked rows" degenerates to "there is only ever
// one claimant in flight", which preserves the same external contract
// for local development and tests (spec §10.3 non-concurrency caveat).
func (s *Store) Claim(ctx context.Context, params store.ClaimParams) (*model.Asset, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: begin claim tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(params.AcceptedStatuses))
	args := []any{}
	for i, st := range params.AcceptedStatuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	q := fmt.Sprintf(`SELECT id, retry_count FROM assets WHERE status IN (%s) AND kind = ?`, strings.Join(placeholders, ","))
	args = append(args, string(params.Kind))
	if params.LibrarySlug != "" {
		q += ` AND library_slug = ?`
		args = append(args, params.LibrarySlug)
	}
	if params.ModelID != nil {
		q += ` AND COALESCE(
			(SELECT target_model_id FROM libraries WHERE libraries.slug = assets.library_slug),
			(SELECT CAST(value AS INTEGER) FROM system_metadata WHERE key = 'default_ai_model_id')
		) = ?`
		args = append(args, *params.ModelID)
	}
	q += ` ORDER BY id LIMIT 1`

	var id int64
	var retryCount int
	err = tx.QueryRowContext(ctx, q, args...).Scan(&id, &retryCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNoWork
		}
		return nil, fmt.Errorf("sqlitestore: select claimable asset: %w", err)
	}

	leaseExpires := time.Now().Add(params.LeaseTTL).UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		UPDATE assets SET status = 'processing', worker_id = ?, lease_expires_at = ?,
		                   retry_count = retry_count + 1, error_message = ''
		WHERE id = ?`, params.WorkerID, leaseExpires, id)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: claim update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: commit claim: %w", err)
	}
	return s.GetAsset(ctx, id)
}

func (s *Store) RenewLease(ctx context.Context, assetID int64, workerID string, ttl time.Duration) error {
	leaseExpires := time.Now().Add(ttl).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE assets SET lease_expires_at = ? WHERE id = ? AND worker_id = ? AND status = 'processing'`,
		leaseExpires, assetID, workerID)
	if err != nil {
		return fmt.Errorf("sqlitestore: renew lease: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) ReclaimExpiredLeases(ctx context.Context, now time.Time) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlitestore: begin reclaim tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, retry_count, segmentation_version, analysis_model_id, tags_model_id
		FROM assets WHERE status = 'processing' AND lease_expires_at < ?`, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, 0, fmt.Errorf("sqlitestore: select expired leases: %w", err)
	}
	type row struct {
		id                     int64
		retryCount             int
		segVersion             *string
		analysisID, tagsID     *int64
	}
	var expired []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.retryCount, &r.segVersion, &r.analysisID, &r.tagsID); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("sqlitestore: scan expired lease: %w", err)
		}
		expired = append(expired, r)
	}
	rows.Close()

	reclaimed, poisoned := 0, 0
	for _, r := range expired {
		if r.retryCount > model.MaxRetries {
			if _, err := tx.ExecContext(ctx, `
				UPDATE assets SET status = 'poisoned', worker_id = '', lease_expires_at = NULL,
				                  error_message = 'lease expired, retry cap exceeded' WHERE id = ?`, r.id); err != nil {
				return reclaimed, poisoned, fmt.Errorf("sqlitestore: poison asset %d: %w", r.id, err)
			}
			poisoned++
			continue
		}
		priorStatus := model.StatusPending
		switch {
		case r.analysisID != nil:
			priorStatus = model.StatusAnalyzedLight
		case r.tagsID != nil, r.segVersion != nil:
			priorStatus = model.StatusProxied
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE assets SET status = ?, worker_id = '', lease_expires_at = NULL,
			                  error_message = 'lease expired, reclaimed' WHERE id = ?`,
			string(priorStatus), r.id); err != nil {
			return reclaimed, poisoned, fmt.Errorf("sqlitestore: reclaim asset %d: %w", r.id, err)
		}
		reclaimed++
	}
	return reclaimed, poisoned, tx.Commit()
}

func (s *Store) MarkProxied(ctx context.Context, assetID int64, previewPath string, segVersion *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assets SET status = 'proxied', preview_path = ?, segmentation_version = ?,
		                   worker_id = '', lease_expires_at = NULL, retry_count = 0 WHERE id = ?`,
		previewPath, segVersion, assetID)
	if err != nil {
		return fmt.Errorf("sqlitestore: mark proxied: %w", err)
	}
	return nil
}

func (s *Store) MarkAnalyzedLight(ctx context.Context, assetID int64, modelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assets SET status = 'analyzed_light', tags_model_id = ?,
		                   worker_id = '', lease_expires_at = NULL, retry_count = 0 WHERE id = ?`,
		modelID, assetID)
	if err != nil {
		return fmt.Errorf("sqlitestore: mark analyzed_light: %w", err)
	}
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, assetID int64, modelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assets SET status = 'completed', analysis_model_id = ?,
		                   worker_id = '', lease_expires_at = NULL, retry_count = 0 WHERE id = ?`,
		modelID, assetID)
	if err != nil {
		return fmt.Errorf("sqlitestore: mark completed: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, assetID int64, errMsg string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: begin mark failed tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE assets SET status = 'failed', error_message = ?, worker_id = '', lease_expires_at = NULL
		WHERE id = ?`, errMsg, assetID); err != nil {
		return false, fmt.Errorf("sqlitestore: mark failed: %w", err)
	}
	var retryCount int
	if err := tx.QueryRowContext(ctx, `SELECT retry_count FROM assets WHERE id = ?`, assetID).Scan(&retryCount); err != nil {
		return false, fmt.Errorf("sqlitestore: read retry count: %w", err)
	}
	if retryCount > model.MaxRetries {
		if _, err := tx.ExecContext(ctx, `UPDATE assets SET status = 'poisoned' WHERE id = ?`, assetID); err != nil {
			return false, fmt.Errorf("sqlitestore: poison after cap: %w", err)
		}
		return true, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE assets SET status = 'pending' WHERE id = ?`, assetID); err != nil {
		return false, fmt.Errorf("sqlitestore: return to pending: %w", err)
	}
	return false, tx.Commit()
}

func (s *Store) ReleaseBackToPriorStatus(ctx context.Context, assetID int64, priorStatus model.AssetStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assets SET status = ?, worker_id = '', lease_expires_at = NULL,
		                   retry_count = MAX(retry_count - 1, 0) WHERE id = ?`, string(priorStatus), assetID)
	if err != nil {
		return fmt.Errorf("sqlitestore: release back to prior status: %w", err)
	}
	return nil
}

const assetColumns = `id, library_slug, rel_path, kind, mtime, size, status, tags_model_id,
		       analysis_model_id, error_message, worker_id, lease_expires_at, retry_count,
		       preview_path, segmentation_version, description, tags, ocr_text`

func (s *Store) GetAsset(ctx context.Context, assetID int64) (*model.Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, assetID)
	a, err := scanAssetRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitestore: get asset: %w", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssetRow(row rowScanner) (*model.Asset, error) {
	var a model.Asset
	var kind, status string
	var leaseExpires *string
	var tagsJSON *string
	err := row.Scan(&a.ID, &a.LibrarySlug, &a.RelPath, &kind, &a.MTime, &a.Size, &status,
		&a.TagsModelID, &a.AnalysisModelID, &a.ErrorMessage, &a.WorkerID, &leaseExpires,
		&a.RetryCount, &a.PreviewPath, &a.SegmentationVersion,
		&a.Description, &tagsJSON, &a.OCRText)
	if err != nil {
		return nil, err
	}
	a.Kind = model.MediaKind(kind)
	a.Status = model.AssetStatus(status)
	a.LeaseExpiresAt = parseTime(leaseExpires)
	if tagsJSON != nil {
		if err := json.Unmarshal([]byte(*tagsJSON), &a.Tags); err != nil {
			return nil, fmt.Errorf("sqlitestore: decode asset tags: %w", err)
		}
	}
	return &a, nil
}

// UpdateAssetMetadata writes the image vision pass's merge result; nil
// fields are left untouched (COALESCE keeps the existing column value).
func (s *Store) UpdateAssetMetadata(ctx context.Context, assetID int64, description *string, tags []string, ocrText *string) error {
	var tagsJSON *string
	if tags != nil {
		b, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("sqlitestore: encode asset tags: %w", err)
		}
		s := string(b)
		tagsJSON = &s
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE assets SET description = COALESCE(?, description),
		                   tags = COALESCE(?, tags),
		                   ocr_text = COALESCE(?, ocr_text)
		WHERE id = ?`, description, tagsJSON, ocrText, assetID)
	if err != nil {
		return fmt.Errorf("sqlitestore: update asset metadata: %w", err)
	}
	return nil
}

func (s *Store) ListAssets(ctx context.Context, librarySlug string, status *model.AssetStatus, limit int) ([]*model.Asset, error) {
	q := `SELECT ` + assetColumns + ` FROM assets WHERE 1=1`
	var args []any
	if librarySlug != "" {
		q += ` AND library_slug = ?`
		args = append(args, librarySlug)
	}
	if status != nil {
		q += ` AND status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list assets: %w", err)
	}
	defer rows.Close()

	var out []*model.Asset
	for rows.Next() {
		a, err := scanAssetRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan listed asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CountAssetsByStatus(ctx context.Context, librarySlug string) (store.StatusCounts, error) {
	q := `SELECT status, count(*) FROM assets WHERE 1=1`
	var args []any
	if librarySlug != "" {
		q += ` AND library_slug = ?`
		args = append(args, librarySlug)
	}
	q += ` GROUP BY status`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: count assets: %w", err)
	}
	defer rows.Close()

	out := store.StatusCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan status count: %w", err)
		}
		out[model.AssetStatus(status)] = n
	}
	return out, rows.Err()
}

func (s *Store) ResetAssetsToPending(ctx context.Context, assetIDs []int64) error {
	if len(assetIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(assetIDs))
	args := make([]any, len(assetIDs))
	for i, id := range assetIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	q := fmt.Sprintf(`UPDATE assets SET status = 'pending', worker_id = '', lease_expires_at = NULL WHERE id IN (%s)`,
		strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("sqlitestore: reset assets to pending: %w", err)
	}
	return nil
}

func (s *Store) RetryPoisoned(ctx context.Context, librarySlug string) (int, error) {
	q := `UPDATE assets SET status = 'pending', retry_count = 0, error_message = '' WHERE status = 'poisoned'`
	var args []any
	if librarySlug != "" {
		q += ` AND library_slug = ?`
		args = append(args, librarySlug)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: retry poisoned: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
