package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mediasearch/mediasearch/internal/model"
)

// Claim is the heart of the Queue/Lease Engine (spec §4.1): select one
// eligible row with FOR UPDATE SKIP LOCKED, then mutate it, in a single
// statement so the select and update can never be observed as two
// operations by a competing worker.
func (p *Postgres) Claim(ctx context.Context, params ClaimParams) (*model.Asset, error) {
	statuses := make([]string, len(params.AcceptedStatuses))
	for i, s := range params.AcceptedStatuses {
		statuses[i] = string(s)
	}

	var conds []string
	args := []any{statuses, string(params.Kind)}
	conds = append(conds, "status = ANY($1)", "kind = $2")

	argN := 3
	if params.LibrarySlug != "" {
		conds = append(conds, fmt.Sprintf("library_slug = $%d", argN))
		args = append(args, params.LibrarySlug)
		argN++
	}
	if params.ModelID != nil {
		conds = append(conds, fmt.Sprintf(`(
			COALESCE((SELECT target_model_id FROM libraries WHERE libraries.slug = assets.library_slug),
			         (SELECT value::bigint FROM system_metadata WHERE key = 'default_ai_model_id')) = $%d
		)`, argN))
		args = append(args, *params.ModelID)
		argN++
	}
	leaseArg := argN
	args = append(args, params.LeaseTTL)
	argN++
	workerArg := argN
	args = append(args, params.WorkerID)

	query := fmt.Sprintf(`
		WITH cte AS (
			SELECT id FROM assets
			WHERE %s
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE assets SET
			status = 'processing',
			worker_id = $%d,
			lease_expires_at = now() + ($%d || ' seconds')::interval,
			retry_count = retry_count + 1,
			error_message = ''
		FROM cte WHERE assets.id = cte.id
		RETURNING assets.id, assets.library_slug, assets.rel_path, assets.kind, assets.mtime,
		          assets.size, assets.status, assets.tags_model_id, assets.analysis_model_id,
		          assets.error_message, assets.worker_id, assets.lease_expires_at,
		          assets.retry_count, assets.preview_path, assets.segmentation_version,
		          assets.description, assets.tags, assets.ocr_text`,
		strings.Join(conds, " AND "), workerArg, leaseArg)

	// lease TTL passed as seconds for the interval literal
	args[leaseArg-1] = int64(params.LeaseTTL / time.Second)

	row := p.pool.QueryRow(ctx, query, args...)
	a, err := scanAsset(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoWork
		}
		return nil, fmt.Errorf("store: claim: %w", err)
	}
	return a, nil
}

func scanAsset(row pgx.Row) (*model.Asset, error) {
	var a model.Asset
	var kind string
	var status string
	var tagsJSON []byte
	err := row.Scan(&a.ID, &a.LibrarySlug, &a.RelPath, &kind, &a.MTime, &a.Size, &status,
		&a.TagsModelID, &a.AnalysisModelID, &a.ErrorMessage, &a.WorkerID, &a.LeaseExpiresAt,
		&a.RetryCount, &a.PreviewPath, &a.SegmentationVersion,
		&a.Description, &tagsJSON, &a.OCRText)
	if err != nil {
		return nil, err
	}
	a.Kind = model.MediaKind(kind)
	a.Status = model.AssetStatus(status)
	if tagsJSON != nil {
		if err := json.Unmarshal(tagsJSON, &a.Tags); err != nil {
			return nil, fmt.Errorf("store: decode asset tags: %w", err)
		}
	}
	return &a, nil
}

// UpdateAssetMetadata writes the image vision pass's merge result; nil
// fields leave the existing column value untouched.
func (p *Postgres) UpdateAssetMetadata(ctx context.Context, assetID int64, description *string, tags []string, ocrText *string) error {
	var tagsJSON []byte
	if tags != nil {
		b, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("store: encode asset tags: %w", err)
		}
		tagsJSON = b
	}
	_, err := p.pool.Exec(ctx, `
		UPDATE assets SET description = COALESCE($2, description),
		                   tags = COALESCE($3, tags),
		                   ocr_text = COALESCE($4, ocr_text)
		WHERE id = $1`, assetID, description, tagsJSON, ocrText)
	if err != nil {
		return fmt.Errorf("store: update asset metadata: %w", err)
	}
	return nil
}

func (p *Postgres) RenewLease(ctx context.Context, assetID int64, workerID string, ttl time.Duration) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE assets SET lease_expires_at = now() + ($3 || ' seconds')::interval
		WHERE id = $1 AND worker_id = $2 AND status = 'processing'`,
		assetID, workerID, int64(ttl/time.Second))
	if err != nil {
		return fmt.Errorf("store: renew lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: renew lease: asset %d not held by %q", assetID, workerID)
	}
	return nil
}

// ReclaimExpiredLeases is the sweep described in spec §4.1 "Reclaim": a
// crashed worker's row is either returned to its pre-claim status or
// poisoned if it has exhausted its retries. The pre-claim status cannot
// be reconstructed from `processing` alone, so this store keeps the
// convention that a proxy-stage claim's pre-claim status is always
// `pending` and an AI-stage claim's is `proxied`/`analyzed_light` —
// inferred here from which derived fields are already populated.
func (p *Postgres) ReclaimExpiredLeases(ctx context.Context, now time.Time) (int, int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("store: begin reclaim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, retry_count, segmentation_version, analysis_model_id, tags_model_id
		FROM assets
		WHERE status = 'processing' AND lease_expires_at < $1
		FOR UPDATE SKIP LOCKED`, now)
	if err != nil {
		return 0, 0, fmt.Errorf("store: select expired leases: %w", err)
	}
	type row struct {
		id          int64
		retryCount  int
		segVersion  *string
		analysisID  *int64
		tagsID      *int64
	}
	var expired []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.retryCount, &r.segVersion, &r.analysisID, &r.tagsID); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("store: scan expired lease: %w", err)
		}
		expired = append(expired, r)
	}
	rows.Close()

	reclaimed, poisoned := 0, 0
	for _, r := range expired {
		if r.retryCount > model.MaxRetries {
			_, err := tx.Exec(ctx, `
				UPDATE assets SET status = 'poisoned', worker_id = '', lease_expires_at = NULL,
				                  error_message = 'lease expired, retry cap exceeded'
				WHERE id = $1`, r.id)
			if err != nil {
				return reclaimed, poisoned, fmt.Errorf("store: poison asset %d: %w", r.id, err)
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
		_, err := tx.Exec(ctx, `
			UPDATE assets SET status = $2, worker_id = '', lease_expires_at = NULL,
			                  error_message = 'lease expired, reclaimed'
			WHERE id = $1`, r.id, string(priorStatus))
		if err != nil {
			return reclaimed, poisoned, fmt.Errorf("store: reclaim asset %d: %w", r.id, err)
		}
		reclaimed++
	}

	if err := tx.Commit(ctx); err != nil {
		return reclaimed, poisoned, fmt.Errorf("store: commit reclaim tx: %w", err)
	}
	return reclaimed, poisoned, nil
}

func (p *Postgres) MarkProxied(ctx context.Context, assetID int64, previewPath string, segVersion *string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE assets SET status = 'proxied', preview_path = $2, segmentation_version = $3,
		                   worker_id = '', lease_expires_at = NULL, retry_count = 0
		WHERE id = $1`, assetID, previewPath, segVersion)
	if err != nil {
		return fmt.Errorf("store: mark proxied: %w", err)
	}
	return nil
}

func (p *Postgres) MarkAnalyzedLight(ctx context.Context, assetID int64, modelID int64) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE assets SET status = 'analyzed_light', tags_model_id = $2,
		                   worker_id = '', lease_expires_at = NULL, retry_count = 0
		WHERE id = $1`, assetID, modelID)
	if err != nil {
		return fmt.Errorf("store: mark analyzed_light: %w", err)
	}
	return nil
}

func (p *Postgres) MarkCompleted(ctx context.Context, assetID int64, modelID int64) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE assets SET status = 'completed', analysis_model_id = $2,
		                   worker_id = '', lease_expires_at = NULL, retry_count = 0
		WHERE id = $1`, assetID, modelID)
	if err != nil {
		return fmt.Errorf("store: mark completed: %w", err)
	}
	return nil
}

// MarkFailed implements spec §4.1's "any -> worker error -> failed
// (retry_count++)... then pending if retry_count<=5, else poisoned".
// retry_count was already incremented at claim time, so this only
// decides the terminal state.
func (p *Postgres) MarkFailed(ctx context.Context, assetID int64, errMsg string) (bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("store: begin mark failed tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var retryCount int
	err = tx.QueryRow(ctx, `
		UPDATE assets SET status = 'failed', error_message = $2, worker_id = '', lease_expires_at = NULL
		WHERE id = $1 RETURNING retry_count`, assetID, errMsg).Scan(&retryCount)
	if err != nil {
		return false, fmt.Errorf("store: mark failed: %w", err)
	}
	if retryCount > model.MaxRetries {
		if _, err := tx.Exec(ctx, `UPDATE assets SET status = 'poisoned' WHERE id = $1`, assetID); err != nil {
			return false, fmt.Errorf("store: poison after cap: %w", err)
		}
		return true, tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `UPDATE assets SET status = 'pending' WHERE id = $1`, assetID); err != nil {
		return false, fmt.Errorf("store: return failed asset to pending: %w", err)
	}
	return false, tx.Commit(ctx)
}

// ReleaseBackToPriorStatus implements the shutdown contract (spec §4.2):
// interrupted work restores the asset to the status it had before this
// claim, releasing the lease, rather than failing it.
func (p *Postgres) ReleaseBackToPriorStatus(ctx context.Context, assetID int64, priorStatus model.AssetStatus) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE assets SET status = $2, worker_id = '', lease_expires_at = NULL, retry_count = GREATEST(retry_count - 1, 0)
		WHERE id = $1`, assetID, string(priorStatus))
	if err != nil {
		return fmt.Errorf("store: release back to prior status: %w", err)
	}
	return nil
}

func (p *Postgres) GetAsset(ctx context.Context, assetID int64) (*model.Asset, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, library_slug, rel_path, kind, mtime, size, status, tags_model_id,
		       analysis_model_id, error_message, worker_id, lease_expires_at, retry_count,
		       preview_path, segmentation_version, description, tags, ocr_text
		FROM assets WHERE id = $1`, assetID)
	a, err := scanAsset(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get asset: %w", err)
	}
	return a, nil
}

func (p *Postgres) ListAssets(ctx context.Context, librarySlug string, status *model.AssetStatus, limit int) ([]*model.Asset, error) {
	q := `SELECT id, library_slug, rel_path, kind, mtime, size, status, tags_model_id,
	             analysis_model_id, error_message, worker_id, lease_expires_at, retry_count,
	             preview_path, segmentation_version, description, tags, ocr_text
	      FROM assets WHERE 1=1`
	var args []any
	n := 1
	if librarySlug != "" {
		q += fmt.Sprintf(" AND library_slug = $%d", n)
		args = append(args, librarySlug)
		n++
	}
	if status != nil {
		q += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(*status))
		n++
	}
	q += " ORDER BY id"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list assets: %w", err)
	}
	defer rows.Close()

	var out []*model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan listed asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) CountAssetsByStatus(ctx context.Context, librarySlug string) (StatusCounts, error) {
	q := `SELECT status, count(*) FROM assets WHERE 1=1`
	var args []any
	if librarySlug != "" {
		q += ` AND library_slug = $1`
		args = append(args, librarySlug)
	}
	q += ` GROUP BY status`

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: count assets: %w", err)
	}
	defer rows.Close()

	out := StatusCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("store: scan status count: %w", err)
		}
		out[model.AssetStatus(status)] = n
	}
	return out, rows.Err()
}

func (p *Postgres) ResetAssetsToPending(ctx context.Context, assetIDs []int64) error {
	if len(assetIDs) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `
		UPDATE assets SET status = 'pending', worker_id = '', lease_expires_at = NULL
		WHERE id = ANY($1)`, assetIDs)
	if err != nil {
		return fmt.Errorf("store: reset assets to pending: %w", err)
	}
	return nil
}

// RetryPoisoned is the only path that un-poisons an asset (spec §7
// point 3), exposed as `maintenance run --retry-poisoned`.
func (p *Postgres) RetryPoisoned(ctx context.Context, librarySlug string) (int, error) {
	q := `UPDATE assets SET status = 'pending', retry_count = 0, error_message = ''
	      WHERE status = 'poisoned'`
	var args []any
	if librarySlug != "" {
		q += ` AND library_slug = $1`
		args = append(args, librarySlug)
	}
	tag, err := p.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("store: retry poisoned: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
