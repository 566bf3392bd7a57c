package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediasearch/mediasearch/internal/model"
)

// Postgres is the production Store backend: a pgxpool.Pool plus the SQL
// that implements the claim/lease/reclaim contract with true
// FOR UPDATE SKIP LOCKED row-level locking (spec §4.1).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool to an already-migrated database. Run
// Migrate(databaseURL) before calling this in a fresh environment.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// --- Libraries ---

// AddLibrary relies on libraries.slug's PRIMARY KEY inside a single
// statement rather than a separate existence check, so two concurrent
// inserts of the same new slug can't both pass a check and race to
// insert — the loser's INSERT simply returns no row, which maps to
// ErrSlugExists instead of a raw unique-violation error.
func (p *Postgres) AddLibrary(ctx context.Context, slug, name, root string) (*model.Library, error) {
	var inserted string
	err := p.pool.QueryRow(ctx, `
		INSERT INTO libraries (slug, name, source_root, active, scan_state)
		VALUES ($1, $2, $3, TRUE, 'idle')
		ON CONFLICT (slug) DO NOTHING
		RETURNING slug`, slug, name, root).Scan(&inserted)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSlugExists
		}
		return nil, fmt.Errorf("store: insert library: %w", err)
	}
	return p.GetLibrary(ctx, slug, true)
}

func (p *Postgres) GetLibrary(ctx context.Context, slug string, includeDeleted bool) (*model.Library, error) {
	q := `SELECT slug, name, source_root, active, scan_state, target_model_id, deleted_at
	      FROM libraries WHERE slug = $1`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	row := p.pool.QueryRow(ctx, q, slug)
	var l model.Library
	if err := row.Scan(&l.Slug, &l.Name, &l.SourceRoot, &l.Active, &l.ScanState, &l.TargetModelID, &l.DeletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get library: %w", err)
	}
	return &l, nil
}

func (p *Postgres) ListLibraries(ctx context.Context, includeDeleted bool) ([]*model.Library, error) {
	q := `SELECT slug, name, source_root, active, scan_state, target_model_id, deleted_at FROM libraries`
	if !includeDeleted {
		q += ` WHERE deleted_at IS NULL`
	}
	q += ` ORDER BY slug`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list libraries: %w", err)
	}
	defer rows.Close()

	var out []*model.Library
	for rows.Next() {
		var l model.Library
		if err := rows.Scan(&l.Slug, &l.Name, &l.SourceRoot, &l.Active, &l.ScanState, &l.TargetModelID, &l.DeletedAt); err != nil {
			return nil, fmt.Errorf("store: scan library: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (p *Postgres) RemoveLibrary(ctx context.Context, slug string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE libraries SET deleted_at = now(), active = FALSE
	                               WHERE slug = $1 AND deleted_at IS NULL`, slug)
	if err != nil {
		return fmt.Errorf("store: soft-delete library: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RestoreLibrary(ctx context.Context, slug string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE libraries SET deleted_at = NULL, active = TRUE
	                               WHERE slug = $1 AND deleted_at IS NOT NULL`, slug)
	if err != nil {
		return fmt.Errorf("store: restore library: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TrashEmpty hard-deletes a soft-deleted library's assets in batches
// (spec §9 "chunked trash-empty") to avoid a single multi-million-row
// transaction, then removes the library row itself.
func (p *Postgres) TrashEmpty(ctx context.Context, slug string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 5000
	}
	lib, err := p.GetLibrary(ctx, slug, true)
	if err != nil {
		return 0, err
	}
	if lib.DeletedAt == nil {
		return 0, fmt.Errorf("store: library %q is not in the trash", slug)
	}

	total := 0
	for {
		tag, err := p.pool.Exec(ctx, `
			DELETE FROM assets WHERE id IN (
				SELECT id FROM assets WHERE library_slug = $1 LIMIT $2
			)`, slug, batchSize)
		if err != nil {
			return total, fmt.Errorf("store: delete asset batch: %w", err)
		}
		n := int(tag.RowsAffected())
		total += n
		if n < batchSize {
			break
		}
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM libraries WHERE slug = $1`, slug); err != nil {
		return total, fmt.Errorf("store: delete library row: %w", err)
	}
	return total, nil
}

// --- Scan claim (spec §4.3: SKIP LOCKED prevents concurrent scans of
// the same library) ---

func (p *Postgres) ClaimLibraryForScan(ctx context.Context, slug string) (*model.Library, error) {
	row := p.pool.QueryRow(ctx, `
		WITH cte AS (
			SELECT slug FROM libraries
			WHERE slug = $1 AND deleted_at IS NULL AND scan_state = 'idle'
			FOR UPDATE SKIP LOCKED
		)
		UPDATE libraries SET scan_state = 'scanning'
		FROM cte WHERE libraries.slug = cte.slug
		RETURNING libraries.slug, libraries.name, libraries.source_root,
		          libraries.active, libraries.scan_state, libraries.target_model_id, libraries.deleted_at`,
		slug)
	var l model.Library
	if err := row.Scan(&l.Slug, &l.Name, &l.SourceRoot, &l.Active, &l.ScanState, &l.TargetModelID, &l.DeletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAlreadyActive
		}
		return nil, fmt.Errorf("store: claim library scan: %w", err)
	}
	return &l, nil
}

func (p *Postgres) ReleaseLibraryScan(ctx context.Context, slug string, toState model.ScanState) error {
	_, err := p.pool.Exec(ctx, `UPDATE libraries SET scan_state = $2 WHERE slug = $1`, slug, toState)
	if err != nil {
		return fmt.Errorf("store: release library scan: %w", err)
	}
	return nil
}

// --- Scanner reconciliation (dirty-detection upsert, spec §4.1) ---

// UpsertAsset's dirtied bit must test whether mtime/size actually
// changed this scan, not merely whether the row ended up pending —
// retry-poisoned and a failed proxy stage both leave an already-pending
// asset that this scan didn't touch, and status='pending' alone can't
// distinguish that from a real change. The "prior"/"changed" CTEs
// capture the pre-update values once so both the SET clause and
// RETURNING compare against the same snapshot, mirroring the
// read-before-write the sqlite backend does explicitly in a transaction
// (sqlitestore.UpsertAsset).
func (p *Postgres) UpsertAsset(ctx context.Context, librarySlug string, t UpsertTuple) (UpsertResult, error) {
	var inserted, dirtied bool
	err := p.pool.QueryRow(ctx, `
		WITH prior AS (
			SELECT mtime, size FROM assets WHERE library_slug = $1 AND rel_path = $2
		), changed AS (
			SELECT (mtime IS DISTINCT FROM $4 OR size IS DISTINCT FROM $5) AS is_changed FROM prior
		)
		INSERT INTO assets (library_slug, rel_path, kind, mtime, size, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (library_slug, rel_path) DO UPDATE SET
			mtime = EXCLUDED.mtime,
			size = EXCLUDED.size,
			status = CASE
				WHEN (SELECT is_changed FROM changed) THEN 'pending'
				ELSE assets.status
			END,
			tags_model_id = CASE
				WHEN (SELECT is_changed FROM changed) THEN NULL ELSE assets.tags_model_id END,
			analysis_model_id = CASE
				WHEN (SELECT is_changed FROM changed) THEN NULL ELSE assets.analysis_model_id END
		RETURNING (xmax = 0) AS inserted,
		          (xmax != 0 AND (SELECT is_changed FROM changed)) AS dirtied`,
		librarySlug, t.RelPath, string(t.Kind), t.MTime, t.Size).Scan(&inserted, &dirtied)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("store: upsert asset: %w", err)
	}
	return UpsertResult{Inserted: inserted, Dirtied: dirtied}, nil
}
