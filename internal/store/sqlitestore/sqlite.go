// Package sqlitestore is the local/dev backend named in spec §10.3's
// dual-backend factory: single-node, serialized through a single pooled
// connection in place of Postgres's row-level SKIP LOCKED, for local development and
// unit tests only (not concurrency-safe across processes). Connection
// setup follows the teacher's internal/persistence/sqlite/config.go
// mandatory-PRAGMA idiom.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
)

// Store is the sqlite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// Open connects to (creating if absent) a sqlite database at path,
// applies WAL + busy_timeout + foreign_keys pragmas, and runs the
// embedded schema if it hasn't been applied yet.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // one connection serializes every transaction in this process
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	var version string
	row := s.db.QueryRow(`SELECT value FROM system_metadata WHERE key = 'schema_version'`)
	if err := row.Scan(&version); err == nil {
		return nil // already migrated
	}
	_, err := s.db.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS system_metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS ai_models (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	UNIQUE (name, version)
);
CREATE TABLE IF NOT EXISTS libraries (
	slug TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	source_root TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	scan_state TEXT NOT NULL DEFAULT 'idle',
	target_model_id INTEGER,
	deleted_at TEXT
);
CREATE TABLE IF NOT EXISTS assets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	library_slug TEXT NOT NULL REFERENCES libraries(slug),
	rel_path TEXT NOT NULL,
	kind TEXT NOT NULL,
	mtime REAL NOT NULL,
	size INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	tags_model_id INTEGER,
	analysis_model_id INTEGER,
	error_message TEXT NOT NULL DEFAULT '',
	worker_id TEXT NOT NULL DEFAULT '',
	lease_expires_at TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	preview_path TEXT NOT NULL DEFAULT '',
	segmentation_version TEXT,
	description TEXT,
	tags TEXT,
	ocr_text TEXT,
	UNIQUE (library_slug, rel_path)
);
CREATE TABLE IF NOT EXISTS video_scenes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id INTEGER NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	start_ts REAL NOT NULL,
	end_ts REAL NOT NULL,
	rep_frame_path TEXT NOT NULL,
	sharpness REAL NOT NULL,
	close_reason TEXT NOT NULL,
	description TEXT,
	metadata TEXT
);
CREATE TABLE IF NOT EXISTS video_active_state (
	asset_id INTEGER PRIMARY KEY REFERENCES assets(id) ON DELETE CASCADE,
	anchor_phash_0 INTEGER NOT NULL,
	anchor_phash_1 INTEGER NOT NULL,
	anchor_phash_2 INTEGER NOT NULL,
	anchor_phash_3 INTEGER NOT NULL,
	scene_start_ts REAL NOT NULL,
	best_frame_ts REAL NOT NULL,
	best_sharpness REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS worker_status (
	worker_id TEXT PRIMARY KEY,
	hostname TEXT NOT NULL,
	last_heartbeat TEXT NOT NULL,
	state TEXT NOT NULL,
	pending_command TEXT NOT NULL DEFAULT 'none',
	stats TEXT
);
INSERT OR IGNORE INTO system_metadata (key, value) VALUES ('schema_version', '4');
`

// --- Libraries ---

func (s *Store) AddLibrary(ctx context.Context, slug, name, root string) (*model.Library, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM libraries WHERE slug = ?`, slug).Scan(&exists); err == nil {
		return nil, store.ErrSlugExists
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO libraries (slug, name, source_root, active, scan_state) VALUES (?, ?, ?, 1, 'idle')`,
		slug, name, root)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: insert library: %w", err)
	}
	return s.GetLibrary(ctx, slug, true)
}

func (s *Store) GetLibrary(ctx context.Context, slug string, includeDeleted bool) (*model.Library, error) {
	q := `SELECT slug, name, source_root, active, scan_state, target_model_id, deleted_at FROM libraries WHERE slug = ?`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	var l model.Library
	var active int
	var deletedAt *string
	err := s.db.QueryRowContext(ctx, q, slug).Scan(&l.Slug, &l.Name, &l.SourceRoot, &active, &l.ScanState, &l.TargetModelID, &deletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitestore: get library: %w", err)
	}
	l.Active = active != 0
	l.DeletedAt = parseTime(deletedAt)
	return &l, nil
}

func (s *Store) ListLibraries(ctx context.Context, includeDeleted bool) ([]*model.Library, error) {
	q := `SELECT slug, name, source_root, active, scan_state, target_model_id, deleted_at FROM libraries`
	if !includeDeleted {
		q += ` WHERE deleted_at IS NULL`
	}
	q += ` ORDER BY slug`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list libraries: %w", err)
	}
	defer rows.Close()

	var out []*model.Library
	for rows.Next() {
		var l model.Library
		var active int
		var deletedAt *string
		if err := rows.Scan(&l.Slug, &l.Name, &l.SourceRoot, &active, &l.ScanState, &l.TargetModelID, &deletedAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan library: %w", err)
		}
		l.Active = active != 0
		l.DeletedAt = parseTime(deletedAt)
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *Store) RemoveLibrary(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE libraries SET deleted_at = ?, active = 0 WHERE slug = ? AND deleted_at IS NULL`,
		nowStr(), slug)
	if err != nil {
		return fmt.Errorf("sqlitestore: remove library: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) RestoreLibrary(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE libraries SET deleted_at = NULL, active = 1 WHERE slug = ? AND deleted_at IS NOT NULL`, slug)
	if err != nil {
		return fmt.Errorf("sqlitestore: restore library: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) TrashEmpty(ctx context.Context, slug string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 5000
	}
	lib, err := s.GetLibrary(ctx, slug, true)
	if err != nil {
		return 0, err
	}
	if lib.DeletedAt == nil {
		return 0, fmt.Errorf("sqlitestore: library %q is not in the trash", slug)
	}
	total := 0
	for {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM assets WHERE id IN (SELECT id FROM assets WHERE library_slug = ? LIMIT ?)`,
			slug, batchSize)
		if err != nil {
			return total, fmt.Errorf("sqlitestore: delete asset batch: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
		if int(n) < batchSize {
			break
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM libraries WHERE slug = ?`, slug); err != nil {
		return total, fmt.Errorf("sqlitestore: delete library row: %w", err)
	}
	return total, nil
}

// --- Scan claim. With the pool capped at one connection this
// transaction runs alone in the process; a library whose scan_state is
// not idle is refused with store.ErrAlreadyActive. ---

func (s *Store) ClaimLibraryForScan(ctx context.Context, slug string) (*model.Library, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: begin claim scan tx: %w", err)
	}
	defer tx.Rollback()

	var scanState string
	err = tx.QueryRowContext(ctx, `SELECT scan_state FROM libraries WHERE slug = ? AND deleted_at IS NULL`, slug).Scan(&scanState)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitestore: read scan state: %w", err)
	}
	if model.ScanState(scanState) != model.ScanIdle {
		return nil, store.ErrAlreadyActive
	}
	if _, err := tx.ExecContext(ctx, `UPDATE libraries SET scan_state = 'scanning' WHERE slug = ?`, slug); err != nil {
		return nil, fmt.Errorf("sqlitestore: claim scan: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: commit claim scan: %w", err)
	}
	return s.GetLibrary(ctx, slug, true)
}

func (s *Store) ReleaseLibraryScan(ctx context.Context, slug string, toState model.ScanState) error {
	_, err := s.db.ExecContext(ctx, `UPDATE libraries SET scan_state = ? WHERE slug = ?`, string(toState), slug)
	if err != nil {
		return fmt.Errorf("sqlitestore: release library scan: %w", err)
	}
	return nil
}

func (s *Store) UpsertAsset(ctx context.Context, librarySlug string, t store.UpsertTuple) (store.UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("sqlitestore: begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	var existingMTime float64
	var existingSize int64
	err = tx.QueryRowContext(ctx, `SELECT mtime, size FROM assets WHERE library_slug = ? AND rel_path = ?`,
		librarySlug, t.RelPath).Scan(&existingMTime, &existingSize)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO assets (library_slug, rel_path, kind, mtime, size, status)
			VALUES (?, ?, ?, ?, ?, 'pending')`, librarySlug, t.RelPath, string(t.Kind), t.MTime, t.Size)
		if err != nil {
			return store.UpsertResult{}, fmt.Errorf("sqlitestore: insert asset: %w", err)
		}
		return store.UpsertResult{Inserted: true}, tx.Commit()
	case err != nil:
		return store.UpsertResult{}, fmt.Errorf("sqlitestore: read existing asset: %w", err)
	}

	dirty := existingMTime != t.MTime || existingSize != t.Size
	if dirty {
		_, err = tx.ExecContext(ctx, `
			UPDATE assets SET mtime = ?, size = ?, status = 'pending', tags_model_id = NULL, analysis_model_id = NULL
			WHERE library_slug = ? AND rel_path = ?`, t.MTime, t.Size, librarySlug, t.RelPath)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE assets SET mtime = ?, size = ? WHERE library_slug = ? AND rel_path = ?`,
			t.MTime, t.Size, librarySlug, t.RelPath)
	}
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("sqlitestore: update asset: %w", err)
	}
	return store.UpsertResult{Dirtied: dirty}, tx.Commit()
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}

func nowStr() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ = json.Marshal // used by sibling files in this package
