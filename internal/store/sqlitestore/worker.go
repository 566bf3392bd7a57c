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

func (s *Store) UpsertWorkerStatus(ctx context.Context, ws model.WorkerStatus) error {
	statsJSON, err := json.Marshal(ws.Stats)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal worker stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_status (worker_id, hostname, last_heartbeat, state, pending_command, stats)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			hostname = excluded.hostname, last_heartbeat = excluded.last_heartbeat,
			state = excluded.state, stats = excluded.stats`,
		ws.WorkerID, ws.Hostname, ws.LastHeartbeat.UTC().Format(time.RFC3339Nano),
		string(ws.State), string(ws.PendingCommand), string(statsJSON))
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert worker status: %w", err)
	}
	return nil
}

func (s *Store) GetPendingCommand(ctx context.Context, workerID string) (model.Command, error) {
	var cmd string
	err := s.db.QueryRowContext(ctx, `SELECT pending_command FROM worker_status WHERE worker_id = ?`, workerID).Scan(&cmd)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.CommandNone, nil
		}
		return "", fmt.Errorf("sqlitestore: get pending command: %w", err)
	}
	return model.Command(cmd), nil
}

func (s *Store) ClearPendingCommand(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE worker_status SET pending_command = 'none' WHERE worker_id = ?`, workerID)
	if err != nil {
		return fmt.Errorf("sqlitestore: clear pending command: %w", err)
	}
	return nil
}

func (s *Store) SetWorkerCommand(ctx context.Context, workerID string, cmd model.Command) error {
	res, err := s.db.ExecContext(ctx, `UPDATE worker_status SET pending_command = ? WHERE worker_id = ?`, string(cmd), workerID)
	if err != nil {
		return fmt.Errorf("sqlitestore: set worker command: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) PruneStaleWorkers(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleAfter).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM worker_status WHERE last_heartbeat < ? AND state = 'offline'`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: prune stale workers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListWorkerStatuses returns every worker row, used by maintenance's
// temp-file GC heuristic to find a host with a live transcode before
// deleting its ephemeral files (spec §9 open question).
func (s *Store) ListWorkerStatuses(ctx context.Context) ([]model.WorkerStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT worker_id, hostname, last_heartbeat, state, pending_command, stats FROM worker_status`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list worker statuses: %w", err)
	}
	defer rows.Close()

	var out []model.WorkerStatus
	for rows.Next() {
		var ws model.WorkerStatus
		var lastHeartbeat, state, pending, statsJSON string
		if err := rows.Scan(&ws.WorkerID, &ws.Hostname, &lastHeartbeat, &state, &pending, &statsJSON); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan worker status: %w", err)
		}
		ws.LastHeartbeat, err = time.Parse(time.RFC3339Nano, lastHeartbeat)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: parse worker heartbeat: %w", err)
		}
		ws.State = model.WorkerState(state)
		ws.PendingCommand = model.Command(pending)
		if statsJSON != "" {
			if err := json.Unmarshal([]byte(statsJSON), &ws.Stats); err != nil {
				return nil, fmt.Errorf("sqlitestore: unmarshal worker stats: %w", err)
			}
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (s *Store) EnsureAIModel(ctx context.Context, name, version string) (*model.AIModel, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_models (name, version) VALUES (?, ?)
		ON CONFLICT(name, version) DO UPDATE SET name = excluded.name`, name, version)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: ensure ai model: %w", err)
	}
	var m model.AIModel
	err = s.db.QueryRowContext(ctx, `SELECT id, name, version FROM ai_models WHERE name = ? AND version = ?`, name, version).
		Scan(&m.ID, &m.Name, &m.Version)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: read ensured ai model: %w", err)
	}
	return &m, nil
}

func (s *Store) EffectiveModelID(ctx context.Context, librarySlug string) (int64, error) {
	var targetID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT target_model_id FROM libraries WHERE slug = ?`, librarySlug).Scan(&targetID)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("sqlitestore: read library target model: %w", err)
	}
	if targetID.Valid {
		return targetID.Int64, nil
	}
	var defaultID string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM system_metadata WHERE key = 'default_ai_model_id'`).Scan(&defaultID)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: no default ai model configured")
	}
	var id int64
	if _, err := fmt.Sscanf(defaultID, "%d", &id); err != nil {
		return 0, fmt.Errorf("sqlitestore: parse default ai model id: %w", err)
	}
	return id, nil
}

func (s *Store) SetDefaultAIModel(ctx context.Context, modelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_metadata (key, value) VALUES ('default_ai_model_id', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprintf("%d", modelID))
	if err != nil {
		return fmt.Errorf("sqlitestore: set default ai model: %w", err)
	}
	return nil
}

func (s *Store) SetLibraryTargetModel(ctx context.Context, librarySlug string, modelID *int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE libraries SET target_model_id = ? WHERE slug = ?`, modelID, librarySlug)
	if err != nil {
		return fmt.Errorf("sqlitestore: set library target model: %w", err)
	}
	return nil
}

func (s *Store) GetSchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_metadata WHERE key = 'schema_version'`).Scan(&v)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: get schema version: %w", err)
	}
	return v, nil
}

var _ store.Store = (*Store)(nil)
