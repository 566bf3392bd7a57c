package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mediasearch/mediasearch/internal/model"
)

func (p *Postgres) UpsertWorkerStatus(ctx context.Context, ws model.WorkerStatus) error {
	statsJSON, err := json.Marshal(ws.Stats)
	if err != nil {
		return fmt.Errorf("store: marshal worker stats: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO worker_status (worker_id, hostname, last_heartbeat, state, pending_command, stats)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (worker_id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			last_heartbeat = EXCLUDED.last_heartbeat,
			state = EXCLUDED.state,
			stats = EXCLUDED.stats`,
		ws.WorkerID, ws.Hostname, ws.LastHeartbeat, string(ws.State), string(ws.PendingCommand), statsJSON)
	if err != nil {
		return fmt.Errorf("store: upsert worker status: %w", err)
	}
	return nil
}

func (p *Postgres) GetPendingCommand(ctx context.Context, workerID string) (model.Command, error) {
	var cmd string
	err := p.pool.QueryRow(ctx, `SELECT pending_command FROM worker_status WHERE worker_id = $1`, workerID).Scan(&cmd)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.CommandNone, nil
		}
		return "", fmt.Errorf("store: get pending command: %w", err)
	}
	return model.Command(cmd), nil
}

func (p *Postgres) ClearPendingCommand(ctx context.Context, workerID string) error {
	_, err := p.pool.Exec(ctx, `UPDATE worker_status SET pending_command = 'none' WHERE worker_id = $1`, workerID)
	if err != nil {
		return fmt.Errorf("store: clear pending command: %w", err)
	}
	return nil
}

// SetWorkerCommand is the operator-facing half of the command protocol
// (spec §4.2): pause/resume/shutdown/forensic_dump are delivered by
// writing this column; the worker polls it at the top of the run-loop.
func (p *Postgres) SetWorkerCommand(ctx context.Context, workerID string, cmd model.Command) error {
	tag, err := p.pool.Exec(ctx, `UPDATE worker_status SET pending_command = $2 WHERE worker_id = $1`, workerID, string(cmd))
	if err != nil {
		return fmt.Errorf("store: set worker command: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) PruneStaleWorkers(ctx context.Context, staleAfter time.Duration) (int, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM worker_status WHERE last_heartbeat < $1 AND state = 'offline'`,
		time.Now().Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("store: prune stale workers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListWorkerStatuses returns every worker row, used by maintenance's
// temp-file GC heuristic to find a host with a live transcode before
// deleting its ephemeral files (spec §9 open question).
func (p *Postgres) ListWorkerStatuses(ctx context.Context) ([]model.WorkerStatus, error) {
	rows, err := p.pool.Query(ctx, `SELECT worker_id, hostname, last_heartbeat, state, pending_command, stats FROM worker_status`)
	if err != nil {
		return nil, fmt.Errorf("store: list worker statuses: %w", err)
	}
	defer rows.Close()

	var out []model.WorkerStatus
	for rows.Next() {
		var ws model.WorkerStatus
		var state, pending string
		var statsJSON []byte
		if err := rows.Scan(&ws.WorkerID, &ws.Hostname, &ws.LastHeartbeat, &state, &pending, &statsJSON); err != nil {
			return nil, fmt.Errorf("store: scan worker status: %w", err)
		}
		ws.State = model.WorkerState(state)
		ws.PendingCommand = model.Command(pending)
		if len(statsJSON) > 0 {
			if err := json.Unmarshal(statsJSON, &ws.Stats); err != nil {
				return nil, fmt.Errorf("store: unmarshal worker stats: %w", err)
			}
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (p *Postgres) EnsureAIModel(ctx context.Context, name, version string) (*model.AIModel, error) {
	var m model.AIModel
	err := p.pool.QueryRow(ctx, `
		INSERT INTO ai_models (name, version) VALUES ($1, $2)
		ON CONFLICT (name, version) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, version`, name, version).Scan(&m.ID, &m.Name, &m.Version)
	if err != nil {
		return nil, fmt.Errorf("store: ensure ai model: %w", err)
	}
	return &m, nil
}

// EffectiveModelID resolves spec §4.1's "library.target_tagger_id ??
// system_metadata.default_ai_model_id".
func (p *Postgres) EffectiveModelID(ctx context.Context, librarySlug string) (int64, error) {
	var id *int64
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT target_model_id FROM libraries WHERE slug = $1),
			(SELECT value::bigint FROM system_metadata WHERE key = 'default_ai_model_id')
		)`, librarySlug).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: resolve effective model: %w", err)
	}
	if id == nil {
		return 0, fmt.Errorf("store: no default ai model configured")
	}
	return *id, nil
}

func (p *Postgres) SetDefaultAIModel(ctx context.Context, modelID int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO system_metadata (key, value) VALUES ('default_ai_model_id', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, fmt.Sprintf("%d", modelID))
	if err != nil {
		return fmt.Errorf("store: set default ai model: %w", err)
	}
	return nil
}

func (p *Postgres) SetLibraryTargetModel(ctx context.Context, librarySlug string, modelID *int64) error {
	_, err := p.pool.Exec(ctx, `UPDATE libraries SET target_model_id = $2 WHERE slug = $1`, librarySlug, modelID)
	if err != nil {
		return fmt.Errorf("store: set library target model: %w", err)
	}
	return nil
}

// GetSchemaVersion backs the worker-startup schema check (spec §4.2).
func (p *Postgres) GetSchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := p.pool.QueryRow(ctx, `SELECT value FROM system_metadata WHERE key = 'schema_version'`).Scan(&v)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("store: schema_version not set, database not migrated")
		}
		return "", fmt.Errorf("store: get schema version: %w", err)
	}
	return v, nil
}
