package worker

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/model"
)

// heartbeatLoop is the companion concurrent activity from spec §4.2: it
// must never block the main run-loop and must exit cleanly when ctx is
// canceled. Grounded on the teacher's HeartbeatEvery ticker in
// orchestrator.go, generalized to write WorkerStatus directly instead of
// renewing a single session lease.
func (r *Runner) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(r.Cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.heartbeatOnce(ctx); err != nil {
				log.WithComponent(r.Stage.Role()).Warn().Err(err).Msg("heartbeat write failed")
			}
		}
	}
}

func (r *Runner) heartbeatOnce(ctx context.Context) error {
	host, _ := os.Hostname()
	r.mu.Lock()
	state := r.state
	var stats map[string]any
	if r.currentAsset != nil {
		stats = map[string]any{"asset_id": r.currentAsset.ID, "rel_path": r.currentAsset.RelPath}
	}
	r.mu.Unlock()

	return r.Store.UpsertWorkerStatus(ctx, model.WorkerStatus{
		WorkerID:      r.WorkerID,
		Hostname:      host,
		LastHeartbeat: time.Now(),
		State:         state,
		Stats:         stats,
	})
}

func (r *Runner) setState(ctx context.Context, state model.WorkerState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	if err := r.heartbeatOnce(ctx); err != nil {
		log.WithComponent(r.Stage.Role()).Warn().Err(err).Msg("state-change heartbeat write failed")
	}
}
