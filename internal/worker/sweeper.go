package worker

import (
	"context"
	"time"

	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/metrics"
	"github.com/mediasearch/mediasearch/internal/store"
)

// SweeperConfig controls the background maintenance pass (spec §4.1
// "Reclaim" and §4.2's stale-worker pruning), grounded on the teacher's
// internal/v3/worker.SweeperConfig/Sweeper shape (ticker-driven,
// store-sweep then file-sweep) but retargeted at lease reclaim instead
// of session retention.
type SweeperConfig struct {
	Interval          time.Duration
	StaleWorkerAfter  time.Duration
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.StaleWorkerAfter <= 0 {
		c.StaleWorkerAfter = 24 * time.Hour
	}
	return c
}

// Sweeper runs opportunistically in any worker process (spec §4.1: "a
// sweep run opportunistically by any worker or a dedicated maintenance
// pass").
type Sweeper struct {
	Store store.Store
	Conf  SweeperConfig
}

// Run ticks until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	s.Conf = s.Conf.withDefaults()
	ticker := time.NewTicker(s.Conf.Interval)
	defer ticker.Stop()

	logger := log.WithComponent("sweeper")
	logger.Info().Dur("interval", s.Conf.Interval).Msg("lease sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce reclaims expired leases and prunes long-offline worker rows.
// Exported so maintenance CLI commands can invoke a single pass on
// demand without running the ticker loop.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	logger := log.WithComponent("sweeper")

	reclaimed, poisoned, err := s.Store.ReclaimExpiredLeases(ctx, time.Now())
	if err != nil {
		logger.Error().Err(err).Msg("lease reclaim sweep failed")
	} else if reclaimed > 0 || poisoned > 0 {
		metrics.LeasesReclaimedTotal.Add(float64(reclaimed))
		logger.Info().Int("reclaimed", reclaimed).Int("poisoned", poisoned).Msg("lease sweep completed")
	}

	pruned, err := s.Store.PruneStaleWorkers(ctx, s.Conf.StaleWorkerAfter)
	if err != nil {
		logger.Error().Err(err).Msg("stale worker prune failed")
	} else if pruned > 0 {
		logger.Info().Int("pruned", pruned).Msg("stale worker rows pruned")
	}
}
