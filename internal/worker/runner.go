// Package worker is the Worker Lifecycle Framework (spec §4.2):
// run-loop, heartbeat goroutine, OS signal + command handling, and the
// cooperative-cancellation contract shared by every stage (scanner,
// proxy, video-proxy, AI). Generalized from the teacher's single-session
// internal/pipeline/worker.Orchestrator into an N-asset, many-role loop.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mediasearch/mediasearch/internal/flightlog"
	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/metrics"
	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/taxonomy"
	"github.com/mediasearch/mediasearch/internal/telemetry"
)

// Stage is what a worker role (scanner, proxy, video-proxy, ai) plugs
// into the shared Runner. ClaimParams selects its eligible pool; Process
// does the actual work for one claimed asset, honoring should_stop.
type Stage interface {
	// Role is a short name used in worker ids and logs ("proxy", "video-proxy", "ai-light", "ai-full", "scan").
	Role() string
	ClaimParams(workerID string, leaseTTL time.Duration) store.ClaimParams
	// Process runs the stage's work for one claimed asset. shouldStop is
	// polled between inner work units (spec §4.2 cooperative cancellation).
	Process(ctx context.Context, asset *model.Asset, shouldStop func() bool) error
	// PriorStatus is the status the asset should revert to if interrupted
	// mid-Process (used by ReleaseBackToPriorStatus on shutdown).
	PriorStatus(asset *model.Asset) model.AssetStatus
}

// Config tunes the shared run-loop infrastructure.
type Config struct {
	LibraryScope      string // empty = unscoped ("--all")
	Once              bool   // process at most one asset then return (spec §6.1 "--once")
	LeaseTTL          time.Duration
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	ForensicsDir      string
	FlightLogCapacity int

	// Tracing (spec §11); disabled leaves the global tracer provider a
	// noop, so Run's span-per-asset wrapping stays safe either way.
	TelemetryEnabled  bool
	OTLPEndpoint      string
	TelemetrySampling float64
}

func (c Config) withDefaults() Config {
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.ForensicsDir == "" {
		c.ForensicsDir = "./data/forensics"
	}
	return c
}

// Runner drives one worker process's run-loop (spec §4.2).
type Runner struct {
	Store store.Store
	Stage Stage
	Cfg   Config

	WorkerID string

	mu           sync.Mutex
	state        model.WorkerState
	stopRequest  bool
	pauseRequest bool
	currentAsset *model.Asset

	ring *flightlog.Ring
}

// NewRunner builds a Runner with a stable worker id of the form
// <role>-<hostname>-<short-random>, matching the teacher's Owner
// identity convention (orchestrator.go's hostname-pid-uuid scheme,
// shortened per spec §3's WorkerStatus.worker_id format).
func NewRunner(st store.Store, stage Stage, cfg Config) *Runner {
	cfg = cfg.withDefaults()
	host, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s-%s", stage.Role(), host, uuid.New().String()[:8])
	return &Runner{
		Store:    st,
		Stage:    stage,
		Cfg:      cfg,
		WorkerID: workerID,
		state:    model.WorkerIdle,
		ring:     flightlog.New(cfg.FlightLogCapacity),
	}
}

// Run executes the run-loop until ctx is canceled or a shutdown command
// is observed (spec §4.2's pseudocode, generalized across roles).
func (r *Runner) Run(ctx context.Context) error {
	logger := log.WithComponent(r.Stage.Role())

	if err := r.checkSchemaVersion(ctx); err != nil {
		return taxonomy.Tag(taxonomy.ClassConfig, err)
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:      r.Cfg.TelemetryEnabled,
		ServiceName:  "mediasearch-" + r.Stage.Role(),
		Environment:  "production",
		Endpoint:     r.Cfg.OTLPEndpoint,
		SamplingRate: r.Cfg.TelemetrySampling,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry init failed, continuing without tracing")
	}
	defer func() {
		if provider != nil {
			_ = provider.Shutdown(context.Background())
		}
	}()

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := r.heartbeatOnce(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial worker status write failed")
	}

	hbCtx, hbCancel := context.WithCancel(context.Background())
	defer hbCancel()
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go r.heartbeatLoop(hbCtx, &hbWG)
	defer hbWG.Wait()
	defer hbCancel()

	// Mirrors the heartbeat goroutine's lifetime: watches sigCtx
	// independently of the run-loop so an OS interrupt flips stopRequest
	// immediately instead of waiting for the loop's next top-of-iteration
	// check, which a long in-flight Stage.Process call (a video segment
	// run, a full library scan) could otherwise delay past one work unit
	// (spec §4.2). Joined through hbWG too, so Run never returns while
	// it's still running.
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		select {
		case <-sigCtx.Done():
			r.requestStop()
		case <-hbCtx.Done():
		}
	}()

	for {
		if sigCtx.Err() != nil {
			r.requestStop()
		}

		cmd, err := r.Store.GetPendingCommand(ctx, r.WorkerID)
		if err == nil {
			r.obeyCommand(ctx, cmd)
		}

		r.mu.Lock()
		stop := r.stopRequest
		paused := r.pauseRequest
		r.mu.Unlock()

		if stop {
			r.shutdown(ctx)
			return nil
		}
		if paused {
			r.setState(ctx, model.WorkerPaused)
			sleepOrDone(sigCtx, r.Cfg.PollInterval)
			continue
		}

		params := r.Stage.ClaimParams(r.WorkerID, r.Cfg.LeaseTTL)
		params.LibrarySlug = r.Cfg.LibraryScope
		asset, err := r.Store.Claim(ctx, params)
		if err != nil {
			if err == store.ErrNoWork {
				metrics.ClaimEmptyTotal.WithLabelValues(r.Stage.Role()).Inc()
				r.setState(ctx, model.WorkerIdle)
				if r.Cfg.Once {
					r.shutdown(ctx)
					return nil
				}
				sleepOrDone(sigCtx, r.Cfg.PollInterval)
				continue
			}
			r.logEvent("error", "claim failed", map[string]any{"error": err.Error()})
			sleepOrDone(sigCtx, r.Cfg.PollInterval)
			continue
		}
		metrics.ClaimsTotal.WithLabelValues(r.Stage.Role()).Inc()

		r.mu.Lock()
		r.currentAsset = asset
		r.mu.Unlock()

		r.setState(ctx, model.WorkerProcessing)
		start := time.Now()
		r.processOneTraced(sigCtx, asset)
		metrics.ProcessingDuration.WithLabelValues(r.Stage.Role()).Observe(time.Since(start).Seconds())

		r.mu.Lock()
		r.currentAsset = nil
		r.mu.Unlock()

		if r.Cfg.Once {
			r.shutdown(ctx)
			return nil
		}
	}
}

var tracer = telemetry.Tracer("mediasearch.worker")

// processOneTraced wraps processOne in a span per claimed asset,
// mirroring the teacher's per-job span in jobs.Refresh. One span per
// work unit keeps a stage's claim/process loop visible in a trace
// backend without adding a span per inner step.
func (r *Runner) processOneTraced(ctx context.Context, asset *model.Asset) {
	ctx, span := tracer.Start(ctx, "worker.process_asset", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("worker.role", r.Stage.Role()),
		attribute.Int64("asset.id", asset.ID),
	)
	defer span.End()

	r.processOne(ctx, asset)

	r.mu.Lock()
	stopped := r.stopRequest
	r.mu.Unlock()
	if stopped {
		span.SetStatus(codes.Error, "interrupted")
	}
}

func (r *Runner) processOne(ctx context.Context, asset *model.Asset) {
	shouldStop := func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.stopRequest
	}

	err := r.Stage.Process(ctx, asset, shouldStop)
	if err == nil {
		r.logEvent("info", "asset processed", map[string]any{"asset_id": asset.ID})
		return
	}

	if shouldStop() {
		// Interrupted cooperatively, not a processing failure: restore
		// the asset to its pre-claim status rather than failing it.
		if relErr := r.Store.ReleaseBackToPriorStatus(ctx, asset.ID, r.Stage.PriorStatus(asset)); relErr != nil {
			r.logEvent("error", "failed to release asset on shutdown", map[string]any{"asset_id": asset.ID, "error": relErr.Error()})
		}
		return
	}

	class := taxonomy.ClassOf(err)
	if taxonomy.IsFatal(class) {
		r.dumpFlightLog(ctx)
		r.logEvent("error", "fatal error, worker exiting", map[string]any{"asset_id": asset.ID, "error": err.Error()})
		r.requestStop()
		return
	}

	poisoned, markErr := r.Store.MarkFailed(ctx, asset.ID, err.Error())
	if markErr != nil {
		r.logEvent("error", "failed to mark asset failed", map[string]any{"asset_id": asset.ID, "error": markErr.Error()})
	}
	r.dumpFlightLog(ctx)
	metrics.AssetsFailedTotal.WithLabelValues(r.Stage.Role(), string(class)).Inc()
	if poisoned {
		metrics.AssetsPoisonedTotal.WithLabelValues(r.Stage.Role()).Inc()
		r.logEvent("error", "asset poisoned", map[string]any{"asset_id": asset.ID, "error": err.Error(), "class": string(class)})
	} else {
		r.logEvent("warn", "asset failed, will retry", map[string]any{"asset_id": asset.ID, "error": err.Error(), "class": string(class)})
	}
}

func (r *Runner) requestStop() {
	r.mu.Lock()
	r.stopRequest = true
	r.mu.Unlock()
}

// shutdown implements spec §4.2's shutdown contract: release any
// in-flight lease back to its prior status, set state offline, return.
func (r *Runner) shutdown(ctx context.Context) {
	r.mu.Lock()
	asset := r.currentAsset
	r.mu.Unlock()
	if asset != nil {
		if err := r.Store.ReleaseBackToPriorStatus(ctx, asset.ID, r.Stage.PriorStatus(asset)); err != nil {
			r.logEvent("error", "failed to release lease on shutdown", map[string]any{"asset_id": asset.ID, "error": err.Error()})
		}
	}
	r.setState(ctx, model.WorkerOffline)
	_ = r.Store.ClearPendingCommand(ctx, r.WorkerID)
}

func (r *Runner) obeyCommand(ctx context.Context, cmd model.Command) {
	switch cmd {
	case model.CommandPause:
		r.mu.Lock()
		r.pauseRequest = true
		r.mu.Unlock()
		_ = r.Store.ClearPendingCommand(ctx, r.WorkerID)
	case model.CommandResume:
		r.mu.Lock()
		r.pauseRequest = false
		r.mu.Unlock()
		_ = r.Store.ClearPendingCommand(ctx, r.WorkerID)
	case model.CommandShutdown:
		r.requestStop()
	case model.CommandForensicDump:
		r.dumpFlightLog(ctx)
		_ = r.Store.ClearPendingCommand(ctx, r.WorkerID)
	}
}

func (r *Runner) checkSchemaVersion(ctx context.Context) error {
	v, err := r.Store.GetSchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("worker: schema version check: %w", err)
	}
	if v != model.CurrentSchemaVersion {
		return fmt.Errorf("worker: schema version mismatch: database has %q, binary expects %q", v, model.CurrentSchemaVersion)
	}
	return nil
}

func (r *Runner) dumpFlightLog(ctx context.Context) {
	path, err := r.ring.Dump(r.Cfg.ForensicsDir, r.WorkerID, time.Now())
	if err != nil {
		log.WithComponent(r.Stage.Role()).Error().Err(err).Msg("flight log dump failed")
		return
	}
	log.WithComponent(r.Stage.Role()).Info().Str("path", path).Msg("flight log dumped")
	_ = ctx
}

func (r *Runner) logEvent(level, msg string, fields map[string]any) {
	r.ring.Write(flightlog.Entry{Time: time.Now(), Level: level, Component: r.Stage.Role(), Message: msg, Fields: fields})
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
