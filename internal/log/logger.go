// Package log provides the structured logging used across every worker
// role (scanner, proxy, video, ai, maintenance).
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the global logger.
type Config struct {
	Level   string
	Output  io.Writer
	Service string
	Version string
}

var (
	mu          sync.RWMutex
	base        zerolog.Logger
	initialized bool
)

// Configure initializes the global zerolog logger. Safe to call more than
// once; later calls replace the sink and level.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = "mediasearch"
	}

	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Str("version", cfg.Version).
		Logger()
	initialized = true
}

func ensureInitialized() {
	mu.RLock()
	if initialized {
		mu.RUnlock()
		return
	}
	mu.RUnlock()
	Configure(Config{})
}

// L returns the current global logger.
func L() *zerolog.Logger {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// WithComponent returns a logger tagged with the given component name,
// e.g. "worker", "scanner", "video".
func WithComponent(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

// WithWorker tags a logger with the worker id driving the current run-loop.
func WithWorker(logger zerolog.Logger, workerID string) zerolog.Logger {
	return logger.With().Str("worker_id", workerID).Logger()
}

// WithAsset tags a logger with the asset currently being processed.
func WithAsset(logger zerolog.Logger, assetID int64) zerolog.Logger {
	return logger.With().Int64("asset_id", assetID).Logger()
}
