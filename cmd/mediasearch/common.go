package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mediasearch/mediasearch/internal/config"
	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/store/sqlitestore"
	"github.com/mediasearch/mediasearch/internal/worker"
)

// setVerbose bumps the global logger to debug level for --verbose.
func setVerbose(verbose bool) {
	if !verbose {
		return
	}
	log.Configure(log.Config{Level: "debug", Service: "mediasearch"})
}

// loadConfig reads configuration through the standard defaults -> file
// -> env precedence chain and validates it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openStore is the dual-backend factory spec §11.7 describes:
// DATABASE_URL's scheme picks Postgres (default) or, with a
// "sqlite://" prefix, the single-node dev/test backend. internal/store
// can't make this choice itself without an import cycle (sqlitestore
// imports store for the Store interface), so it lives here.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if path, ok := strings.CutPrefix(cfg.DatabaseURL, "sqlite://"); ok {
		return sqlitestore.Open(path)
	}
	return store.New(ctx, "postgres", cfg.DatabaseURL)
}

// requireLibrary resolves a library by slug, translating "not found"
// (including soft-deleted, since a trashed library is not a valid
// target for scan/proxy/ai work) into the user-facing message spec
// §6.1 calls for.
func requireLibrary(ctx context.Context, st store.Store, slug string) (*model.Library, error) {
	lib, err := st.GetLibrary(ctx, slug, false)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, fmt.Errorf("library %q not found or soft-deleted; see `mediasearch library list`", slug)
		}
		return nil, err
	}
	return lib, nil
}

// requireLibraryOrAll enforces spec §6.1's mutual exclusivity: a
// claiming worker must be told either one library or to run unscoped.
func requireLibraryOrAll(library string, all bool) error {
	if library == "" && !all {
		return fmt.Errorf("specify --library <slug> or --all")
	}
	if library != "" && all {
		return fmt.Errorf("--library and --all are mutually exclusive")
	}
	return nil
}

// runnerConfig builds the shared worker.Config every claiming role
// (proxy, video-proxy, ai) constructs its Runner from.
func runnerConfig(cfg config.Config, library string, once bool, heartbeatSeconds int) worker.Config {
	hb := cfg.HeartbeatInterval
	if heartbeatSeconds > 0 {
		hb = time.Duration(heartbeatSeconds) * time.Second
	}
	return worker.Config{
		LibraryScope:      library,
		Once:              once,
		LeaseTTL:          cfg.LeaseTTL,
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: hb,
		TelemetryEnabled:  cfg.TelemetryEnabled,
		OTLPEndpoint:      cfg.OTLPEndpoint,
		TelemetrySampling: cfg.TelemetrySampling,
	}
}
