package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mediasearch/mediasearch/internal/log"
)

// WatchFile watches path's parent directory (editors replace files via
// rename, which a direct watch on path misses) and calls onChange with
// a freshly reloaded Config whenever path itself is written or
// recreated. Mirrors the teacher's ConfigHolder hot-reload plumbing
// (internal/config/reload.go) but trimmed to the one thing a long-running
// worker process needs: pick up an edited data_dir/ffmpeg_bin/lease
// tuning without a restart. Returns once ctx is canceled; errors other
// than a closed watcher are logged, not returned, since a watch failure
// should never take down the worker it's attached to.
func WatchFile(ctx context.Context, path string, onChange func(Config)) {
	if path == "" {
		return
	}
	logger := log.WithComponent("config-watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("config watcher unavailable")
		return
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("config watch directory unavailable")
		return
	}
	target := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.Warn().Err(err).Msg("config reload failed, keeping previous values")
				continue
			}
			logger.Info().Msg("config file changed, reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}
