// Package scanner is the Scanner Reconciler (spec §4.3): walks a
// library's source root, upserts the discovered files using the
// dirty-detection rule, and claims the library for the duration of the
// walk so two scans of the same library never run concurrently.
// Grounded on the teacher's internal/pipeline/scan.Manager (atomic
// running flag, mutex-guarded status struct, heartbeat-style stats
// exposure) but walking a filesystem tree instead of probing playlist
// channels.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mediasearch/mediasearch/internal/log"
	"github.com/mediasearch/mediasearch/internal/metrics"
	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
)

// imageExtensions and videoExtensions are the recognized kinds from
// spec §4.3, lower-cased without the leading dot.
var (
	imageExtensions = map[string]bool{
		"jpg": true, "jpeg": true, "png": true, "webp": true, "bmp": true, "tif": true, "tiff": true,
		"cr2": true, "cr3": true, "crw": true, "nef": true, "nrw": true, "arw": true, "sr2": true,
		"srf": true, "raf": true, "orf": true, "rw2": true, "raw": true, "rwl": true, "dng": true,
	}
	videoExtensions = map[string]bool{
		"mp4": true, "mkv": true, "mov": true,
	}
)

// classify returns the recognized MediaKind for a path, or ok=false if
// the extension is not a recognized media type.
func classify(path string) (model.MediaKind, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if imageExtensions[ext] {
		return model.KindImage, true
	}
	if videoExtensions[ext] {
		return model.KindVideo, true
	}
	return "", false
}

// Status is the scan progress exposed through worker heartbeat stats
// (spec §4.3: "Progress... exposed via heartbeat stats").
type Status struct {
	LibrarySlug     string `json:"library_slug"`
	DirsVisited     int    `json:"dirs_visited"`
	FilesProcessed  int    `json:"files_processed"`
	FilesInserted   int    `json:"files_inserted"`
	FilesDirtied    int    `json:"files_dirtied"`
	LastError       string `json:"last_error,omitempty"`
}

// Scanner runs one library reconciliation at a time per instance.
type Scanner struct {
	Store store.Store

	mu     sync.RWMutex
	status Status
}

// New builds a Scanner bound to st.
func New(st store.Store) *Scanner {
	return &Scanner{Store: st}
}

// Status returns a snapshot of the current (or most recent) scan's
// progress, suitable for attaching to a worker's heartbeat stats.
func (s *Scanner) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run walks librarySlug's source root and reconciles every recognized
// media file found. shouldStop is polled at least once per directory
// and after every 100 entries (spec §4.3). The library is always
// returned to idle on every exit path — success, error, or cooperative
// cancellation.
func (s *Scanner) Run(ctx context.Context, librarySlug string, shouldStop func() bool) error {
	logger := log.WithComponent("scan")

	lib, err := s.Store.ClaimLibraryForScan(ctx, librarySlug)
	if err != nil {
		return fmt.Errorf("scanner: claim library %q: %w", librarySlug, err)
	}

	s.mu.Lock()
	s.status = Status{LibrarySlug: librarySlug}
	s.mu.Unlock()

	finalState := model.ScanIdle
	var walkErr error
	defer func() {
		if relErr := s.Store.ReleaseLibraryScan(ctx, librarySlug, finalState); relErr != nil {
			logger.Error().Err(relErr).Str("library", librarySlug).Msg("failed to release library scan state")
		}
	}()

	entriesSinceCheck := 0
	walkErr = filepath.WalkDir(lib.SourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if shouldStop() {
			return fs.SkipAll
		}

		if d.IsDir() {
			s.mu.Lock()
			s.status.DirsVisited++
			s.mu.Unlock()
			if shouldStop() {
				return fs.SkipAll
			}
			return nil
		}

		entriesSinceCheck++
		if entriesSinceCheck >= 100 {
			entriesSinceCheck = 0
			if shouldStop() {
				return fs.SkipAll
			}
		}

		kind, ok := classify(path)
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			metrics.ScanFilesTotal.WithLabelValues("stat_error").Inc()
			return nil
		}
		relPath, err := filepath.Rel(lib.SourceRoot, path)
		if err != nil {
			return nil
		}

		res, err := s.Store.UpsertAsset(ctx, librarySlug, store.UpsertTuple{
			RelPath: relPath,
			MTime:   float64(info.ModTime().UnixNano()) / float64(time.Second),
			Size:    info.Size(),
			Kind:    kind,
		})
		if err != nil {
			metrics.ScanFilesTotal.WithLabelValues("upsert_error").Inc()
			logger.Warn().Err(err).Str("path", relPath).Msg("upsert failed, continuing scan")
			return nil
		}

		s.mu.Lock()
		s.status.FilesProcessed++
		if res.Inserted {
			s.status.FilesInserted++
		}
		if res.Dirtied {
			s.status.FilesDirtied++
		}
		s.mu.Unlock()

		outcome := "unchanged"
		switch {
		case res.Inserted:
			outcome = "inserted"
		case res.Dirtied:
			outcome = "dirtied"
		}
		metrics.ScanFilesTotal.WithLabelValues(outcome).Inc()
		return nil
	})

	if walkErr != nil {
		s.mu.Lock()
		s.status.LastError = walkErr.Error()
		s.mu.Unlock()
		return fmt.Errorf("scanner: walk %q: %w", lib.SourceRoot, walkErr)
	}
	return nil
}
