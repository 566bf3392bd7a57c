package proxy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/paths"
	"github.com/mediasearch/mediasearch/internal/store"
)

// RepairScan implements the literal --repair contract (spec §4.4): it is
// only a resetter. It walks image assets already past the proxy stage,
// checks their derivatives on disk without invoking ffmpeg, and resets
// any with a missing, undecodable or oversized derivative back to pending so
// regeneration runs through the ordinary claim path. It never writes a
// derivative itself.
func RepairScan(ctx context.Context, st store.Store, dataDir, librarySlug string) (reset int, err error) {
	var toReset []int64
	for _, status := range []model.AssetStatus{model.StatusProxied, model.StatusAnalyzedLight, model.StatusCompleted} {
		status := status
		assets, err := st.ListAssets(ctx, librarySlug, &status, 0)
		if err != nil {
			return 0, fmt.Errorf("proxy: repair scan list %s: %w", status, err)
		}
		for _, a := range assets {
			if a.Kind != model.KindImage {
				continue
			}
			proxyAbs := filepath.Join(dataDir, paths.Proxy(a.LibrarySlug, a.ID))
			thumbAbs := filepath.Join(dataDir, paths.Thumbnail(a.LibrarySlug, a.ID))
			if isHealthy(proxyAbs, ProxyMaxEdge) && isHealthy(thumbAbs, ThumbMaxEdge) {
				continue
			}
			toReset = append(toReset, a.ID)
		}
	}
	if len(toReset) == 0 {
		return 0, nil
	}
	if err := st.ResetAssetsToPending(ctx, toReset); err != nil {
		return 0, fmt.Errorf("proxy: repair scan reset: %w", err)
	}
	return len(toReset), nil
}
