package videoproxy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/paths"
	"github.com/mediasearch/mediasearch/internal/store"
)

// minHealthySize is the smallest a thumbnail or head-clip can be and
// still plausibly be real output rather than a zero-byte or truncated
// write from a killed worker.
const minHealthySize = 512

// RepairScan is the video-proxy analogue of proxy.RepairScan (spec
// §4.4/§6.1's video-proxy --repair): it walks video assets already past
// this stage and resets any whose thumbnail or head-clip is missing or
// implausibly small back to pending, without invoking ffmpeg or ffprobe.
// Unlike the image repair scan it can't decode container duration
// cheaply, so health here is a file-size floor rather than a dimension
// check.
func RepairScan(ctx context.Context, st store.Store, dataDir, librarySlug string) (reset int, err error) {
	var toReset []int64
	for _, status := range []model.AssetStatus{model.StatusProxied, model.StatusAnalyzedLight, model.StatusCompleted} {
		status := status
		assets, err := st.ListAssets(ctx, librarySlug, &status, 0)
		if err != nil {
			return 0, fmt.Errorf("videoproxy: repair scan list %s: %w", status, err)
		}
		for _, a := range assets {
			if a.Kind != model.KindVideo {
				continue
			}
			thumbAbs := filepath.Join(dataDir, paths.Thumbnail(a.LibrarySlug, a.ID))
			headClipAbs := filepath.Join(dataDir, paths.HeadClip(a.LibrarySlug, a.ID))
			if fileHealthy(thumbAbs) && fileHealthy(headClipAbs) {
				continue
			}
			toReset = append(toReset, a.ID)
		}
	}
	if len(toReset) == 0 {
		return 0, nil
	}
	if err := st.ResetAssetsToPending(ctx, toReset); err != nil {
		return 0, fmt.Errorf("videoproxy: repair scan reset: %w", err)
	}
	return len(toReset), nil
}

func fileHealthy(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() >= minHealthySize
}
