package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mediasearch/mediasearch/internal/ffmpegio"
	"github.com/mediasearch/mediasearch/internal/taxonomy"
)

// ExtractRepFrame performs the targeted high-res re-extraction from spec
// §4.5.3: seeks the *original* (unscaled) video to max(repPTS-0.5, 0) and
// decodes a single frame out to outPath as a JPEG. Decoupled from the
// 1fps low-res pass so full-resolution frames are never held in memory
// during segmentation.
func ExtractRepFrame(ctx context.Context, ffmpegBin, sourcePath, outPath string, repPTS float64) error {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	seekTo := repPTS - 0.5
	if seekTo < 0 {
		seekTo = 0
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return taxonomy.Tag(taxonomy.ClassTransient, fmt.Errorf("video: mkdir scene dir: %w", err))
	}

	tmp := outPath + ".tmp"
	args := []string{
		"-hide_banner", "-nostats", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat(seekTo, 'f', 3, 64),
		"-i", sourcePath,
		"-frames:v", "1",
		"-q:v", "2",
		tmp,
	}

	proc, err := ffmpegio.Start(ctx, ffmpegBin, args, nil)
	if err != nil {
		return taxonomy.Tag(taxonomy.ClassTransient, fmt.Errorf("video: start rep-frame extract: %w", err))
	}
	go func() {
		for range proc.StderrLines {
		}
	}()
	if err := proc.Wait(); err != nil {
		_ = os.Remove(tmp)
		return taxonomy.Tag(taxonomy.ClassCorrupt, fmt.Errorf("video: rep-frame extract failed: %w", err))
	}

	if err := os.Rename(tmp, outPath); err != nil {
		return taxonomy.Tag(taxonomy.ClassTransient, fmt.Errorf("video: finalize rep frame: %w", err))
	}
	return nil
}

// ScenePath builds the on-disk path for a scene's representative JPEG,
// relative to data_dir (spec §6.2): video_scenes/<library>/<asset_id>/<start>_<end>.jpg.
func ScenePath(librarySlug string, assetID int64, startTS, endTS float64) string {
	return filepath.Join("video_scenes", librarySlug, strconv.FormatInt(assetID, 10),
		fmt.Sprintf("%d_%d.jpg", int64(startTS+0.5), int64(endTS+0.5)))
}
