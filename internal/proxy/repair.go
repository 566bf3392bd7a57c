package proxy

import (
	"fmt"
	"image"
	"os"

	_ "golang.org/x/image/webp" // registers WebP decoding for image.Decode

	"github.com/disintegration/imaging"
)

// probeDimensions decodes just enough of an existing derivative to learn
// its dimensions without invoking ffmpeg, used by --repair to tell a
// healthy derivative from a missing or corrupt one (spec §11.5).
func probeDimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("proxy: decode config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// isHealthy reports whether the derivative at path exists, decodes, and
// respects its expected long-edge cap (proxy/thumbnail never upscale, so
// a derivative wider than its cap is itself a sign of corruption or a
// stale generation).
func isHealthy(path string, maxEdge int) bool {
	w, h, err := probeDimensions(path)
	if err != nil {
		return false
	}
	longEdge := w
	if h > longEdge {
		longEdge = h
	}
	return longEdge > 0 && longEdge <= maxEdge
}

// decodeThumbnailFallback is a pure-Go resize via disintegration/imaging,
// grounded on the teacher's internal/imaging processor's resizeAndCrop
// step. Slower and RAW-format-blind compared to the ffmpeg cascade. It
// is not called anywhere in this package: RepairScan only resets assets
// and Stage always uses the ffmpeg cascade.
func decodeThumbnailFallback(srcPath, dstPath string, maxEdge int) error {
	src, err := imaging.Open(srcPath)
	if err != nil {
		return fmt.Errorf("proxy: fallback decode: %w", err)
	}
	resized := imaging.Fit(src, maxEdge, maxEdge, imaging.Lanczos)
	if err := imaging.Save(resized, dstPath); err != nil {
		return fmt.Errorf("proxy: fallback save: %w", err)
	}
	return nil
}
