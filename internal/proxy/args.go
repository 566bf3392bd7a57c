// Package proxy is the image half of the Proxy/Thumbnail Stage (C4,
// spec §4.1, §11.5): one ffmpeg filter_complex invocation per asset that
// reads the source exactly once and cascades it into a WebP proxy
// (long edge <=768px) and a JPEG thumbnail decoded *from the proxy leg*
// (long edge <=320px), never upscaling. Grounded on the teacher's
// internal/pipeline/exec/ffmpeg/args.go builder idiom (typed spec struct
// in, []string/error out, no shell involved).
package proxy

import "fmt"

const (
	// ProxyMaxEdge is the WebP proxy's long-edge cap (spec §4.1).
	ProxyMaxEdge = 768
	// ThumbMaxEdge is the JPEG thumbnail's long-edge cap, derived from
	// the proxy rather than the source (the "cascade").
	ThumbMaxEdge = 320
)

// StillSpec names the one source and two derivative destinations for a
// single still-image asset.
type StillSpec struct {
	SourcePath string
	ProxyPath  string
	ThumbPath  string
}

// BuildStillArgs constructs the single-invocation cascade: scale down to
// the proxy leg, then scale that leg down again to the thumbnail leg.
// force_original_aspect_ratio=decrease combined with a min(edge, source)
// bound guarantees neither leg ever upscales past the source.
func BuildStillArgs(spec StillSpec) ([]string, error) {
	if spec.SourcePath == "" || spec.ProxyPath == "" || spec.ThumbPath == "" {
		return nil, fmt.Errorf("proxy: still spec missing a required path")
	}

	filter := fmt.Sprintf(
		"[0:v]scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2[proxy];"+
			"[proxy]scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2[thumb]",
		ProxyMaxEdge, ProxyMaxEdge, ThumbMaxEdge, ThumbMaxEdge,
	)

	return []string{
		"-hide_banner", "-nostats", "-loglevel", "error", "-y",
		"-i", spec.SourcePath,
		"-filter_complex", filter,
		"-map", "[proxy]", "-frames:v", "1", "-c:v", "libwebp", "-q:v", "82", spec.ProxyPath,
		"-map", "[thumb]", "-frames:v", "1", "-c:v", "mjpeg", "-q:v", "4", spec.ThumbPath,
	}, nil
}
