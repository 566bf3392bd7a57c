// Package paths computes the deterministic, asset-id-derived cache
// paths from spec §6.2's persistent state layout, recomputed from
// (library_slug, asset_id) wherever needed. The only one also written to
// the database is the head-clip path, which the video-proxy stage stores
// (relative to data_dir) as the asset's preview_path; no absolute path is
// stored.
package paths

import (
	"fmt"
	"path/filepath"
)

// shard buckets an asset id into one of 1000 subdirectories so no single
// directory accumulates millions of entries.
func shard(assetID int64) string {
	return fmt.Sprintf("%d", assetID%1000)
}

// Thumbnail is <library>/thumbnails/<asset_id mod 1000>/<asset_id>.jpg.
func Thumbnail(librarySlug string, assetID int64) string {
	return filepath.Join(librarySlug, "thumbnails", shard(assetID), fmt.Sprintf("%d.jpg", assetID))
}

// Proxy is <library>/proxies/<asset_id mod 1000>/<asset_id>.webp.
func Proxy(librarySlug string, assetID int64) string {
	return filepath.Join(librarySlug, "proxies", shard(assetID), fmt.Sprintf("%d.webp", assetID))
}

// HeadClip is video_clips/<library_id>/<asset_id>/head_clip.mp4 (spec
// §6.4: "exactly head_clip.mp4").
func HeadClip(librarySlug string, assetID int64) string {
	return filepath.Join("video_clips", librarySlug, fmt.Sprintf("%d", assetID), "head_clip.mp4")
}

// SearchHitClip is the lazy on-demand clip name spec §6.4 mandates:
// clip_<ts_int>.mp4, in the same video_clips/<library>/<asset_id>/
// directory as the head-clip.
func SearchHitClip(librarySlug string, assetID int64, ts float64) string {
	return filepath.Join("video_clips", librarySlug, fmt.Sprintf("%d", assetID), fmt.Sprintf("clip_%d.mp4", int64(ts)))
}

// Temp is a scratch path for an ephemeral transcode under
// <data_dir>/tmp/<library>/<name> (spec §6.2, §5 "Temp files").
func Temp(librarySlug, name string) string {
	return filepath.Join("tmp", librarySlug, name)
}
