// Package videoproxy is the video half of the Proxy Stage (C4, spec
// §4.4): transcodes a video source exactly once into an ephemeral 720p
// file, derives a static thumbnail and a 10-second stream-copied
// head-clip from it, invokes the Scene Engine (C5, internal/video)
// against the original source, and deletes the ephemeral file on every
// exit path. Grounded on the teacher's
// internal/pipeline/exec/ffmpeg args-builder idiom, same as
// internal/proxy.
package videoproxy

import "fmt"

// HeadClipSeconds is the fixed head-clip duration (spec §4.4).
const HeadClipSeconds = 10

// TranscodeHeight is the ephemeral proxy's target height (720p).
const TranscodeHeight = 720

// BuildTranscodeArgs produces the one-shot 720p transcode invocation.
// force_divisible_by=2 keeps the output dimensions even for the
// downstream codecs; never upscales past the source.
func BuildTranscodeArgs(sourcePath, outPath string) []string {
	return []string{
		"-hide_banner", "-nostats", "-loglevel", "error", "-y",
		"-i", sourcePath,
		"-vf", fmt.Sprintf("scale=-2:'min(%d,ih)':force_divisible_by=2", TranscodeHeight),
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		outPath,
	}
}

// BuildThumbnailArgs extracts a single representative frame 1s into the
// ephemeral 720p file. No earlier seek point is tried for clips shorter
// than that.
func BuildThumbnailArgs(transcodedPath, outPath string) []string {
	return []string{
		"-hide_banner", "-nostats", "-loglevel", "error", "-y",
		"-ss", "1",
		"-i", transcodedPath,
		"-frames:v", "1", "-q:v", "4",
		outPath,
	}
}

// BuildHeadClipArgs stream-copies the first HeadClipSeconds of the
// ephemeral 720p file, avoiding a second transcode pass.
func BuildHeadClipArgs(transcodedPath, outPath string) []string {
	return []string{
		"-hide_banner", "-nostats", "-loglevel", "error", "-y",
		"-i", transcodedPath,
		"-t", fmt.Sprintf("%d", HeadClipSeconds),
		"-c", "copy",
		outPath,
	}
}
