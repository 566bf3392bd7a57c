// Package ffmpegio wraps ffmpeg child-process lifecycle for the proxy,
// video-proxy, and video-scene stages: process-group teardown so a
// killed ffmpeg never leaves orphaned children, and a bounded per-process
// stderr capture for error diagnostics. Grounded on the teacher's
// internal/procgroup (Set/Kill by process group) and
// internal/pipeline/exec/ffmpeg.Runner's stderr-ring idiom, narrowed from
// a long-lived HLS session to the one-shot/long-lived-pipe invocations
// this pipeline needs.
package ffmpegio

import "os/exec"

// SetProcessGroup configures cmd to start in its own process group so
// KillGroup can reap the whole tree (ffmpeg sometimes forks helpers).
func SetProcessGroup(cmd *exec.Cmd) {
	setProcessGroup(cmd)
}
