// Package video is the Video Scene Engine (C5, spec §4.5): a persistent
// ffmpeg pipe with a pairing contract between the raw pixel stream and an
// asynchronous PTS metadata stream, a composite scene-cut segmenter, and
// a resumable checkpoint algorithm. Generalized from the teacher's
// internal/pipeline/exec/ffmpeg.Runner (process lifecycle, stderr-ring
// parsing) by swapping HLS segment output for a raw-frame decode pipe.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mediasearch/mediasearch/internal/ffmpegio"
	"github.com/mediasearch/mediasearch/internal/taxonomy"
)

// DesyncTimeout is the spec §4.5.1 fatal pairing-contract timeout: if a
// PTS isn't available within this long after pixel bytes were read, the
// two streams have desynchronized.
const DesyncTimeout = 10 * time.Second

// Frame is one (pixel buffer, presentation timestamp) pair produced by
// the extractor's pairing contract.
type Frame struct {
	RGB []byte
	PTS float64
}

// ErrTruncated signals the decoder ended before the source's probed
// duration (spec §4.5.1 "Completion check").
var ErrTruncated = errors.New("video: stream ended short of source duration")

// FrameExtractor runs a long-lived ffmpeg decode at 1 fps, scaled to a
// fixed width, and pairs each raw pixel frame with the PTS parsed from
// ffmpeg's showinfo filter on stderr (spec §4.5.1).
type FrameExtractor struct {
	proc      *ffmpegio.Proc
	dims      Dimensions
	frameSize int

	ptsCh  chan float64
	ptsErr chan error

	lastPTS   float64
	sawFrame  bool
}

// NewFrameExtractor starts the ffmpeg decode pipe. seekTo (seconds) is
// applied as an input-seek; frames with pts < seekTo during the settle
// window are the caller's responsibility to discard (spec §4.5.1
// "Seek").
func NewFrameExtractor(ctx context.Context, ffmpegBin, path string, dims Dimensions, seekTo float64) (*FrameExtractor, error) {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}

	args := []string{"-hide_banner", "-nostats", "-loglevel", "info"}
	if seekTo > 0 {
		args = append(args, "-ss", strconv.FormatFloat(seekTo, 'f', 3, 64))
	}
	args = append(args,
		"-i", path,
		"-vf", fmt.Sprintf("fps=1,scale=%d:-2,showinfo", dims.Width),
		"-pix_fmt", "rgb24",
		"-f", "rawvideo",
		"-",
	)

	proc, err := ffmpegio.Start(ctx, ffmpegBin, args, nil)
	if err != nil {
		return nil, taxonomy.Tag(taxonomy.ClassTransient, fmt.Errorf("video: start extractor: %w", err))
	}

	fe := &FrameExtractor{
		proc:      proc,
		dims:      dims,
		frameSize: dims.Width * dims.Height * 3,
		ptsCh:     make(chan float64, 64),
		ptsErr:    make(chan error, 1),
	}
	go fe.scanPTS()
	return fe, nil
}

// scanPTS parses ffmpeg showinfo lines of the form
// "... n:  12 pts: 123 pts_time:12.34 ..." and pushes each pts_time onto
// the bounded FIFO (spec §4.5.1 point 1).
func (fe *FrameExtractor) scanPTS() {
	defer close(fe.ptsCh)
	for line := range fe.proc.StderrLines {
		if !strings.Contains(line, "pts_time:") {
			continue
		}
		idx := strings.Index(line, "pts_time:")
		rest := line[idx+len("pts_time:"):]
		end := strings.IndexAny(rest, " \t")
		if end == -1 {
			end = len(rest)
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(rest[:end]), 64)
		if err != nil {
			continue
		}
		fe.ptsCh <- val
	}
}

// Next blocks for one (frame, pts) pair. It returns io.EOF when the
// pixel stream ends cleanly. Any other error is already tagged via
// internal/taxonomy.
func (fe *FrameExtractor) Next(ctx context.Context) (*Frame, error) {
	buf := make([]byte, fe.frameSize)
	n, err := io.ReadFull(fe.proc.Stdout, buf)
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, taxonomy.Tag(taxonomy.ClassTruncated, fmt.Errorf("video: partial frame read (%d/%d bytes): %w", n, fe.frameSize, err))
		}
		return nil, taxonomy.Tag(taxonomy.ClassTransient, fmt.Errorf("video: read frame: %w", err))
	}

	select {
	case pts, ok := <-fe.ptsCh:
		if !ok {
			return nil, taxonomy.Tag(taxonomy.ClassDesync, errors.New("video: pts stream closed before frame/pts pairing completed"))
		}
		fe.lastPTS = pts
		fe.sawFrame = true
		return &Frame{RGB: buf, PTS: pts}, nil
	case <-time.After(DesyncTimeout):
		return nil, taxonomy.Tag(taxonomy.ClassDesync, fmt.Errorf("video: frame/PTS pairing timeout after %s", DesyncTimeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LastPTS returns the most recently paired PTS, or 0 if no frame has
// been read yet.
func (fe *FrameExtractor) LastPTS() float64 { return fe.lastPTS }

// Close terminates the ffmpeg process and reaps it. When sourceDuration
// > 0 and at least one frame was paired, it applies the completion check
// from spec §4.5.1: if
// the last observed PTS falls short of the probed duration by more than
// epsilon, the run is truncated and must never be reported as successful.
func (fe *FrameExtractor) Close(sourceDuration, epsilon float64) error {
	fe.proc.Terminate(2 * time.Second)
	waitErr := fe.proc.Wait()

	if sourceDuration > 0 && fe.sawFrame {
		if sourceDuration-fe.lastPTS > epsilon {
			return taxonomy.Tag(taxonomy.ClassTruncated, fmt.Errorf(
				"%w: observed pts %.3fs, expected duration %.3fs", ErrTruncated, fe.lastPTS, sourceDuration))
		}
	}
	if waitErr != nil {
		return taxonomy.Tag(taxonomy.ClassCorrupt, waitErr)
	}
	return nil
}
