package video

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Dimensions is a source video's pixel geometry, used to compute the
// scaled 480px-wide frame size the extractor will read (spec §4.5.1).
type Dimensions struct {
	Width  int
	Height int
}

// ScaledSize returns the extractor's per-frame geometry: 480px wide,
// even height, preserving the source aspect ratio — mirrors ffmpeg's
// own `scale=480:-2` filter semantics so the Go-side byte count agrees
// with what ffmpeg actually emits.
func (d Dimensions) ScaledSize() Dimensions {
	if d.Width <= 0 || d.Height <= 0 {
		return Dimensions{Width: 480, Height: 270}
	}
	h := int(float64(480) * float64(d.Height) / float64(d.Width))
	if h%2 != 0 {
		h++
	}
	if h < 2 {
		h = 2
	}
	return Dimensions{Width: 480, Height: h}
}

// ProbeDimensions shells out to ffprobe for the source's native width and
// height, grounded on the teacher's probeDuration helper (a single
// exec.Command with -of default=noprint_wrappers=1:nokey=1, parsed with
// strconv, no JSON library needed for a single scalar/pair of fields).
func ProbeDimensions(ctx context.Context, ffprobeBin, path string) (Dimensions, error) {
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c := exec.CommandContext(ctx, ffprobeBin, "-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0", path)
	out, err := c.Output()
	if err != nil {
		return Dimensions{}, fmt.Errorf("video: ffprobe dimensions: %w", err)
	}
	parts := strings.Split(strings.TrimSpace(string(out)), "x")
	if len(parts) != 2 {
		return Dimensions{}, fmt.Errorf("video: ffprobe dimensions: unexpected output %q", string(out))
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return Dimensions{}, fmt.Errorf("video: parse width: %w", err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return Dimensions{}, fmt.Errorf("video: parse height: %w", err)
	}
	return Dimensions{Width: w, Height: h}, nil
}

// ProbeDuration returns the source's duration in seconds, used by the
// frame extractor's completion/truncation check (spec §4.5.1).
func ProbeDuration(ctx context.Context, ffprobeBin, path string) (float64, error) {
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c := exec.CommandContext(ctx, ffprobeBin, "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := c.Output()
	if err != nil {
		return 0, fmt.Errorf("video: ffprobe duration: %w", err)
	}
	val := strings.TrimSpace(string(out))
	if val == "" || val == "N/A" {
		return 0, fmt.Errorf("video: no duration found for %s", path)
	}
	d, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("video: parse duration: %w", err)
	}
	return d, nil
}
