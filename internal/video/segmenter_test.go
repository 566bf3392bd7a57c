package video

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmenterTemporalCeilingForcesCut(t *testing.T) {
	s := NewSegmenter(Params{PHashThreshold: 1000, TemporalCeiling: 30, DebounceSec: 3})
	anchor := Hash{1, 2, 3, 4}

	var lastClosed *ClosedScene
	for pts := 0.0; pts < 35; pts++ {
		closed, _ := s.Process(pts, anchor, 10)
		if closed != nil {
			lastClosed = closed
		}
	}

	require.NotNil(t, lastClosed)
	require.Equal(t, CloseReasonTemporal, lastClosed.CloseReason)
	require.Equal(t, 0.0, lastClosed.StartTS)
	require.InDelta(t, 30.0, lastClosed.EndTS, 0.001)
}

func TestSegmenterPHashCutRespectsDebounce(t *testing.T) {
	s := NewSegmenter(Params{PHashThreshold: 10, TemporalCeiling: 1000, DebounceSec: 3})
	a := Hash{0, 0, 0, 0}
	b := Hash{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)} // max hamming distance from a

	// Bootstrap frame: opens the first scene anchored on itself, so the
	// distance-to-anchor is trivially zero and nothing can cut yet.
	closed, _ := s.Process(0, a, 1)
	require.Nil(t, closed)

	// First real jump: no prior cut exists to debounce against, so it cuts.
	closed, _ = s.Process(1, b, 1)
	require.NotNil(t, closed)
	require.Equal(t, CloseReasonPHash, closed.CloseReason)

	// A second large jump within the debounce window of that cut must not cut.
	closed, _ = s.Process(2, a, 1)
	require.Nil(t, closed, "cut inside debounce window must be suppressed")

	// Once the debounce window has elapsed since the last cut, it may cut again.
	closed, _ = s.Process(5, a, 1)
	require.NotNil(t, closed)
	require.Equal(t, CloseReasonPHash, closed.CloseReason)
}

func TestSegmenterSkipsBestFrameUpdateForFirstFrame(t *testing.T) {
	s := NewSegmenter(Params{PHashThreshold: 1000, TemporalCeiling: 1000, DebounceSec: 3})
	anchor := Hash{1, 1, 1, 1}

	s.Process(0, anchor, 100) // frame 1: transition blur, high sharpness, must be ignored
	s.Process(1, anchor, 5)   // frame 2: frameCount reaches 2, first eligible frame
	closed := s.Flush(2)

	require.NotNil(t, closed)
	require.Equal(t, 5.0, closed.Sharpness, "best-frame should only start tracking once frameCount >= 2")
}

func TestSegmenterFlushForcesOpenScene(t *testing.T) {
	s := NewSegmenter(DefaultParams())
	anchor := Hash{9, 9, 9, 9}
	s.Process(0, anchor, 1)
	s.Process(1, anchor, 2)

	closed := s.Flush(12.5)
	require.NotNil(t, closed)
	require.Equal(t, CloseReasonForced, closed.CloseReason)
	require.Equal(t, 12.5, closed.EndTS)
}

func TestSegmenterIsDeterministic(t *testing.T) {
	run := func() []*ClosedScene {
		s := NewSegmenter(DefaultParams())
		var out []*ClosedScene
		hashes := []Hash{{1, 1, 1, 1}, {1, 1, 1, 1}, {^uint64(0), 0, 0, 0}, {^uint64(0), 0, 0, 0}}
		for i, h := range hashes {
			closed, _ := s.Process(float64(i)*5, h, float64(i))
			if closed != nil {
				out = append(out, closed)
			}
		}
		if final := s.Flush(20); final != nil {
			out = append(out, final)
		}
		return out
	}

	a, b := run(), run()
	require.Equal(t, a, b)
}
