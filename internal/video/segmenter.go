package video

import "fmt"

// CloseReason mirrors model.CloseReason without importing internal/model,
// keeping the segmenter a pure, dependency-free state machine that the
// engine translates into persistence types.
type CloseReason string

const (
	CloseReasonPHash    CloseReason = "phash"
	CloseReasonTemporal CloseReason = "temporal"
	CloseReasonForced   CloseReason = "forced"
)

// Params are the composite cut-detector's tunables (spec §4.5.2).
type Params struct {
	PHashThreshold  int
	TemporalCeiling float64
	DebounceSec     float64
}

// DefaultParams are the spec-mandated defaults.
func DefaultParams() Params {
	return Params{PHashThreshold: 51, TemporalCeiling: 30, DebounceSec: 3}
}

// Version encodes the parameters that affect segmentation determinism,
// stored as Asset.SegmentationVersion (spec §4.5.5).
func (p Params) Version() string {
	return fmt.Sprintf("phash=%d;debounce=%.3f", p.PHashThreshold, p.DebounceSec)
}

const noBestSentinel = -1

type openScene struct {
	anchor        Hash
	startTS       float64
	frameCount    int
	bestPTS       float64
	bestSharpness float64
}

func newOpenScene(anchor Hash, startTS float64) *openScene {
	return &openScene{anchor: anchor, startTS: startTS, bestSharpness: noBestSentinel}
}

// ClosedScene is one yielded scene (spec §4.5.2 point 6).
type ClosedScene struct {
	StartTS       float64
	EndTS         float64
	RepFramePTS   float64
	Sharpness     float64
	CloseReason   CloseReason
}

// Segmenter is the composite cut detector. Deterministic for the same
// sequence of (pts, hash, sharpness) inputs and parameters (spec §4.5.2
// "must be deterministic").
type Segmenter struct {
	params     Params
	scene      *openScene
	lastCutPTS float64
}

// NewSegmenter starts with no open scene; the first frame fed to Process
// opens one.
func NewSegmenter(params Params) *Segmenter {
	return &Segmenter{params: params, lastCutPTS: -1e18}
}

// Prime seeds the segmenter from a persisted VideoActiveState checkpoint
// (spec §4.5.4 resume step 5). The primed scene is treated as already
// having seen 2 frames, so best-frame replacement is active immediately.
func (s *Segmenter) Prime(anchor Hash, sceneStartTS, bestPTS, bestSharpness float64) {
	s.scene = &openScene{
		anchor:        anchor,
		startTS:       sceneStartTS,
		frameCount:    2,
		bestPTS:       bestPTS,
		bestSharpness: bestSharpness,
	}
	s.lastCutPTS = sceneStartTS
}

// Process feeds one frame's (pts, hash, sharpness) through the cut
// detector. It returns the closed scene when this frame triggers a cut;
// otherwise closed is nil. Active reports the current open scene's
// checkpoint fields, to be persisted alongside any scene close (spec
// §4.5.4 point 2).
func (s *Segmenter) Process(pts float64, hash Hash, sharpness float64) (closed *ClosedScene, active ActiveSnapshot) {
	if s.scene == nil {
		s.scene = newOpenScene(hash, pts)
	}
	sc := s.scene
	sc.frameCount++

	if sc.frameCount >= 2 {
		if sharpness > sc.bestSharpness {
			sc.bestSharpness = sharpness
			sc.bestPTS = pts
		}
	}

	distance := Hamming(hash, sc.anchor)

	var reason CloseReason
	switch {
	case pts-sc.startTS >= s.params.TemporalCeiling:
		reason = CloseReasonTemporal
	case distance > s.params.PHashThreshold && pts-s.lastCutPTS >= s.params.DebounceSec:
		reason = CloseReasonPHash
	}

	if reason != "" {
		closed = s.closeScene(sc, pts, reason)
		s.lastCutPTS = pts
		s.scene = newOpenScene(hash, pts)
	}

	return closed, s.Snapshot()
}

func (s *Segmenter) closeScene(sc *openScene, endTS float64, reason CloseReason) *ClosedScene {
	repPTS, sharp := sc.bestPTS, sc.bestSharpness
	if sharp == noBestSentinel {
		// Scene never reached 2 frames; fall back to the anchor itself.
		repPTS, sharp = sc.startTS, 0
	}
	return &ClosedScene{
		StartTS:     sc.startTS,
		EndTS:       endTS,
		RepFramePTS: repPTS,
		Sharpness:   sharp,
		CloseReason: reason,
	}
}

// Flush closes the current open scene at end-of-stream (spec §4.5.2
// "End-of-stream"). endTS is max(lastObservedPTS, sourceDuration).
// Returns nil if there is no open scene (stream had zero frames).
func (s *Segmenter) Flush(endTS float64) *ClosedScene {
	if s.scene == nil {
		return nil
	}
	return s.closeScene(s.scene, endTS, CloseReasonForced)
}

// ActiveSnapshot is the in-progress checkpoint of the currently open
// scene, mapped by the engine onto model.VideoActiveState.
type ActiveSnapshot struct {
	Anchor        Hash
	SceneStartTS  float64
	BestFrameTS   float64
	BestSharpness float64
}

// Snapshot returns the current open scene's checkpoint state.
func (s *Segmenter) Snapshot() ActiveSnapshot {
	if s.scene == nil {
		return ActiveSnapshot{}
	}
	sharp := s.scene.bestSharpness
	if sharp == noBestSentinel {
		sharp = 0
	}
	return ActiveSnapshot{
		Anchor:        s.scene.anchor,
		SceneStartTS:  s.scene.startTS,
		BestFrameTS:   s.scene.bestPTS,
		BestSharpness: sharp,
	}
}
