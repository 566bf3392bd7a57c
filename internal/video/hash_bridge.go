package video

import "github.com/mediasearch/mediasearch/internal/model"

// anchorToModel and anchorFromModel bridge video.Hash ([4]uint64) and
// model.VideoActiveState.AnchorPHash, whose element type is
// intentionally unexported in package model (see
// internal/store/phash_words.go) — plain array indexing across the
// package boundary is legal even though the type name itself isn't.
func anchorToModel(s *model.VideoActiveState, h Hash) {
	s.AnchorPHash[0] = h[0]
	s.AnchorPHash[1] = h[1]
	s.AnchorPHash[2] = h[2]
	s.AnchorPHash[3] = h[3]
}

func anchorFromModel(s *model.VideoActiveState) Hash {
	return Hash{s.AnchorPHash[0], s.AnchorPHash[1], s.AnchorPHash[2], s.AnchorPHash[3]}
}
