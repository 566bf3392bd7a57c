package store

import "github.com/mediasearch/mediasearch/internal/model"

// phashWord/setPHashWords marshal model.VideoActiveState's 256-bit
// anchor hash to and from four BIGINT columns. The array's element type
// is unexported in package model on purpose (video.Hash is the public
// type elsewhere); plain indexing still works on the exported field.
func phashWord(s *model.VideoActiveState, i int) uint64 {
	return s.AnchorPHash[i]
}

func setPHashWords(s *model.VideoActiveState, w0, w1, w2, w3 uint64) {
	s.AnchorPHash[0] = w0
	s.AnchorPHash[1] = w1
	s.AnchorPHash[2] = w2
	s.AnchorPHash[3] = w3
}
