// Package visionstage is the AI Stage (spec §4.5.6): feeds a vision
// analyzer representative frames (image proxies, video scene rep
// frames) and merges results back under the strict merge policy —
// re-read before write, rerun on model mismatch, full mode only adds
// ocr_text, never overwriting description/tags.
package visionstage

import "fmt"

// Mode is the two vision passes spec §6.1's `ai start --mode` selects
// between.
type Mode string

const (
	ModeLight Mode = "light"
	ModeFull  Mode = "full"
)

func (m Mode) validate() error {
	if m != ModeLight && m != ModeFull {
		return fmt.Errorf("visionstage: unknown mode %q", m)
	}
	return nil
}
