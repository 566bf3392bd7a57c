// Package analyzer is the pluggable vision-model boundary (spec §4.5.6,
// §9 "Dynamic-dispatch analyzers"): the vision model itself is a pure
// function frame -> {description, tags, ocr_text} and is explicitly out
// of scope (spec §1 "Out of scope"). Analyzers are registered by name
// and version, polymorphic over one small interface, with no runtime
// reflection.
package analyzer

import "context"

// DescribeResult is the light-mode vision result: a caption and a flat
// tag list.
type DescribeResult struct {
	Description string
	Tags        []string
}

// ModelCard identifies an analyzer's (name, version) pair, persisted
// into the AIModel table so assets can record which model produced
// their current analysis (spec §3, §4.1 "Effective model resolution").
type ModelCard struct {
	Name    string
	Version string
}

// Analyzer is the polymorphic vision-model contract (spec §9). Describe
// backs light mode; OCR backs full mode. Both take the path to a
// representative frame already on disk (a video scene's rep_frame_path
// or an image's proxy/thumbnail).
type Analyzer interface {
	ModelCard() ModelCard
	Describe(ctx context.Context, framePath string) (DescribeResult, error)
	OCR(ctx context.Context, framePath string) (string, error)
}
