package analyzer

import (
	"context"
	"fmt"
)

// Mock is a deterministic analyzer for tests and local development. It
// never opens or checks framePath (Describe only echoes the path into
// its description), so it's safe to run without a real vision model. Registering it as the system default
// requires MEDIASEARCH_ALLOW_MOCK_DEFAULT (spec §6.3) — the config
// layer enforces that gate, not this package.
type Mock struct {
	Card ModelCard
}

// NewMock returns a Mock analyzer with a fixed model card, so repeated
// runs produce a stable AIModel row.
func NewMock() *Mock {
	return &Mock{Card: ModelCard{Name: "mock", Version: "v1"}}
}

func (m *Mock) ModelCard() ModelCard { return m.Card }

func (m *Mock) Describe(ctx context.Context, framePath string) (DescribeResult, error) {
	return DescribeResult{
		Description: fmt.Sprintf("mock description for %s", framePath),
		Tags:        []string{"mock"},
	}, nil
}

func (m *Mock) OCR(ctx context.Context, framePath string) (string, error) {
	return "", nil
}
