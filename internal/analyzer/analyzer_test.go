package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMockAnalyzer(t *testing.T) {
	a, err := Get("mock")
	require.NoError(t, err)
	require.Equal(t, ModelCard{Name: "mock", Version: "v1"}, a.ModelCard())

	res, err := a.Describe(context.Background(), "/tmp/frame.jpg")
	require.NoError(t, err)
	require.NotEmpty(t, res.Description)
	require.Contains(t, res.Tags, "mock")
}

func TestGetUnknownAnalyzer(t *testing.T) {
	_, err := Get("nonexistent")
	require.Error(t, err)
}
