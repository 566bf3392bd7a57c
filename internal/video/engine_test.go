package video

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/store/sqlitestore"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found, skipping video engine integration test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found, skipping video engine integration test")
	}
}

// synthesizeClip renders a short test clip with a hard color cut at 2s
// using ffmpeg's own lavfi test sources, so the test has no binary fixture.
func synthesizeClip(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "clip.mp4")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "color=c=red:s=320x240:d=2",
		"-f", "lavfi", "-i", "color=c=blue:s=320x240:d=2",
		"-filter_complex", "[0][1]concat=n=2:v=1:a=0",
		"-r", "10", path)
	require.NoError(t, cmd.Run())
	return path
}

func newTestEngineStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestEngineSegmentsSyntheticClip(t *testing.T) {
	requireFFmpeg(t)
	ctx := context.Background()
	dir := t.TempDir()
	clip := synthesizeClip(t, dir)

	st := newTestEngineStore(t)
	_, err := st.AddLibrary(ctx, "lib", "Lib", dir)
	require.NoError(t, err)
	_, err = st.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "clip.mp4", MTime: 1, Size: 1, Kind: model.KindVideo})
	require.NoError(t, err)

	assets, err := st.ListAssets(ctx, "lib", nil, 0)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	a := assets[0]

	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	engine := NewEngine(st, "ffmpeg", "ffprobe", dataDir, time.Minute)
	err = engine.Segment(ctx, a, clip, func() bool { return false })
	require.NoError(t, err)

	scenes, err := st.ListScenes(ctx, a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, scenes, "a 4s synthetic clip with a hard cut must yield at least one scene")

	for _, sc := range scenes {
		_, statErr := os.Stat(filepath.Join(dataDir, sc.RepFramePath))
		require.NoError(t, statErr, "representative frame jpeg must exist on disk")
	}

	active, err := st.GetActiveState(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, active, "active state must be cleared once the stream finishes")
}
