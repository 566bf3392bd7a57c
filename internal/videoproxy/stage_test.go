package videoproxy

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/paths"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/store/sqlitestore"
	"github.com/mediasearch/mediasearch/internal/video"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found, skipping video-proxy integration test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found, skipping video-proxy integration test")
	}
}

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

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStageProcessesVideoAssetEndToEnd(t *testing.T) {
	requireFFmpeg(t)
	ctx := context.Background()
	root := t.TempDir()
	synthesizeClip(t, root)

	st := newTestStore(t)
	_, err := st.AddLibrary(ctx, "lib", "Lib", root)
	require.NoError(t, err)
	_, err = st.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "clip.mp4", MTime: 1, Size: 1, Kind: model.KindVideo})
	require.NoError(t, err)

	assets, err := st.ListAssets(ctx, "lib", nil, 0)
	require.NoError(t, err)
	require.Len(t, assets, 1)

	dataDir := t.TempDir()
	engine := video.NewEngine(st, "ffmpeg", "ffprobe", dataDir, time.Minute)
	s := &Stage{Store: st, Engine: engine, DataDir: dataDir, FFmpegBin: "ffmpeg", FFprobeBin: "ffprobe"}

	require.NoError(t, s.Process(ctx, assets[0], func() bool { return false }))

	thumbAbs := filepath.Join(dataDir, paths.Thumbnail("lib", assets[0].ID))
	headClipAbs := filepath.Join(dataDir, paths.HeadClip("lib", assets[0].ID))
	require.FileExists(t, thumbAbs)
	require.FileExists(t, headClipAbs)

	got, err := st.GetAsset(ctx, assets[0].ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusProxied, got.Status)
	require.Equal(t, paths.HeadClip("lib", assets[0].ID), got.PreviewPath)
	require.NotNil(t, got.SegmentationVersion)

	scenes, err := st.ListScenes(ctx, assets[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, scenes)

	// The ephemeral transcode must not survive Process.
	entries, err := os.ReadDir(filepath.Join(dataDir, "tmp", "lib"))
	if err == nil {
		require.Empty(t, entries, "ephemeral transcode must be cleaned up")
	}
}

func TestStageClaimParamsRestrictsToPendingVideos(t *testing.T) {
	s := &Stage{}
	params := s.ClaimParams("worker-1", time.Minute)
	require.Equal(t, []model.AssetStatus{model.StatusPending}, params.AcceptedStatuses)
	require.Equal(t, model.KindVideo, params.Kind)
}
