package proxy

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
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
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found, skipping proxy stage integration test")
	}
}

func writeTestJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 128, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStageProcessGeneratesCascade(t *testing.T) {
	requireFFmpeg(t)
	ctx := context.Background()
	root := t.TempDir()
	writeTestJPEG(t, filepath.Join(root, "photo.jpg"))

	st := newTestStore(t)
	_, err := st.AddLibrary(ctx, "lib", "Lib", root)
	require.NoError(t, err)
	_, err = st.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "photo.jpg", MTime: 1, Size: 1, Kind: model.KindImage})
	require.NoError(t, err)

	assets, err := st.ListAssets(ctx, "lib", nil, 0)
	require.NoError(t, err)
	require.Len(t, assets, 1)

	dataDir := t.TempDir()
	s := &Stage{Store: st, DataDir: dataDir, FFmpegBin: "ffmpeg"}
	require.NoError(t, s.Process(ctx, assets[0], func() bool { return false }))

	proxyAbs := filepath.Join(dataDir, paths.Proxy("lib", assets[0].ID))
	thumbAbs := filepath.Join(dataDir, paths.Thumbnail("lib", assets[0].ID))
	require.FileExists(t, proxyAbs)
	require.FileExists(t, thumbAbs)

	w, h, err := probeDimensions(thumbAbs)
	require.NoError(t, err)
	require.LessOrEqual(t, max(w, h), ThumbMaxEdge)

	got, err := st.GetAsset(ctx, assets[0].ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusProxied, got.Status)
}

func TestStageClaimParamsRestrictsToPendingImages(t *testing.T) {
	s := &Stage{}
	params := s.ClaimParams("worker-1", time.Minute)
	require.Equal(t, []model.AssetStatus{model.StatusPending}, params.AcceptedStatuses)
	require.Equal(t, model.KindImage, params.Kind)
}

func TestRepairScanResetsUnhealthyDerivatives(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	root := t.TempDir()
	writeTestJPEG(t, filepath.Join(root, "photo.jpg"))

	_, err := st.AddLibrary(ctx, "lib", "Lib", root)
	require.NoError(t, err)
	_, err = st.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "photo.jpg", MTime: 1, Size: 1, Kind: model.KindImage})
	require.NoError(t, err)

	assets, err := st.ListAssets(ctx, "lib", nil, 0)
	require.NoError(t, err)
	require.NoError(t, st.MarkProxied(ctx, assets[0].ID, "", nil))

	dataDir := t.TempDir()
	reset, err := RepairScan(ctx, st, dataDir, "lib")
	require.NoError(t, err)
	require.Equal(t, 1, reset)

	got, err := st.GetAsset(ctx, assets[0].ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, got.Status)
}

func TestIsHealthyRejectsMissingFile(t *testing.T) {
	require.False(t, isHealthy(filepath.Join(t.TempDir(), "nope.webp"), ProxyMaxEdge))
}

func TestIsHealthyRejectsOversizedDerivative(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thumb.jpg")
	img := image.NewRGBA(image.Rect(0, 0, 1000, 10))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())

	require.False(t, isHealthy(path, ThumbMaxEdge))
}
