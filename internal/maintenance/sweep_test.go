package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/store/sqlitestore"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func writeTempFile(t *testing.T, dataDir, librarySlug, name string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(dataDir, "tmp", librarySlug)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("scratch"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestSweepRemovesOldTempFilesOnly(t *testing.T) {
	st := newTestStore(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	old := writeTempFile(t, dataDir, "lib1", "old.mp4", TempFileCeiling+time.Hour)
	fresh := writeTempFile(t, dataDir, "lib1", "fresh.mp4", time.Minute)

	res, err := Sweep(ctx, st, dataDir, "", false, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.TempFilesRemoved)
	require.Equal(t, 0, res.TempFilesSkipped)

	_, err = os.Stat(old)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}

func TestSweepDryRunRemovesNothing(t *testing.T) {
	st := newTestStore(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	old := writeTempFile(t, dataDir, "lib1", "old.mp4", TempFileCeiling+time.Hour)

	res, err := Sweep(ctx, st, dataDir, "", false, true)
	require.NoError(t, err)
	require.Equal(t, 1, res.TempFilesRemoved)
	require.Equal(t, 0, res.LeasesReclaimed)
	require.Equal(t, 0, res.StaleWorkersPruned)

	_, err = os.Stat(old)
	require.NoError(t, err, "dry run must not actually delete the file")
}

func TestSweepSkipsTempFilesWhenHostIsTranscoding(t *testing.T) {
	st := newTestStore(t)
	dataDir := t.TempDir()
	ctx := context.Background()
	host, err := os.Hostname()
	require.NoError(t, err)

	old := writeTempFile(t, dataDir, "lib1", "old.mp4", TempFileCeiling+time.Hour)

	require.NoError(t, st.UpsertWorkerStatus(ctx, model.WorkerStatus{
		WorkerID:      "video-proxy-" + host + "-abcd1234",
		Hostname:      host,
		LastHeartbeat: time.Now(),
		State:         model.WorkerProcessing,
	}))

	res, err := Sweep(ctx, st, dataDir, "", false, false)
	require.NoError(t, err)
	require.Equal(t, 0, res.TempFilesRemoved)
	require.Equal(t, 1, res.TempFilesSkipped)

	_, err = os.Stat(old)
	require.NoError(t, err)
}

func TestSweepReclaimsExpiredLeases(t *testing.T) {
	st := newTestStore(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	_, err := st.AddLibrary(ctx, "lib1", "Library One", t.TempDir())
	require.NoError(t, err)
	_, err = st.UpsertAsset(ctx, "lib1", store.UpsertTuple{RelPath: "a.jpg", MTime: 1, Size: 10, Kind: model.KindImage})
	require.NoError(t, err)

	asset, err := st.Claim(ctx, store.ClaimParams{
		AcceptedStatuses: []model.AssetStatus{model.StatusPending},
		Kind:              model.KindImage,
		WorkerID:          "proxy-test-1",
		LeaseTTL:          -time.Second, // already expired
	})
	require.NoError(t, err)
	require.NotNil(t, asset)

	res, err := Sweep(ctx, st, dataDir, "", false, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.LeasesReclaimed)
}
