package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/store/sqlitestore"
)

// fakeProxyStage claims pending images and immediately marks them proxied.
type fakeProxyStage struct {
	processed chan int64
}

func (s *fakeProxyStage) Role() string { return "proxy" }

func (s *fakeProxyStage) ClaimParams(workerID string, leaseTTL time.Duration) store.ClaimParams {
	return store.ClaimParams{
		AcceptedStatuses: []model.AssetStatus{model.StatusPending},
		Kind:             model.KindImage,
		WorkerID:         workerID,
		LeaseTTL:         leaseTTL,
	}
}

func (s *fakeProxyStage) Process(ctx context.Context, asset *model.Asset, shouldStop func() bool) error {
	s.processed <- asset.ID
	return nil
}

func (s *fakeProxyStage) PriorStatus(asset *model.Asset) model.AssetStatus {
	return model.StatusPending
}

func newTestRunner(t *testing.T, stage Stage) (*Runner, store.Store) {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r := NewRunner(st, stage, Config{
		LeaseTTL:          time.Minute,
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
		ForensicsDir:      t.TempDir(),
	})
	return r, st
}

func TestRunnerClaimsAndProcesses(t *testing.T) {
	stage := &fakeProxyStage{processed: make(chan int64, 1)}
	r, st := newTestRunner(t, stage)
	ctx := context.Background()

	_, err := st.AddLibrary(ctx, "lib", "Lib", "/mnt/lib")
	require.NoError(t, err)
	_, err = st.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "a.jpg", MTime: 1, Size: 1, Kind: model.KindImage})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- r.Run(runCtx) }()

	select {
	case id := <-stage.processed:
		require.Greater(t, id, int64(0))
	case <-time.After(2 * time.Second):
		t.Fatal("asset was never processed")
	}

	require.NoError(t, st.SetWorkerCommand(ctx, r.WorkerID, model.CommandShutdown))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("runner did not shut down after shutdown command")
	}
	cancel()
}
