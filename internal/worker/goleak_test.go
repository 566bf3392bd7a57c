package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/store/sqlitestore"
)

// TestRunnerOnceLeavesNoGoroutines guards the heartbeat goroutine
// Run spawns (runner.go's hbWG/heartbeatLoop): --once must join it
// before returning, not leave it running past the caller's lifetime.
func TestRunnerOnceLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	_, err = st.AddLibrary(ctx, "lib", "Lib", "/mnt/lib")
	require.NoError(t, err)
	_, err = st.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "a.jpg", MTime: 1, Size: 1, Kind: model.KindImage})
	require.NoError(t, err)

	stage := &fakeProxyStage{processed: make(chan int64, 1)}
	r := NewRunner(st, stage, Config{
		Once:              true,
		LeaseTTL:          time.Minute,
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
		ForensicsDir:      t.TempDir(),
	})

	require.NoError(t, r.Run(ctx))

	select {
	case id := <-stage.processed:
		require.Greater(t, id, int64(0))
	default:
		t.Fatal("asset was never processed")
	}
}

// TestRunnerOnceNoWorkReturnsImmediately covers the empty-queue branch
// of --once, which must also return cleanly rather than blocking on the
// poll loop.
func TestRunnerOnceNoWorkReturnsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	stage := &fakeProxyStage{processed: make(chan int64, 1)}
	r := NewRunner(st, stage, Config{
		Once:              true,
		LeaseTTL:          time.Minute,
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
		ForensicsDir:      t.TempDir(),
	})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("--once with no eligible work did not return")
	}
}
