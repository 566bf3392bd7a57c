package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediasearch/mediasearch/internal/model"
	"github.com/mediasearch/mediasearch/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLibraryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.AddLibrary(ctx, "photos", "Photos", "/mnt/photos")
	require.NoError(t, err)

	_, err = s.AddLibrary(ctx, "photos", "Photos Again", "/mnt/photos2")
	require.ErrorIs(t, err, store.ErrSlugExists)

	require.NoError(t, s.RemoveLibrary(ctx, "photos"))

	// slug uniqueness applies to trashed libraries too (spec §3)
	_, err = s.AddLibrary(ctx, "photos", "Photos Reborn", "/mnt/photos3")
	require.ErrorIs(t, err, store.ErrSlugExists)

	_, err = s.GetLibrary(ctx, "photos", false)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.RestoreLibrary(ctx, "photos"))
	lib, err := s.GetLibrary(ctx, "photos", false)
	require.NoError(t, err)
	require.True(t, lib.Active)
}

func TestUpsertAssetDirtyDetection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.AddLibrary(ctx, "lib", "Lib", "/mnt/lib")
	require.NoError(t, err)

	res, err := s.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "a.jpg", MTime: 1.0, Size: 100, Kind: model.KindImage})
	require.NoError(t, err)
	require.True(t, res.Inserted)

	assets, err := s.ListAssets(ctx, "lib", nil, 0)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.NoError(t, s.MarkProxied(ctx, assets[0].ID, "proxies/a.webp", nil))

	// re-scanning with identical facts must not perturb status.
	_, err = s.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "a.jpg", MTime: 1.0, Size: 100, Kind: model.KindImage})
	require.NoError(t, err)
	a, err := s.GetAsset(ctx, assets[0].ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusProxied, a.Status)

	// a changed mtime must requeue the asset to pending (the only path
	// that returns a completed asset to the queue, spec §4.1).
	res, err = s.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "a.jpg", MTime: 2.0, Size: 100, Kind: model.KindImage})
	require.NoError(t, err)
	require.True(t, res.Dirtied)
	a, err = s.GetAsset(ctx, assets[0].ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, a.Status)
}

func TestClaimAndRetryThenPoison(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.AddLibrary(ctx, "lib", "Lib", "/mnt/lib")
	require.NoError(t, err)
	_, err = s.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "a.jpg", MTime: 1, Size: 1, Kind: model.KindImage})
	require.NoError(t, err)

	params := store.ClaimParams{
		AcceptedStatuses: []model.AssetStatus{model.StatusPending},
		Kind:             model.KindImage,
		WorkerID:         "proxy-host-1",
		LeaseTTL:         time.Minute,
	}

	for i := 0; i < model.MaxRetries; i++ {
		a, err := s.Claim(ctx, params)
		require.NoError(t, err)
		poisoned, err := s.MarkFailed(ctx, a.ID, "boom")
		require.NoError(t, err)
		require.False(t, poisoned, "attempt %d should not poison yet", i)
	}

	a, err := s.Claim(ctx, params)
	require.NoError(t, err)
	poisoned, err := s.MarkFailed(ctx, a.ID, "boom again")
	require.NoError(t, err)
	require.True(t, poisoned)

	_, err = s.Claim(ctx, params)
	require.ErrorIs(t, err, store.ErrNoWork)

	n, err := s.RetryPoisoned(ctx, "lib")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestReclaimExpiredLeases(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.AddLibrary(ctx, "lib", "Lib", "/mnt/lib")
	require.NoError(t, err)
	_, err = s.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "a.jpg", MTime: 1, Size: 1, Kind: model.KindImage})
	require.NoError(t, err)

	a, err := s.Claim(ctx, store.ClaimParams{
		AcceptedStatuses: []model.AssetStatus{model.StatusPending},
		Kind:             model.KindImage,
		WorkerID:         "proxy-host-1",
		LeaseTTL:         -time.Second, // already expired
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusProcessing, a.Status)

	reclaimed, poisoned, err := s.ReclaimExpiredLeases(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)
	require.Equal(t, 0, poisoned)

	a, err = s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, a.Status)
}

func TestSceneCheckpointAndResume(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.AddLibrary(ctx, "lib", "Lib", "/mnt/lib")
	require.NoError(t, err)
	_, err = s.UpsertAsset(ctx, "lib", store.UpsertTuple{RelPath: "v.mp4", MTime: 1, Size: 1, Kind: model.KindVideo})
	require.NoError(t, err)
	a, err := s.Claim(ctx, store.ClaimParams{
		AcceptedStatuses: []model.AssetStatus{model.StatusPending},
		Kind:             model.KindVideo,
		WorkerID:         "video-host-1",
		LeaseTTL:         time.Minute,
	})
	require.NoError(t, err)

	_, err = s.CloseScene(ctx, a.ID, store.SceneClose{
		Asset: model.VideoScene{
			AssetID: a.ID, StartTS: 0, EndTS: 4.2, RepFramePath: "frames/0.jpg",
			Sharpness: 88.1, CloseReason: model.CloseReasonPHash,
		},
		NextActiveState: &model.VideoActiveState{AssetID: a.ID, SceneStartTS: 4.2, BestFrameTS: 4.5, BestSharpness: 10},
		LeaseTTL:        time.Minute,
	})
	require.NoError(t, err)

	active, err := s.GetActiveState(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, 4.2, active.SceneStartTS)

	maxEnd, err := s.MaxSceneEndTS(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 4.2, maxEnd)

	// finishing the video clears the checkpoint.
	_, err = s.CloseScene(ctx, a.ID, store.SceneClose{
		Asset: model.VideoScene{
			AssetID: a.ID, StartTS: 4.2, EndTS: 9.0, RepFramePath: "frames/1.jpg",
			Sharpness: 50, CloseReason: model.CloseReasonTemporal,
		},
		NextActiveState: nil,
		LeaseTTL:        time.Minute,
	})
	require.NoError(t, err)

	active, err = s.GetActiveState(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, active)

	scenes, err := s.ListScenes(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, scenes, 2)
}
