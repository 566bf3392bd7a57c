package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

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

func TestScannerInsertsRecognizedMediaOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "photo.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "clip.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "raw.cr2"), []byte("x"), 0o644))

	_, err := st.AddLibrary(ctx, "lib", "Lib", root)
	require.NoError(t, err)

	s := New(st)
	require.NoError(t, s.Run(ctx, "lib", func() bool { return false }))

	assets, err := st.ListAssets(ctx, "lib", nil, 0)
	require.NoError(t, err)
	require.Len(t, assets, 3)

	lib, err := st.GetLibrary(ctx, "lib", false)
	require.NoError(t, err)
	require.Equal(t, model.ScanIdle, lib.ScanState)
}

func TestScannerReleasesLibraryOnCancellation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "img"+string(rune('a'+i))+".jpg"), []byte("x"), 0o644))
	}

	_, err := st.AddLibrary(ctx, "lib", "Lib", root)
	require.NoError(t, err)

	s := New(st)
	stopNow := true
	require.NoError(t, s.Run(ctx, "lib", func() bool { return stopNow }))

	lib, err := st.GetLibrary(ctx, "lib", false)
	require.NoError(t, err)
	require.Equal(t, model.ScanIdle, lib.ScanState, "library must return to idle even when cancelled immediately")
}

func TestScannerRejectsConcurrentScan(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	root := t.TempDir()
	_, err := st.AddLibrary(ctx, "lib", "Lib", root)
	require.NoError(t, err)

	_, err = st.ClaimLibraryForScan(ctx, "lib")
	require.NoError(t, err)

	s := New(st)
	err = s.Run(ctx, "lib", func() bool { return false })
	require.Error(t, err)
}
