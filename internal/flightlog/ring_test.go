package flightlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRingWrapsAtCapacity(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Write(Entry{Message: string(rune('a' + i))})
	}
	snap := r.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "c", snap[0].Message)
	require.Equal(t, "e", snap[2].Message)
}

func TestRingDumpWritesNDJSON(t *testing.T) {
	r := New(10)
	r.Write(Entry{Message: "boom", Level: "error"})

	dir := t.TempDir()
	path, err := r.Dump(dir, "proxy-host-ab12", time.Unix(0, 1700000000000000000))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "proxy-host-ab12_1700000000000000000.log"), path)
}

func TestRingDefaultCapacity(t *testing.T) {
	r := New(0)
	require.Equal(t, DefaultCapacity, r.capacity)
}
