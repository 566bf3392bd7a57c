package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	require.Equal(t, "./data", cfg.DataDir)
	require.True(t, cfg.UseRawPreviews)
	require.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_url: postgres://file/db\ndata_dir: /srv/media\n"), 0o644))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "postgres://env/db", cfg.DatabaseURL, "env must win over file")
	require.Equal(t, "/srv/media", cfg.DataDir, "file must win over default")
}

func TestValidateRequiresDatabaseURL(t *testing.T) {
	cfg := Defaults()
	cfg.LeaseTTL = time.Minute
	err := cfg.Validate()
	require.Error(t, err)
}
