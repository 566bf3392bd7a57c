// Package config loads runtime configuration with the teacher's
// precedence chain: built-in defaults, then an optional YAML file, then
// environment variables (highest precedence), matching spec §6.3.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables a worker or CLI invocation reads.
type Config struct {
	DatabaseURL          string        `yaml:"database_url"`
	DataDir              string        `yaml:"data_dir"`
	UseRawPreviews       bool          `yaml:"use_raw_previews"`
	AllowMockDefault     bool          `yaml:"allow_mock_default"`
	FFmpegBin            string        `yaml:"ffmpeg_bin"`
	FFprobeBin           string        `yaml:"ffprobe_bin"`
	HeartbeatInterval    time.Duration `yaml:"-"`
	LeaseTTL             time.Duration `yaml:"-"`
	PollInterval         time.Duration `yaml:"-"`

	// Tracing (spec §11 ambient observability; env-only, like the
	// duration fields above).
	TelemetryEnabled  bool    `yaml:"-"`
	OTLPEndpoint      string  `yaml:"-"`
	TelemetrySampling float64 `yaml:"-"`
}

// fileConfig is the subset of Config that may come from the YAML file;
// durations stay env/default-only since the teacher's own file layer
// (internal/config/merge_file.go) only merges plain scalars.
type fileConfig struct {
	DatabaseURL      string `yaml:"database_url"`
	DataDir          string `yaml:"data_dir"`
	UseRawPreviews   *bool  `yaml:"use_raw_previews"`
	AllowMockDefault *bool  `yaml:"allow_mock_default"`
	FFmpegBin        string `yaml:"ffmpeg_bin"`
	FFprobeBin       string `yaml:"ffprobe_bin"`
}

// Defaults returns the built-in baseline, matching spec §6.3.
func Defaults() Config {
	return Config{
		DataDir:           "./data",
		UseRawPreviews:    true,
		AllowMockDefault:  false,
		FFmpegBin:         "ffmpeg",
		FFprobeBin:        "ffprobe",
		HeartbeatInterval: 15 * time.Second,
		LeaseTTL:          5 * time.Minute,
		PollInterval:      5 * time.Second,
		TelemetryEnabled:  false,
		OTLPEndpoint:      "localhost:4317",
		TelemetrySampling: 1.0,
	}
}

// resolveFFprobeBin mirrors the teacher's ResolveFFprobeBin: prefer an
// explicit ffprobe path, else derive it from a concrete (non-PATH)
// ffmpeg path if the sibling binary actually exists, else leave PATH
// resolution to exec.LookPath.
func resolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	ffprobeBin = strings.TrimSpace(ffprobeBin)
	if ffprobeBin != "" && ffprobeBin != "ffprobe" {
		return ffprobeBin
	}
	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if ffmpegBin == "" || !strings.ContainsRune(ffmpegBin, '/') || filepath.Base(ffmpegBin) != "ffmpeg" {
		return ffprobeBin
	}
	candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
	if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
		return candidate
	}
	return ffprobeBin
}

// Load builds a Config from defaults, an optional YAML file at path (if
// path is non-empty and exists), and environment variables, in that
// precedence order (spec §10.3). An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.DataDir = envString("MEDIA_SEARCH_DATA_DIR", cfg.DataDir)
	cfg.UseRawPreviews = envBool("MEDIA_SEARCH_USE_RAW_PREVIEWS", cfg.UseRawPreviews)
	cfg.AllowMockDefault = envBool("MEDIASEARCH_ALLOW_MOCK_DEFAULT", cfg.AllowMockDefault)
	cfg.FFmpegBin = envString("MEDIA_SEARCH_FFMPEG_BIN", cfg.FFmpegBin)
	cfg.FFprobeBin = resolveFFprobeBin(envString("MEDIA_SEARCH_FFPROBE_BIN", cfg.FFprobeBin), cfg.FFmpegBin)
	cfg.HeartbeatInterval = envSeconds("HEARTBEAT_INTERVAL_SEC", cfg.HeartbeatInterval)
	cfg.LeaseTTL = envSeconds("LEASE_TTL_SEC", cfg.LeaseTTL)
	cfg.PollInterval = envSeconds("POLL_INTERVAL_SEC", cfg.PollInterval)
	cfg.TelemetryEnabled = envBool("MEDIA_SEARCH_TELEMETRY_ENABLED", cfg.TelemetryEnabled)
	cfg.OTLPEndpoint = envString("MEDIA_SEARCH_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.TelemetrySampling = envFloat("MEDIA_SEARCH_TELEMETRY_SAMPLING", cfg.TelemetrySampling)

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.UseRawPreviews != nil {
		cfg.UseRawPreviews = *fc.UseRawPreviews
	}
	if fc.AllowMockDefault != nil {
		cfg.AllowMockDefault = *fc.AllowMockDefault
	}
	if fc.FFmpegBin != "" {
		cfg.FFmpegBin = fc.FFmpegBin
	}
	if fc.FFprobeBin != "" {
		cfg.FFprobeBin = fc.FFprobeBin
	}
	return nil
}

// Validate fails fast on the configuration errors spec §7 classifies as
// "config" (worker-fatal, not per-asset retryable).
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data dir must not be empty")
	}
	if info, err := os.Stat(c.DataDir); err == nil && !info.IsDir() {
		return fmt.Errorf("config: data dir %q exists and is not a directory", c.DataDir)
	}
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("config: lease TTL must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive")
	}
	return nil
}

// EnsureDataDirs creates the cache subdirectories the pipeline writes
// under DataDir: proxies, thumbnails, clips, and forensic dumps.
func (c Config) EnsureDataDirs() error {
	for _, sub := range []string{"proxies", "thumbnails", "clips", "forensics", "tmp"} {
		if err := os.MkdirAll(c.DataDir+"/"+sub, 0o755); err != nil {
			return fmt.Errorf("config: create %s dir: %w", sub, err)
		}
	}
	return nil
}
