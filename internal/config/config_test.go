package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDBPath, EnvArtifactsDir, EnvLogLevel, EnvBusyTimeoutMS} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_MatchesReferenceValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, Weights{Impact: 25, Timeliness: 20, Virality: 15, Relevance: 25, Confidence: 10}, cfg.Weights)
	assert.Equal(t, Thresholds{
		MustCoverScore:       75,
		OptionalScore:        60,
		WatchScore:           45,
		MinConfidencePromote: 6,
		MinConfidenceMonitor: 3,
	}, cfg.Thresholds)
	assert.Contains(t, cfg.SourcePolicy.AllowedDomainsTierA, "reuters.com")
	assert.Len(t, cfg.SourcePolicy.AllowedDomainsTierA, 15)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.DBPath))
	assert.True(t, filepath.IsAbs(cfg.ArtifactsDir))
	assert.Equal(t, "brand_orchestrator.sqlite", filepath.Base(cfg.DBPath))
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout())
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, `
db_path: `+filepath.Join(dir, "state.sqlite")+`
log_level: debug
weights:
  impact: 30
thresholds:
  must_cover_score: 80
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "state.sqlite"), cfg.DBPath)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 30, cfg.Weights.Impact)
	assert.Equal(t, 20, cfg.Weights.Timeliness, "unset keys keep their defaults")
	assert.Equal(t, 80, cfg.Thresholds.MustCoverScore)
	assert.Equal(t, 60, cfg.Thresholds.OptionalScore)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, "db_path: /from/file.sqlite\nlog_level: ERROR\n")

	t.Setenv(EnvDBPath, filepath.Join(dir, "env.sqlite"))
	t.Setenv(EnvLogLevel, " warning ")
	t.Setenv(EnvBusyTimeoutMS, "250")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "env.sqlite"), cfg.DBPath)
	assert.Equal(t, "WARNING", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.BusyTimeout())
}

func TestLoad_BadEnvNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBusyTimeoutMS, "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvBusyTimeoutMS)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "thresholds:\n  must_cover: 80\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must_cover")
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Thresholds.MustCoverScore)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_NullListBecomesEmpty(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "brand:\n  pillars:\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, cfg.Brand.Pillars)
	assert.Empty(t, cfg.Brand.Pillars)
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"thresholds out of order", func(c *Config) { c.Thresholds.OptionalScore = 90 }, "optional_score"},
		{"watch above optional", func(c *Config) { c.Thresholds.WatchScore = 61 }, "watch_score"},
		{"confidence out of order", func(c *Config) { c.Thresholds.MinConfidenceMonitor = 7 }, "min_confidence_monitor"},
		{"confidence above ten", func(c *Config) { c.Thresholds.MinConfidencePromote = 11 }, "min_confidence_promote"},
		{"negative weight", func(c *Config) { c.Weights.Virality = -1 }, "virality"},
		{"unknown log level", func(c *Config) { c.LogLevel = "LOUD" }, "log_level"},
		{"empty db path", func(c *Config) { c.DBPath = "" }, "db_path"},
		{"zero busy timeout", func(c *Config) { c.BusyTimeoutMS = 0 }, "busy_timeout_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Problems)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":    slog.LevelDebug,
		"INFO":     slog.LevelInfo,
		"WARN":     slog.LevelWarn,
		"WARNING":  slog.LevelWarn,
		"ERROR":    slog.LevelError,
		"CRITICAL": slog.LevelError,
		"whatever": slog.LevelInfo,
	}
	for level, want := range tests {
		cfg := &Config{LogLevel: level}
		assert.Equal(t, want, cfg.SlogLevel(), level)
	}
}
