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

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRACKFETCH_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "downloaded_songs", cfg.OutputDir)
	assert.Equal(t, "spotdl", cfg.Converter)
	assert.Equal(t, RegistryMemory, cfg.Registry)
	assert.Equal(t, []string{"http", "https"}, cfg.AllowedSchemes)
	assert.Contains(t, cfg.ArtifactExts, ".mp3")
	assert.Zero(t, cfg.MaxConcurrent)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRACKFETCH_ADDR", ":9090")
	t.Setenv("TRACKFETCH_OUTPUT_DIR", "/srv/songs")
	t.Setenv("TRACKFETCH_CONVERTER_ARGS", "--format, mp3 ,")
	t.Setenv("TRACKFETCH_ARTIFACT_EXTS", ".flac")
	t.Setenv("TRACKFETCH_REGISTRY", "SQLite")
	t.Setenv("TRACKFETCH_MAX_CONCURRENT", "3")
	t.Setenv("TRACKFETCH_CONVERT_TIMEOUT", "5m")
	t.Setenv("TRACKFETCH_SWEEP_CRON", "0 * * * *")
	t.Setenv("TRACKFETCH_ARTIFACT_TTL", "2h")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "/srv/songs", cfg.OutputDir)
	assert.Equal(t, []string{"--format", "mp3"}, cfg.ConverterArgs)
	assert.Equal(t, []string{".flac"}, cfg.ArtifactExts)
	assert.Equal(t, RegistrySQLite, cfg.Registry)
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, 5*time.Minute, cfg.ConvertTimeout)
	assert.Equal(t, "0 * * * *", cfg.SweepCron)
	assert.Equal(t, 2*time.Hour, cfg.ArtifactTTL)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackfetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":7000"
outputDir: /data/out
converter: /usr/local/bin/spotdl
maxConcurrent: 2
artifactTTL: 30m
corsOrigins: ["*"]
`), 0o644))
	t.Setenv("TRACKFETCH_CONFIG", path)
	t.Setenv("TRACKFETCH_MAX_CONCURRENT", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "/data/out", cfg.OutputDir)
	assert.Equal(t, "/usr/local/bin/spotdl", cfg.Converter)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, 30*time.Minute, cfg.ArtifactTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "spotdl", Defaults().Converter)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"TRACKFETCH_REGISTRY":        "redis",
		"TRACKFETCH_MAX_CONCURRENT":  "many",
		"TRACKFETCH_CONVERT_TIMEOUT": "soon",
		"TRACKFETCH_SWEEP_CRON":      "bad cron",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.MaxConcurrent = -1
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.SweepCron = "*/5 * * * *"
	cfg.ArtifactTTL = 0
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.AllowedSchemes = nil
	assert.Error(t, cfg.Validate())
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("TRACKFETCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
