package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	RegistryMemory = "memory"
	RegistrySQLite = "sqlite"
)

// Config is loaded from an optional YAML file (TRACKFETCH_CONFIG) and then
// overridden by environment variables:
//
//	TRACKFETCH_ADDR             listen address (":8000")
//	TRACKFETCH_OUTPUT_DIR       shared output directory ("downloaded_songs")
//	TRACKFETCH_CONVERTER        converter executable ("spotdl")
//	TRACKFETCH_CONVERTER_ARGS   extra converter args, comma separated
//	TRACKFETCH_CONVERT_TIMEOUT  per-job converter timeout, 0 disables
//	TRACKFETCH_ARTIFACT_EXTS    artifact extensions, comma separated
//	TRACKFETCH_ALLOWED_SCHEMES  accepted URL schemes ("http,https")
//	TRACKFETCH_REGISTRY         memory | sqlite
//	TRACKFETCH_MAX_CONCURRENT   concurrent conversions, 0 is unbounded
//	TRACKFETCH_CORS_ORIGINS     allowed CORS origins, "*" allows any
//	TRACKFETCH_SWEEP_CRON       artifact sweep schedule, empty disables
//	TRACKFETCH_ARTIFACT_TTL     age after which swept artifacts are removed
//	LOG_LEVEL                   debug | info | warn | error
type Config struct {
	Addr           string        `yaml:"addr"`
	OutputDir      string        `yaml:"outputDir"`
	Converter      string        `yaml:"converter"`
	ConverterArgs  []string      `yaml:"converterArgs"`
	ConvertTimeout time.Duration `yaml:"convertTimeout"`
	ArtifactExts   []string      `yaml:"artifactExts"`
	AllowedSchemes []string      `yaml:"allowedSchemes"`
	Registry       string        `yaml:"registry"`
	MaxConcurrent  int           `yaml:"maxConcurrent"`
	CORSOrigins    []string      `yaml:"corsOrigins"`
	SweepCron      string        `yaml:"sweepCron"`
	ArtifactTTL    time.Duration `yaml:"artifactTTL"`
	LogLevel       string        `yaml:"logLevel"`
}

func Defaults() Config {
	return Config{
		Addr:           ":8000",
		OutputDir:      "downloaded_songs",
		Converter:      "spotdl",
		ArtifactExts:   []string{".mp3", ".m4a", ".flac", ".opus", ".ogg", ".wav"},
		AllowedSchemes: []string{"http", "https"},
		Registry:       RegistryMemory,
		CORSOrigins:    []string{"http://localhost:8081"},
		ArtifactTTL:    24 * time.Hour,
		LogLevel:       "info",
	}
}

func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("TRACKFETCH_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error
	cfg.Addr = getenv("TRACKFETCH_ADDR", cfg.Addr)
	cfg.OutputDir = getenv("TRACKFETCH_OUTPUT_DIR", cfg.OutputDir)
	cfg.Converter = getenv("TRACKFETCH_CONVERTER", cfg.Converter)
	cfg.ConverterArgs = getenvCSV("TRACKFETCH_CONVERTER_ARGS", cfg.ConverterArgs)
	cfg.ArtifactExts = getenvCSV("TRACKFETCH_ARTIFACT_EXTS", cfg.ArtifactExts)
	cfg.AllowedSchemes = getenvCSV("TRACKFETCH_ALLOWED_SCHEMES", cfg.AllowedSchemes)
	cfg.Registry = strings.ToLower(getenv("TRACKFETCH_REGISTRY", cfg.Registry))
	cfg.CORSOrigins = getenvCSV("TRACKFETCH_CORS_ORIGINS", cfg.CORSOrigins)
	cfg.SweepCron = getenv("TRACKFETCH_SWEEP_CRON", cfg.SweepCron)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	if cfg.MaxConcurrent, err = getenvInt("TRACKFETCH_MAX_CONCURRENT", cfg.MaxConcurrent); err != nil {
		return err
	}
	if cfg.ConvertTimeout, err = getenvDuration("TRACKFETCH_CONVERT_TIMEOUT", cfg.ConvertTimeout); err != nil {
		return err
	}
	if cfg.ArtifactTTL, err = getenvDuration("TRACKFETCH_ARTIFACT_TTL", cfg.ArtifactTTL); err != nil {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Registry {
	case RegistryMemory, RegistrySQLite:
	default:
		return fmt.Errorf("invalid registry %q (expected %s|%s)", c.Registry, RegistryMemory, RegistrySQLite)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output dir is required")
	}
	if strings.TrimSpace(c.Converter) == "" {
		return fmt.Errorf("converter is required")
	}
	if len(c.AllowedSchemes) == 0 {
		return fmt.Errorf("at least one allowed scheme is required")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max concurrent must be >= 0, got %d", c.MaxConcurrent)
	}
	if c.ConvertTimeout < 0 {
		return fmt.Errorf("convert timeout must be >= 0, got %s", c.ConvertTimeout)
	}
	if c.SweepCron != "" {
		if _, err := cron.ParseStandard(c.SweepCron); err != nil {
			return fmt.Errorf("invalid sweep cron: %w", err)
		}
		if c.ArtifactTTL <= 0 {
			return fmt.Errorf("artifact ttl must be > 0 when sweeping is enabled")
		}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getenvCSV(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	values := splitCSV(raw)
	if len(values) == 0 {
		return fallback
	}
	return values
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
