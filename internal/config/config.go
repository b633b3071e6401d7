// Package config loads service configuration: a YAML file (LENSGO_CONFIG)
// supplies defaults, then LENSGO_* environment variables override them.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/star/lensgo/internal/auth"
	"github.com/star/lensgo/internal/cache"
	"github.com/star/lensgo/internal/simulation"
	"github.com/star/lensgo/internal/stream"
)

// Config holds all configuration values.
type Config struct {
	HTTPAddr string        `yaml:"http_addr"`
	Auth     AuthConfig    `yaml:"auth"`
	Log      LogConfig     `yaml:"log"`
	Run      RunConfig     `yaml:"run"`
	Presets  PresetsConfig `yaml:"presets"`
	Cache    CacheConfig   `yaml:"cache"`
	Stream   StreamConfig  `yaml:"stream"`
	Archive  ArchiveConfig `yaml:"archive"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // optional second JSON sink
}

// RunConfig selects the configuration that is active at startup. A named
// preset wins over the explicit values.
type RunConfig struct {
	Initial      simulation.Config `yaml:"initial"`
	Preset       string            `yaml:"preset"`
	SweepWorkers int               `yaml:"sweep_workers"`
}

type PresetsConfig struct {
	Source string `yaml:"source"` // file path or http(s) URL
}

type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
	IntervalMs int `yaml:"interval_ms"`
}

type StreamConfig struct {
	MaxConcurrentPerIP int  `yaml:"max_concurrent_per_ip"`
	MaxConcurrentTotal int  `yaml:"max_concurrent_total"`
	KeepaliveSeconds   int  `yaml:"keepalive_seconds"`
	FrameIntervalMs    int  `yaml:"frame_interval_ms"`
	TrustProxy         bool `yaml:"trust_proxy"`
}

type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	MaxFiles int    `yaml:"max_files"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Log:      LogConfig{Level: "INFO"},
		Run: RunConfig{
			Initial:      simulation.DefaultConfig(),
			SweepWorkers: runtime.NumCPU(),
		},
		Cache: CacheConfig{
			TTLSeconds: 600,
			MaxEntries: 64,
			IntervalMs: 1000,
		},
		Stream: StreamConfig{
			MaxConcurrentPerIP: 10,
			MaxConcurrentTotal: 1000,
			KeepaliveSeconds:   30,
			FrameIntervalMs:    50,
		},
		Archive: ArchiveConfig{
			Enabled:  true,
			Dir:      "/tmp/lensgo/runs",
			MaxFiles: 5,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the environment, then validates it.
func Load(path string, logger *slog.Logger) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return cfg, err
		}
		logger.Info("config file loaded", "path", path)
	}
	cfg.applyEnv(logger)
	return cfg, cfg.Validate()
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decoding config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.Auth.Enabled && c.Auth.Token == "" {
		return errors.New("auth token is required when auth is enabled")
	}
	if c.Run.Preset == "" {
		if err := c.Run.Initial.ValidateDomain(); err != nil {
			return fmt.Errorf("initial run configuration: %w", err)
		}
	}
	if c.Run.SweepWorkers < 1 {
		return fmt.Errorf("sweep workers must be at least 1, got %d", c.Run.SweepWorkers)
	}
	return nil
}

// applyEnv overrides fields from LENSGO_* variables. Malformed values are
// logged and ignored.
func (c *Config) applyEnv(logger *slog.Logger) {
	envString("LENSGO_HTTP_ADDR", &c.HTTPAddr)
	envBool(logger, "LENSGO_AUTH_ENABLED", &c.Auth.Enabled)
	envString("LENSGO_AUTH_TOKEN", &c.Auth.Token)
	envString("LENSGO_LOG_LEVEL", &c.Log.Level)
	envString("LENSGO_LOG_FILE", &c.Log.File)

	envInt(logger, "LENSGO_ORBITAL_PERIOD", &c.Run.Initial.OrbitalPeriod, 1)
	envFloat(logger, "LENSGO_MASS_RATIO", &c.Run.Initial.MassRatio)
	envFloat(logger, "LENSGO_OBSERVER_ANGLE", &c.Run.Initial.ObserverAngleDeg)
	envString("LENSGO_PRESET", &c.Run.Preset)
	envInt(logger, "LENSGO_SWEEP_WORKERS", &c.Run.SweepWorkers, 1)
	envString("LENSGO_PRESETS_SOURCE", &c.Presets.Source)

	envInt(logger, "LENSGO_CACHE_TTL", &c.Cache.TTLSeconds, 1)
	envInt(logger, "LENSGO_CACHE_MAX_ENTRIES", &c.Cache.MaxEntries, 1)
	envInt(logger, "LENSGO_CACHE_INTERVAL_MS", &c.Cache.IntervalMs, 10)

	envInt(logger, "LENSGO_STREAM_MAX_CONCURRENT", &c.Stream.MaxConcurrentPerIP, 1)
	envInt(logger, "LENSGO_STREAM_MAX_TOTAL", &c.Stream.MaxConcurrentTotal, 1)
	envInt(logger, "LENSGO_STREAM_KEEPALIVE_INTERVAL", &c.Stream.KeepaliveSeconds, 1)
	envInt(logger, "LENSGO_STREAM_FRAME_INTERVAL_MS", &c.Stream.FrameIntervalMs, 10)
	envBool(logger, "LENSGO_TRUST_PROXY", &c.Stream.TrustProxy)

	envBool(logger, "LENSGO_ARCHIVE_ENABLED", &c.Archive.Enabled)
	envString("LENSGO_ARCHIVE_DIR", &c.Archive.Dir)
	envInt(logger, "LENSGO_ARCHIVE_MAX_FILES", &c.Archive.MaxFiles, 1)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(logger *slog.Logger, key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid boolean environment value, keeping current", "key", key, "value", v, "current", *dst)
		return
	}
	*dst = b
}

func envInt(logger *slog.Logger, key string, dst *int, min int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		logger.Warn("invalid integer environment value, keeping current", "key", key, "value", v, "current", *dst)
		return
	}
	*dst = n
}

func envFloat(logger *slog.Logger, key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn("invalid float environment value, keeping current", "key", key, "value", v, "current", *dst)
		return
	}
	*dst = f
}

// AuthMiddlewareConfig converts to the auth middleware configuration.
func (c Config) AuthMiddlewareConfig() auth.Config {
	return auth.Config{Enabled: c.Auth.Enabled, Token: c.Auth.Token}
}

// RunCacheConfig converts to the run cache configuration.
func (c Config) RunCacheConfig() cache.Config {
	return cache.Config{
		TTL:        time.Duration(c.Cache.TTLSeconds) * time.Second,
		MaxEntries: c.Cache.MaxEntries,
		Interval:   time.Duration(c.Cache.IntervalMs) * time.Millisecond,
	}
}

// StreamHandlerConfig converts to the playback handler configuration.
func (c Config) StreamHandlerConfig() stream.Config {
	return stream.Config{
		MaxConcurrentPerIP: c.Stream.MaxConcurrentPerIP,
		MaxConcurrentTotal: c.Stream.MaxConcurrentTotal,
		KeepaliveInterval:  time.Duration(c.Stream.KeepaliveSeconds) * time.Second,
		FrameInterval:      time.Duration(c.Stream.FrameIntervalMs) * time.Millisecond,
		TrustProxy:         c.Stream.TrustProxy,
	}
}
