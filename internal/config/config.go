// Package config loads the sheetcache service configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	perrors "github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/sheetcache/cache"
)

// Config is the on-disk configuration.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// CacheConfig mirrors cache.Options. Zero values take the cache defaults;
// negative limits mean unbounded and a negative sweep interval disables the
// sweeper.
type CacheConfig struct {
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	MaxEntries      int           `yaml:"max_entries"`
	MaxMemoryBytes  int64         `yaml:"max_memory_bytes"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	Shards          int           `yaml:"shards"`
	WarmConcurrency int           `yaml:"warm_concurrency"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// MetricsConfig controls the /metrics listener.
type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			DefaultTTL:     cache.DefaultTTL,
			MaxEntries:     cache.DefaultMaxEntries,
			MaxMemoryBytes: cache.DefaultMaxMemoryBytes,
			SweepInterval:  cache.DefaultSweepInterval,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{
			Addr:      ":8080",
			Namespace: "sheetcache",
			Subsystem: "app",
		},
	}
}

// Load reads path, fills unset fields from Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		code := perrors.CodeInvalidInput
		if errors.Is(err, fs.ErrNotExist) {
			code = perrors.CodeNotFound
		}
		return Config{}, perrors.WithContext(perrors.Wrap(err, code, "read config"), "path", path)
	}
	return Parse(data)
}

// Parse decodes YAML data over Default and validates the result.
// Unknown fields are rejected so typos do not silently fall back to defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, perrors.Wrap(err, perrors.CodeInvalidConfig, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Cache.Shards > 256 {
		return invalid("cache.shards", c.Cache.Shards, "must be <= 256")
	}
	if c.Cache.WarmConcurrency < 0 {
		return invalid("cache.warm_concurrency", c.Cache.WarmConcurrency, "must be >= 0")
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		return invalid("log.level", c.Log.Level, "must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return invalid("log.format", c.Log.Format, "must be json or text")
	}
	return nil
}

func invalid(field string, value any, reason string) error {
	err := perrors.Newf(perrors.CodeInvalidConfig, "%s: %s", field, reason)
	return perrors.WithContextMap(err, map[string]interface{}{
		"field": field,
		"value": fmt.Sprint(value),
	})
}

// CacheOptions converts the cache section into cache.Options.
func (c Config) CacheOptions(logger *slog.Logger) cache.Options[[]byte] {
	return cache.Options[[]byte]{
		DefaultTTL:      c.Cache.DefaultTTL,
		MaxEntries:      c.Cache.MaxEntries,
		MaxMemoryBytes:  c.Cache.MaxMemoryBytes,
		SweepInterval:   c.Cache.SweepInterval,
		Shards:          c.Cache.Shards,
		WarmConcurrency: c.Cache.WarmConcurrency,
		Size:            func(b []byte) int64 { return int64(len(b)) },
		Logger:          logger,
	}
}

// NewLogger builds the slog logger described by the log section.
func (c Config) NewLogger() *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
