// Package config loads cache configuration from TOML or YAML files and
// environment overrides.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	platformerrors "github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/tier"
	"github.com/krisalay/tiered-cache/types"
)

// Storage backends.
const (
	StorageOS     = "os"
	StorageMemory = "memory"
)

// Duration is a time.Duration that reads and writes as a string such as "5m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level configuration of a tiered cache.
type Config struct {
	Fast    TierConfig    `toml:"fast" yaml:"fast"`
	Medium  TierConfig    `toml:"medium" yaml:"medium"`
	Slow    TierConfig    `toml:"slow" yaml:"slow"`
	Storage StorageConfig `toml:"storage" yaml:"storage"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

// TierConfig configures one tier.
type TierConfig struct {
	MaxEntries      int      `toml:"max_entries" yaml:"max_entries"`
	MaxSizeBytes    int64    `toml:"max_size_bytes" yaml:"max_size_bytes"`
	DefaultTTL      Duration `toml:"default_ttl" yaml:"default_ttl"`
	CleanupInterval Duration `toml:"cleanup_interval" yaml:"cleanup_interval"`
	EvictionPolicy  string   `toml:"eviction_policy" yaml:"eviction_policy"`
	OpTimeout       Duration `toml:"op_timeout" yaml:"op_timeout"`
	KeyPrefix       string   `toml:"key_prefix" yaml:"key_prefix"`
	QueueSize       int      `toml:"queue_size" yaml:"queue_size"`
}

// StorageConfig says where the persistent tiers keep their records.
type StorageConfig struct {
	// Backend is "os" for the local disk or "memory" for a throwaway
	// in-memory filesystem.
	Backend string `toml:"backend" yaml:"backend"`
	Dir     string `toml:"dir" yaml:"dir"`
}

// LogConfig configures the logger built by Logger.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Fast:   fromTier(tier.FastDefaults()),
		Medium: fromTier(tier.MediumDefaults()),
		Slow:   fromTier(tier.SlowDefaults()),
		Storage: StorageConfig{
			Backend: StorageOS,
			Dir:     defaultDir(),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func defaultDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "tiered-cache")
	}
	return filepath.Join(os.TempDir(), "tiered-cache")
}

func fromTier(c tier.Config) TierConfig {
	return TierConfig{
		MaxEntries:      c.MaxEntries,
		MaxSizeBytes:    c.MaxSizeBytes,
		DefaultTTL:      Duration(c.DefaultTTL),
		CleanupInterval: Duration(c.CleanupInterval),
		EvictionPolicy:  string(c.EvictionPolicy),
		OpTimeout:       Duration(c.OpTimeout),
		KeyPrefix:       c.KeyPrefix,
		QueueSize:       c.QueueSize,
	}
}

// Tier converts the file form into the configuration of the named tier.
func (tc TierConfig) Tier(name types.TierName) tier.Config {
	return tier.Config{
		Name:            name,
		MaxEntries:      tc.MaxEntries,
		MaxSizeBytes:    tc.MaxSizeBytes,
		DefaultTTL:      tc.DefaultTTL.Std(),
		CleanupInterval: tc.CleanupInterval.Std(),
		EvictionPolicy:  eviction.PolicyType(tc.EvictionPolicy),
		OpTimeout:       tc.OpTimeout.Std(),
		KeyPrefix:       tc.KeyPrefix,
		QueueSize:       tc.QueueSize,
	}
}

// TierConfig returns the converted configuration of the named tier.
func (c *Config) TierConfig(name types.TierName) tier.Config {
	switch name {
	case types.TierMedium:
		return c.Medium.Tier(name)
	case types.TierSlow:
		return c.Slow.Tier(name)
	default:
		return c.Fast.Tier(types.TierFast)
	}
}

/*
Load reads the configuration file at path over the defaults.

The format is chosen by extension: .toml, or .yaml / .yml. Settings the file
does not mention keep their default values. The result is validated.
*/
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is supplied by the operator
	if err != nil {
		return nil, platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, "reading config file %s", path)
	}

	cfg := Default()
	if err := Decode(cfg, filepath.Ext(path), data); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses data in the format named by ext into cfg.
func Decode(cfg *Config, ext string, data []byte) error {
	var err error
	switch strings.ToLower(ext) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, "unsupported config format %q", ext)
	}
	if err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "parsing config")
	}
	return nil
}

// SetDefaults fills fields left empty with their default values.
func (c *Config) SetDefaults() {
	def := Default()
	c.Fast.setDefaults(def.Fast)
	c.Medium.setDefaults(def.Medium)
	c.Slow.setDefaults(def.Slow)

	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = def.Storage.Dir
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

func (tc *TierConfig) setDefaults(def TierConfig) {
	if tc.DefaultTTL == 0 {
		tc.DefaultTTL = def.DefaultTTL
	}
	if tc.EvictionPolicy == "" {
		tc.EvictionPolicy = def.EvictionPolicy
	}
	if tc.QueueSize == 0 {
		tc.QueueSize = def.QueueSize
	}
}

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	for _, name := range types.Tiers {
		tc := c.TierConfig(name)
		if err := tc.Validate(); err != nil {
			return err
		}
	}
	if c.Medium.KeyPrefix == c.Slow.KeyPrefix {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "medium and slow tiers need distinct key prefixes")
	}

	switch c.Storage.Backend {
	case StorageOS:
		if c.Storage.Dir == "" {
			return platformerrors.New(platformerrors.CodeInvalidConfig, "storage dir is required for the os backend")
		}
	case StorageMemory:
	default:
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, "unknown storage backend %q", c.Storage.Backend)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, "unknown log format %q", c.Log.Format)
	}
	return nil
}

// Logger builds a slog logger writing to w as configured.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, platformerrors.Wrap(fmt.Errorf("%q: %w", s, err), platformerrors.CodeInvalidConfig, "invalid log level")
	}
	return level, nil
}
