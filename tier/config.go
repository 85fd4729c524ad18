package tier

import (
	"time"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/krisalay/tiered-cache/eviction"
	"github.com/krisalay/tiered-cache/types"
)

const (
	// MiB is one mebibyte.
	MiB = 1024 * 1024

	defaultQueueSize = 1024
)

// Config holds the limits and schedule of a single tier.
type Config struct {
	Name types.TierName

	// MaxEntries and MaxSizeBytes bound the tier. Either may be zero for no limit.
	MaxEntries   int
	MaxSizeBytes int64

	// DefaultTTL is used when a write does not carry its own TTL.
	DefaultTTL time.Duration

	// CleanupInterval is how often expired entries are swept. Zero disables the sweep.
	CleanupInterval time.Duration

	EvictionPolicy eviction.PolicyType

	// OpTimeout is the guard duration for a single operation. An operation that
	// runs longer still completes; it is only counted. Zero disables the guard.
	OpTimeout time.Duration

	// KeyPrefix namespaces persisted records.
	KeyPrefix string

	// QueueSize is the buffer of the write queue of a persistent tier.
	QueueSize int
}

// FastDefaults returns the defaults for the in-memory tier.
func FastDefaults() Config {
	return Config{
		Name:            types.TierFast,
		MaxEntries:      1000,
		MaxSizeBytes:    50 * MiB,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
		EvictionPolicy:  eviction.DampedLRU,
		OpTimeout:       time.Second,
	}
}

// MediumDefaults returns the defaults for the persistent tier.
func MediumDefaults() Config {
	return Config{
		Name:            types.TierMedium,
		MaxEntries:      5000,
		MaxSizeBytes:    5 * MiB,
		DefaultTTL:      time.Hour,
		CleanupInterval: 5 * time.Minute,
		EvictionPolicy:  eviction.DampedLRU,
		KeyPrefix:       "mtier_",
		QueueSize:       defaultQueueSize,
	}
}

// SlowDefaults returns the defaults for the durable tier.
func SlowDefaults() Config {
	return Config{
		Name:            types.TierSlow,
		MaxEntries:      50000,
		MaxSizeBytes:    100 * MiB,
		DefaultTTL:      7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		EvictionPolicy:  eviction.DampedLRU,
		KeyPrefix:       "stier_",
		QueueSize:       defaultQueueSize,
	}
}

// DefaultsFor returns the defaults of the named tier.
func DefaultsFor(name types.TierName) Config {
	switch name {
	case types.TierMedium:
		return MediumDefaults()
	case types.TierSlow:
		return SlowDefaults()
	default:
		return FastDefaults()
	}
}

// SetDefaults fills zero-valued fields that have no meaningful zero.
func (c *Config) SetDefaults() {
	def := DefaultsFor(c.Name)
	if c.DefaultTTL == 0 {
		c.DefaultTTL = def.DefaultTTL
	}
	if c.EvictionPolicy == "" {
		c.EvictionPolicy = def.EvictionPolicy
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Name {
	case types.TierFast, types.TierMedium, types.TierSlow:
	default:
		return invalid(c.Name, "unknown tier name")
	}
	if c.MaxEntries < 0 {
		return invalid(c.Name, "max entries cannot be negative")
	}
	if c.MaxSizeBytes < 0 {
		return invalid(c.Name, "max size cannot be negative")
	}
	if c.DefaultTTL <= 0 {
		return invalid(c.Name, "default TTL must be positive")
	}
	if c.CleanupInterval < 0 || c.OpTimeout < 0 {
		return invalid(c.Name, "intervals cannot be negative")
	}
	if _, err := eviction.ParsePolicyType(string(c.EvictionPolicy)); err != nil {
		return platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, "tier %s", c.Name)
	}
	return nil
}

func (c *Config) limits() eviction.Limits {
	return eviction.Limits{MaxEntries: c.MaxEntries, MaxSizeBytes: c.MaxSizeBytes}
}

func invalid(name types.TierName, msg string) error {
	return platformerrors.WithContext(
		platformerrors.New(platformerrors.CodeInvalidConfig, msg),
		"tier", string(name),
	)
}
