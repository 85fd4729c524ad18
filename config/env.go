package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment variable the cache reads.
const EnvPrefix = "TIERCACHE_"

/*
ApplyEnv overrides settings from environment variables.

Variables are read from envFile first (when it is not empty and exists) and
then from the process environment, which wins on conflicts. Recognised names:

	TIERCACHE_<TIER>_MAX_ENTRIES       TIERCACHE_<TIER>_MAX_SIZE_BYTES
	TIERCACHE_<TIER>_DEFAULT_TTL       TIERCACHE_<TIER>_CLEANUP_INTERVAL
	TIERCACHE_<TIER>_EVICTION_POLICY   TIERCACHE_<TIER>_OP_TIMEOUT
	TIERCACHE_<TIER>_KEY_PREFIX        TIERCACHE_<TIER>_QUEUE_SIZE
	TIERCACHE_STORAGE_BACKEND          TIERCACHE_STORAGE_DIR
	TIERCACHE_LOG_LEVEL                TIERCACHE_LOG_FORMAT

where <TIER> is FAST, MEDIUM or SLOW.
*/
func (c *Config) ApplyEnv(envFile string) error {
	vars := map[string]string{}
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, "reading env file %s", envFile)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			vars[k] = v
		}
	}
	return c.ApplyVars(vars)
}

// ApplyVars applies overrides from vars, using the names ApplyEnv documents.
// Unrelated names are ignored.
func (c *Config) ApplyVars(vars map[string]string) error {
	tiers := map[string]*TierConfig{
		"FAST":   &c.Fast,
		"MEDIUM": &c.Medium,
		"SLOW":   &c.Slow,
	}

	for name, raw := range vars {
		if !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		rest := strings.TrimPrefix(name, EnvPrefix)
		section, field, ok := strings.Cut(rest, "_")
		if !ok {
			continue
		}

		var err error
		switch section {
		case "STORAGE":
			err = c.Storage.set(field, raw)
		case "LOG":
			err = c.Log.set(field, raw)
		default:
			tc, known := tiers[section]
			if !known {
				continue
			}
			err = tc.set(field, raw)
		}
		if err != nil {
			return platformerrors.WithContext(
				platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "invalid environment override"),
				"variable", name,
			)
		}
	}
	return nil
}

func (tc *TierConfig) set(field, raw string) error {
	var err error
	switch field {
	case "MAX_ENTRIES":
		tc.MaxEntries, err = strconv.Atoi(raw)
	case "MAX_SIZE_BYTES":
		tc.MaxSizeBytes, err = strconv.ParseInt(raw, 10, 64)
	case "DEFAULT_TTL":
		err = setDuration(&tc.DefaultTTL, raw)
	case "CLEANUP_INTERVAL":
		err = setDuration(&tc.CleanupInterval, raw)
	case "OP_TIMEOUT":
		err = setDuration(&tc.OpTimeout, raw)
	case "EVICTION_POLICY":
		tc.EvictionPolicy = raw
	case "KEY_PREFIX":
		tc.KeyPrefix = raw
	case "QUEUE_SIZE":
		tc.QueueSize, err = strconv.Atoi(raw)
	}
	return err
}

func (s *StorageConfig) set(field, raw string) error {
	switch field {
	case "BACKEND":
		s.Backend = raw
	case "DIR":
		s.Dir = raw
	}
	return nil
}

func (l *LogConfig) set(field, raw string) error {
	switch field {
	case "LEVEL":
		l.Level = raw
	case "FORMAT":
		l.Format = raw
	}
	return nil
}

func setDuration(d *Duration, raw string) error {
	v, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
