// Package backend holds the payload stores that sit behind a tier.
//
// A tier keeps its own metadata index and uses a Backend only to hold and
// fetch the data for a key. The memory backend keeps live values; the file
// and blob backends persist encoded records so that a tier survives a
// process restart.
package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"io/fs"
	"log/slog"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/jmgilman/go/fs/core"

	"github.com/krisalay/tiered-cache/types"
)

// Backend stores entries by key.
//
// Read returns types.ErrNotFound for a missing key. Remove of a missing key is
// not an error. Failures of the underlying storage are wrapped with
// types.ErrBackendUnavailable.
type Backend interface {
	Name() string
	Read(ctx context.Context, key string) (*types.CacheEntry, error)
	Write(ctx context.Context, ent *types.CacheEntry) error
	Remove(ctx context.Context, key string) error

	// Scan calls fn for every stored entry. Records that cannot be decoded
	// are removed and skipped.
	Scan(ctx context.Context, fn func(*types.CacheEntry) error) error

	// Purge removes every entry owned by this backend.
	Purge(ctx context.Context) error
	Close() error
}

// maxEncodedName bounds file names derived from keys. Longer keys fall back
// to a hashed name; the record itself still carries the full key.
const maxEncodedName = 200

// fileName maps key to a file name under prefix with the given extension.
func fileName(prefix, key, ext string) string {
	enc := base64.RawURLEncoding.EncodeToString([]byte(key))
	if len(enc) > maxEncodedName {
		enc = "~" + strconv.FormatUint(xxhash.Sum64String(key), 16)
	}
	return prefix + enc + ext
}

func isNotExist(err error) bool {
	return errors.Is(err, core.ErrNotExist) || errors.Is(err, fs.ErrNotExist)
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}
