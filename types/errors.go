package types

import (
	"fmt"

	platformerrors "github.com/jmgilman/go/errors"
)

// Error codes specific to the cache. Backend and configuration failures reuse
// the shared platform codes.
const (
	// CodeCapacity indicates a tier could not free enough room for an entry.
	CodeCapacity platformerrors.ErrorCode = "CACHE_CAPACITY_EXCEEDED"

	// CodeSerialization indicates a value could not be encoded or decoded.
	CodeSerialization platformerrors.ErrorCode = "CACHE_SERIALIZATION_FAILED"

	// CodeCorrupted indicates a persisted record failed its integrity check.
	CodeCorrupted platformerrors.ErrorCode = "CACHE_RECORD_CORRUPTED"
)

var (
	// ErrCapacity is returned by a tier Set when eviction cannot make room,
	// for example when a single value is larger than the whole tier.
	ErrCapacity = platformerrors.New(CodeCapacity, "entry does not fit in tier")

	// ErrSerialization is returned when a value cannot be encoded for a
	// persistent tier or decoded into the requested type.
	ErrSerialization = platformerrors.New(CodeSerialization, "value serialization failed")

	// ErrBackendUnavailable is returned when a tier's storage cannot be reached
	// (quota exceeded, permission denied, corrupted directory).
	ErrBackendUnavailable = platformerrors.New(platformerrors.CodeUnavailable, "tier backend unavailable")

	// ErrNotFound is returned by backends when no record exists for a key.
	ErrNotFound = platformerrors.New(platformerrors.CodeNotFound, "record not found")

	// ErrCorrupted is returned when a persisted record fails its checksum or
	// cannot be parsed.
	ErrCorrupted = platformerrors.New(CodeCorrupted, "record corrupted")

	// ErrClosed is returned for operations on a tier or queue after Close.
	ErrClosed = platformerrors.New(platformerrors.CodeUnavailable, "cache closed")
)

// CapacityError builds the error a tier returns when key of size bytes
// cannot be admitted.
func CapacityError(tier TierName, key string, size int64) error {
	return platformerrors.WrapWithContext(ErrCapacity, CodeCapacity, "tier cannot make room for entry", map[string]interface{}{
		"tier": string(tier),
		"key":  key,
		"size": size,
	})
}

// BackendError marks err as a backend failure for op while keeping the
// original cause reachable through errors.Is and errors.As.
func BackendError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return platformerrors.WrapWithContext(
		fmt.Errorf("%w: %w", ErrBackendUnavailable, err),
		platformerrors.CodeUnavailable,
		fmt.Sprintf("%s %s failed", backend, op),
		map[string]interface{}{"backend": backend, "op": op},
	)
}

// SerializationError marks err as an encode or decode failure for key.
func SerializationError(key string, err error) error {
	return platformerrors.WrapWithContext(
		fmt.Errorf("%w: %w", ErrSerialization, err),
		CodeSerialization,
		"value serialization failed",
		map[string]interface{}{"key": key},
	)
}
