package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/jmgilman/go/fs/core"

	"github.com/krisalay/tiered-cache/types"
)

const (
	blobsExt = ".rec"

	// blobShards is the number of fan-out directories. Keys are spread by
	// hash so no single directory grows past a few hundred records.
	blobShards = 256
)

/*
Blobs persists records for the durable tier.

Each record is written as a checksum line followed by the snappy-compressed
JSON record:

	<sha256 of compressed body, hex>\n<body>

Records live in one of 256 sub-directories picked from the xxhash of the key.
A record whose checksum does not match is reported as types.ErrCorrupted by
Read and removed by Scan.
*/
type Blobs struct {
	fs     core.FS
	dir    string
	prefix string
	logger *slog.Logger
}

// NewBlobs creates the root directory if needed and returns a backend rooted at it.
func NewBlobs(fsys core.FS, dir, prefix string, logger *slog.Logger) (*Blobs, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	fsys = guard(fsys)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, types.BackendError("blobs", "init", err)
	}
	return &Blobs{
		fs:     fsys,
		dir:    dir,
		prefix: prefix,
		logger: orDiscard(logger),
	}, nil
}

func (b *Blobs) Name() string { return "blobs" }

// shardDir selects the fan-out directory for key.
func (b *Blobs) shardDir(key string) string {
	return path.Join(b.dir, fmt.Sprintf("%02x", xxhash.Sum64String(key)%blobShards))
}

func (b *Blobs) Read(ctx context.Context, key string) (*types.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := b.fs.ReadFile(path.Join(b.shardDir(key), fileName(b.prefix, key, blobsExt)))
	if err != nil {
		if isNotExist(err) {
			return nil, types.ErrNotFound
		}
		return nil, types.BackendError(b.Name(), "read", err)
	}

	rec, err := unsealRecord(data)
	if err != nil {
		return nil, err
	}
	if rec.Key != key {
		return nil, types.ErrNotFound
	}
	return rec.Entry(), nil
}

func (b *Blobs) Write(ctx context.Context, ent *types.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ent.Payload == nil {
		return types.SerializationError(ent.Key, fmt.Errorf("entry has no encoded payload"))
	}

	data, err := sealRecord(types.RecordFromEntry(ent))
	if err != nil {
		return types.SerializationError(ent.Key, err)
	}
	if err := writeAtomically(b.fs, b.shardDir(ent.Key), fileName(b.prefix, ent.Key, blobsExt), data); err != nil {
		return types.BackendError(b.Name(), "write", err)
	}
	return nil
}

func (b *Blobs) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := path.Join(b.shardDir(key), fileName(b.prefix, key, blobsExt))
	if err := b.fs.Remove(p); err != nil && !isNotExist(err) {
		return types.BackendError(b.Name(), "remove", err)
	}
	return nil
}

func (b *Blobs) Scan(ctx context.Context, fn func(*types.CacheEntry) error) error {
	return b.each(ctx, func(p string) error {
		data, err := b.fs.ReadFile(p)
		if err != nil {
			if isNotExist(err) {
				return nil
			}
			return types.BackendError(b.Name(), "scan", err)
		}
		rec, err := unsealRecord(data)
		if err != nil {
			b.logger.Warn("removing corrupted record", "backend", b.Name(), "file", p, "error", err)
			_ = b.fs.Remove(p)
			return nil
		}
		return fn(rec.Entry())
	})
}

func (b *Blobs) Purge(ctx context.Context) error {
	return b.each(ctx, func(p string) error {
		if err := b.fs.Remove(p); err != nil && !isNotExist(err) {
			return types.BackendError(b.Name(), "purge", err)
		}
		return nil
	})
}

func (b *Blobs) Close() error { return nil }

// each calls fn with the path of every record file owned by this backend.
func (b *Blobs) each(ctx context.Context, fn func(p string) error) error {
	shards, err := b.fs.ReadDir(b.dir)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return types.BackendError(b.Name(), "list", err)
	}

	for _, shard := range shards {
		if !shard.IsDir() || shard.Name() == tempDirName {
			continue
		}
		dir := path.Join(b.dir, shard.Name())
		entries, err := b.fs.ReadDir(dir)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return types.BackendError(b.Name(), "list", err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := e.Name()
			if e.IsDir() || !strings.HasPrefix(name, b.prefix) || !strings.HasSuffix(name, blobsExt) {
				continue
			}
			if err := fn(path.Join(dir, name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func sealRecord(rec *types.Record) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	body := snappy.Encode(nil, raw)
	sum := sha256.Sum256(body)

	var buf bytes.Buffer
	buf.Grow(len(body) + hex.EncodedLen(len(sum)) + 1)
	buf.WriteString(hex.EncodeToString(sum[:]))
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes(), nil
}

func unsealRecord(data []byte) (*types.Record, error) {
	header, body, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return nil, fmt.Errorf("%w: missing checksum header", types.ErrCorrupted)
	}
	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != string(header) {
		return nil, fmt.Errorf("%w: checksum mismatch", types.ErrCorrupted)
	}

	raw, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCorrupted, err)
	}
	return decodeRecord(raw)
}
