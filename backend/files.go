package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/jmgilman/go/fs/core"

	"github.com/krisalay/tiered-cache/types"
)

const filesExt = ".json"

/*
Files persists one JSON record per key in a single directory.

File names are the key prefix followed by the URL-safe base64 form of the
key, so entries of different tiers can share a directory without clashing.
Only files carrying this backend's prefix are ever scanned or purged.
*/
type Files struct {
	fs     core.FS
	dir    string
	prefix string
	logger *slog.Logger
}

// NewFiles creates the directory if needed and returns a backend rooted at it.
func NewFiles(fsys core.FS, dir, prefix string, logger *slog.Logger) (*Files, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	fsys = guard(fsys)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, types.BackendError("files", "init", err)
	}
	return &Files{
		fs:     fsys,
		dir:    dir,
		prefix: prefix,
		logger: orDiscard(logger),
	}, nil
}

func (f *Files) Name() string { return "files" }

func (f *Files) path(key string) string {
	return path.Join(f.dir, fileName(f.prefix, key, filesExt))
}

func (f *Files) Read(ctx context.Context, key string) (*types.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := f.fs.ReadFile(f.path(key))
	if err != nil {
		if isNotExist(err) {
			return nil, types.ErrNotFound
		}
		return nil, types.BackendError(f.Name(), "read", err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if rec.Key != key {
		return nil, types.ErrNotFound
	}
	return rec.Entry(), nil
}

func (f *Files) Write(ctx context.Context, ent *types.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ent.Payload == nil {
		return types.SerializationError(ent.Key, fmt.Errorf("entry has no encoded payload"))
	}

	data, err := json.Marshal(types.RecordFromEntry(ent))
	if err != nil {
		return types.SerializationError(ent.Key, err)
	}
	if err := writeAtomically(f.fs, f.dir, fileName(f.prefix, ent.Key, filesExt), data); err != nil {
		return types.BackendError(f.Name(), "write", err)
	}
	return nil
}

func (f *Files) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.fs.Remove(f.path(key)); err != nil && !isNotExist(err) {
		return types.BackendError(f.Name(), "remove", err)
	}
	return nil
}

func (f *Files) Scan(ctx context.Context, fn func(*types.CacheEntry) error) error {
	names, err := f.owned()
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := path.Join(f.dir, name)

		data, err := f.fs.ReadFile(p)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return types.BackendError(f.Name(), "scan", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			f.logger.Warn("removing unreadable record", "backend", f.Name(), "file", name, "error", err)
			_ = f.fs.Remove(p)
			continue
		}
		if err := fn(rec.Entry()); err != nil {
			return err
		}
	}
	return nil
}

func (f *Files) Purge(ctx context.Context) error {
	names, err := f.owned()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := f.fs.Remove(path.Join(f.dir, name)); err != nil && !isNotExist(err) {
			return types.BackendError(f.Name(), "purge", err)
		}
	}
	return nil
}

func (f *Files) Close() error { return nil }

// owned lists the record files in dir that belong to this backend.
func (f *Files) owned() ([]string, error) {
	entries, err := f.fs.ReadDir(f.dir)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, types.BackendError(f.Name(), "list", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, f.prefix) || !strings.HasSuffix(name, filesExt) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func decodeRecord(data []byte) (*types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCorrupted, err)
	}
	if rec.Key == "" {
		return nil, fmt.Errorf("%w: record has no key", types.ErrCorrupted)
	}
	return &rec, nil
}
