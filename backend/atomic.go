package backend

import (
	"path"
	"strconv"
	"sync/atomic"

	"github.com/jmgilman/go/fs/core"
)

const tempDirName = ".tmp"

var tempSeq atomic.Uint64

// writeAtomically writes data to name under dir through a temporary file and
// a rename, so a reader sees either the old record or the new one and never a
// partial write.
func writeAtomically(fsys core.FS, dir, name string, data []byte) error {
	tmpDir := path.Join(dir, tempDirName)
	if err := fsys.MkdirAll(tmpDir, 0o755); err != nil {
		return err
	}

	tmp := path.Join(tmpDir, name+"."+strconv.FormatUint(tempSeq.Add(1), 10))
	if err := fsys.WriteFile(tmp, data, 0o644); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	if err := fsys.Rename(tmp, path.Join(dir, name)); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return nil
}
