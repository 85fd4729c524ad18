package backend

import (
	"io/fs"
	"sync"

	"github.com/jmgilman/go/fs/core"
)

/*
syncFS serializes the operations the file and blob backends use on a
filesystem that is not safe for concurrent use, such as the in-memory
filesystem. Every call holds one mutex shared by the filesystem and all of
its chroots, so a tier's reads and its writer, and tiers sharing the same
filesystem, never touch its internals at the same time.

Open, Create, OpenFile and Walk pass straight through: they hand out handles
or callbacks that outlive a single call, and the backends never use them.
*/
type syncFS struct {
	core.FS
	mu *sync.Mutex
}

// Synchronized wraps fsys so that its operations run one at a time.
// Wrapping an already synchronized filesystem returns it unchanged, so
// backends built over the same wrapped filesystem share one lock.
func Synchronized(fsys core.FS) core.FS {
	if s, ok := fsys.(*syncFS); ok {
		return s
	}
	return &syncFS{FS: fsys, mu: &sync.Mutex{}}
}

func (s *syncFS) Stat(name string) (fs.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.Stat(name)
}

func (s *syncFS) ReadDir(name string) ([]fs.DirEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.ReadDir(name)
}

func (s *syncFS) ReadFile(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.ReadFile(name)
}

func (s *syncFS) Exists(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.Exists(name)
}

func (s *syncFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.WriteFile(name, data, perm)
}

func (s *syncFS) Mkdir(name string, perm fs.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.Mkdir(name, perm)
}

func (s *syncFS) MkdirAll(path string, perm fs.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.MkdirAll(path, perm)
}

func (s *syncFS) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.Remove(name)
}

func (s *syncFS) RemoveAll(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.RemoveAll(path)
}

func (s *syncFS) Rename(oldpath, newpath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FS.Rename(oldpath, newpath)
}

func (s *syncFS) Chroot(dir string) (core.FS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.FS.Chroot(dir)
	if err != nil {
		return nil, err
	}
	return &syncFS{FS: sub, mu: s.mu}, nil
}

// guard synchronizes every filesystem that is not backed by the local disk.
func guard(fsys core.FS) core.FS {
	if fsys.Type() == core.FSTypeLocal {
		return fsys
	}
	return Synchronized(fsys)
}
