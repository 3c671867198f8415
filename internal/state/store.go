// Package state provides the small persistence ports owned by the
// pipeline: the OAuth config cache, the token cache, and the last-label
// file. Host-app databases are never written through this package.
package state

import (
	"os"
	"path/filepath"
)

// Well-known file names within the data directory.
const (
	OAuthConfigFile = "oauth_config.json"
	TokenCacheFile  = "token_cache.json"
	LastLabelFile   = "last_label.txt"
)

// Store is a whole-file read/write port over named files. Implementations
// must overwrite atomically and keep persisted secrets owner-only.
type Store interface {
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Exists(name string) bool
	Path(name string) string
}

// DirStore is a Store over a single directory on disk.
type DirStore struct {
	dir string
}

// NewDirStore returns a DirStore rooted at dir. The directory is created
// lazily on first write.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Path returns the absolute path of a named file.
func (s *DirStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether the named file exists.
func (s *DirStore) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Read returns the full contents of the named file.
func (s *DirStore) Read(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// Write replaces the named file with data. The file is written to a
// temporary sibling and renamed into place so readers never observe a
// partial write, with owner-only permissions.
func (s *DirStore) Write(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.Path(name)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	files map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

func (s *MemStore) Path(name string) string { return "mem://" + name }

func (s *MemStore) Exists(name string) bool {
	_, ok := s.files[name]
	return ok
}

func (s *MemStore) Read(name string) ([]byte, error) {
	data, ok := s.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (s *MemStore) Write(name string, data []byte) error {
	s.files[name] = append([]byte(nil), data...)
	return nil
}
