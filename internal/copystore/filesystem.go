package copystore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gbtim/internal/gbtim"
)

// FileSystemStore serves copies straight from a local directory tree. Copy
// paths are absolute paths on the host; root constrains which part of the
// tree the store will read (usually "/").
type FileSystemStore struct {
	host string
	root string
}

// NewFileSystemStore creates a store for the named host rooted at root.
func NewFileSystemStore(host, root string) (*FileSystemStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("store root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root is not a directory: %s", root)
	}
	return &FileSystemStore{host: host, root: filepath.Clean(root)}, nil
}

func (s *FileSystemStore) Host() string {
	return s.host
}

// Open opens the copy at the given absolute path for reading.
func (s *FileSystemStore) Open(path string) (io.ReadCloser, error) {
	cleaned := filepath.Clean(path)
	if s.root != "/" && cleaned != s.root && !strings.HasPrefix(cleaned, s.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %s is outside store root %s", path, s.root)
	}

	f, err := os.Open(cleaned)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// Compile-time check that FileSystemStore implements gbtim.CopyStore interface
var _ gbtim.CopyStore = (*FileSystemStore)(nil)
