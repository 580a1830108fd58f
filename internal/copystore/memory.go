package copystore

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"gbtim/internal/gbtim"
)

// MemoryStore is an in-memory implementation of the CopyStore interface,
// useful for testing. It is safe for concurrent use.
type MemoryStore struct {
	host  string
	files map[string][]byte // path -> content
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory store for the given host.
func NewMemoryStore(host string) *MemoryStore {
	return &MemoryStore{host: host, files: make(map[string][]byte)}
}

func (m *MemoryStore) Host() string {
	return m.host
}

// Put stores the bytes of a copy at path, replacing any previous content.
func (m *MemoryStore) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
}

// Open returns a reader over the copy at path.
func (m *MemoryStore) Open(path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("copy not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Compile-time check that MemoryStore implements gbtim.CopyStore interface
var _ gbtim.CopyStore = (*MemoryStore)(nil)
