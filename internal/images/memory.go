package images

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrObjectNotFound is returned by MemorySource for unknown paths.
var ErrObjectNotFound = errors.New("object not found")

// MemorySource keeps objects in process. It backs offline runs and tests.
type MemorySource struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	lookups atomic.Int64
}

func NewMemorySource() *MemorySource {
	return &MemorySource{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *MemorySource) DownloadURL(_ context.Context, objectPath string) (string, error) {
	m.lookups.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[objectPath]; !ok {
		return "", ErrObjectNotFound
	}
	return "memory:///" + objectPath, nil
}

func (m *MemorySource) Upload(_ context.Context, objectPath, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectPath] = data
	m.types[objectPath] = contentType
	return nil
}

// Object returns a stored object and its content type.
func (m *MemorySource) Object(objectPath string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectPath]
	return data, m.types[objectPath], ok
}

// Lookups counts DownloadURL calls.
func (m *MemorySource) Lookups() int64 { return m.lookups.Load() }
