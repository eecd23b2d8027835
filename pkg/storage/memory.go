package storage

import (
	"fmt"
	"sync"
)

// Memory is an in-process Storage. It is used for tests and for callers that only want to stream.
type Memory struct {
	name string

	mu      sync.RWMutex
	data    []byte
	deleted bool
}

var _ Storage = &Memory{}

func NewMemory(name string) *Memory {
	return &Memory{name: name}
}

func (m *Memory) Path() string {
	return m.name
}

func (m *Memory) Append(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = false
	m.data = append(m.data, b...)
	return nil
}

func (m *Memory) ReadRange(off, n int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if off < 0 || n < 0 || off+n > int64(len(m.data)) {
		return nil, fmt.Errorf("%w: offset %d length %d size %d", ErrOutOfRange, off, n, len(m.data))
	}
	out := make([]byte, n)
	copy(out, m.data[off:off+n])
	return out, nil
}

func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

func (m *Memory) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.deleted = true
	return nil
}

// Deleted reports whether Delete was the last mutation.
func (m *Memory) Deleted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deleted
}

// Bytes returns a copy of the stored content.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.data...)
}
