package storage

import (
	"bytes"
	"context"
	"sync"
)

// Memory implements in-process storage.
//
// Suitable for tests and for a front end that does not need sessions to
// survive a restart.
type Memory struct {
	entries sync.Map
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

// Get returns a copy of the stored value.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := m.entries.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(value.([]byte)), nil
}

// Set stores a copy of value.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.entries.Store(key, bytes.Clone(value))
	return nil
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	count := 0
	m.entries.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
