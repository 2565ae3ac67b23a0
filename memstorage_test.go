package httpcache

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// memStorage is a minimal in-process Storage used across this package's own
// test files. Backend-specific Storage implementations live under their own
// packages and are exercised by test.Storage instead.
type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
	vers map[string]uint64
}

func newMemStorage() *memStorage {
	return &memStorage{data: map[string][]byte{}, vers: map[string]uint64{}}
}

func (m *memStorage) Load(_ context.Context, key string) (StoredEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return StoredEntry{}, ErrNotFound
	}
	return StoredEntry{Data: data, Version: strconv.FormatUint(m.vers[key], 10)}, nil
}

func (m *memStorage) Store(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vers[key]++
	m.data[key] = data
	return strconv.FormatUint(m.vers[key], 10), nil
}

func (m *memStorage) Update(_ context.Context, key, oldVersion string, newData []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := strconv.FormatUint(m.vers[key], 10)
	if _, exists := m.data[key]; !exists {
		current = ""
	}
	if current != oldVersion {
		return "", ErrCASConflict
	}
	m.vers[key]++
	m.data[key] = newData
	return strconv.FormatUint(m.vers[key], 10), nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.vers, key)
	return nil
}

func (m *memStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

var _ Storage = (*memStorage)(nil)
