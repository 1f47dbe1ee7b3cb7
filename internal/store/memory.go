package store

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps entries in a map. Nothing survives Close.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return matchingKeys(m.entries, prefix), nil
}

func (m *MemoryStore) Close() error { return nil }

// matchingKeys returns the sorted keys of entries that start with prefix.
func matchingKeys(entries map[string]string, prefix string) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
