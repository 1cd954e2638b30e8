package keystore

import (
	"fmt"
	"sync"
)

// MemoryStore keeps keys in process memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]KeyInfo
}

var _ KeyStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]KeyInfo)}
}

func (m *MemoryStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.keys))
	for name := range m.keys {
		names = append(names, name)
	}
	return names, nil
}

func (m *MemoryStore) Get(name string) (KeyInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ki, ok := m.keys[name]
	if !ok {
		return KeyInfo{}, fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	return ki.Clone(), nil
}

func (m *MemoryStore) Put(name string, info KeyInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrKeyExists)
	}
	m.keys[name] = info.Clone()
	return nil
}

func (m *MemoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	delete(m.keys, name)
	return nil
}
