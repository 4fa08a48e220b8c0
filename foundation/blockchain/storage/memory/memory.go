// Package memory implements the storage.Store interface using a map.
package memory

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
)

// Memory represents a store that keeps everything in memory. This implements
// the storage.Store interface.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{
		data: make(map[string][]byte),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Get returns a copy of the value stored under the key.
func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, exists := m.data[string(key)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return bytes.Clone(v), nil
}

// Put stores the value under the key.
func (m *Memory) Put(key []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[string(key)] = bytes.Clone(value)
	return nil
}

// Delete removes the key.
func (m *Memory) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, string(key))
	return nil
}

// Batch applies all the operations under a single lock.
func (m *Memory) Batch(ops []storage.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range ops {
		if op.Delete {
			delete(m.data, string(op.Key))
			continue
		}
		m.data[string(op.Key)] = bytes.Clone(op.Value)
	}

	return nil
}

// ForEach calls fn for every key in byte order. The walk happens over a
// snapshot so fn may write back into the store.
func (m *Memory) ForEach(fn func(key []byte, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	snapshot := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		snapshot[k] = bytes.Clone(v)
	}
	m.mu.RUnlock()

	sort.Strings(keys)

	for _, k := range keys {
		if err := fn([]byte(k), snapshot[k]); err != nil {
			if errors.Is(err, storage.ErrStopIteration) {
				return nil
			}
			return err
		}
	}

	return nil
}

// Clear removes every key from the store.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string][]byte)
	return nil
}

// Count returns the number of keys in the store.
func (m *Memory) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data), nil
}
