package infra

import (
	"context"
	"sync"

	"shardhub/collab/domain"
)

// MemoryBlobStore guarda os documentos em memória. Some quando o processo
// termina: serve para desenvolvimento e testes.
type MemoryBlobStore struct {
	mu   sync.RWMutex
	data map[domain.ShardKey][]byte
}

var _ domain.BlobStore = (*MemoryBlobStore)(nil)

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{data: make(map[domain.ShardKey][]byte)}
}

// Get devolve uma cópia do valor.
func (m *MemoryBlobStore) Get(_ context.Context, key domain.ShardKey) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put guarda uma cópia do valor.
func (m *MemoryBlobStore) Put(_ context.Context, key domain.ShardKey, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()
	return nil
}

func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryBlobStore) Close() error { return nil }
