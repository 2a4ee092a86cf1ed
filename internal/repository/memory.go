package repository

import (
	"context"
	"sync"
)

// MemoryBackend keeps values in process memory. Contents are lost on restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

func (r *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	val, ok := r.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), val...), nil
}

func (r *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = append([]byte{}, value...)
	return nil
}

func (r *MemoryBackend) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}
