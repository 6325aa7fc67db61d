package repository

import (
	"context"
	"sync"
)

// MemoryRepository хранит снимки в памяти процесса. Используется, когда внешнее хранилище не настроено.
type MemoryRepository struct {
	mu    sync.Mutex
	blobs map[string][]byte
	saves int
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{blobs: make(map[string][]byte)}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error { return nil }

// Load возвращает копию снимка по ключу.
func (r *MemoryRepository) Load(ctx context.Context, key string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	blob, ok := r.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

// Save сохраняет копию снимка.
func (r *MemoryRepository) Save(ctx context.Context, key string, blob []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blobs[key] = append([]byte(nil), blob...)
	r.saves++
	return nil
}

// Saves возвращает число выполненных записей.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}
