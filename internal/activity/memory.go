package activity

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps entries in process memory.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string][]Entry)}
}

func (r *MemoryRepository) Insert(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.UserID] = append(r.entries[entry.UserID], entry)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, userID string, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]Entry(nil), r.entries[userID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
