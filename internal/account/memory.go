package account

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps accounts in process memory.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]Account
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]Account)}
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (r *MemoryRepository) Create(_ context.Context, acct Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[acct.ID]; ok {
		return Account{}, ErrAccountExists
	}
	r.accounts[acct.ID] = acct.Clone()
	return acct, nil
}

func (r *MemoryRepository) Save(_ context.Context, acct Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[acct.ID]; !ok {
		return ErrAccountNotFound
	}
	r.accounts[acct.ID] = acct.Clone()
	return nil
}

func (r *MemoryRepository) ListIDs(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MongoRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
