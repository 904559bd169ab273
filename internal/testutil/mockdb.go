package testutil

import (
	"context"
	"sync"

	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type txHolderKey struct{}

type heldLocks struct {
	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func (h *heldLocks) holds(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.keys[key]
	return ok
}

func (h *heldLocks) add(key string, mu *sync.Mutex) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys[key] = mu
}

func (h *heldLocks) releaseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, mu := range h.keys {
		mu.Unlock()
		delete(h.keys, key)
	}
}

// MockDB implements postgres.IClient for tests. WithTx has no rollback (the
// in-memory stores are not transactional) but LockKey gives the same per-key
// serialization as the advisory locks, so concurrency tests exercise the real
// contention paths.
type MockDB struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ postgres.IClient = (*MockDB)(nil)

func NewMockDB() *MockDB {
	return &MockDB{locks: make(map[string]*sync.Mutex)}
}

func (db *MockDB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txHolderKey{}).(*heldLocks); ok {
		return fn(ctx)
	}
	held := &heldLocks{keys: make(map[string]*sync.Mutex)}
	defer held.releaseAll()
	return fn(context.WithValue(ctx, txHolderKey{}, held))
}

func (db *MockDB) LockKey(ctx context.Context, scope types.LockScope, params map[string]interface{}) error {
	held, ok := ctx.Value(txHolderKey{}).(*heldLocks)
	if !ok {
		return ierr.NewError("advisory lock requested outside a transaction").
			WithHint("LockKey must be called within WithTx").
			Mark(ierr.ErrInternal)
	}

	key := types.GenerateLockKey(scope, params)
	if held.holds(key) {
		return nil
	}

	db.mu.Lock()
	mu, ok := db.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		db.locks[key] = mu
	}
	db.mu.Unlock()

	mu.Lock()
	held.add(key, mu)
	return nil
}
