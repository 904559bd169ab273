// Package testutil provides in-memory implementations of the repository
// interfaces plus a base suite for service tests. The stores honor the same
// error semantics as the postgres implementations so services cannot tell
// them apart.
package testutil

import (
	"context"
	"sort"
	"sync"

	ierr "github.com/stackbill/stackbill/internal/errors"
)

// InMemoryStore is a thread-safe map-backed store shared by the per-entity
// test stores.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewInMemoryStore[T any]() *InMemoryStore[T] {
	return &InMemoryStore[T]{items: make(map[string]T)}
}

func (s *InMemoryStore[T]) Create(_ context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; ok {
		return ierr.NewErrorf("item %s already exists", id).
			Mark(ierr.ErrAlreadyExists)
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Get(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return item, nil
}

func (s *InMemoryStore[T]) Update(_ context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	s.items[id] = item
	return nil
}

func (s *InMemoryStore[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

// List returns the items passing filterFn, ordered by sortFn when given.
func (s *InMemoryStore[T]) List(ctx context.Context, filterFn func(context.Context, T) bool, sortFn func(a, b T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []T
	for _, item := range s.items {
		if filterFn == nil || filterFn(ctx, item) {
			out = append(out, item)
		}
	}
	if sortFn != nil {
		sort.Slice(out, func(i, j int) bool { return sortFn(out[i], out[j]) })
	}
	return out
}

// Count returns the number of items passing filterFn.
func (s *InMemoryStore[T]) Count(ctx context.Context, filterFn func(context.Context, T) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, item := range s.items {
		if filterFn == nil || filterFn(ctx, item) {
			n++
		}
	}
	return n
}

// Mutate applies fn to the stored item under the write lock, so read-check-
// write sequences are atomic against concurrent callers.
func (s *InMemoryStore[T]) Mutate(_ context.Context, id string, fn func(T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return ierr.NewErrorf("item %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return fn(item)
}

// Clear drops everything; used between tests.
func (s *InMemoryStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}
