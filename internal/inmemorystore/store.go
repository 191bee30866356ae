package inmemorystore

import (
	"context"
	"sync"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/statestore"
)

// Store is an in-memory statestore.Store backed by sync.Map. Keys are
// item.ID values, so every item of a node run has an independent slot.
type Store struct {
	results sync.Map // Key: item.ID, Value: statestore.Result
}

// New creates a new, empty in-memory store.
func New() statestore.Store {
	return &Store{}
}

// Set records the result of an item.
func (s *Store) Set(ctx context.Context, id item.ID, r statestore.Result) error {
	s.results.Store(id, r)
	return nil
}

// Get retrieves the result of an item. Items never set are Pending.
func (s *Store) Get(ctx context.Context, id item.ID) (statestore.Result, error) {
	r, ok := s.results.Load(id)
	if !ok {
		return statestore.Result{State: item.Pending}, nil
	}
	return r.(statestore.Result), nil
}

// All returns a copy of every recorded result.
func (s *Store) All(ctx context.Context) (map[item.ID]statestore.Result, error) {
	out := make(map[item.ID]statestore.Result)
	s.results.Range(func(k, v any) bool {
		out[k.(item.ID)] = v.(statestore.Result)
		return true
	})
	return out, nil
}
