package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/signkeeper/signkeeper/types"
)

// MemoryStore implements KeyValueStore with in-process maps. It is used in
// tests and as an embedding option when persistence is not needed.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[Scope]map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[Scope]map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(ctx context.Context, scope Scope, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.scopes[scope][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrKeyNotFound, scope, key)
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}

func (s *MemoryStore) GetAll(ctx context.Context, scope Scope) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make(map[string]json.RawMessage, len(s.scopes[scope]))
	for k, raw := range s.scopes[scope] {
		out := make(json.RawMessage, len(raw))
		copy(out, raw)
		values[k] = out
	}
	return values, nil
}

func (s *MemoryStore) Save(ctx context.Context, scope Scope, pairs map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.scopes[scope]
	if !ok {
		values = make(map[string]json.RawMessage)
		s.scopes[scope] = values
	}
	for k, raw := range pairs {
		cp := make(json.RawMessage, len(raw))
		copy(cp, raw)
		values[k] = cp
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, scope Scope, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.scopes[scope], k)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
