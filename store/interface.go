package store

import (
	"context"
	"encoding/json"
)

// Scope splits stored keys into the two persistence areas the system uses.
type Scope string

const (
	// ScopeSync is the small synchronized scope: the task identity-name
	// list and simple configuration.
	ScopeSync Scope = "sync"
	// ScopeLocal is the larger local scope: per-task records and per-task
	// history sequences.
	ScopeLocal Scope = "local"
)

// KeyValueStore defines the interface for the persistent key-value backend.
// Values are stored as raw JSON documents; callers own their schema.
// All implementations must be safe for concurrent use within one process.
type KeyValueStore interface {
	// Get retrieves a single value. It returns types.ErrKeyNotFound
	// (wrapped) when the key is absent.
	Get(ctx context.Context, scope Scope, key string) (json.RawMessage, error)

	// GetAll retrieves every key-value pair stored in the scope.
	GetAll(ctx context.Context, scope Scope) (map[string]json.RawMessage, error)

	// Save writes all given key-value pairs. Keys not present in the map
	// are left untouched.
	Save(ctx context.Context, scope Scope, values map[string]json.RawMessage) error

	// Delete removes the given keys. Absent keys are ignored.
	Delete(ctx context.Context, scope Scope, keys ...string) error

	// Close releases any resources held by the store, such as file locks
	// or database connections.
	Close() error
}

// GetJSON reads a key and unmarshals it into out. It returns
// types.ErrKeyNotFound (wrapped) when the key is absent.
func GetJSON(ctx context.Context, s KeyValueStore, scope Scope, key string, out any) error {
	raw, err := s.Get(ctx, scope, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SaveJSON marshals v and writes it under key.
func SaveJSON(ctx context.Context, s KeyValueStore, scope Scope, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Save(ctx, scope, map[string]json.RawMessage{key: raw})
}
