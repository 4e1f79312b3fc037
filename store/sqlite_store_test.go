package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/signkeeper/signkeeper/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "signkeeper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SaveGetDelete(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, ScopeLocal, map[string]json.RawMessage{
		"alpha": json.RawMessage(`{"n":1}`),
		"beta":  json.RawMessage(`"two"`),
	}))

	raw, err := s.Get(ctx, ScopeLocal, "alpha")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(raw))

	all, err := s.GetAll(ctx, ScopeLocal)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, ScopeLocal, "alpha", "absent"))
	_, err = s.Get(ctx, ScopeLocal, "alpha")
	assert.True(t, errors.Is(err, types.ErrKeyNotFound))
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, ScopeSync, map[string]json.RawMessage{"k": json.RawMessage(`1`)}))
	require.NoError(t, s.Save(ctx, ScopeSync, map[string]json.RawMessage{"k": json.RawMessage(`2`)}))

	raw, err := s.Get(ctx, ScopeSync, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", string(raw))
}

func TestSQLiteStore_ScopesAreIsolated(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, ScopeSync, map[string]json.RawMessage{"k": json.RawMessage(`1`)}))

	_, err := s.Get(ctx, ScopeLocal, "k")
	assert.True(t, errors.Is(err, types.ErrKeyNotFound))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signkeeper.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, ScopeLocal, map[string]json.RawMessage{"k": json.RawMessage(`"v"`)}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	raw, err := s.Get(ctx, ScopeLocal, "k")
	require.NoError(t, err)
	assert.Equal(t, `"v"`, string(raw))
}
