package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/signkeeper/signkeeper/internal/script"
	"github.com/signkeeper/signkeeper/models"
	"github.com/signkeeper/signkeeper/store"
	"github.com/signkeeper/signkeeper/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct{ run, check bool }

func (p fakeProbe) HasRun() bool   { return p.run }
func (p fakeProbe) HasCheck() bool { return p.check }

func taskSource(author, name string) string {
	return "// ==UserScript==\n" +
		"// @name " + name + "\n" +
		"// @author " + author + "\n" +
		"// @domain example.com\n" +
		"// @param user account\n" +
		"// ==/UserScript==\n" +
		"exports.run = async function(params) {};\n"
}

func compile(t *testing.T, author, name string) *models.TaskDefinition {
	t.Helper()
	def, err := script.Compile(taskSource(author, name))
	require.NoError(t, err)
	return def
}

func newTestRegistry(t *testing.T) (*Registry, *store.MemoryStore) {
	t.Helper()
	kv := store.NewMemoryStore()
	return New(kv, nil), kv
}

func TestAdd_RequiresCapability(t *testing.T) {
	reg, _ := newTestRegistry(t)
	def := compile(t, "alice", "demo")

	_, err := reg.Add(context.Background(), def, fakeProbe{})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = reg.Add(context.Background(), def, nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestAddGetList(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	existed, err := reg.Add(ctx, compile(t, "alice", "demo"), fakeProbe{run: true})
	require.NoError(t, err)
	assert.False(t, existed)

	rec, err := reg.Get(ctx, "alice/demo")
	require.NoError(t, err)
	assert.Equal(t, "alice/demo", rec.Identity())
	assert.False(t, rec.State.Enable)
	assert.Equal(t, map[string]string{"user": ""}, rec.State.Params)

	records, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = reg.Get(ctx, "bob/unknown")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAdd_RedefineKeepsRuntimeState(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, compile(t, "alice", "demo"), fakeProbe{run: true})
	require.NoError(t, err)

	enable := true
	found, err := reg.Update(ctx, models.TaskPatch{
		Identity: "alice/demo",
		Enable:   &enable,
		Params:   map[string]string{"user": "alice@example.com"},
	})
	require.NoError(t, err)
	require.True(t, found)

	rec, err := reg.Get(ctx, "alice/demo")
	require.NoError(t, err)
	rec.State.Cnt = 7
	rec.State.OK = 5
	require.NoError(t, reg.SaveRecord(ctx, rec))

	existed, err := reg.Add(ctx, compile(t, "alice", "demo"), fakeProbe{run: true})
	require.NoError(t, err)
	assert.True(t, existed)

	rec, err = reg.Get(ctx, "alice/demo")
	require.NoError(t, err)
	assert.True(t, rec.State.Enable)
	assert.Equal(t, int64(7), rec.State.Cnt)
	assert.Equal(t, int64(5), rec.State.OK)
	assert.Equal(t, "alice@example.com", rec.State.Params["user"])
}

func TestRemove(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, compile(t, "alice", "demo"), fakeProbe{run: true})
	require.NoError(t, err)

	existed, err := reg.Remove(ctx, "alice/demo")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = reg.Get(ctx, "alice/demo")
	assert.ErrorIs(t, err, types.ErrNotFound)

	existed, err = reg.Remove(ctx, "alice/demo")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestAdd_RecoversOrphanedState(t *testing.T) {
	reg, kv := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, compile(t, "alice", "demo"), fakeProbe{run: true})
	require.NoError(t, err)
	enable := true
	_, err = reg.Update(ctx, models.TaskPatch{Identity: "alice/demo", Enable: &enable})
	require.NoError(t, err)

	// Remove drops the identity from the list but leaves the record
	// behind; a later re-add recovers its state from storage.
	_, err = reg.Remove(ctx, "alice/demo")
	require.NoError(t, err)

	fresh := New(kv, nil)
	existed, err := fresh.Add(ctx, compile(t, "alice", "demo"), fakeProbe{run: true})
	require.NoError(t, err)
	assert.False(t, existed)

	rec, err := fresh.Get(ctx, "alice/demo")
	require.NoError(t, err)
	assert.True(t, rec.State.Enable, "recovered state should survive re-add")

	// The recovered identity is back in the persisted name list.
	var names []string
	require.NoError(t, store.GetJSON(ctx, kv, store.ScopeSync, "tasks", &names))
	assert.Equal(t, []string{"alice/demo"}, names)
}

func TestList_SkipsCorruptRecords(t *testing.T) {
	reg, kv := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, compile(t, "alice", "good"), fakeProbe{run: true})
	require.NoError(t, err)

	// Inject a name whose record is unreadable garbage.
	names := []string{"alice/good", "bob/broken"}
	raw, _ := json.Marshal(names)
	require.NoError(t, kv.Save(ctx, store.ScopeSync, map[string]json.RawMessage{"tasks": raw}))
	require.NoError(t, kv.Save(ctx, store.ScopeLocal, map[string]json.RawMessage{"bob/broken": json.RawMessage(`{"code": 42}`)}))

	reg.Invalidate()
	records, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alice/good", records[0].Identity())
}

func TestLockIdentity_Serializes(t *testing.T) {
	reg, _ := newTestRegistry(t)

	unlock := reg.LockIdentity("alice/demo")
	acquired := make(chan struct{})
	go func() {
		u := reg.LockIdentity("alice/demo")
		close(acquired)
		u()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	default:
	}

	// A different identity is not blocked.
	other := reg.LockIdentity("bob/other")
	other()

	unlock()
	<-acquired
}

func TestGet_NotFoundError(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Get(context.Background(), "nobody/nothing")
	var taskErr *types.TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Equal(t, "nobody/nothing", taskErr.Identity)
}
