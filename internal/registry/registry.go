// Package registry owns the set of registered tasks: definitions paired
// with their runtime state, persisted through the key-value store and
// cached in process.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/signkeeper/signkeeper/internal/script"
	"github.com/signkeeper/signkeeper/models"
	"github.com/signkeeper/signkeeper/store"
	"github.com/signkeeper/signkeeper/types"
)

// nameListKey holds the ordered task identity list in the sync scope.
const nameListKey = "tasks"

// Probe reports which capabilities a built script exposes. The sandboxed
// runtime owns the actual functions; the registry only needs to know they
// exist before admitting a definition.
type Probe interface {
	HasRun() bool
	HasCheck() bool
}

// Registry provides CRUD over task records with an in-process cache.
// A single mutex strictly orders cache mutations; per-identity locks are
// available to callers whose operations span a capability invocation.
type Registry struct {
	store store.KeyValueStore
	log   *slog.Logger

	mu    sync.Mutex
	cache []models.TaskRecord // nil until first load

	identityMu sync.Mutex
	identities map[string]*sync.Mutex

	watcher *fsnotify.Watcher
}

// New creates a registry over the given store.
func New(kv store.KeyValueStore, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		store:      kv,
		log:        log,
		identities: map[string]*sync.Mutex{},
	}
}

// LockIdentity acquires the lock serializing operations on one task
// identity and returns its release function. Operations that invoke a
// task's capability hold this instead of the registry-wide lock so
// unrelated tasks stay unblocked.
func (r *Registry) LockIdentity(identity string) func() {
	r.identityMu.Lock()
	m, ok := r.identities[identity]
	if !ok {
		m = &sync.Mutex{}
		r.identities[identity] = m
	}
	r.identityMu.Unlock()
	m.Lock()
	return m.Unlock
}

// Watch invalidates the cache whenever the given path is modified by
// another process. Call Close to stop watching.
func (r *Registry) Watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					r.Invalidate()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.Warn("task data watch error", "error", err)
			}
		}
	}()
	return nil
}

// Invalidate drops the in-process cache; the next operation reloads from
// the store.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cache = nil
	r.mu.Unlock()
}

// Close stops the file watcher if one is running.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// load populates the cache from the persisted identity list plus per-name
// record lookups. A record that fails to decode or whose source no longer
// compiles is logged and excluded; the listing tolerates partial
// corruption rather than failing wholesale. Caller holds r.mu.
func (r *Registry) load(ctx context.Context) error {
	if r.cache != nil {
		return nil
	}

	var names []string
	if err := store.GetJSON(ctx, r.store, store.ScopeSync, nameListKey, &names); err != nil {
		if !isKeyNotFound(err) {
			return fmt.Errorf("failed to read task name list: %w", err)
		}
	}

	cache := make([]models.TaskRecord, 0, len(names))
	for _, name := range names {
		var rec models.TaskRecord
		if err := store.GetJSON(ctx, r.store, store.ScopeLocal, name, &rec); err != nil {
			r.log.Error("skipping unreadable task record", "identity", name, "error", err)
			continue
		}
		if _, err := script.Compile(rec.Code); err != nil {
			r.log.Error("skipping task whose source no longer compiles", "identity", name, "error", err)
			continue
		}
		cache = append(cache, rec)
	}
	r.cache = cache
	return nil
}

func isKeyNotFound(err error) bool {
	return errors.Is(err, types.ErrKeyNotFound)
}

// List returns every registered task record in stored order.
func (r *Registry) List(ctx context.Context) ([]models.TaskRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	out := make([]models.TaskRecord, len(r.cache))
	copy(out, r.cache)
	return out, nil
}

// Get returns the record with the given identity, or ErrNotFound.
func (r *Registry) Get(ctx context.Context, identity string) (*models.TaskRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	for i := range r.cache {
		if r.cache[i].Identity() == identity {
			rec := r.cache[i]
			return &rec, nil
		}
	}
	return nil, types.NotFoundError(identity)
}

// Add registers a definition, merging runtime state from any prior record
// under the same identity. When the identity is new but an orphaned record
// survives in storage (a stale cache or an earlier partial removal), its
// state is recovered, and the persisted name list is reconciled to include
// it again. Returns whether a prior record existed in the registry.
func (r *Registry) Add(ctx context.Context, def *models.TaskDefinition, probe Probe) (bool, error) {
	if probe == nil || (!probe.HasRun() && !probe.HasCheck()) {
		return false, types.ValidationErrorf("script exposes neither a run nor a check capability")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return false, err
	}

	rec := models.TaskRecord{
		TaskDefinition: *def,
		State: models.TaskRuntimeState{
			Params: script.SeedParams(def),
		},
	}
	identity := rec.Identity()

	existed := false
	for i := range r.cache {
		if r.cache[i].Identity() == identity {
			// Redefinition: the runtime state survives wholesale; only
			// the definition is replaced.
			rec.State = r.cache[i].State
			seedMissingParams(&rec)
			r.cache[i] = rec
			existed = true
			break
		}
	}

	if !existed {
		var orphan models.TaskRecord
		err := store.GetJSON(ctx, r.store, store.ScopeLocal, identity, &orphan)
		switch {
		case err == nil:
			rec.State = orphan.State
			seedMissingParams(&rec)
		case !isKeyNotFound(err):
			return false, fmt.Errorf("failed to check for orphaned record %s: %w", identity, err)
		}
		r.cache = append(r.cache, rec)
	}

	if err := r.persistNames(ctx); err != nil {
		return existed, err
	}
	if err := store.SaveJSON(ctx, r.store, store.ScopeLocal, identity, rec); err != nil {
		return existed, fmt.Errorf("failed to persist record %s: %w", identity, err)
	}
	return existed, nil
}

// seedMissingParams ensures every declared param has a value entry,
// preserving values carried over from a prior record.
func seedMissingParams(rec *models.TaskRecord) {
	if rec.State.Params == nil {
		rec.State.Params = map[string]string{}
	}
	for _, p := range rec.Params {
		if _, ok := rec.State.Params[p.Name]; !ok {
			rec.State.Params[p.Name] = ""
		}
	}
}

// Remove deletes the record with the given identity from the registry and
// persists the shortened name list. The individual record is left in the
// local scope so a later re-add can recover its runtime state. Returns
// whether the identity existed.
func (r *Registry) Remove(ctx context.Context, identity string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return false, err
	}

	for i := range r.cache {
		if r.cache[i].Identity() == identity {
			r.cache = append(r.cache[:i], r.cache[i+1:]...)
			if err := r.persistNames(ctx); err != nil {
				return true, err
			}
			return true, nil
		}
	}
	return false, nil
}

// Update shallow-merges the patch onto the stored record and persists it.
// Returns whether the identity was found.
func (r *Registry) Update(ctx context.Context, patch models.TaskPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return false, err
	}

	for i := range r.cache {
		if r.cache[i].Identity() != patch.Identity {
			continue
		}
		rec := &r.cache[i]
		if patch.Enable != nil {
			rec.State.Enable = *patch.Enable
		}
		if patch.Freq != nil {
			rec.Freq = *patch.Freq
		}
		if patch.Expire != nil {
			rec.Expire = *patch.Expire
		}
		if patch.OnlineAt != nil {
			rec.State.OnlineAt = *patch.OnlineAt
		}
		if patch.Params != nil {
			if rec.State.Params == nil {
				rec.State.Params = map[string]string{}
			}
			for k, v := range patch.Params {
				rec.State.Params[k] = v
			}
		}
		if err := store.SaveJSON(ctx, r.store, store.ScopeLocal, patch.Identity, *rec); err != nil {
			return true, fmt.Errorf("failed to persist record %s: %w", patch.Identity, err)
		}
		return true, nil
	}
	return false, nil
}

// SaveRecord replaces the cached record under rec's identity and persists
// it. Used by the execution engine after a run mutates runtime state.
func (r *Registry) SaveRecord(ctx context.Context, rec *models.TaskRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return err
	}

	identity := rec.Identity()
	for i := range r.cache {
		if r.cache[i].Identity() == identity {
			r.cache[i] = *rec
			break
		}
	}
	if err := store.SaveJSON(ctx, r.store, store.ScopeLocal, identity, *rec); err != nil {
		return fmt.Errorf("failed to persist record %s: %w", identity, err)
	}
	return nil
}

// persistNames writes the identity list derived from the cache. Caller
// holds r.mu, so the list and the record set stay consistent from the
// perspective of subsequent registry operations.
func (r *Registry) persistNames(ctx context.Context) error {
	names := make([]string, len(r.cache))
	for i := range r.cache {
		names[i] = r.cache[i].Identity()
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := r.store.Save(ctx, store.ScopeSync, map[string]json.RawMessage{nameListKey: raw}); err != nil {
		return fmt.Errorf("failed to persist task name list: %w", err)
	}
	return nil
}
