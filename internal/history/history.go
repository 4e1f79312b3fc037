// Package history maintains the durable, queryable execution history of
// every task: one newest-first sequence per task identity, bounded by a
// combined age-and-count retention policy.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signkeeper/signkeeper/models"
	"github.com/signkeeper/signkeeper/store"
	"github.com/signkeeper/signkeeper/types"
)

const (
	keyPrefix = "history_"
	configKey = "history_config"
)

// sensitiveKeys is the fixed denylist matched case-insensitively as a
// substring against parameter names before they are recorded.
var sensitiveKeys = []string{"password", "pwd", "token", "secret", "key", "cookie", "authorization"}

// maskedValue replaces any sensitive parameter value in stored history.
const maskedValue = "***"

// Engine appends to and queries the per-task history sequences.
// Appends are read-modify-write against one stored sequence; a process-wide
// mutex keeps concurrent appends from losing entries.
type Engine struct {
	store store.KeyValueStore
	log   *slog.Logger
	mu    sync.Mutex
}

// New creates a history engine over the given store.
func New(kv store.KeyValueStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: kv, log: log}
}

// historyKey derives the storage key for a task identity, replacing the
// identity's slash so the key stays flat.
func historyKey(identity string) string {
	return keyPrefix + strings.ReplaceAll(identity, "/", "_")
}

// identityFromKey reverses historyKey. Only the first underscore maps back
// to a slash, matching the author/name split.
func identityFromKey(key string) string {
	return strings.Replace(strings.TrimPrefix(key, keyPrefix), "_", "/", 1)
}

// generateID builds a time-based entry id with a random suffix. Collisions
// are negligible for practical purposes; ids are not required to be
// globally unique beyond that.
func generateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strconv.FormatInt(now.UnixMilli(), 36) + suffix
}

// maskParams copies params with every sensitive key's value replaced.
func maskParams(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	masked := make(map[string]string, len(params))
	for key, value := range params {
		lower := strings.ToLower(key)
		hit := false
		for _, sk := range sensitiveKeys {
			if strings.Contains(lower, sk) {
				hit = true
				break
			}
		}
		if hit {
			masked[key] = maskedValue
		} else {
			masked[key] = value
		}
	}
	return masked
}

// ConfigPatch is a partial HistoryConfig override; nil fields keep the
// current value.
type ConfigPatch struct {
	MaxDays       *int  `json:"maxDays,omitempty"`
	MaxRecords    *int  `json:"maxRecords,omitempty"`
	EnableLogging *bool `json:"enableLogging,omitempty"`
}

// Config returns the stored retention policy merged over the defaults.
func (e *Engine) Config(ctx context.Context) (models.HistoryConfig, error) {
	cfg := models.DefaultHistoryConfig()
	var patch ConfigPatch
	err := store.GetJSON(ctx, e.store, store.ScopeLocal, configKey, &patch)
	if err != nil {
		if errors.Is(err, types.ErrKeyNotFound) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read history config: %w", err)
	}
	applyPatch(&cfg, patch)
	return cfg, nil
}

// SetConfig read-merge-writes the stored policy.
func (e *Engine) SetConfig(ctx context.Context, patch ConfigPatch) (models.HistoryConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.Config(ctx)
	if err != nil {
		return cfg, err
	}
	applyPatch(&cfg, patch)
	if err := store.SaveJSON(ctx, e.store, store.ScopeLocal, configKey, cfg); err != nil {
		return cfg, fmt.Errorf("failed to save history config: %w", err)
	}
	return cfg, nil
}

func applyPatch(cfg *models.HistoryConfig, patch ConfigPatch) {
	if patch.MaxDays != nil {
		cfg.MaxDays = *patch.MaxDays
	}
	if patch.MaxRecords != nil {
		cfg.MaxRecords = *patch.MaxRecords
	}
	if patch.EnableLogging != nil {
		cfg.EnableLogging = *patch.EnableLogging
	}
}

// AppendOptions carries the optional fields of a history entry.
type AppendOptions struct {
	Duration int64
	Logs     []string
	Params   map[string]string
	Error    error
}

// Append records one execution outcome for the task and enforces retention:
// entries older than MaxDays are dropped first, then the sequence is capped
// at MaxRecords. No-op when logging is disabled.
func (e *Engine) Append(ctx context.Context, identity string, typ models.HistoryType, success bool, result string, opts AppendOptions) error {
	cfg, err := e.Config(ctx)
	if err != nil {
		return err
	}
	if !cfg.EnableLogging {
		return nil
	}

	now := time.Now()
	entry := models.HistoryEntry{
		ID:        generateID(now),
		TaskName:  identity,
		Type:      typ,
		Timestamp: now.UnixMilli(),
		Success:   success,
		Result:    result,
		Logs:      opts.Logs,
		Duration:  opts.Duration,
		Params:    maskParams(opts.Params),
	}
	if opts.Error != nil {
		entry.Error = opts.Error.Error()
	}
	if entry.Logs == nil {
		entry.Logs = []string{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.loadSequence(ctx, identity)
	if err != nil {
		return err
	}
	entries = append([]models.HistoryEntry{entry}, entries...)
	entries = enforceRetention(entries, cfg, now)

	if err := store.SaveJSON(ctx, e.store, store.ScopeLocal, historyKey(identity), entries); err != nil {
		return fmt.Errorf("failed to save history for %s: %w", identity, err)
	}
	e.log.Debug("history entry recorded", "identity", identity, "type", typ, "success", success)
	return nil
}

// enforceRetention applies the age filter before the count cap.
func enforceRetention(entries []models.HistoryEntry, cfg models.HistoryConfig, now time.Time) []models.HistoryEntry {
	cutoff := now.UnixMilli() - int64(cfg.MaxDays)*24*60*60*1000
	kept := entries[:0]
	for _, entry := range entries {
		if entry.Timestamp > cutoff {
			kept = append(kept, entry)
		}
	}
	if len(kept) > cfg.MaxRecords {
		kept = kept[:cfg.MaxRecords]
	}
	return kept
}

// loadSequence reads a task's stored sequence; an absent key is an empty
// sequence.
func (e *Engine) loadSequence(ctx context.Context, identity string) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := store.GetJSON(ctx, e.store, store.ScopeLocal, historyKey(identity), &entries)
	if err != nil {
		if errors.Is(err, types.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history for %s: %w", identity, err)
	}
	return entries, nil
}

// QueryOptions filter one task's sequence.
type QueryOptions struct {
	Type    models.HistoryType // zero value matches all
	Success *bool
	Offset  int
	Limit   int // 0 means the rest of the filtered sequence
}

// Query returns a contiguous window of the task's filtered sequence,
// newest first.
func (e *Engine) Query(ctx context.Context, identity string, opts QueryOptions) ([]models.HistoryEntry, error) {
	entries, err := e.loadSequence(ctx, identity)
	if err != nil {
		return nil, err
	}

	filtered := entries[:0:0]
	for _, entry := range entries {
		if opts.Type != "" && entry.Type != opts.Type {
			continue
		}
		if opts.Success != nil && entry.Success != *opts.Success {
			continue
		}
		filtered = append(filtered, entry)
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	limit := opts.Limit
	if limit <= 0 || offset+limit > len(filtered) {
		limit = len(filtered) - offset
	}
	return filtered[offset : offset+limit], nil
}
