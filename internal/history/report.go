package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signkeeper/signkeeper/models"
	"github.com/signkeeper/signkeeper/store"
)

// Filters narrow cross-task history listings and aggregations.
type Filters struct {
	TaskName string
	Type     models.HistoryType // zero value matches all
	Success  *bool
	// Days keeps only entries newer than now minus this many days.
	Days int
}

// Sort names the entry field to order by. Order is "asc" or "desc";
// anything else means descending.
type Sort struct {
	Name  string
	Order string
}

// allSequences loads every stored history sequence keyed by task identity.
// Undecodable sequences are logged and skipped.
func (e *Engine) allSequences(ctx context.Context) (map[string][]models.HistoryEntry, error) {
	values, err := e.store.GetAll(ctx, store.ScopeLocal)
	if err != nil {
		return nil, fmt.Errorf("failed to scan history keys: %w", err)
	}

	sequences := map[string][]models.HistoryEntry{}
	for key, raw := range values {
		if !strings.HasPrefix(key, keyPrefix) || key == configKey {
			continue
		}
		var entries []models.HistoryEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			e.log.Error("skipping undecodable history sequence", "key", key, "error", err)
			continue
		}
		sequences[identityFromKey(key)] = entries
	}
	return sequences, nil
}

func matches(entry models.HistoryEntry, filters Filters, cutoff int64) bool {
	if filters.Type != "" && entry.Type != filters.Type {
		return false
	}
	if filters.Success != nil && entry.Success != *filters.Success {
		return false
	}
	if cutoff > 0 && entry.Timestamp <= cutoff {
		return false
	}
	return true
}

func daysCutoff(days int) int64 {
	if days <= 0 {
		return 0
	}
	return time.Now().UnixMilli() - int64(days)*24*60*60*1000
}

// ListAll gathers entries across one named task or all tasks, filters,
// optionally sorts by a named field, and paginates with 1-based pages.
func (e *Engine) ListAll(ctx context.Context, filters Filters, page, pageSize int, sortBy Sort) (*models.HistoryPage, error) {
	sequences, err := e.allSequences(ctx)
	if err != nil {
		return nil, err
	}

	availableTasks := make([]string, 0, len(sequences))
	for identity := range sequences {
		availableTasks = append(availableTasks, identity)
	}
	sort.Strings(availableTasks)

	var gathered []models.HistoryEntry
	if filters.TaskName != "" {
		gathered = sequences[filters.TaskName]
	} else {
		for _, identity := range availableTasks {
			gathered = append(gathered, sequences[identity]...)
		}
	}

	cutoff := daysCutoff(filters.Days)
	filtered := make([]models.HistoryEntry, 0, len(gathered))
	for _, entry := range gathered {
		if matches(entry, filters, cutoff) {
			filtered = append(filtered, entry)
		}
	}

	if sortBy.Name != "" {
		sortEntries(filtered, sortBy)
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	total := len(filtered)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &models.HistoryPage{
		Data:           filtered[start:end],
		Total:          total,
		AvailableTasks: availableTasks,
		Page:           page,
		PageSize:       pageSize,
	}, nil
}

// sortEntries orders entries by the named field. String fields compare
// case-insensitively; equal keys keep their relative order.
func sortEntries(entries []models.HistoryEntry, by Sort) {
	asc := by.Order == "asc"
	cmp := func(a, b models.HistoryEntry) int {
		switch by.Name {
		case "timestamp":
			return compareInt(a.Timestamp, b.Timestamp)
		case "duration":
			return compareInt(a.Duration, b.Duration)
		case "success":
			return compareBool(a.Success, b.Success)
		case "taskName":
			return compareFold(a.TaskName, b.TaskName)
		case "type":
			return compareFold(string(a.Type), string(b.Type))
		case "result":
			return compareFold(a.Result, b.Result)
		default:
			return 0
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		c := cmp(entries[i], entries[j])
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case !a && b:
		return -1
	case a && !b:
		return 1
	}
	return 0
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// Stats aggregates totals across the selected tasks. When a days filter is
// present the sequences are re-scanned with the age cutoff, since per-task
// totals are not pre-filtered by age.
func (e *Engine) Stats(ctx context.Context, filters Filters) (*models.HistoryStats, error) {
	sequences, err := e.allSequences(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := daysCutoff(filters.Days)
	stats := &models.HistoryStats{}
	for identity, entries := range sequences {
		if filters.TaskName != "" && identity != filters.TaskName {
			continue
		}
		for _, entry := range entries {
			if cutoff > 0 && entry.Timestamp <= cutoff {
				continue
			}
			stats.TotalRecords++
			if entry.Success {
				stats.SuccessCount++
			}
			switch entry.Type {
			case models.HistoryCheck:
				stats.CheckCount++
			case models.HistoryRun:
				stats.RunCount++
			}
		}
	}
	stats.FailureCount = stats.TotalRecords - stats.SuccessCount
	stats.SuccessRate = successRate(stats.SuccessCount, stats.TotalRecords)
	return stats, nil
}

// successRate renders a one-decimal percentage string, "0" for no records.
func successRate(success, total int) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%.1f", float64(success)/float64(total)*100)
}

// TaskStats summarizes every task's stored history, including a window of
// the 10 most recent entries.
func (e *Engine) TaskStats(ctx context.Context) (map[string]models.TaskStats, error) {
	sequences, err := e.allSequences(ctx)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]models.TaskStats, len(sequences))
	for identity, entries := range sequences {
		s := models.TaskStats{Total: len(entries)}
		for _, entry := range entries {
			if entry.Success {
				s.Success++
			}
			switch entry.Type {
			case models.HistoryCheck:
				s.CheckCount++
			case models.HistoryRun:
				s.RunCount++
			}
		}
		s.Failure = s.Total - s.Success
		s.SuccessRate = successRate(s.Success, s.Total)
		recent := entries
		if len(recent) > 10 {
			recent = recent[:10]
		}
		s.Recent = recent
		stats[identity] = s
	}
	return stats, nil
}

// Export returns either the named task's sequence or every known task's
// full sequence, keyed by identity.
func (e *Engine) Export(ctx context.Context, identity string) (map[string][]models.HistoryEntry, error) {
	if identity != "" {
		entries, err := e.loadSequence(ctx, identity)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []models.HistoryEntry{}
		}
		return map[string][]models.HistoryEntry{identity: entries}, nil
	}
	return e.allSequences(ctx)
}

// Import writes the given sequences. With merge false each task's sequence
// is overwritten wholesale; with merge true incoming entries are prepended,
// deduplicated by id (first occurrence wins), and re-sorted descending by
// timestamp.
func (e *Engine) Import(ctx context.Context, data map[string][]models.HistoryEntry, merge bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pairs := map[string]json.RawMessage{}
	for identity, incoming := range data {
		entries := incoming
		if merge {
			existing, err := e.loadSequence(ctx, identity)
			if err != nil {
				return err
			}
			merged := make([]models.HistoryEntry, 0, len(incoming)+len(existing))
			seen := map[string]bool{}
			for _, entry := range append(append([]models.HistoryEntry{}, incoming...), existing...) {
				if seen[entry.ID] {
					continue
				}
				seen[entry.ID] = true
				merged = append(merged, entry)
			}
			sort.SliceStable(merged, func(i, j int) bool {
				return merged[i].Timestamp > merged[j].Timestamp
			})
			entries = merged
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("failed to encode history for %s: %w", identity, err)
		}
		pairs[historyKey(identity)] = raw
	}
	if len(pairs) == 0 {
		return nil
	}
	if err := e.store.Save(ctx, store.ScopeLocal, pairs); err != nil {
		return fmt.Errorf("failed to import history: %w", err)
	}
	return nil
}

// Clear trims or wipes stored history. With days given only entries newer
// than the cutoff survive; with days zero the sequence is emptied. With no
// identity the operation spans all tasks, and a full wipe removes the
// history keys entirely.
func (e *Engine) Clear(ctx context.Context, identity string, days int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if identity != "" {
		if days > 0 {
			entries, err := e.loadSequence(ctx, identity)
			if err != nil {
				return err
			}
			cutoff := daysCutoff(days)
			kept := make([]models.HistoryEntry, 0, len(entries))
			for _, entry := range entries {
				if entry.Timestamp > cutoff {
					kept = append(kept, entry)
				}
			}
			return store.SaveJSON(ctx, e.store, store.ScopeLocal, historyKey(identity), kept)
		}
		return store.SaveJSON(ctx, e.store, store.ScopeLocal, historyKey(identity), []models.HistoryEntry{})
	}

	sequences, err := e.allSequences(ctx)
	if err != nil {
		return err
	}
	if days > 0 {
		cutoff := daysCutoff(days)
		pairs := map[string]json.RawMessage{}
		for id, entries := range sequences {
			kept := make([]models.HistoryEntry, 0, len(entries))
			for _, entry := range entries {
				if entry.Timestamp > cutoff {
					kept = append(kept, entry)
				}
			}
			raw, err := json.Marshal(kept)
			if err != nil {
				return err
			}
			pairs[historyKey(id)] = raw
		}
		if len(pairs) == 0 {
			return nil
		}
		return e.store.Save(ctx, store.ScopeLocal, pairs)
	}

	keys := make([]string, 0, len(sequences))
	for id := range sequences {
		keys = append(keys, historyKey(id))
	}
	return e.store.Delete(ctx, store.ScopeLocal, keys...)
}
