package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/signkeeper/signkeeper/models"
	"github.com/signkeeper/signkeeper/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(store.NewMemoryStore(), nil)
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// entryAt fabricates an entry with a timestamp the given duration in the
// past, for seeding sequences through Import.
func entryAt(id string, age time.Duration, typ models.HistoryType, success bool) models.HistoryEntry {
	return models.HistoryEntry{
		ID:        id,
		TaskName:  "alice/demo",
		Type:      typ,
		Timestamp: time.Now().Add(-age).UnixMilli(),
		Success:   success,
		Logs:      []string{},
	}
}

func TestConfig_Defaults(t *testing.T) {
	e := newTestEngine(t)
	cfg, err := e.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.MaxDays)
	assert.Equal(t, 1000, cfg.MaxRecords)
	assert.True(t, cfg.EnableLogging)
}

func TestSetConfig_ReadMergeWrite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SetConfig(ctx, ConfigPatch{MaxRecords: intPtr(5)})
	require.NoError(t, err)

	// Untouched fields keep their defaults across a second partial write.
	cfg, err := e.SetConfig(ctx, ConfigPatch{MaxDays: intPtr(7)})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxDays)
	assert.Equal(t, 5, cfg.MaxRecords)
	assert.True(t, cfg.EnableLogging)
}

func TestAppend_RecordsNewestFirst(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Append(ctx, "alice/demo", models.HistoryRun, true, "first", AppendOptions{}))
	require.NoError(t, e.Append(ctx, "alice/demo", models.HistoryRun, false, "second", AppendOptions{}))

	entries, err := e.Query(ctx, "alice/demo", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Result)
	assert.Equal(t, "first", entries[1].Result)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestAppend_DisabledLogging(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SetConfig(ctx, ConfigPatch{EnableLogging: boolPtr(false)})
	require.NoError(t, err)

	require.NoError(t, e.Append(ctx, "alice/demo", models.HistoryRun, true, "ok", AppendOptions{}))
	entries, err := e.Query(ctx, "alice/demo", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppend_CountRetention(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SetConfig(ctx, ConfigPatch{MaxRecords: intPtr(5)})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, e.Append(ctx, "alice/demo", models.HistoryRun, true, fmt.Sprintf("run-%d", i), AppendOptions{}))
	}

	entries, err := e.Query(ctx, "alice/demo", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "run-5", entries[0].Result)
	assert.Equal(t, "run-1", entries[4].Result)
}

func TestAppend_AgeRetention(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	seed := []models.HistoryEntry{
		entryAt("recent", time.Hour, models.HistoryRun, true),
		entryAt("stale", 40*24*time.Hour, models.HistoryRun, true),
	}
	require.NoError(t, e.Import(ctx, map[string][]models.HistoryEntry{"alice/demo": seed}, false))

	// The next append sweeps entries older than maxDays regardless of count.
	require.NoError(t, e.Append(ctx, "alice/demo", models.HistoryRun, true, "new", AppendOptions{}))

	entries, err := e.Query(ctx, "alice/demo", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.NotEqual(t, "stale", entry.ID)
	}
}

func TestAppend_MasksSensitiveParams(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Append(ctx, "alice/demo", models.HistoryRun, true, "ok", AppendOptions{
		Params: map[string]string{
			"apiToken": "s3cret",
			"username": "alice",
			"Cookie":   "session=1",
		},
	}))

	entries, err := e.Query(ctx, "alice/demo", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "***", entries[0].Params["apiToken"])
	assert.Equal(t, "***", entries[0].Params["Cookie"])
	assert.Equal(t, "alice", entries[0].Params["username"])
}

func TestAppend_SerializesError(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Append(ctx, "alice/demo", models.HistoryRun, false, "failed", AppendOptions{
		Error: errors.New("connection refused"),
	}))

	entries, err := e.Query(ctx, "alice/demo", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "connection refused", entries[0].Error)
}

func TestQuery_FiltersAndWindow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	seed := []models.HistoryEntry{
		entryAt("a", 1*time.Minute, models.HistoryRun, true),
		entryAt("b", 2*time.Minute, models.HistoryCheck, true),
		entryAt("c", 3*time.Minute, models.HistoryRun, false),
		entryAt("d", 4*time.Minute, models.HistoryRun, true),
	}
	require.NoError(t, e.Import(ctx, map[string][]models.HistoryEntry{"alice/demo": seed}, false))

	runs, err := e.Query(ctx, "alice/demo", QueryOptions{Type: models.HistoryRun})
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	failures, err := e.Query(ctx, "alice/demo", QueryOptions{Success: boolPtr(false)})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "c", failures[0].ID)

	window, err := e.Query(ctx, "alice/demo", QueryOptions{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "b", window[0].ID)
	assert.Equal(t, "c", window[1].ID)

	// Limit defaults to the rest of the filtered sequence.
	rest, err := e.Query(ctx, "alice/demo", QueryOptions{Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	// A negative offset clamps to the start of the sequence.
	all, err := e.Query(ctx, "alice/demo", QueryOptions{Offset: -3})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].ID)
}
