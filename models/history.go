package models

// HistoryType distinguishes the two recorded operations.
type HistoryType string

const (
	HistoryRun   HistoryType = "run"
	HistoryCheck HistoryType = "check"
)

// HistoryEntry is one append-only execution record. Entries for one task are
// stored as a single ordered sequence, newest first.
type HistoryEntry struct {
	ID        string      `json:"id"`
	TaskName  string      `json:"taskName"`
	Type      HistoryType `json:"type" validate:"required,oneof=run check"`
	Timestamp int64       `json:"timestamp"`
	Success   bool        `json:"success"`
	Result    string      `json:"result"`
	Logs      []string    `json:"logs"`
	// Duration is the execution time in milliseconds.
	Duration int64 `json:"duration"`
	// Params is the parameter snapshot at execution time, sensitive keys
	// already masked.
	Params map[string]string `json:"params,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// HistoryConfig is the process-wide retention and logging policy.
type HistoryConfig struct {
	// MaxDays bounds entry age; older entries are dropped on append.
	MaxDays int `json:"maxDays"`
	// MaxRecords bounds the per-task sequence length after the age filter.
	MaxRecords    int  `json:"maxRecords"`
	EnableLogging bool `json:"enableLogging"`
}

// DefaultHistoryConfig returns the built-in retention policy.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxDays:       30,
		MaxRecords:    1000,
		EnableLogging: true,
	}
}

// HistoryPage is one page of a cross-task history listing.
type HistoryPage struct {
	Data           []HistoryEntry `json:"data"`
	Total          int            `json:"total"`
	AvailableTasks []string       `json:"availableTasks"`
	Page           int            `json:"page"`
	PageSize       int            `json:"pageSize"`
}

// HistoryStats aggregates totals across the selected tasks.
type HistoryStats struct {
	TotalRecords int `json:"totalRecords"`
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
	// SuccessRate is a one-decimal percentage string, "0" when no records.
	SuccessRate string `json:"successRate"`
	CheckCount  int    `json:"checkCount"`
	RunCount    int    `json:"runCount"`
}

// TaskStats summarizes one task's stored history.
type TaskStats struct {
	Total       int            `json:"total"`
	Success     int            `json:"success"`
	Failure     int            `json:"failure"`
	CheckCount  int            `json:"checkCount"`
	RunCount    int            `json:"runCount"`
	SuccessRate string         `json:"successRate"`
	Recent      []HistoryEntry `json:"recent"`
}
