package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/signkeeper/signkeeper/internal/history"
	"github.com/signkeeper/signkeeper/internal/ui"
	"github.com/signkeeper/signkeeper/models"
	"github.com/spf13/cobra"
)

var (
	historyTask     string
	historyType     string
	historySuccess  string
	historyDays     int
	historyPage     int
	historyPageSize int
	historySortBy   string
	historySortDir  string
	historyMerge    bool
	historyYes      bool
)

// historyCmd represents the history command group
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage task execution history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded executions across tasks",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate execution statistics",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

var historyTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Per-task statistics with recent entries",
	Args:  cobra.NoArgs,
	RunE:  runHistoryTasks,
}

var historyConfigCmd = &cobra.Command{
	Use:   "config [maxDays=N] [maxRecords=N] [enableLogging=BOOL]",
	Short: "Show or change the history retention policy",
	RunE:  runHistoryConfig,
}

var historyExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export history as JSON to a file or stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryExport,
}

var historyImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import history from a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryImport,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete recorded history",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyStatsCmd, historyTasksCmd,
		historyConfigCmd, historyExportCmd, historyImportCmd, historyClearCmd)

	historyCmd.PersistentFlags().StringVar(&historyTask, "task", "", "restrict to one task identity (author/name)")
	historyCmd.PersistentFlags().IntVar(&historyDays, "days", 0, "restrict to entries newer than this many days")

	historyListCmd.Flags().StringVar(&historyType, "type", "", "filter by entry type (run or check)")
	historyListCmd.Flags().StringVar(&historySuccess, "success", "", "filter by outcome (true or false)")
	historyListCmd.Flags().IntVar(&historyPage, "page", 1, "page number")
	historyListCmd.Flags().IntVar(&historyPageSize, "page-size", 50, "entries per page")
	historyListCmd.Flags().StringVar(&historySortBy, "sort", "", "sort field (timestamp, duration, success, taskName, type, result)")
	historyListCmd.Flags().StringVar(&historySortDir, "order", "desc", "sort order (asc or desc)")

	historyImportCmd.Flags().BoolVar(&historyMerge, "merge", false, "merge with existing history instead of replacing")
	historyClearCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "skip the confirmation prompt")
}

func historyFilters() (history.Filters, error) {
	filters := history.Filters{
		TaskName: historyTask,
		Days:     historyDays,
	}
	switch historyType {
	case "":
	case string(models.HistoryRun), string(models.HistoryCheck):
		filters.Type = models.HistoryType(historyType)
	default:
		return filters, fmt.Errorf("invalid --type %q: expected run or check", historyType)
	}
	switch historySuccess {
	case "":
	case "true":
		v := true
		filters.Success = &v
	case "false":
		v := false
		filters.Success = &v
	default:
		return filters, fmt.Errorf("invalid --success %q: expected true or false", historySuccess)
	}
	return filters, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	filters, err := historyFilters()
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.history.ListAll(cmd.Context(), filters, historyPage, historyPageSize,
		history.Sort{Name: historySortBy, Order: historySortDir})
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(page)
	}

	if len(page.Data) == 0 {
		cmd.Println("No history entries found.")
		return nil
	}

	table := &ui.Table{
		Headers:  []string{"WHEN", "TASK", "TYPE", "STATUS", "DURATION", "RESULT"},
		MaxWidth: 40,
	}
	for _, entry := range page.Data {
		table.Rows = append(table.Rows, []string{
			ui.FromNow(entry.Timestamp, 0, ""),
			entry.TaskName,
			string(entry.Type),
			ui.StatusBadge(entry.Success),
			fmt.Sprintf("%dms", entry.Duration),
			entry.Result,
		})
	}
	cmd.Print(table.Render())
	cmd.Printf("\nPage %d, %d of %d entries\n", page.Page, len(page.Data), page.Total)
	return nil
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	filters, err := historyFilters()
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.history.Stats(cmd.Context(), filters)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(stats)
	}

	cmd.Printf("Records:      %d\n", stats.TotalRecords)
	cmd.Printf("Runs:         %d\n", stats.RunCount)
	cmd.Printf("Checks:       %d\n", stats.CheckCount)
	cmd.Printf("Succeeded:    %d\n", stats.SuccessCount)
	cmd.Printf("Failed:       %d\n", stats.FailureCount)
	cmd.Printf("Success rate: %s%%\n", stats.SuccessRate)
	return nil
}

func runHistoryTasks(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.history.TaskStats(cmd.Context())
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(stats)
	}

	if len(stats) == 0 {
		cmd.Println("No history entries found.")
		return nil
	}

	table := &ui.Table{
		Headers: []string{"TASK", "TOTAL", "OK", "FAILED", "RATE", "LAST"},
	}
	for identity, s := range stats {
		last := ""
		if len(s.Recent) > 0 {
			last = ui.FromNow(s.Recent[0].Timestamp, 0, "")
		}
		table.Rows = append(table.Rows, []string{
			identity,
			fmt.Sprintf("%d", s.Total),
			fmt.Sprintf("%d", s.Success),
			fmt.Sprintf("%d", s.Failure),
			s.SuccessRate + "%",
			last,
		})
	}
	cmd.Print(table.Render())
	return nil
}

func runHistoryConfig(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if len(args) == 0 {
		cfg, err := a.history.Config(ctx)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cfg)
		}
		cmd.Printf("maxDays:       %d\n", cfg.MaxDays)
		cmd.Printf("maxRecords:    %d\n", cfg.MaxRecords)
		cmd.Printf("enableLogging: %t\n", cfg.EnableLogging)
		return nil
	}

	var patch history.ConfigPatch
	for _, arg := range args {
		if err := parseConfigArg(arg, &patch); err != nil {
			return err
		}
	}
	cfg, err := a.history.SetConfig(ctx, patch)
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(cfg)
	}
	cmd.Println("History policy updated.")
	return nil
}

func parseConfigArg(arg string, patch *history.ConfigPatch) error {
	var n int
	var b bool
	switch {
	case scanKV(arg, "maxDays", &n):
		patch.MaxDays = &n
	case scanKV(arg, "maxRecords", &n):
		patch.MaxRecords = &n
	case scanBoolKV(arg, "enableLogging", &b):
		patch.EnableLogging = &b
	default:
		return fmt.Errorf("invalid setting %q: expected maxDays=N, maxRecords=N, or enableLogging=BOOL", arg)
	}
	return nil
}

func scanKV(arg, key string, out *int) bool {
	var v int
	if _, err := fmt.Sscanf(arg, key+"=%d", &v); err != nil {
		return false
	}
	*out = v
	return true
}

func scanBoolKV(arg, key string, out *bool) bool {
	var v bool
	if _, err := fmt.Sscanf(arg, key+"=%t", &v); err != nil {
		return false
	}
	*out = v
	return true
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := a.history.Export(cmd.Context(), historyTask)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if len(args) == 0 {
		cmd.Println(string(raw))
		return nil
	}
	if err := os.WriteFile(args[0], raw, 0o644); err != nil {
		return fmt.Errorf("failed to write export to %s: %w", args[0], err)
	}
	cmd.Printf("Exported history for %d task(s) to %s.\n", len(data), args[0])
	return nil
}

func runHistoryImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	var data map[string][]models.HistoryEntry
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to decode %s: %w", args[0], err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.history.Import(cmd.Context(), data, historyMerge); err != nil {
		return err
	}
	cmd.Printf("Imported history for %d task(s).\n", len(data))
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	target := "all tasks"
	if historyTask != "" {
		target = historyTask
	}
	scope := "every entry"
	if historyDays > 0 {
		scope = fmt.Sprintf("entries older than %d day(s)", historyDays)
	}
	if !historyYes && !confirmOrAbort(fmt.Sprintf("Clear %s of history for %s? [y/N] ", scope, target)) {
		return nil
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.history.Clear(cmd.Context(), historyTask, historyDays); err != nil {
		return err
	}
	cmd.Println("History cleared.")
	return nil
}
