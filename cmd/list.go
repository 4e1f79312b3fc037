package cmd

import (
	"fmt"

	"github.com/signkeeper/signkeeper/internal/ui"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sign-in tasks",
	Long: `List every registered sign-in task with its state at a glance:
enabled flag, last run, last success, and the latest result summary.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.registry.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	if isJSON() {
		return printJSON(tasks)
	}

	if len(tasks) == 0 {
		cmd.Println("No tasks registered.")
		cmd.Println("Add one with: signkeeper add <script.js>")
		return nil
	}

	table := &ui.Table{
		Headers:  []string{"TASK", "STATE", "LAST RUN", "LAST SUCCESS", "RESULT"},
		MaxWidth: 40,
	}
	for _, task := range tasks {
		summary := ""
		if task.State.Result != nil {
			summary = task.State.Result.Summary
		}
		table.Rows = append(table.Rows, []string{
			task.Identity(),
			ui.EnabledBadge(task.State.Enable),
			ui.FromNow(task.State.RunAt, 0, "never"),
			ui.FromNow(task.State.SuccessAt, 0, "never"),
			summary,
		})
	}
	cmd.Print(table.Render())
	cmd.Printf("\n%d task(s)\n", len(tasks))
	return nil
}
