package cmd

import (
	"github.com/signkeeper/signkeeper/internal/ui"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [author/name]",
	Short: "Execute a task's sign-in now",
	Long: `Execute a task's sign-in immediately.

A failing sign-in is not a command error: the failure lands in the task's
state and history, and the command reports it. The command itself fails
only when the task cannot be resolved or its outcome cannot be saved.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	identity, err := resolveIdentity(ctx, a, args, "Select a task to run")
	if err != nil {
		return err
	}

	rec, err := a.engine.Run(ctx, identity)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(rec)
	}

	success := rec.State.SuccessAt >= rec.State.FailureAt
	cmd.Printf("%s %s\n", ui.StatusBadge(success), identity)
	if rec.State.Result != nil {
		if rec.State.Result.Summary != "" {
			cmd.Printf("  %s\n", rec.State.Result.Summary)
		}
		for _, d := range rec.State.Result.Detail {
			cmd.Printf("  %s: %s\n", d.Domain, d.Message)
		}
	}
	return nil
}
