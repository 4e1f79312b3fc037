package cmd

import (
	"github.com/signkeeper/signkeeper/internal/ui"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [author/name]",
	Short: "Check whether a task's account is still signed in",
	Long: `Invoke a task's login check and report whether the account is online.

An online result refreshes the task's online timestamp. Unlike run, a
check whose script throws fails the command itself.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	identity, err := resolveIdentity(ctx, a, args, "Select a task to check")
	if err != nil {
		return err
	}

	online, err := a.engine.Check(ctx, identity)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(map[string]any{"identity": identity, "online": online})
	}

	if online {
		cmd.Printf("%s %s is online\n", ui.StyleSuccess.Render("✔"), identity)
	} else {
		cmd.Printf("%s %s is offline\n", ui.StyleWarning.Render("✘"), identity)
		rec, err := a.registry.Get(ctx, identity)
		if err == nil {
			if url := rec.LoginURL(); url != "" {
				cmd.Printf("  Sign in again at: %s\n", url)
			}
		}
	}
	return nil
}
