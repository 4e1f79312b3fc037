package cmd

import (
	"strings"

	"github.com/signkeeper/signkeeper/internal/ui"
	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get [author/name]",
	Short: "Show one task's definition and state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	identity, err := resolveIdentity(ctx, a, args, "Select a task")
	if err != nil {
		return err
	}

	rec, err := a.registry.Get(ctx, identity)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(rec)
	}

	cmd.Println(ui.StyleTitle.Render(rec.Identity()))
	cmd.Printf("  Domains:   %s\n", strings.Join(rec.Domains, ", "))
	if len(rec.Grants) > 0 {
		cmd.Printf("  Grants:    %s\n", strings.Join(rec.Grants, ", "))
	}
	if url := rec.LoginURL(); url != "" {
		cmd.Printf("  Login URL: %s\n", url)
	}
	cmd.Printf("  Frequency: %s\n", freqLabel(rec.Freq))
	cmd.Printf("  Expire:    %dms\n", rec.Expire)
	cmd.Printf("  State:     %s\n", ui.EnabledBadge(rec.State.Enable))
	cmd.Printf("  Runs:      %d (%d ok)\n", rec.State.Cnt, rec.State.OK)
	cmd.Printf("  Last run:  %s\n", ui.FromNow(rec.State.RunAt, 0, "never"))
	cmd.Printf("  Online:    %s\n", ui.FromNow(rec.State.OnlineAt, 0, "never checked"))
	if rec.State.Result != nil {
		cmd.Printf("  Result:    %s\n", rec.State.Result.Summary)
	}

	if len(rec.Params) > 0 {
		cmd.Println("  Params:")
		for _, p := range rec.Params {
			value := rec.State.Params[p.Name]
			if value == "" {
				value = ui.StyleSubtle.Render("(unset)")
			}
			cmd.Printf("    %s (%s): %s\n", p.Name, p.Label, value)
		}
	}
	return nil
}

func freqLabel(freq int64) string {
	if freq == 0 {
		return "default"
	}
	if s := ui.Diff(freq, 1, ""); s != "" {
		return s
	}
	return "default"
}
