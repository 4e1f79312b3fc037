package cmd

import (
	"fmt"
	"strings"

	"github.com/signkeeper/signkeeper/models"
	"github.com/spf13/cobra"
)

var (
	setEnable  bool
	setDisable bool
	setFreq    int64
	setExpire  int64
	setParams  []string
)

// setCmd represents the set command
var setCmd = &cobra.Command{
	Use:   "set [author/name]",
	Short: "Change a task's settings and parameters",
	Long: `Change a task's enabled flag, schedule, or parameter values.

Examples:
  signkeeper set alice/bilibili --enable
  signkeeper set alice/bilibili --disable
  signkeeper set alice/bilibili --freq 43200000
  signkeeper set alice/bilibili --param username=alice --param password=secret`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.Flags().BoolVar(&setEnable, "enable", false, "enable the task")
	setCmd.Flags().BoolVar(&setDisable, "disable", false, "disable the task")
	setCmd.Flags().Int64Var(&setFreq, "freq", 0, "refresh frequency in milliseconds")
	setCmd.Flags().Int64Var(&setExpire, "expire", 0, "result expiry in milliseconds")
	setCmd.Flags().StringArrayVar(&setParams, "param", nil, "parameter value as name=value (repeatable)")
}

func runSet(cmd *cobra.Command, args []string) error {
	if setEnable && setDisable {
		return fmt.Errorf("--enable and --disable are mutually exclusive")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	identity, err := resolveIdentity(ctx, a, args, "Select a task to update")
	if err != nil {
		return err
	}

	patch := models.TaskPatch{Identity: identity}
	if setEnable {
		v := true
		patch.Enable = &v
	}
	if setDisable {
		v := false
		patch.Enable = &v
	}
	if cmd.Flags().Changed("freq") {
		patch.Freq = &setFreq
	}
	if cmd.Flags().Changed("expire") {
		patch.Expire = &setExpire
	}
	for _, kv := range setParams {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --param %q: expected name=value", kv)
		}
		if patch.Params == nil {
			patch.Params = map[string]string{}
		}
		patch.Params[name] = value
	}

	if patch.Enable == nil && patch.Freq == nil && patch.Expire == nil && patch.Params == nil {
		return fmt.Errorf("nothing to change: pass --enable, --disable, --freq, --expire, or --param")
	}

	found, err := a.registry.Update(ctx, patch)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("task %s not found", identity)
	}

	if isJSON() {
		rec, err := a.registry.Get(ctx, identity)
		if err != nil {
			return err
		}
		return printJSON(rec)
	}
	cmd.Printf("Task %s updated.\n", identity)
	return nil
}
