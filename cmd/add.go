package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/signkeeper/signkeeper/internal/script"
	"github.com/signkeeper/signkeeper/models"
	"github.com/spf13/cobra"
)

var addEnable bool

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Compile and register an annotated sign-in script",
	Long: `Compile an annotated script and register it as a sign-in task.

The script's annotation header (between ==UserScript== and ==/UserScript==)
declares the task's name, author, domains, parameters, and schedule.
Without a file argument the script is read from stdin.

Re-adding a script under the same author/name replaces the definition but
keeps the task's runtime state: its enabled flag, counters, timestamps,
and parameter values all survive.

Examples:
  signkeeper add bilibili.js
  signkeeper add --enable bilibili.js
  cat bilibili.js | signkeeper add`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().BoolVar(&addEnable, "enable", false, "enable the task immediately after adding")
}

func runAdd(cmd *cobra.Command, args []string) error {
	var source []byte
	var err error
	if len(args) > 0 {
		source, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read script %s: %w", args[0], err)
		}
	} else {
		source, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read script from stdin: %w", err)
		}
	}

	def, err := script.Compile(string(source))
	if err != nil {
		return fmt.Errorf("failed to compile script: %w", err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	existed, err := a.registry.Add(ctx, def, script.ProbeCapabilities(def.Code))
	if err != nil {
		return err
	}

	if addEnable {
		enable := true
		if _, err := a.registry.Update(ctx, models.TaskPatch{Identity: def.Identity(), Enable: &enable}); err != nil {
			return err
		}
	}

	if isJSON() {
		rec, err := a.registry.Get(ctx, def.Identity())
		if err != nil {
			return err
		}
		return printJSON(rec)
	}

	verb := "added"
	if existed {
		verb = "updated"
	}
	cmd.Printf("Task %s %s.\n", def.Identity(), verb)
	if len(def.Params) > 0 {
		cmd.Printf("Set its parameters with: signkeeper set %s --param name=value\n", def.Identity())
	}
	return nil
}
