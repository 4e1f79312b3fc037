package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteYes bool

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete [author/name]",
	Short: "Remove a task from the registry",
	Long: `Remove a task from the registry.

The task's stored runtime state is kept, so adding the same script again
later restores its counters and parameter values.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	identity, err := resolveIdentity(ctx, a, args, "Select a task to delete")
	if err != nil {
		return err
	}

	if !deleteYes && !confirmOrAbort(fmt.Sprintf("Delete task %s? [y/N] ", identity)) {
		return nil
	}

	existed, err := a.registry.Remove(ctx, identity)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("task %s not found", identity)
	}
	cmd.Printf("Task %s removed.\n", identity)
	return nil
}

func confirmOrAbort(prompt string) bool {
	if isJSON() {
		return true
	}
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	if response != "y" && response != "yes" {
		fmt.Println("Cancelled.")
		return false
	}
	return true
}
