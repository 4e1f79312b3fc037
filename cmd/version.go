package cmd

import (
	"github.com/spf13/cobra"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the SignKeeper version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("signkeeper %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
