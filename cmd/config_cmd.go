package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configCmd is the parent config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage SignKeeper configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigGet(args[0])
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value and persist it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigSet(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow() error {
	config := GetConfig()
	if isJSON() {
		return printJSON(config)
	}

	fmt.Println("SignKeeper Configuration")
	fmt.Printf("  project.rootDir: %s\n", config.Project.RootDir)
	fmt.Printf("  project.dataDir: %s\n", config.Project.DataDir)
	fmt.Printf("  data.backend:    %s\n", config.Data.Backend)
	fmt.Printf("  data.file:       %s\n", config.Data.File)
	fmt.Printf("  data.format:     %s\n", config.Data.Format)
	fmt.Printf("  data.watch:      %t\n", config.Data.Watch)
	if file := viper.ConfigFileUsed(); file != "" {
		fmt.Printf("  config file:     %s\n", file)
	}
	return nil
}

func runConfigGet(key string) error {
	if !viper.IsSet(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	value := viper.Get(key)
	if isJSON() {
		return printJSON(map[string]any{"key": key, "value": value})
	}
	fmt.Println(value)
	return nil
}

func runConfigSet(key, value string) error {
	if !viper.IsSet(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	viper.Set(key, value)
	if err := writeConfig(); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

func writeConfig() error {
	if err := viper.WriteConfig(); err != nil {
		if err := viper.SafeWriteConfig(); err != nil {
			configPath := viper.ConfigFileUsed()
			if configPath == "" {
				home, homeErr := os.UserHomeDir()
				if homeErr != nil {
					return fmt.Errorf("failed to get home directory: %w", homeErr)
				}
				configPath = filepath.Join(home, ".signkeeper.yaml")
			}
			if err := viper.WriteConfigAs(configPath); err != nil {
				return fmt.Errorf("failed to write config to %s: %w", configPath, err)
			}
		}
	}
	return nil
}
