package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/signkeeper/signkeeper/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configName = ".signkeeper"
	envPrefix  = "SIGNKEEPER"
)

// GlobalAppConfig holds the global application configuration instance.
var GlobalAppConfig types.AppConfig

// validate is a single validator instance; it caches struct info.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// validateAppConfig performs validation on the AppConfig struct.
func validateAppConfig(config *types.AppConfig) error {
	return validate.Struct(config)
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	// Load .env file first if present. It's okay if it doesn't exist.
	_ = godotenv.Load()

	// Environment variable handling must be set up BEFORE reading the
	// config file, so env vars can influence config loading.
	viper.SetEnvPrefix(envPrefix) // e.g. SIGNKEEPER_VERBOSE
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfgFileFlag := viper.GetString("config")

	// Project-specific config dir takes priority over home and cwd.
	projectConfigDir := viper.GetString("project.rootDir")
	if projectConfigDir == "" {
		projectConfigDir = ".signkeeper"
	}

	if cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		if _, err := os.Stat(projectConfigDir); !os.IsNotExist(err) {
			viper.AddConfigPath(projectConfigDir) // ./.signkeeper/.signkeeper.yaml
			viper.SetConfigName(configName)
		} else {
			home, err := os.UserHomeDir()
			cobra.CheckErr(err)
			viper.AddConfigPath(home) // $HOME/.signkeeper.yaml
			viper.AddConfigPath(".")  // ./.signkeeper.yaml
			viper.SetConfigName(configName)
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if cfgFileFlag != "" {
				fmt.Fprintln(os.Stderr, "Error: Specified config file not found:", cfgFileFlag)
			} else if viper.GetBool("verbose") {
				fmt.Fprintln(os.Stderr, "No config file found. Using defaults and environment variables.")
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
		}
	}

	viper.SetDefault("project.rootDir", ".signkeeper")
	viper.SetDefault("project.dataDir", "data")
	viper.SetDefault("data.backend", "file")
	viper.SetDefault("data.file", "signkeeper")
	viper.SetDefault("data.format", "json")
	viper.SetDefault("data.watch", false)

	if err := viper.Unmarshal(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling config: %s\n", err)
		os.Exit(1)
	}

	// A config file may exist but be missing these nested keys.
	if GlobalAppConfig.Project.RootDir == "" {
		GlobalAppConfig.Project.RootDir = viper.GetString("project.rootDir")
	}
	if GlobalAppConfig.Project.DataDir == "" {
		GlobalAppConfig.Project.DataDir = viper.GetString("project.dataDir")
	}

	if err := validateAppConfig(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %s\n", err)
		os.Exit(1)
	}
}

// GetConfig returns a pointer to the global types.AppConfig instance.
func GetConfig() *types.AppConfig {
	return &GlobalAppConfig
}
