package types

// AppConfig represents the complete application configuration.
type AppConfig struct {
	Verbose bool          `mapstructure:"verbose"`
	Config  string        `mapstructure:"config"`
	Project ProjectConfig `mapstructure:"project" validate:"required"`
	Data    DataConfig    `mapstructure:"data" validate:"required"`
}

// ProjectConfig holds project-related settings.
type ProjectConfig struct {
	RootDir string `mapstructure:"rootDir" validate:"required"`
	DataDir string `mapstructure:"dataDir" validate:"required"`
}

// DataConfig holds storage backend configuration.
type DataConfig struct {
	// Backend selects the key-value store implementation.
	Backend string `mapstructure:"backend" validate:"required,oneof=file sqlite memory"`
	// File is the base filename for the file backend (one document per
	// scope, suffixed by scope name) or the database filename for sqlite.
	File   string `mapstructure:"file" validate:"required"`
	Format string `mapstructure:"format" validate:"required,oneof=json yaml"`
	// Watch enables invalidation of the in-process task cache when the
	// backing data file is modified by another process.
	Watch bool `mapstructure:"watch"`
}
