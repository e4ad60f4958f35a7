package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/settings"
)

// MemoryDatabase keeps snapshots in memory for the life of the process.
const MemoryDatabase = ":memory:"

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool   `json:"-" yaml:"-"`
	Quiet   bool   `json:"-" yaml:"-"`
	Output  string `json:"-" yaml:"-"`

	// Config file
	ConfigFile string `json:"config_file,omitempty" yaml:"config_file,omitempty"`

	// Vault and snapshot storage
	Vault    string `json:"vault" yaml:"vault"`
	Database string `json:"database" yaml:"database"`

	// Logging configuration
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string `json:"log_format" yaml:"log_format"`
	LogOutput string `json:"log_output" yaml:"log_output"`

	// Settings configures reconciliation
	Settings settings.Settings `json:"settings" yaml:"settings"`
}

// envSettings are the settings overridable from the environment, e.g.
// PROPSYNC_SETTINGS_ONLY_MODE=true.
var envSettings = []string{
	"settings.prefix",
	"settings.only_mode",
	"settings.debounce",
	"settings.interval",
	"settings.exclude.key",
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (applied later by UpdateFromFlags)
// 2. PROPSYNC_* environment variables
// 3. .env files
// 4. Config file (explicit, else .propsync.yaml in the working directory or home)
// 5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(constants.EnvPrefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("vault", ".")
	v.SetDefault("database", "")
	v.SetDefault("log_level", "")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")

	for _, key := range envSettings {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.NewConfigError("env", "failed to bind "+key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("." + constants.AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("file", "failed to read "+configFile, err)
		}
	}

	config := &Config{
		ConfigFile: v.ConfigFileUsed(),
		Vault:      v.GetString("vault"),
		Database:   v.GetString("database"),
		LogLevel:   v.GetString("log_level"),
		LogFormat:  v.GetString("log_format"),
		LogOutput:  v.GetString("log_output"),
		Settings:   settings.Defaults(),
	}

	// Unset keys keep their defaults.
	if err := v.UnmarshalKey("settings", &config.Settings); err != nil {
		return nil, errors.NewConfigError("settings", "failed to decode settings", err)
	}
	for _, key := range envSettings {
		if !v.IsSet(key) {
			continue
		}
		switch key {
		case "settings.prefix":
			config.Settings.Prefix = v.GetString(key)
		case "settings.only_mode":
			config.Settings.OnlyMode = v.GetBool(key)
		case "settings.debounce":
			config.Settings.Debounce = v.GetDuration(key)
		case "settings.interval":
			config.Settings.Interval = v.GetDuration(key)
		case "settings.exclude.key":
			config.Settings.Exclude.Key = v.GetString(key)
		}
	}

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet bool, output, logLevel, vault, database string) {
	c.Verbose = verbose
	c.Quiet = quiet
	if output != "" {
		c.Output = output
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if vault != "" {
		c.Vault = vault
	}
	if database != "" {
		c.Database = database
	}
}

// DatabasePath returns the snapshot database location. It defaults to a
// file inside the vault's state directory.
func (c *Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.Vault, constants.StateDirName, constants.SnapshotDBName)
}

// loadEnvFiles loads environment variables from .env files.
func loadEnvFiles() {
	// .env.local overrides .env
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
