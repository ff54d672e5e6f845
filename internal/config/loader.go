package config

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides (GLYPHD_CACHE_DIR, ...)
const EnvPrefix = "GLYPHD"

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"generator":   "generator_path",
	"workdir":     "generator_workdir",
	"cache-dir":   "cache_dir",
	"cache-store": "cache_store",
	"listen":      "listen_addr",
	"font-dir":    "font_dirs",
	"log-format":  "log_format",
	"log-level":   "log_level",
	"verbose":     "verbose",
}

// Loader handles configuration loading from various sources
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForCommand loads configuration for a command. The local config file
// is searched for from the working directory upwards.
func (l *Loader) LoadForCommand(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()

	if cwd, err := os.Getwd(); err == nil {
		l.loadLocalConfig(cwd)
	}

	l.bindEnv()
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("generator_subcommand", DefaultGeneratorSubcommand)
	viper.SetDefault("cache_dir", DefaultCacheDir)
	viper.SetDefault("cache_store", DefaultCacheStore)
	viper.SetDefault("listen_addr", DefaultListenAddr)
	viper.SetDefault("font_list_command", DefaultFontListCommand)
	viper.SetDefault("log_format", DefaultLogFormat)
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("verbose", DefaultVerbose)
	viper.SetDefault("stale_lock_warning", DefaultStaleLockWarning)
}

// loadGlobalConfig loads the per-user configuration file
func (l *Loader) loadGlobalConfig() {
	if globalPath := FindGlobalConfig(); globalPath != "" {
		viper.SetConfigFile(globalPath)
		_ = viper.ReadInConfig()
	}
}

// loadLocalConfig merges the nearest .glyphd.* file at or above dir
func (l *Loader) loadLocalConfig(dir string) {
	localPath := FindLocalConfig(dir)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

// bindEnv enables GLYPHD_* environment overrides
func (l *Loader) bindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
}

// bindCommandFlags binds whichever known flags the command defines
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			_ = viper.BindPFlag(key, flag)
		}
	}
}
