package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.trai.ch/zerr"
)

// Default configuration values
const (
	DefaultGeneratorSubcommand = "generate"
	DefaultCacheDir            = ".glyphd-cache"
	DefaultCacheStore          = CacheStoreDir
	DefaultListenAddr          = "127.0.0.1:8080"
	DefaultFontListCommand     = "fc-list"
	DefaultLogFormat           = "text"
	DefaultLogLevel            = "info"
	DefaultVerbose             = false
	DefaultStaleLockWarning    = 10 * time.Minute
)

// Cache store backends
const (
	CacheStoreDir    = "dir"
	CacheStoreMemory = "memory"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = zerr.New("invalid configuration")

var (
	cacheStores = []string{CacheStoreDir, CacheStoreMemory}
	logFormats  = []string{"text", "json"}
	logLevels   = []string{"debug", "info", "warn", "error"}
)

// Holds the configuration options for glyphd
type Config struct {
	// Path to the atlas generator executable
	GeneratorPath string

	// Subcommand passed before the generation arguments
	GeneratorSubcommand string

	// Working directory for generator processes; empty means inherit
	GeneratorWorkDir string

	// Root of the build cache
	CacheDir string

	// Lock backend: "dir" (lock markers on disk) or "memory" (single process)
	CacheStore string

	// HTTP listen address
	ListenAddr string

	// Font discovery command and its arguments
	FontListCommand string
	FontListArgs    []string

	// If set, fontfile requests must name a file inside one of these
	FontDirs []string

	// Log output
	LogFormat string
	LogLevel  string

	// Enable verbose output (forces debug logging)
	Verbose bool

	// Lock markers older than this are reported when they block a request
	StaleLockWarning time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		GeneratorPath:       viper.GetString("generator_path"),
		GeneratorSubcommand: viper.GetString("generator_subcommand"),
		GeneratorWorkDir:    viper.GetString("generator_workdir"),
		CacheDir:            viper.GetString("cache_dir"),
		CacheStore:          viper.GetString("cache_store"),
		ListenAddr:          viper.GetString("listen_addr"),
		FontListCommand:     viper.GetString("font_list_command"),
		FontListArgs:        viper.GetStringSlice("font_list_args"),
		FontDirs:            viper.GetStringSlice("font_dirs"),
		LogFormat:           viper.GetString("log_format"),
		LogLevel:            viper.GetString("log_level"),
		Verbose:             viper.GetBool("verbose"),
		StaleLockWarning:    viper.GetDuration("stale_lock_warning"),
	}

	// Apply defaults if not set
	if cfg.GeneratorSubcommand == "" {
		cfg.GeneratorSubcommand = DefaultGeneratorSubcommand
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}

	if cfg.CacheStore == "" {
		cfg.CacheStore = DefaultCacheStore
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	if cfg.FontListCommand == "" {
		cfg.FontListCommand = DefaultFontListCommand
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if cfg.StaleLockWarning <= 0 {
		cfg.StaleLockWarning = DefaultStaleLockWarning
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	// A bare command name is left for PATH lookup
	if strings.ContainsRune(c.GeneratorPath, filepath.Separator) || strings.Contains(c.GeneratorPath, "/") {
		abs, err := filepath.Abs(c.GeneratorPath)
		if err != nil {
			return invalid("generator_path", err.Error())
		}

		c.GeneratorPath = abs
	}

	if c.GeneratorWorkDir != "" {
		abs, err := filepath.Abs(c.GeneratorWorkDir)
		if err != nil {
			return invalid("generator_workdir", err.Error())
		}

		c.GeneratorWorkDir = abs
	}

	abs, err := filepath.Abs(c.CacheDir)
	if err != nil {
		return invalid("cache_dir", err.Error())
	}

	c.CacheDir = abs

	for i, dir := range c.FontDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return invalid("font_dirs", err.Error())
		}

		c.FontDirs[i] = abs
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	c.LogLevel = strings.ToLower(c.LogLevel)

	if !slices.Contains(cacheStores, c.CacheStore) {
		return invalid("cache_store", fmt.Sprintf("must be one of %s, got %q", strings.Join(cacheStores, ", "), c.CacheStore))
	}

	if !slices.Contains(logFormats, c.LogFormat) {
		return invalid("log_format", fmt.Sprintf("must be one of %s, got %q", strings.Join(logFormats, ", "), c.LogFormat))
	}

	if !slices.Contains(logLevels, c.LogLevel) {
		return invalid("log_level", fmt.Sprintf("must be one of %s, got %q", strings.Join(logLevels, ", "), c.LogLevel))
	}

	return nil
}

// RequireGenerator reports a missing generator_path. Only commands that
// build need one.
func (c *Config) RequireGenerator() error {
	if c.GeneratorPath == "" {
		return invalid("generator_path", "is required")
	}

	return nil
}

func invalid(key, reason string) error {
	return zerr.With(zerr.Wrap(ErrInvalidConfig, key+" "+reason), "key", key)
}
