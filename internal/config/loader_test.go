package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
}

func TestLoader_SetupViperDefaults(t *testing.T) {
	viper.Reset()
	loader := NewLoader()
	loader.setupViperDefaults()

	assert.Equal(t, "generate", viper.GetString("generator_subcommand"))
	assert.Equal(t, ".glyphd-cache", viper.GetString("cache_dir"))
	assert.Equal(t, "dir", viper.GetString("cache_store"))
	assert.Equal(t, "127.0.0.1:8080", viper.GetString("listen_addr"))
	assert.Equal(t, "fc-list", viper.GetString("font_list_command"))
	assert.Equal(t, false, viper.GetBool("verbose"))
	assert.Equal(t, DefaultStaleLockWarning, viper.GetDuration("stale_lock_warning"))
}

func TestLoader_LoadGlobalConfig(t *testing.T) {
	tempDir := t.TempDir()
	glyphdDir := filepath.Join(tempDir, "glyphd")
	require.NoError(t, os.Mkdir(glyphdDir, 0o755))
	t.Setenv("XDG_CONFIG_HOME", tempDir)

	t.Run("loads yaml config", func(t *testing.T) {
		viper.Reset()
		configPath := filepath.Join(glyphdDir, "config.yml")
		configContent := `generator_path: "/opt/atlas/atlasgen"
cache_store: memory
verbose: true`
		require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))
		defer os.Remove(configPath)

		loader := NewLoader()
		loader.loadGlobalConfig()

		assert.Equal(t, "/opt/atlas/atlasgen", viper.GetString("generator_path"))
		assert.Equal(t, "memory", viper.GetString("cache_store"))
		assert.Equal(t, true, viper.GetBool("verbose"))
	})

	t.Run("loads json config", func(t *testing.T) {
		viper.Reset()
		configPath := filepath.Join(glyphdDir, "config.json")
		configContent := `{
  "generator_path": "/json/atlasgen",
  "listen_addr": ":9090"
}`
		require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))
		defer os.Remove(configPath)

		loader := NewLoader()
		loader.loadGlobalConfig()

		assert.Equal(t, "/json/atlasgen", viper.GetString("generator_path"))
		assert.Equal(t, ":9090", viper.GetString("listen_addr"))
	})

	t.Run("no config file", func(t *testing.T) {
		viper.Reset()

		loader := NewLoader()
		assert.NotPanics(t, loader.loadGlobalConfig)
		assert.Equal(t, "", viper.GetString("generator_path"))
	})
}

func TestLoader_LoadLocalConfig(t *testing.T) {
	t.Run("walks up directory tree to find config", func(t *testing.T) {
		viper.Reset()

		tempDir := t.TempDir()
		subDir := filepath.Join(tempDir, "subdir", "nested")
		require.NoError(t, os.MkdirAll(subDir, 0o755))

		configPath := filepath.Join(tempDir, ".glyphd.yml")
		require.NoError(t, os.WriteFile(configPath, []byte(`cache_dir: "/srv/atlas-cache"`), 0o644))

		loader := NewLoader()
		loader.loadLocalConfig(subDir)

		assert.Equal(t, "/srv/atlas-cache", viper.GetString("cache_dir"))
	})

	t.Run("merges over global values", func(t *testing.T) {
		viper.Reset()
		viper.Set("listen_addr", ":1")

		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".glyphd.yml"), []byte(`cache_store: memory`), 0o644))

		loader := NewLoader()
		loader.loadLocalConfig(dir)

		assert.Equal(t, "memory", viper.GetString("cache_store"))
		assert.Equal(t, ":1", viper.GetString("listen_addr"))
	})

	t.Run("handles missing directory", func(t *testing.T) {
		viper.Reset()

		loader := NewLoader()
		assert.NotPanics(t, func() {
			loader.loadLocalConfig("nonexistent/dir")
		})
	})
}

func TestLoader_BindCommandFlags(t *testing.T) {
	viper.Reset()

	cmd := &cobra.Command{}
	cmd.Flags().String("generator", "", "Generator path")
	cmd.Flags().String("cache-dir", "", "Cache directory")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	cmd.Flags().StringSlice("font-dir", []string{}, "Font directories")

	require.NoError(t, cmd.Flags().Set("generator", "/usr/bin/atlasgen"))
	require.NoError(t, cmd.Flags().Set("cache-dir", "/tmp/c"))
	require.NoError(t, cmd.Flags().Set("verbose", "true"))
	require.NoError(t, cmd.Flags().Set("font-dir", "/fonts/a,/fonts/b"))

	loader := NewLoader()
	loader.bindCommandFlags(cmd)

	assert.Equal(t, "/usr/bin/atlasgen", viper.GetString("generator_path"))
	assert.Equal(t, "/tmp/c", viper.GetString("cache_dir"))
	assert.Equal(t, true, viper.GetBool("verbose"))
	assert.Equal(t, []string{"/fonts/a", "/fonts/b"}, viper.GetStringSlice("font_dirs"))

	// unknown flags and a nil command are ignored
	assert.NotPanics(t, func() { loader.bindCommandFlags(nil) })
}

func TestLoader_LoadForCommand_Integration(t *testing.T) {
	viper.Reset()

	configHome := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(configHome, "glyphd"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configHome, "glyphd", "config.yml"), []byte(`generator_path: "/global/atlasgen"
listen_addr: ":7000"
cache_store: memory
log_level: warn`), 0o644))
	t.Setenv("XDG_CONFIG_HOME", configHome)

	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, ".glyphd.yml"), []byte(`listen_addr: ":7001"
log_level: error`), 0o644))
	t.Chdir(workDir)

	t.Setenv("GLYPHD_CACHE_STORE", "dir")

	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", "", "Log level")
	require.NoError(t, cmd.Flags().Set("log-level", "debug"))

	cfg, err := NewLoader().LoadForCommand(cmd)
	require.NoError(t, err)

	// global file is the base
	assert.Equal(t, "/global/atlasgen", cfg.GeneratorPath)
	// local file overrides global
	assert.Equal(t, ":7001", cfg.ListenAddr)
	// environment overrides files
	assert.Equal(t, "dir", cfg.CacheStore)
	// flags override everything
	assert.Equal(t, "debug", cfg.LogLevel)
}
