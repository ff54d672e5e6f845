package config

import (
	"os"
	"path/filepath"
)

// configExtensions are tried in order for both config files
var configExtensions = []string{"yml", "yaml", "json", "toml"}

// FindLocalConfig returns the nearest .glyphd.* file at or above dir, or ""
func FindLocalConfig(dir string) string {
	for {
		if path := firstExisting(dir, ".glyphd."); path != "" {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}

		dir = parent
	}
}

// FindGlobalConfig returns the per-user config.* file, or ""
func FindGlobalConfig() string {
	dir := globalConfigDir()
	if dir == "" {
		return ""
	}

	return firstExisting(dir, "config.")
}

// globalConfigDir returns $XDG_CONFIG_HOME/glyphd, falling back to the
// platform's user config directory
func globalConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return ""
		}

		base = dir
	}

	return filepath.Join(base, "glyphd")
}

func firstExisting(dir, prefix string) string {
	for _, ext := range configExtensions {
		path := filepath.Join(dir, prefix+ext)

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}

	return ""
}
