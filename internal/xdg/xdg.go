// ABOUTME: XDG Base Directory Specification support for Linux/Unix standards
// ABOUTME: Handles config, data, and cache directories with HOME fallback

package xdg

import (
	"os"
	"path/filepath"
	"strings"
)

const appName = "codeql-relay"

type baseDir struct {
	env      string
	fallback []string
}

var (
	configBase = baseDir{"XDG_CONFIG_HOME", []string{".config"}}
	dataBase   = baseDir{"XDG_DATA_HOME", []string{".local", "share"}}
	cacheBase  = baseDir{"XDG_CACHE_HOME", []string{".cache"}}
)

func (b baseDir) path() string {
	if v := os.Getenv(b.env); v != "" {
		return v
	}
	return filepath.Join(append([]string{getHome()}, b.fallback...)...)
}

// ConfigHome returns ~/.config/codeql-relay or respects XDG_CONFIG_HOME.
func ConfigHome() string {
	return filepath.Join(configBase.path(), appName)
}

// DataHome returns ~/.local/share/codeql-relay or respects XDG_DATA_HOME.
func DataHome() string {
	return filepath.Join(dataBase.path(), appName)
}

// CacheHome returns ~/.cache/codeql-relay or respects XDG_CACHE_HOME.
func CacheHome() string {
	return filepath.Join(cacheBase.path(), appName)
}

// DefaultConfigFile is config.yaml under ConfigHome.
func DefaultConfigFile() string {
	return filepath.Join(ConfigHome(), "config.yaml")
}

// DefaultDatabasePath is the message log location under DataHome.
func DefaultDatabasePath() string {
	return filepath.Join(DataHome(), "messages.db")
}

// ExpandPath expands $XDG_* variables and ~ in config paths. XDG variables
// expand to their base directories, not the app-specific ones.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(getHome(), path[2:])
	}

	for _, b := range []baseDir{dataBase, configBase, cacheBase} {
		prefix := "$" + b.env
		if strings.HasPrefix(path, prefix) {
			return strings.Replace(path, prefix, b.path(), 1)
		}
	}
	return path
}

// getHome returns HOME, then the working directory, then ".".
func getHome() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}
