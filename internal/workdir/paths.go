// Package workdir resolves the worker's on-disk layout. Everything the
// daemon persists lives under a single base directory.
package workdir

import (
	"os"
	"path/filepath"
)

// Default returns ~/.wawork, the base directory used when none is given.
func Default() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wawork")
}

// AuthDir returns the directory holding WhatsApp credentials.
func AuthDir(base string) string {
	return filepath.Join(base, "auth")
}

// AppDBPath returns the worker-owned wawork.db path.
func AppDBPath(base string) string {
	return filepath.Join(base, "wawork.db")
}

// LogDir returns the log directory.
func LogDir(base string) string {
	return filepath.Join(base, "logs")
}

// LogPath returns the daemon log file path.
func LogPath(base string) string {
	return filepath.Join(LogDir(base), "waworkd.log")
}

// LockPath returns the daemon lock file path.
func LockPath(base string) string {
	return filepath.Join(base, "LOCK")
}

// ConfigPath returns the config file path.
func ConfigPath(base string) string {
	return filepath.Join(base, "config.toml")
}

// EnsureDirs creates the directory tree with owner-only permissions.
func EnsureDirs(base string) error {
	dirs := []string{
		base,
		AuthDir(base),
		LogDir(base),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
