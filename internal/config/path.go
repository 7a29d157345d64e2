package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appDirName = "relay"

// HistoryDir resolves where monitor snapshots live, or "" when disabled.
// An explicit Monitor.DataDir is used as-is after expanding "~"; otherwise
// snapshots go to a "history" directory under DefaultDataDir.
func (c Config) HistoryDir() string {
	if !c.Monitor.History {
		return ""
	}
	if c.Monitor.DataDir != "" {
		return ExpandHome(c.Monitor.DataDir)
	}
	return filepath.Join(DefaultDataDir(), "history")
}

// ExpandHome replaces a leading "~" with the user's home directory. Paths
// without one, or when the home directory is unknown, are returned as-is.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// DefaultDataDir returns the per-OS application data directory, falling
// back to ./data when no home directory is known.
//
// Order: $XDG_DATA_HOME/relay, /var/lib/relay when writable,
// ~/Library/Application Support/Relay, ~/AppData/Local/Relay, ~/.relay.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	if isWritableDir("/var/lib") {
		return filepath.Join("/var/lib", appDirName)
	}
	candidates := []struct{ marker, dir string }{
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", "Relay")},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", "Relay")},
	}
	for _, c := range candidates {
		if isDir(c.marker) {
			return c.dir
		}
	}
	return filepath.Join(home, "."+appDirName)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isWritableDir checks by creating and removing a temp file.
func isWritableDir(path string) bool {
	if !isDir(path) {
		return false
	}
	f, err := os.CreateTemp(path, ".relay-write-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
