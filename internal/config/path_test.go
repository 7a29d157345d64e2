package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultDataDirXDGOverride(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	require.Equal(t, "/custom/data/relay", DefaultDataDir())
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	if _, err := os.UserHomeDir(); err == nil {
		t.Skip("home directory still resolvable on this platform")
	}
	require.Equal(t, "./data", DefaultDataDir())
}

func TestDefaultDataDirShape(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	result := DefaultDataDir()
	require.NotEmpty(t, result)
	require.True(t, filepath.IsAbs(result) || strings.HasPrefix(result, "./"), "got %s", result)
	base := strings.ToLower(filepath.Base(result))
	require.True(t, base == "relay" || base == ".relay" || base == "data", "got %s", result)
	require.Equal(t, result, DefaultDataDir())
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.Equal(t, filepath.Join(home, "relay"), ExpandHome("~/relay"))
	require.Equal(t, home, ExpandHome("~"))
	require.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	require.Equal(t, "~other/x", ExpandHome("~other/x"))
}

func TestHistoryDirDefaultsUnderDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg")
	cfg := Default()
	cfg.Monitor.History = true
	require.Equal(t, "/xdg/relay/history", cfg.HistoryDir())
}

func TestIsDirAndWritable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	require.True(t, isDir(dir))
	require.False(t, isDir(file))
	require.False(t, isDir(filepath.Join(dir, "missing")))
	require.True(t, fileExists(file))
	require.False(t, fileExists(dir))

	require.True(t, isWritableDir(dir))
	require.False(t, isWritableDir(file))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file should be removed")
}
