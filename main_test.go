package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goKeySwap/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "init", "--config", path)
	require.NoError(t, err)
	require.Contains(t, out, path)
	require.FileExists(t, path)

	_, err = execute(t, "init", "--config", path)
	require.Error(t, err)

	_, err = execute(t, "init", "--config", path, "--force")
	require.NoError(t, err)
}

func TestMappingsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enabled: false\nmapping:\n  caps2esc:\n    from: 58\n    to: 1\n"), 0644))

	out, err := execute(t, "mappings", "--config", path)
	require.NoError(t, err)
	require.Contains(t, out, "caps2esc")
	require.Contains(t, out, "58")
	require.Contains(t, out, "disabled at startup")
}

func TestRenderMappingsEmpty(t *testing.T) {
	out := renderMappings(config.Config{Enabled: true})
	require.Contains(t, out, "No mappings configured")
	require.Contains(t, out, "enabled at startup")
}

func TestNewLoggerHonorsOverrides(t *testing.T) {
	dir := t.TempDir()
	opts := &rootOptions{logLevel: "debug"}
	logger, err := newLogger(opts, config.Default(), filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	defer logger.Close()
	require.Equal(t, filepath.Join(dir, "logs", "goKeySwap.log"), logger.Path())

	opts = &rootOptions{noLogFile: true}
	logger, err = newLogger(opts, config.Default(), filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Empty(t, logger.Path())
}
