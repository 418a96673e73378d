package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hello-server/internal/logger"
	"hello-server/internal/worker"
)

func TestBuildConfigDefaults(t *testing.T) {
	cfg, err := buildConfig(options{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7878", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Pool.NumWorkers)
	assert.Equal(t, worker.ShutdownDrain, cfg.Pool.Shutdown)
	assert.Empty(t, cfg.AdminAddr)
}

func TestBuildConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: 127.0.0.1:9000
pool:
  workers: 2
log:
  level: warn
`), 0o644))

	cfg, err := buildConfig(options{configFile: path, workers: 6, workersSet: true, shutdown: "discard"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 6, cfg.Pool.NumWorkers)
	assert.Equal(t, worker.ShutdownDiscard, cfg.Pool.Shutdown)
	assert.Equal(t, logger.LevelWarn, cfg.LogLevel)
}

func TestBuildConfigErrors(t *testing.T) {
	_, err := buildConfig(options{workers: -1, workersSet: true})
	assert.ErrorIs(t, err, worker.ErrInvalidSize)

	_, err = buildConfig(options{workers: 0, workersSet: true})
	assert.ErrorIs(t, err, worker.ErrInvalidSize)

	_, err = buildConfig(options{logLevel: "chatty"})
	assert.Error(t, err)

	_, err = buildConfig(options{shutdown: "abort"})
	assert.Error(t, err)

	_, err = buildConfig(options{configFile: "/nonexistent/server.yaml"})
	assert.Error(t, err)
}

func TestBuildConfigUnsetWorkersKeepsFileValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  workers: 3\n"), 0o644))

	cfg, err := buildConfig(options{configFile: path})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pool.NumWorkers)
}

func TestBuildConfigFileZeroWorkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  workers: 0\n"), 0o644))

	_, err := buildConfig(options{configFile: path})
	assert.ErrorIs(t, err, worker.ErrInvalidSize)
}

func TestWriteStatusesSorted(t *testing.T) {
	var buf bytes.Buffer
	writeStatuses(&buf, map[int]int{503: 1, 200: 7, 404: 2})
	assert.Equal(t, "Status 200: 7\nStatus 404: 2\nStatus 503: 1\n", buf.String())
}
