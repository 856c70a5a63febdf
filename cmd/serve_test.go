package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tagger/internal/daemon"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	pf := pidFile()
	expected := filepath.Join(dir, "tagger-serve.pid")
	assert.Equal(t, expected, pf.Path)
}

func TestServeLogPath(t *testing.T) {
	dir := testEnv(t)

	logPath := serveLogPath()
	expected := filepath.Join(dir, "tagger-serve.log")
	assert.Equal(t, expected, logPath)
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so status should show "not running" without error.
	err := serveStatusRun()
	assert.NoError(t, err)
	assert.Contains(t, stdout(), "not running")
}

func TestServeStatusRun_Running(t *testing.T) {
	dir := testEnv(t)

	pf := daemon.NewPIDFile(filepath.Join(dir, "tagger-serve.pid"))
	require.NoError(t, pf.Write())

	require.NoError(t, serveStatusRun())
	assert.Contains(t, stdout(), "is running")
}

func TestServeStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so stop should return an error.
	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestServeStopRun_StalePIDFile(t *testing.T) {
	dir := testEnv(t)

	pf := daemon.NewPIDFile(filepath.Join(dir, "tagger-serve.pid"))
	require.NoError(t, pf.WritePID(999999))

	err := serveStopRun()
	require.Error(t, err)
	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr), "stale PID file should be cleaned up")
}

func TestServeStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// Write a PID file for the current process (which is alive).
	pf := daemon.NewPIDFile(filepath.Join(dir, "tagger-serve.pid"))
	require.NoError(t, pf.Write())

	err := serveStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServeStartRun_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	t.Cleanup(func() { dryRun = false })

	require.NoError(t, serveStartRun())
	_, err := os.Stat(filepath.Join(dir, "tagger-serve.pid"))
	assert.True(t, os.IsNotExist(err), "dry run must not start a server")
}
