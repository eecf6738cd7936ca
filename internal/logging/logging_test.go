package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesATimestampedLogFileInDir(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	defer l.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "enosectl-")
	assert.Contains(t, entries[0].Name(), ".log")
}

func TestLoggingMethodsWriteLinesWithKeyvals(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	l.Info("step started", "path", "steps[0]")
	l.Warn("low liquid", "pump", 0)
	l.Error("dispatch failed", "code", "TIMEOUT")
	l.Debug("tick")
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	content := string(raw)

	assert.Contains(t, content, "logger initialized")
	assert.Contains(t, content, "INFO: step started path=steps[0]")
	assert.Contains(t, content, "WARN: low liquid pump=0")
	assert.Contains(t, content, "ERROR: dispatch failed code=TIMEOUT")
	assert.Contains(t, content, "DEBUG: tick")
}

func TestCloseIsIdempotent(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestNopDiscardsWritesWithoutPanicking(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() {
		l.Info("anything")
		l.Close()
	})
}
