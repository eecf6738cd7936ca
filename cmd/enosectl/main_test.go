package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithNoArgsReturnsUsageError(t *testing.T) {
	err := run(nil)
	assert.ErrorContains(t, err, "usage")
}

func TestRunWithAnUnknownSubcommandReturnsAnError(t *testing.T) {
	err := run([]string{"teleport"})
	assert.ErrorContains(t, err, "unknown subcommand")
}

const cliTestConfig = `
hardware:
  bottle_capacity_ml: 500
  max_fill_ml: 400
  mm_per_ml: 2.5
  liquids:
    - id: water
      name: water
      pump_index: 0
      type: rinse
      available_ml: 1000
telemetry:
  service_name: enosectl-cli-test
`

const cliTestProgram = `
name: cli-smoke-test
steps:
  - name: mark
    action: phase_marker
    phase_marker:
      name: start
      is_start: true
`

func TestRunValidateSucceedsOnAWellFormedProgram(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cliTestConfig), 0o644))

	programPath := filepath.Join(dir, "program.yaml")
	require.NoError(t, os.WriteFile(programPath, []byte(cliTestProgram), 0o644))

	err := run([]string{"validate", "--config", configPath, programPath})
	assert.NoError(t, err)
}

func TestRunValidateFailsWithoutAProgramArgument(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cliTestConfig), 0o644))

	err := run([]string{"validate", "--config", configPath})
	assert.ErrorContains(t, err, "usage")
}
