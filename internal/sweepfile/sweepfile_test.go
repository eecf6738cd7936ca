package sweepfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSweep(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesPoints(t *testing.T) {
	path := writeSweep(t, `
points:
  - id: point-a
    name: low-flow
    pump_volumes_ml: [10, 0, 0, 0, 0, 0, 0, 0]
    speed_mm_s: 2.5
    cycles: 3
  - id: point-b
    name: high-flow
    pump_volumes_ml: [0, 20]
    speed_mm_s: 5
`)
	points, err := Load(path)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "point-a", points[0].ID)
	assert.Equal(t, "low-flow", points[0].Name)
	assert.Equal(t, 10.0, points[0].PumpVolumesML[0])
	assert.Equal(t, 2.5, points[0].SpeedMMPerS)
	assert.Equal(t, 3, points[0].Cycles)

	assert.Equal(t, "point-b", points[1].ID)
	assert.Equal(t, 20.0, points[1].PumpVolumesML[1])
	assert.Equal(t, 1, points[1].Cycles, "an unset cycle count defaults to 1")
}

func TestLoadGeneratesAnIDWhenOneIsNotGiven(t *testing.T) {
	path := writeSweep(t, `
points:
  - pump_volumes_ml: [5]
`)
	points, err := Load(path)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.NotEmpty(t, points[0].ID)
}

func TestLoadRejectsAPointWithTooManyPumpVolumes(t *testing.T) {
	path := writeSweep(t, `
points:
  - id: point-a
    pump_volumes_ml: [1, 2, 3, 4, 5, 6, 7, 8, 9]
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadReturnsErrorForAMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadToleratesASweepWithNoPoints(t *testing.T) {
	path := writeSweep(t, `points: []`)
	points, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, points)
}
