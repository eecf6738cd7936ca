package rigconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
)

const validYAML = `
hardware:
  bottle_capacity_ml: 500
  max_fill_ml: 400
  max_gas_pump_pwm: 1.0
  mm_per_ml: 2.5
  liquids:
    - id: water
      name: water
      pump_index: 0
      type: rinse
      available_ml: 1000
      density_g_per_ml: 1.0
drain:
  tolerance_g: 0.5
  window_s: 2.0
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesAValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500.0, cfg.Hardware.BottleCapacityML)
	assert.Equal(t, 400.0, cfg.Hardware.MaxFillML)
	require.Len(t, cfg.Hardware.Liquids, 1)
	assert.Equal(t, "water", cfg.Hardware.Liquids[0].ID)
}

func TestLoadReturnsErrorForAMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("ENOSE_TEST_CAPACITY", "750")
	path := writeConfig(t, `
hardware:
  bottle_capacity_ml: ${ENOSE_TEST_CAPACITY}
  max_fill_ml: 400
  mm_per_ml: 2.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750.0, cfg.Hardware.BottleCapacityML)
}

func TestValidateRejectsMaxFillAboveBottleCapacity(t *testing.T) {
	path := writeConfig(t, `
hardware:
  bottle_capacity_ml: 100
  max_fill_ml: 200
  mm_per_ml: 2.5
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsDuplicatePumpIndices(t *testing.T) {
	path := writeConfig(t, `
hardware:
  bottle_capacity_ml: 500
  max_fill_ml: 400
  mm_per_ml: 2.5
  liquids:
    - id: a
      pump_index: 0
    - id: b
      pump_index: 0
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRangePumpIndex(t *testing.T) {
	path := writeConfig(t, `
hardware:
  bottle_capacity_ml: 500
  max_fill_ml: 400
  mm_per_ml: 2.5
  liquids:
    - id: a
      pump_index: 99
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateFillsInDefaultDrainParametersWhenUnset(t *testing.T) {
	path := writeConfig(t, `
hardware:
  bottle_capacity_ml: 500
  max_fill_ml: 400
  mm_per_ml: 2.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Drain.ToleranceG)
	assert.Equal(t, 2.0, cfg.Drain.WindowS)
}

func TestHardwareConstraintsConvertsLiquidTypesByName(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	hw := cfg.HardwareConstraints()
	require.Len(t, hw.Liquids, 1)
	assert.Equal(t, program.LiquidRinse, hw.Liquids[0].Type)
}

func TestVolumeConverterUsesTheConfiguredMMPerML(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.VolumeConverter().MMForML(0, 2))
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, validYAML)
	logger, err := logging.New(t.TempDir())
	require.NoError(t, err)

	reloaded := make(chan *RigConfig, 1)
	w, err := Watch(path, func(cfg *RigConfig, err error) {
		if err == nil {
			reloaded <- cfg
		}
	}, logger)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(validYAML+"\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 500.0, cfg.Hardware.BottleCapacityML)
	case <-time.After(3 * time.Second):
		t.Fatal("config watcher did not fire onReload after a write")
	}
}
