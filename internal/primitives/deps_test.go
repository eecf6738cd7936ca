package primitives

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/enose-rig/enosectl/internal/calibration"
	"github.com/enose-rig/enosectl/internal/cancel"
	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/executor"
	"github.com/enose-rig/enosectl/internal/hwstate"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/sensor"
)

type noopDriver struct{}

func (noopDriver) SendCommand(context.Context, string) error { return nil }

// newTestDeps builds a Deps wired to an in-memory rig, a registered
// registry of all nine executors, and stable/instantly-satisfied sensor
// fakes, suitable for exercising any single primitive in isolation.
func newTestDeps(t *testing.T) Deps {
	t.Helper()
	logger, err := logging.New(t.TempDir())
	require.NoError(t, err)

	rig := hwstate.New(noopDriver{}, events.NewChanEmitter(16), logger)
	reg := executor.NewRegistry()

	hw := &program.HardwareConstraints{
		BottleCapacityML: 500,
		MaxFillML:        400,
		MaxGasPumpPWM:    1.0,
		Liquids: []program.LiquidInventory{
			{ID: "water", Name: "water", PumpIndex: 0, Type: program.LiquidRinse, AvailableML: 1000, DensityGPerML: 1.0},
			{ID: "sample-a", Name: "sample a", PumpIndex: 1, Type: program.LiquidSample, AvailableML: 1000, DensityGPerML: 1.0},
		},
	}

	deps := Deps{
		Rig:         rig,
		LoadCell:    &sensor.Fake{Grams: 0, Stable: true},
		Heater:      &sensor.Fake{Cycles: 100},
		Hardware:    hw,
		Emitter:     events.NewChanEmitter(16),
		Logger:      logger,
		Registry:    reg,
		Cancel:      cancel.NewToken(),
		Volume:      calibration.Linear{MMPerML: 1.0},
		EmptyWeight: &EmptyWeightTracker{},
	}
	RegisterAll(reg, deps)
	return deps
}
