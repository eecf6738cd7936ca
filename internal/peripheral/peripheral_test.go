package peripheral

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
)

// recordingDriver records every command line it is sent, in order.
type recordingDriver struct {
	mu       sync.Mutex
	commands []string
}

func (d *recordingDriver) SendCommand(_ context.Context, line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, line)
	return nil
}

func (d *recordingDriver) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.commands))
	copy(out, d.commands)
	return out
}

func newTestController(t *testing.T) (*Controller, *recordingDriver) {
	t.Helper()
	logger, err := logging.New(t.TempDir())
	require.NoError(t, err)
	driver := &recordingDriver{}
	return NewController(&sync.Mutex{}, driver, logger), driver
}

func TestNewControllerStartsAtStateInitial(t *testing.T) {
	c, _ := newTestController(t)
	assert.Equal(t, program.StateInitial, c.CurrentCoarse())
	assert.Equal(t, program.CoarseTemplates[program.StateInitial], c.Current())
}

func TestTransitionToIsANoOpWhenAlreadyAtTarget(t *testing.T) {
	c, driver := newTestController(t)
	c.TransitionTo(context.Background(), program.StateInitial)
	assert.Empty(t, driver.snapshot(), "no commands should be emitted for a same-state transition")
}

func TestTransitionToEmitsCommandsAndUpdatesCurrentCoarse(t *testing.T) {
	c, driver := newTestController(t)
	c.TransitionTo(context.Background(), program.StateDrain)

	assert.Equal(t, program.StateDrain, c.CurrentCoarse())
	assert.NotEmpty(t, driver.snapshot(), "transitioning states should diff and emit at least one command")
}

func TestTransitionToFiresOnStateChangedWithOldAndNew(t *testing.T) {
	c, _ := newTestController(t)

	var gotOld, gotNew program.CoarseState
	fired := false
	c.OnStateChanged = func(old, new_ program.CoarseState) {
		fired = true
		gotOld, gotNew = old, new_
	}

	c.TransitionTo(context.Background(), program.StateClean)

	require.True(t, fired)
	assert.Equal(t, program.StateInitial, gotOld)
	assert.Equal(t, program.StateClean, gotNew)
}

func TestTransitionToSkipsWithoutADriver(t *testing.T) {
	logger, err := logging.New(t.TempDir())
	require.NoError(t, err)
	c := NewController(&sync.Mutex{}, nil, logger)

	assert.NotPanics(t, func() {
		c.TransitionTo(context.Background(), program.StateDrain)
	})
	assert.Equal(t, program.StateInitial, c.CurrentCoarse(), "without a driver the transition must not apply")
}

func TestSetGasPumpPWMDoesNotChangeCoarseState(t *testing.T) {
	c, driver := newTestController(t)
	c.TransitionTo(context.Background(), program.StateSample)
	before := c.CurrentCoarse()

	c.SetGasPumpPWM(context.Background(), 0.75)

	assert.Equal(t, before, c.CurrentCoarse())
	assert.Equal(t, 0.75, c.Current().AirPumpPWM)
	cmds := driver.snapshot()
	assert.Contains(t, cmds[len(cmds)-1], "AIR_PUMP")
}

func TestStartInjectSetsRequestedDistancesAndStopInjectClearsThem(t *testing.T) {
	c, driver := newTestController(t)

	var distances [program.PumpCount]float64
	distances[0] = 12.5
	distances[3] = 4.0
	c.StartInject(context.Background(), InjectParams{DistancesMM: distances, SpeedMMPerS: 2})

	assert.Equal(t, program.StateInject, c.CurrentCoarse())
	assert.True(t, c.Current().Metering[0].Running)
	assert.Equal(t, 12.5, c.Current().Metering[0].DistanceMM)
	assert.False(t, c.Current().Metering[1].Running)

	cmds := driver.snapshot()
	assert.Contains(t, cmds, "REGISTER_PUMPS_TO_AXIS")
	foundMove := false
	for _, cmd := range cmds {
		if cmd[:2] == "G1" {
			foundMove = true
		}
	}
	assert.True(t, foundMove, "expected a G1 parallel move command, got %v", cmds)

	c.StopInject(context.Background())
	assert.Equal(t, program.StateInitial, c.CurrentCoarse())
	assert.False(t, c.Current().AnyMeteringRunning())
}

func TestAnyTransitionWhileMeteringRunsIssuesAsyncStopFirst(t *testing.T) {
	c, driver := newTestController(t)

	var distances [program.PumpCount]float64
	distances[0] = 5
	c.StartInject(context.Background(), InjectParams{DistancesMM: distances, SpeedMMPerS: 1})

	c.TransitionTo(context.Background(), program.StateDrain)

	cmds := driver.snapshot()
	stopIdx, drainIdx := -1, -1
	for i, cmd := range cmds {
		if cmd == "ENOSE_ASYNC_STOP" && stopIdx == -1 {
			// StartInject's own transition runs with no pump moving, so the
			// first async stop is the one the drain transition issues
			stopIdx = i
		}
		if cmd == "SET_PIN PIN=VALVE_WASTE VALUE=1" && drainIdx == -1 {
			drainIdx = i
		}
	}
	require.GreaterOrEqual(t, stopIdx, 0, "expected ENOSE_ASYNC_STOP to be issued")
	require.GreaterOrEqual(t, drainIdx, 0, "expected the drain transition to open the waste valve")
	assert.Less(t, stopIdx, drainIdx, "the async stop must precede the drain valve commands")
	assert.False(t, c.Current().AnyMeteringRunning(), "metering pumps must be cleared across the transition")
}
