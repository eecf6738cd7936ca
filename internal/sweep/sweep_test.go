package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
)

// fakeRig is an in-memory double for the five hardware collaborators a
// real Callbacks value wires to hwstate.Rig/sensor.LoadCell.
type fakeRig struct {
	mu sync.Mutex

	setStateErr    error
	injectErr      error
	waitEmptyErr   error
	weightErr      error
	weightSequence []float64
	weightIdx      int
	stableAfter    int // GetWeight reports stable once called this many times
	weightCalls    int

	resetCalls int
}

func (f *fakeRig) callbacks() Callbacks {
	return Callbacks{
		SetSystemState: func(ctx context.Context, target program.CoarseState) error {
			return f.setStateErr
		},
		StartInjection: func(ctx context.Context, pumpVolumesML [program.PumpCount]float64, speedMMPerS float64) error {
			return f.injectErr
		},
		WaitForEmptyBottle: func(ctx context.Context, toleranceG, windowS, timeoutS float64) error {
			return f.waitEmptyErr
		},
		GetWeight: func(ctx context.Context) (float64, bool, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.weightErr != nil {
				return 0, false, f.weightErr
			}
			f.weightCalls++
			grams := 0.0
			if f.weightIdx < len(f.weightSequence) {
				grams = f.weightSequence[f.weightIdx]
				f.weightIdx++
			}
			stable := f.stableAfter == 0 || f.weightCalls >= f.stableAfter
			return grams, stable, nil
		},
		ResetDynamicEmptyWeight: func() {
			f.mu.Lock()
			f.resetCalls++
			f.mu.Unlock()
		},
	}
}

func newTestController(t *testing.T, rig *fakeRig) *Controller {
	t.Helper()
	logger, err := logging.New(t.TempDir())
	require.NoError(t, err)

	c := New(rig.callbacks(), nil, logger)
	c.DrainTimeoutS = 1
	c.StableTimeoutS = 1
	return c
}

func onePoint(cycles int) ParamSet {
	return ParamSet{ID: "point-1", Name: "baseline", PumpVolumesML: [program.PumpCount]float64{10}, SpeedMMPerS: 2, Cycles: cycles}
}

func TestRunCycleWalksEveryNamedState(t *testing.T) {
	rig := &fakeRig{weightSequence: []float64{0, 0, 10, 10}, stableAfter: 1}
	c := newTestController(t, rig)

	results := c.RunSweep(context.Background(), []ParamSet{onePoint(1)})
	require.Len(t, results, 1)
	tr := results[0]

	assert.True(t, tr.Success)
	assert.Equal(t, CycleComplete, tr.State)

	var seen []CycleState
	for _, sd := range tr.StepDurations {
		seen = append(seen, sd.State)
	}
	assert.Equal(t, []CycleState{
		CycleDraining, CycleWaitingEmpty, CycleRecordingEmpty,
		CycleInjecting, CycleWaitingStable, CycleRecordingFull,
	}, seen)
}

func TestRunCycleRecordsEmptyFullAndDeltaWeights(t *testing.T) {
	rig := &fakeRig{weightSequence: []float64{5, 5, 35, 35}, stableAfter: 1}
	c := newTestController(t, rig)

	results := c.RunSweep(context.Background(), []ParamSet{onePoint(1)})
	require.Len(t, results, 1)
	assert.Equal(t, 5.0, results[0].EmptyWeightG)
	assert.Equal(t, 35.0, results[0].FullWeightG)
	assert.Equal(t, 30.0, results[0].DeltaWeightG)
}

func TestRunSweepRunsCyclesTimesPerParamSetProducingSeparateResults(t *testing.T) {
	rig := &fakeRig{stableAfter: 1}
	c := newTestController(t, rig)

	results := c.RunSweep(context.Background(), []ParamSet{onePoint(2)})
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].CycleIndex)
	assert.Equal(t, 1, results[1].CycleIndex)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.Equal(t, 2, rig.resetCalls, "each cycle must reset the dynamic empty-weight baseline")
}

func TestRunCycleFailsWhenDrainTimesOut(t *testing.T) {
	rig := &fakeRig{waitEmptyErr: errors.New("never settled")}
	c := newTestController(t, rig)

	results := c.RunSweep(context.Background(), []ParamSet{onePoint(1)})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "DRAIN_TIMEOUT", results[0].ErrorCode)
	assert.Equal(t, CycleError, results[0].State)
}

func TestRunCycleFailsWhenInjectionErrors(t *testing.T) {
	rig := &fakeRig{injectErr: errors.New("pump fault"), stableAfter: 1}
	c := newTestController(t, rig)

	results := c.RunSweep(context.Background(), []ParamSet{onePoint(1)})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "INJECT_FAILED", results[0].ErrorCode)
}

func TestRunSweepContinuesToTheNextCycleAfterAFailure(t *testing.T) {
	rig := &fakeRig{waitEmptyErr: errors.New("never settled")}
	c := newTestController(t, rig)

	results := c.RunSweep(context.Background(), []ParamSet{onePoint(2)})
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.False(t, results[1].Success, "both cycles share the same failing callback")
}

func TestRunSweepStopsEarlyOnContextCancellation(t *testing.T) {
	rig := &fakeRig{stableAfter: 1}
	c := newTestController(t, rig)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := c.RunSweep(ctx, []ParamSet{onePoint(1)})
	assert.Empty(t, results)
}

func TestRunSweepRunsMultipleParamSetsInOrder(t *testing.T) {
	rig := &fakeRig{stableAfter: 1}
	c := newTestController(t, rig)

	a := onePoint(1)
	b := ParamSet{ID: "point-2", Name: "second", PumpVolumesML: [program.PumpCount]float64{5}, SpeedMMPerS: 1, Cycles: 1}

	results := c.RunSweep(context.Background(), []ParamSet{a, b})
	require.Len(t, results, 2)
	assert.Equal(t, "point-1", results[0].ParamSetID)
	assert.Equal(t, "point-2", results[1].ParamSetID)
}

func TestNewParamSetIDProducesDistinctValues(t *testing.T) {
	assert.NotEqual(t, NewParamSetID(), NewParamSetID())
}

func TestStatusReflectsGlobalProgress(t *testing.T) {
	rig := &fakeRig{stableAfter: 1}
	c := newTestController(t, rig)

	c.RunSweep(context.Background(), []ParamSet{onePoint(2)})
	st := c.Status()
	assert.Equal(t, 2, st.GlobalTotal)
	assert.Equal(t, 2, st.GlobalCompleted)
}
