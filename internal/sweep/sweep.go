// Package sweep implements the Test/Sweep Controller: a background
// worker that runs a structured multi-parameter sweep, driving a
// per-cycle state machine (idle -> draining -> waiting_empty ->
// recording_empty -> injecting -> waiting_stable -> recording_full ->
// next|complete|error|stopping) through five injected hardware
// callbacks, tracking a dynamic empty-weight baseline across cycles.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/telemetry"
)

// logBufferSize bounds the in-memory ring of recent log lines the
// controller carries, so a long sweep doesn't grow its logs unbounded.
const logBufferSize = 100

// pollInterval is how often the controller re-samples the load cell
// while waiting for a post-injection weight to stabilize.
const pollInterval = 200 * time.Millisecond

// CycleState is one state in the per-cycle state machine.
type CycleState int

const (
	CycleIdle CycleState = iota
	CycleDraining
	CycleWaitingEmpty
	CycleRecordingEmpty
	CycleInjecting
	CycleWaitingStable
	CycleRecordingFull
	CycleComplete
	CycleError
	CycleStopping
)

func (s CycleState) String() string {
	switch s {
	case CycleIdle:
		return "idle"
	case CycleDraining:
		return "draining"
	case CycleWaitingEmpty:
		return "waiting_empty"
	case CycleRecordingEmpty:
		return "recording_empty"
	case CycleInjecting:
		return "injecting"
	case CycleWaitingStable:
		return "waiting_stable"
	case CycleRecordingFull:
		return "recording_full"
	case CycleComplete:
		return "complete"
	case CycleError:
		return "error"
	case CycleStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ParamSet is one point of a parameter sweep: a per-pump volume vector,
// a feed speed, and the number of cycles to repeat it for.
type ParamSet struct {
	ID            string
	Name          string
	PumpVolumesML [program.PumpCount]float64
	SpeedMMPerS   float64
	Cycles        int
}

// NewParamSetID generates a fresh identifier for a ParamSet built
// programmatically rather than loaded from a file.
func NewParamSetID() string {
	return uuid.NewString()
}

// StepDuration records how long a cycle spent in one state.
type StepDuration struct {
	State    CycleState
	Duration time.Duration
}

// TestResult is one cycle's outcome: its sampled empty/full/delta
// weights, the time spent in each state of the per-cycle machine, and
// its terminal state.
type TestResult struct {
	ParamSetID   string
	ParamSetName string
	CycleIndex   int
	State        CycleState

	EmptyWeightG float64
	FullWeightG  float64
	DeltaWeightG float64

	StepDurations []StepDuration
	StartedAt     time.Time
	FinishedAt    time.Time

	Success      bool
	ErrorCode    string
	ErrorMessage string
	Logs         []string
}

// Callbacks are the five collaborator hooks the per-cycle state machine
// drives off of.
type Callbacks struct {
	// SetSystemState forces L0 to target (e.g. drain, initial).
	SetSystemState func(ctx context.Context, target program.CoarseState) error

	// StartInjection launches a parallel metering move across every
	// pump at once, at the given per-pump volumes and feed speed.
	StartInjection func(ctx context.Context, pumpVolumesML [program.PumpCount]float64, speedMMPerS float64) error

	// WaitForEmptyBottle blocks until the load cell settles within
	// tolerance of empty (within windowS consecutive seconds), or the
	// timeout elapses.
	WaitForEmptyBottle func(ctx context.Context, toleranceG, windowS, timeoutS float64) error

	// GetWeight samples the load cell's instantaneous reading.
	GetWeight func(ctx context.Context) (grams float64, stable bool, err error)

	// ResetDynamicEmptyWeight forgets the running empty-weight baseline.
	ResetDynamicEmptyWeight func()
}

// Status is a live snapshot of the controller's progress through a
// sweep, suitable for polling from a dashboard.
type Status struct {
	ParamSetID      string
	ParamSetName    string
	CycleIndex      int
	Cycles          int
	State           CycleState
	GlobalCompleted int
	GlobalTotal     int
}

// Controller runs a sweep's sequence of ParamSets, each repeated Cycles
// times, driving the per-cycle state machine through Callbacks.
type Controller struct {
	Callbacks Callbacks
	Emitter   events.Emitter
	Logger    *logging.Logger
	Metrics   *telemetry.Metrics // optional; nil skips instrumentation

	// DrainToleranceG/DrainWindowS/DrainTimeoutS parameterize
	// WaitForEmptyBottle; StableTimeoutS bounds how long the controller
	// polls GetWeight's stability flag for a settled post-injection
	// reading.
	DrainToleranceG float64
	DrainWindowS    float64
	DrainTimeoutS   float64
	StableTimeoutS  float64

	mu     sync.Mutex
	logs   []string
	status Status
}

// New constructs a Controller with sensible default drain/stability
// timing; callers can override the exported timing fields before
// RunSweep.
func New(callbacks Callbacks, emitter events.Emitter, logger *logging.Logger) *Controller {
	return &Controller{
		Callbacks:       callbacks,
		Emitter:         emitter,
		Logger:          logger,
		DrainToleranceG: 0.5,
		DrainWindowS:    2,
		DrainTimeoutS:   60,
		StableTimeoutS:  60,
	}
}

// Status returns a snapshot of the controller's current progress.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) setStatus(ps ParamSet, idx int, st CycleState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.ParamSetID = ps.ID
	c.status.ParamSetName = ps.Name
	c.status.CycleIndex = idx
	c.status.Cycles = ps.Cycles
	c.status.State = st
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.Logger != nil {
		c.Logger.Info(msg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, msg)
	if len(c.logs) > logBufferSize {
		c.logs = c.logs[len(c.logs)-logBufferSize:]
	}
}

func (c *Controller) snapshotLogs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.logs))
	copy(out, c.logs)
	return out
}

func (c *Controller) emit(tr TestResult) {
	if c.Emitter == nil {
		return
	}
	c.Emitter.Emit(context.Background(), events.Event{Kind: events.KindTestCycleCompleted, CycleResult: tr})
}

func (c *Controller) observeCycle(success bool) {
	if c.Metrics != nil {
		c.Metrics.ObserveCycle(success)
	}
}

// RunSweep executes paramSets in order, each repeated its own Cycles
// times. It stops early only on ctx cancellation, attempting to return
// the hardware to initial (stop_test) before returning whatever cycles
// completed so far.
func (c *Controller) RunSweep(ctx context.Context, paramSets []ParamSet) []TestResult {
	total := 0
	for _, ps := range paramSets {
		total += ps.Cycles
	}
	c.mu.Lock()
	c.status.GlobalTotal = total
	c.status.GlobalCompleted = 0
	c.mu.Unlock()

	var results []TestResult
	for _, ps := range paramSets {
		for i := 0; i < ps.Cycles; i++ {
			select {
			case <-ctx.Done():
				c.stopTest(ps)
				return results
			default:
			}

			results = append(results, c.runCycle(ctx, ps, i))

			c.mu.Lock()
			c.status.GlobalCompleted++
			c.mu.Unlock()
		}
	}
	return results
}

// stopTest is the external stop_test path: transitions to stopping,
// attempts to return the hardware to initial, then settles at idle.
func (c *Controller) stopTest(ps ParamSet) {
	c.setStatus(ps, 0, CycleStopping)
	if c.Callbacks.SetSystemState != nil {
		c.Callbacks.SetSystemState(context.Background(), program.StateInitial)
	}
	c.setStatus(ps, 0, CycleIdle)
}

// runCycle drives one ParamSet's cycleIndex'th repetition through the
// full per-cycle state machine.
func (c *Controller) runCycle(ctx context.Context, ps ParamSet, cycleIndex int) TestResult {
	tr := TestResult{ParamSetID: ps.ID, ParamSetName: ps.Name, CycleIndex: cycleIndex, StartedAt: time.Now()}
	stepStart := tr.StartedAt

	transition := func(next CycleState) {
		now := time.Now()
		tr.StepDurations = append(tr.StepDurations, StepDuration{State: next, Duration: now.Sub(stepStart)})
		stepStart = now
		c.setStatus(ps, cycleIndex, next)
	}

	fail := func(code string, err error) TestResult {
		c.setStatus(ps, cycleIndex, CycleError)
		tr.State = CycleError
		tr.Success = false
		tr.ErrorCode = code
		tr.ErrorMessage = err.Error()
		tr.FinishedAt = time.Now()
		tr.Logs = c.snapshotLogs()
		c.log("sweep %s cycle %d: error: %s: %s", ps.ID, cycleIndex, code, err)
		c.observeCycle(false)
		c.emit(tr)
		return tr
	}

	missing := c.Callbacks.SetSystemState == nil || c.Callbacks.StartInjection == nil ||
		c.Callbacks.WaitForEmptyBottle == nil || c.Callbacks.GetWeight == nil
	if missing {
		return fail("NO_CALLBACKS", fmt.Errorf("sweep controller missing a required callback"))
	}

	c.setStatus(ps, cycleIndex, CycleIdle)
	if c.Callbacks.ResetDynamicEmptyWeight != nil {
		c.Callbacks.ResetDynamicEmptyWeight()
	}

	transition(CycleDraining)
	if err := c.Callbacks.SetSystemState(ctx, program.StateDrain); err != nil {
		return fail("SET_STATE_FAILED", err)
	}

	transition(CycleWaitingEmpty)
	if err := c.Callbacks.WaitForEmptyBottle(ctx, c.DrainToleranceG, c.DrainWindowS, c.DrainTimeoutS); err != nil {
		return fail("DRAIN_TIMEOUT", err)
	}

	transition(CycleRecordingEmpty)
	emptyG, _, err := c.Callbacks.GetWeight(ctx)
	if err != nil {
		return fail("SENSOR_ERROR", err)
	}
	tr.EmptyWeightG = emptyG

	transition(CycleInjecting)
	if err := c.Callbacks.StartInjection(ctx, ps.PumpVolumesML, ps.SpeedMMPerS); err != nil {
		return fail("INJECT_FAILED", err)
	}

	transition(CycleWaitingStable)
	if err := c.waitForStable(ctx); err != nil {
		return fail("WEIGHT_STABILITY_TIMEOUT", err)
	}

	transition(CycleRecordingFull)
	fullG, _, err := c.Callbacks.GetWeight(ctx)
	if err != nil {
		return fail("SENSOR_ERROR", err)
	}
	tr.FullWeightG = fullG
	tr.DeltaWeightG = fullG - emptyG

	c.setStatus(ps, cycleIndex, CycleComplete)
	tr.State = CycleComplete
	tr.Success = true
	tr.FinishedAt = time.Now()
	tr.Logs = c.snapshotLogs()
	c.log("sweep %s cycle %d: complete, empty=%.2fg full=%.2fg delta=%.2fg", ps.ID, cycleIndex, emptyG, fullG, tr.DeltaWeightG)
	c.observeCycle(true)
	c.emit(tr)
	return tr
}

// waitForStable polls GetWeight until it reports a stable reading, or
// c.StableTimeoutS elapses.
func (c *Controller) waitForStable(ctx context.Context) error {
	deadline := time.Now().Add(time.Duration(c.StableTimeoutS * float64(time.Second)))
	for {
		_, stable, err := c.Callbacks.GetWeight(ctx)
		if err != nil {
			return err
		}
		if stable {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for the post-injection weight to stabilize")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
