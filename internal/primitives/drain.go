package primitives

import (
	"context"
	"time"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/program"
)

// drainToleranceG and drainWindowS are the fixed stability parameters
// Drain applies while waiting for the bottle to settle at its new empty
// weight. The exact tolerance/window is left as a hardware
// constant rather than a per-step parameter.
const (
	drainToleranceG = 0.5
	drainWindowS    = 2.0
)

// Drain implements the Drain primitive: target-state
// L0=drain, L1=drain_running, runs the air pump against the waste valve
// until the load cell settles, then records the new dynamic empty
// weight baseline.
type Drain struct {
	Deps
}

func NewDrain(deps Deps) *Drain { return &Drain{Deps: deps} }

func (e *Drain) Name() string { return "drain" }

func (e *Drain) IsIdempotent() bool { return true }

func (e *Drain) RequiredResources() []string { return []string{"air_pump", "load_cell"} }

func (e *Drain) CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult {
	if step.Drain == nil {
		return program.PreconditionResult{FailedConditions: []string{"step carries no drain action"}}
	}
	phase := e.Rig.Snapshot().Activity
	if phase == program.ActivityError || phase == program.ActivityEmergencyStop {
		return program.PreconditionResult{FailedConditions: []string{"rig is in error/emergency_stop"}}
	}
	return program.PreconditionResult{Satisfied: true}
}

func (e *Drain) EstimateDuration(step program.Step) float64 {
	if step.Drain == nil {
		return 0
	}
	return step.Drain.TimeoutS
}

func (e *Drain) Execute(ctx context.Context, step program.Step) program.ExecutionResult {
	start := time.Now()
	d := step.Drain

	g := openGuards(e.Logger, "drain", e.Rig)
	defer g.close(ctx)

	if err := g.requestPhase(ctx, e.Rig, program.ActivityDrainPreparing); err != nil {
		return program.ExecutionResult{Success: false, ErrorCode: "PRECONDITION_FAILED", ErrorMessage: err.Error()}
	}
	e.Rig.SetGasPumpPWM(ctx, d.GasPumpPWM)
	if err := g.requestPhase(ctx, e.Rig, program.ActivityDrainRunning); err != nil {
		return program.ExecutionResult{Success: false, ErrorCode: "PRECONDITION_FAILED", ErrorMessage: err.Error()}
	}

	settled, err := observeEmptyStable(ctx, e.Cancel, e.LoadCell, e.EmptyWeight, drainToleranceG, drainWindowS, d.TimeoutS)
	if err != nil {
		code := "DRAIN_TIMEOUT"
		if err != ErrTimeout {
			code = "CANCELLED"
		}
		return program.ExecutionResult{Success: false, ErrorCode: code, ErrorMessage: err.Error()}
	}

	e.EmptyWeight.Set(settled)
	e.Rig.SetGasPumpPWM(ctx, 0)
	g.commitIdle(ctx)
	e.emit(events.Event{Kind: events.KindStepCompleted, StepName: step.Name})
	return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
}
