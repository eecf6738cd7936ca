package primitives

import (
	"context"
	"fmt"
	"time"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/program"
)

// Acquire implements the Acquire primitive: target-state
// L0=sample, L1=sample_acquiring, running the gas pump over the sensor
// board until its termination condition is met or max_duration_s
// elapses, whichever comes first.
type Acquire struct {
	Deps
}

func NewAcquire(deps Deps) *Acquire { return &Acquire{Deps: deps} }

func (e *Acquire) Name() string { return "acquire" }

func (e *Acquire) IsIdempotent() bool { return false }

func (e *Acquire) RequiredResources() []string { return []string{"air_pump", "gas_sensor_board"} }

func (e *Acquire) CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult {
	if step.Acquire == nil {
		return program.PreconditionResult{FailedConditions: []string{"step carries no acquire action"}}
	}
	if step.Acquire.Termination.Kind == program.ConditionNone {
		return program.PreconditionResult{FailedConditions: []string{"acquire termination condition not set"}}
	}
	if step.Acquire.Termination.Kind == program.ConditionEmpty {
		return program.PreconditionResult{FailedConditions: []string{"empty termination is wait-only, not valid for acquire"}}
	}
	phase := e.Rig.Snapshot().Activity
	if phase == program.ActivityError || phase == program.ActivityEmergencyStop {
		return program.PreconditionResult{FailedConditions: []string{"rig is in error/emergency_stop"}}
	}
	return program.PreconditionResult{Satisfied: true}
}

func (e *Acquire) EstimateDuration(step program.Step) float64 {
	if step.Acquire == nil {
		return 0
	}
	a := step.Acquire
	switch a.Termination.Kind {
	case program.ConditionDuration:
		return a.Termination.DurationS
	default:
		if a.MaxDurationS > 0 {
			return a.MaxDurationS
		}
		return 0
	}
}

func (e *Acquire) Execute(ctx context.Context, step program.Step) program.ExecutionResult {
	start := time.Now()
	a := step.Acquire

	g := openGuards(e.Logger, "acquire", e.Rig)
	defer g.close(ctx)

	if err := g.requestPhase(ctx, e.Rig, program.ActivitySamplePreparing); err != nil {
		return program.ExecutionResult{Success: false, ErrorCode: "PRECONDITION_FAILED", ErrorMessage: err.Error()}
	}
	e.Rig.SetGasPumpPWM(ctx, a.GasPumpPWM)
	if err := g.requestPhase(ctx, e.Rig, program.ActivitySampleAcquiring); err != nil {
		return program.ExecutionResult{Success: false, ErrorCode: "PRECONDITION_FAILED", ErrorMessage: err.Error()}
	}

	timeout := a.Termination.DurationS
	if a.MaxDurationS > 0 && (a.Termination.Kind != program.ConditionDuration || a.MaxDurationS < timeout) {
		timeout = a.MaxDurationS
	}

	var obsErr error
	switch a.Termination.Kind {
	case program.ConditionDuration:
		obsErr = observeDuration(ctx, e.Cancel, timeout)
	case program.ConditionHeaterCycles:
		obsErr = observeHeaterCycles(ctx, e.Cancel, e.Heater, a.Termination.HeaterCycles, timeout)
	case program.ConditionStability:
		_, obsErr = observeSlopeStable(ctx, e.Cancel, e.LoadCell, a.Termination.StabilityMaxSlope, a.Termination.StabilityWindowS, timeout)
	case program.ConditionWeight:
		_, obsErr = observeWeightTarget(ctx, e.Cancel, e.LoadCell, a.Termination.TargetWeightG, a.Termination.ToleranceG, timeout)
	default:
		obsErr = fmt.Errorf("unsupported acquire termination kind %d", a.Termination.Kind)
	}

	e.Rig.SetGasPumpPWM(ctx, 0)

	if obsErr != nil {
		code := "ACQUIRE_TIMEOUT"
		if obsErr != ErrTimeout {
			code = "CANCELLED"
		}
		return program.ExecutionResult{Success: false, ErrorCode: code, ErrorMessage: obsErr.Error()}
	}

	g.commitIdle(ctx)
	e.emit(events.Event{Kind: events.KindStepCompleted, StepName: step.Name})
	return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
}
