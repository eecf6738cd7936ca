package primitives

import (
	"context"
	"fmt"
	"time"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/program"
)

// Wait implements the Wait primitive: a pure condition poll
// with no state transition of its own — it waits within whatever
// CoarseState/ActivityState the surrounding steps already established.
// Its Empty condition is the specialized drain-observation form kEmpty
// resolves to: same algorithm as Drain's
// stability check, but with no valve change.
type Wait struct {
	Deps
}

func NewWait(deps Deps) *Wait { return &Wait{Deps: deps} }

func (e *Wait) Name() string { return "wait" }

func (e *Wait) IsIdempotent() bool { return true }

func (e *Wait) RequiredResources() []string { return nil }

func (e *Wait) CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult {
	if step.Wait == nil {
		return program.PreconditionResult{FailedConditions: []string{"step carries no wait action"}}
	}
	if step.Wait.Condition.Kind == program.ConditionNone {
		return program.PreconditionResult{FailedConditions: []string{"wait condition not set"}}
	}
	return program.PreconditionResult{Satisfied: true}
}

func (e *Wait) EstimateDuration(step program.Step) float64 {
	if step.Wait == nil {
		return 0
	}
	if step.Wait.Condition.Kind == program.ConditionDuration {
		return step.Wait.Condition.DurationS
	}
	return step.Wait.TimeoutS
}

func (e *Wait) Execute(ctx context.Context, step program.Step) program.ExecutionResult {
	start := time.Now()
	w := step.Wait
	timeout := w.TimeoutS

	var obsErr error
	switch w.Condition.Kind {
	case program.ConditionDuration:
		obsErr = observeDuration(ctx, e.Cancel, w.Condition.DurationS)
	case program.ConditionHeaterCycles:
		obsErr = observeHeaterCycles(ctx, e.Cancel, e.Heater, w.Condition.HeaterCycles, timeout)
	case program.ConditionStability:
		_, obsErr = observeSlopeStable(ctx, e.Cancel, e.LoadCell, w.Condition.StabilityMaxSlope, w.Condition.StabilityWindowS, timeout)
	case program.ConditionWeight:
		_, obsErr = observeWeightTarget(ctx, e.Cancel, e.LoadCell, w.Condition.TargetWeightG, w.Condition.ToleranceG, timeout)
	case program.ConditionEmpty:
		_, obsErr = observeEmptyStable(ctx, e.Cancel, e.LoadCell, e.EmptyWeight, w.Condition.ToleranceG, drainWindowS, timeout)
	default:
		obsErr = fmt.Errorf("unsupported wait condition kind %d", w.Condition.Kind)
	}

	if obsErr != nil {
		code := "WAIT_TIMEOUT"
		if obsErr != ErrTimeout {
			code = "CANCELLED"
		}
		return program.ExecutionResult{Success: false, ErrorCode: code, ErrorMessage: obsErr.Error()}
	}

	e.emit(events.Event{Kind: events.KindStepCompleted, StepName: step.Name})
	return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
}
