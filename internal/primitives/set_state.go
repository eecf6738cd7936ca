package primitives

import (
	"context"
	"time"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/program"
)

// SetState implements the SetState primitive: an unconditional
// force of L0 to the named CoarseState, used for maintenance/calibration
// steps that don't fit the workflow-shaped Inject/Drain/Acquire phases.
// It bypasses L1's admissibility check (this is force_transition
// path) and parks L1 at that CoarseState's Lift-derived representative
// ActivityState rather than returning to idle.
type SetState struct {
	Deps
}

func NewSetState(deps Deps) *SetState { return &SetState{Deps: deps} }

func (e *SetState) Name() string { return "set_state" }

func (e *SetState) IsIdempotent() bool { return true }

func (e *SetState) RequiredResources() []string { return nil }

func (e *SetState) CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult {
	if step.SetState == nil {
		return program.PreconditionResult{FailedConditions: []string{"step carries no set_state action"}}
	}
	return program.PreconditionResult{Satisfied: true}
}

func (e *SetState) EstimateDuration(step program.Step) float64 { return 0 }

func (e *SetState) Execute(ctx context.Context, step program.Step) program.ExecutionResult {
	start := time.Now()
	target := step.SetState.Target

	g := openGuards(e.Logger, "set_state", e.Rig)
	g.l1.CommitWithState(ctx, program.Lift(target))
	g.l0.Commit()
	g.close(ctx)

	e.emit(events.Event{Kind: events.KindStepCompleted, StepName: step.Name})
	return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
}
