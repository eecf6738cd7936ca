package primitives

import (
	"context"
	"fmt"
	"time"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/program"
)

// Loop implements the Loop primitive: executes its child
// Steps Count times in order, dispatching each through the same
// registry/precondition/event path a top-level step takes (via the
// borrowed Deps.Dispatch function) rather than re-implementing
// execution. The first child failure stops the loop and is returned as
// the loop's own result.
type Loop struct {
	Deps
}

func NewLoop(deps Deps) *Loop { return &Loop{Deps: deps} }

func (e *Loop) Name() string { return "loop" }

func (e *Loop) IsIdempotent() bool { return false }

func (e *Loop) RequiredResources() []string { return nil }

func (e *Loop) CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult {
	l := step.Loop
	if l == nil {
		return program.PreconditionResult{FailedConditions: []string{"step carries no loop action"}}
	}
	if l.Count <= 0 {
		return program.PreconditionResult{FailedConditions: []string{"count must be > 0"}}
	}
	if len(l.Steps) == 0 {
		return program.PreconditionResult{FailedConditions: []string{"loop has no child steps"}}
	}
	if e.Dispatch == nil {
		return program.PreconditionResult{FailedConditions: []string{"loop executor has no dispatch function wired"}}
	}
	return program.PreconditionResult{Satisfied: true}
}

func (e *Loop) EstimateDuration(step program.Step) float64 {
	l := step.Loop
	if l == nil {
		return 0
	}
	var perIteration float64
	for _, child := range l.Steps {
		if exec, ok := e.Registry.ByTag(child.Action.Tag()); ok {
			perIteration += exec.EstimateDuration(child)
		}
	}
	return perIteration * float64(l.Count)
}

func (e *Loop) Execute(ctx context.Context, step program.Step) program.ExecutionResult {
	start := time.Now()
	l := step.Loop

	for i := 0; i < l.Count; i++ {
		if err := e.Cancel.CheckStopOrPause(ctx); err != nil {
			return program.ExecutionResult{Success: false, ErrorCode: "CANCELLED", ErrorMessage: err.Error()}
		}
		for childIdx, child := range l.Steps {
			path := fmt.Sprintf("%s.loop[%d].%s", step.Name, i, program.Path(childIdx))
			res := e.Dispatch(ctx, path, child)
			if !res.Success {
				return res
			}
		}
	}

	e.emit(events.Event{Kind: events.KindStepCompleted, StepName: step.Name})
	return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
}
