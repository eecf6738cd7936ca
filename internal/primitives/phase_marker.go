package primitives

import (
	"context"
	"time"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/program"
)

// PhaseMarker implements the PhaseMarker primitive: an
// observable event with no hardware effect, used to bracket a region of
// a program for downstream signal-processing or persistence to key on.
type PhaseMarker struct {
	Deps
}

func NewPhaseMarker(deps Deps) *PhaseMarker { return &PhaseMarker{Deps: deps} }

func (e *PhaseMarker) Name() string { return "phase_marker" }

func (e *PhaseMarker) IsIdempotent() bool { return true }

func (e *PhaseMarker) RequiredResources() []string { return nil }

func (e *PhaseMarker) CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult {
	if step.PhaseMarker == nil {
		return program.PreconditionResult{FailedConditions: []string{"step carries no phase_marker action"}}
	}
	return program.PreconditionResult{Satisfied: true}
}

func (e *PhaseMarker) EstimateDuration(step program.Step) float64 { return 0 }

func (e *PhaseMarker) Execute(ctx context.Context, step program.Step) program.ExecutionResult {
	start := time.Now()
	pm := step.PhaseMarker
	e.emit(events.Event{Kind: events.KindPhaseMarker, PhaseName: pm.Name, IsStart: pm.IsStart, StepName: step.Name})
	return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
}
