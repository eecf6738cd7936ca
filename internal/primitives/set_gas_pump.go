package primitives

import (
	"context"
	"time"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/program"
)

// SetGasPump implements the SetGasPump primitive: sets the air
// pump's PWM directly with no state transition.
type SetGasPump struct {
	Deps
}

func NewSetGasPump(deps Deps) *SetGasPump { return &SetGasPump{Deps: deps} }

func (e *SetGasPump) Name() string { return "set_gas_pump" }

func (e *SetGasPump) IsIdempotent() bool { return true }

func (e *SetGasPump) RequiredResources() []string { return []string{"air_pump"} }

func (e *SetGasPump) CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult {
	if step.SetGasPump == nil {
		return program.PreconditionResult{FailedConditions: []string{"step carries no set_gas_pump action"}}
	}
	if step.SetGasPump.PWM < 0 || step.SetGasPump.PWM > 1 {
		return program.PreconditionResult{FailedConditions: []string{"pwm out of [0,1] range"}}
	}
	return program.PreconditionResult{Satisfied: true}
}

func (e *SetGasPump) EstimateDuration(step program.Step) float64 { return 0 }

func (e *SetGasPump) Execute(ctx context.Context, step program.Step) program.ExecutionResult {
	start := time.Now()
	e.Rig.SetGasPumpPWM(ctx, step.SetGasPump.PWM)
	e.emit(events.Event{Kind: events.KindStepCompleted, StepName: step.Name})
	return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
}
