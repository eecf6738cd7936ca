package primitives

import (
	"context"
	"fmt"
	"time"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/program"
)

// Fixed parameters for Wash's internally synthesized inject/drain
// sub-steps. WashAction only carries the rinse liquid, volume, flow
// rate, and repeat count — the settle tolerance and gas pump power for
// the rinse/drain cycle are hardware constants, same as drainToleranceG
// in drain.go.
const (
	washToleranceG     = 0.3
	washStableTimeoutS = 10.0
	washDrainPWM       = 1.0
	washDrainTimeoutS  = 15.0
)

// Wash implements the Wash primitive: a composite action that
// repeats an inject-then-drain rinse cycle RepeatCount times, optionally
// followed by one final drain, by dispatching directly to the inject and
// drain executors rather than duplicating their logic.
type Wash struct {
	Deps
	inject *Inject
	drain  *Drain
}

// NewWash constructs a Wash executor, wiring its own Inject and Drain
// sub-executors from the same Deps.
func NewWash(deps Deps) *Wash {
	return &Wash{Deps: deps, inject: NewInject(deps), drain: NewDrain(deps)}
}

func (e *Wash) Name() string { return "wash" }

func (e *Wash) IsIdempotent() bool { return false }

func (e *Wash) RequiredResources() []string {
	return []string{"liquid_pump", "air_pump", "load_cell"}
}

func (e *Wash) CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult {
	w := step.Wash
	if w == nil {
		return program.PreconditionResult{FailedConditions: []string{"step carries no wash action"}}
	}
	if w.RepeatCount <= 0 {
		return program.PreconditionResult{FailedConditions: []string{"repeat_count must be > 0"}}
	}
	if w.WashVolumeML <= 0 {
		return program.PreconditionResult{FailedConditions: []string{"wash_volume_ml must be > 0"}}
	}
	if _, ok := e.rinseLiquid(w); !ok {
		return program.PreconditionResult{FailedConditions: []string{"no rinse liquid resolvable (neither rinse_liquid_id nor a liquid of type rinse)"}}
	}
	return program.PreconditionResult{Satisfied: true}
}

func (e *Wash) EstimateDuration(step program.Step) float64 {
	w := step.Wash
	if w == nil {
		return 0
	}
	flow := w.FlowRateMLMin
	if flow <= 0 {
		flow = 1
	}
	cycle := w.WashVolumeML/flow*60 + washStableTimeoutS + washDrainTimeoutS
	total := cycle * float64(w.RepeatCount)
	if w.FinalDrain {
		total += washDrainTimeoutS
	}
	return total
}

func (e *Wash) rinseLiquid(w *program.WashAction) (program.LiquidInventory, bool) {
	if w.RinseLiquidID != "" {
		return e.Hardware.LiquidByID(w.RinseLiquidID)
	}
	return e.Hardware.FirstRinseLiquid()
}

func (e *Wash) Execute(ctx context.Context, step program.Step) program.ExecutionResult {
	start := time.Now()
	w := step.Wash

	rinse, ok := e.rinseLiquid(w)
	if !ok {
		return program.ExecutionResult{Success: false, ErrorCode: "NO_RINSE_LIQUID", ErrorMessage: "no rinse liquid resolvable"}
	}

	for i := 0; i < w.RepeatCount; i++ {
		if err := e.Cancel.CheckStopOrPause(ctx); err != nil {
			return program.ExecutionResult{Success: false, ErrorCode: "CANCELLED", ErrorMessage: err.Error()}
		}

		injectStep := program.Step{
			Name:   fmt.Sprintf("%s_rinse_%d", step.Name, i),
			Action: program.ActionInject,
			Inject: &program.InjectAction{
				HasVolume:      true,
				TargetVolumeML: w.WashVolumeML,
				ToleranceG:     washToleranceG,
				FlowRateMLMin:  w.FlowRateMLMin,
				StableTimeoutS: washStableTimeoutS,
				Components:     []program.Component{{LiquidID: rinse.ID, Ratio: 1}},
			},
		}
		if res := e.inject.Execute(ctx, injectStep); !res.Success {
			return res
		}

		drainStep := program.Step{
			Name:   fmt.Sprintf("%s_drain_%d", step.Name, i),
			Action: program.ActionDrain,
			Drain:  &program.DrainAction{GasPumpPWM: washDrainPWM, TimeoutS: washDrainTimeoutS},
		}
		if res := e.drain.Execute(ctx, drainStep); !res.Success {
			return res
		}
	}

	if w.FinalDrain {
		drainStep := program.Step{
			Name:   step.Name + "_final_drain",
			Action: program.ActionDrain,
			Drain:  &program.DrainAction{GasPumpPWM: washDrainPWM, TimeoutS: washDrainTimeoutS},
		}
		if res := e.drain.Execute(ctx, drainStep); !res.Success {
			return res
		}
	}

	e.emit(events.Event{Kind: events.KindStepCompleted, StepName: step.Name})
	return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
}
