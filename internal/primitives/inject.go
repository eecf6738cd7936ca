package primitives

import (
	"context"
	"time"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/peripheral"
	"github.com/enose-rig/enosectl/internal/program"
)

// Inject implements the Inject primitive: target-state
// L0=inject, L1=inject_running, followed by inject_stabilizing. A
// zero-volume injection is a no-op beyond the state transition: no
// motion command is emitted.
type Inject struct {
	Deps
}

// NewInject constructs an Inject executor over deps.
func NewInject(deps Deps) *Inject { return &Inject{Deps: deps} }

func (e *Inject) Name() string { return "inject" }

func (e *Inject) IsIdempotent() bool { return false }

func (e *Inject) RequiredResources() []string { return []string{"liquid_pump", "load_cell"} }

func (e *Inject) CheckPreconditions(ctx context.Context, step program.Step) program.PreconditionResult {
	in := step.Inject
	if in == nil {
		return program.PreconditionResult{FailedConditions: []string{"step carries no inject action"}}
	}
	if !in.HasVolume && !in.HasWeight {
		return program.PreconditionResult{FailedConditions: []string{"no_target: neither target_volume_ml nor target_weight_g set"}}
	}
	if _, _, err := program.ResolveInjectVolumes(in, e.Hardware); err != nil {
		return program.PreconditionResult{FailedConditions: []string{err.Error()}}
	}
	phase := e.Rig.Snapshot().Activity
	if phase == program.ActivityError || phase == program.ActivityEmergencyStop {
		return program.PreconditionResult{FailedConditions: []string{"rig is in error/emergency_stop"}}
	}
	return program.PreconditionResult{Satisfied: true}
}

func (e *Inject) EstimateDuration(step program.Step) float64 {
	in := step.Inject
	if in == nil {
		return 0
	}
	total, _, err := program.ResolveInjectVolumes(in, e.Hardware)
	if err != nil || total == 0 {
		return 0
	}
	flow := in.FlowRateMLMin
	if flow <= 0 {
		flow = 1
	}
	moveS := total / flow * 60
	return moveS + in.StableTimeoutS
}

func (e *Inject) Execute(ctx context.Context, step program.Step) program.ExecutionResult {
	start := time.Now()
	in := step.Inject

	total, volumes, err := program.ResolveInjectVolumes(in, e.Hardware)
	if err != nil {
		return program.ExecutionResult{Success: false, ErrorCode: "NO_TARGET", ErrorMessage: err.Error()}
	}

	g := openGuards(e.Logger, "inject", e.Rig)
	defer g.close(ctx)

	if err := g.requestPhase(ctx, e.Rig, program.ActivityInjectPreparing); err != nil {
		return program.ExecutionResult{Success: false, ErrorCode: "PRECONDITION_FAILED", ErrorMessage: err.Error()}
	}

	if total == 0 {
		g.commitIdle(ctx)
		return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
	}

	preWeight, _, err := e.LoadCell.GetWeight(ctx)
	if err != nil {
		return program.ExecutionResult{Success: false, ErrorCode: "SENSOR_ERROR", ErrorMessage: err.Error()}
	}

	if err := g.requestPhase(ctx, e.Rig, program.ActivityInjectRunning); err != nil {
		return program.ExecutionResult{Success: false, ErrorCode: "PRECONDITION_FAILED", ErrorMessage: err.Error()}
	}

	var distances [program.PumpCount]float64
	speedMMPerS := 1.0
	flow := in.FlowRateMLMin
	if flow <= 0 {
		flow = 1
	}
	for pumpIndex, ml := range volumes {
		distances[pumpIndex] = e.Volume.MMForML(pumpIndex, ml)
		speedMMPerS = e.Volume.MMForML(pumpIndex, flow) / 60
	}

	e.Rig.StartInject(ctx, peripheral.InjectParams{DistancesMM: distances, SpeedMMPerS: speedMMPerS})

	moveS := total / flow * 60
	if err := observeDuration(ctx, e.Cancel, moveS); err != nil {
		e.Rig.StopInject(ctx)
		return program.ExecutionResult{Success: false, ErrorCode: "CANCELLED", ErrorMessage: err.Error()}
	}

	if err := g.requestPhase(ctx, e.Rig, program.ActivityInjectStabilizing); err != nil {
		return program.ExecutionResult{Success: false, ErrorCode: "PRECONDITION_FAILED", ErrorMessage: err.Error()}
	}

	expected, hasExpected := expectedAddedWeight(in)
	var stableErr error
	if hasExpected {
		_, stableErr = observeWeightTarget(ctx, e.Cancel, e.LoadCell, preWeight+expected, in.ToleranceG, in.StableTimeoutS)
	} else {
		_, stableErr = observeLoadCellStable(ctx, e.Cancel, e.LoadCell, in.StableTimeoutS)
	}
	if stableErr != nil {
		code := "WEIGHT_STABILITY_TIMEOUT"
		if stableErr != ErrTimeout {
			code = "CANCELLED"
		}
		return program.ExecutionResult{Success: false, ErrorCode: code, ErrorMessage: stableErr.Error()}
	}

	g.commitIdle(ctx)
	e.emit(events.Event{Kind: events.KindStepCompleted, StepName: step.Name})
	return program.ExecutionResult{Success: true, DurationS: time.Since(start).Seconds()}
}

// expectedAddedWeight returns the grams the injection should add (its
// target_weight_g), for comparison against the post-move load-cell
// reading. Volume-mode injections return false: component densities are
// not used, so those wait only on the load cell's stability flag.
func expectedAddedWeight(in *program.InjectAction) (float64, bool) {
	if in.HasWeight {
		return in.TargetWeightG, true
	}
	return 0, false
}
