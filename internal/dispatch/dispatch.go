// Package dispatch implements the single per-step dispatch path shared
// by the top-level Execution Scheduler and the Loop primitive executor.
//
// This resolves an import cycle: the Loop primitive needs to dispatch
// child steps via the same registry the scheduler uses, so the Loop
// executor gets a borrowed reference to the scheduler's dispatch
// function rather than a back-pointer to the whole scheduler.
// Dispatcher is that borrowed reference: both
// internal/scheduler and internal/primitives' Loop executor hold one
// and call Dispatch, instead of Loop depending on the whole Scheduler
// type.
package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/enose-rig/enosectl/internal/cancel"
	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/executor"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/telemetry"
)

// Dispatcher looks an action up in the registry, checks preconditions,
// executes it, and emits the step lifecycle events. Metrics and Tracer
// are both optional: a nil Metrics or Tracer simply skips instrumentation
// rather than panicking.
type Dispatcher struct {
	Registry *executor.Registry
	Emitter  events.Emitter
	Logger   *logging.Logger
	Cancel   *cancel.Token
	Metrics  *telemetry.Metrics
	Tracer   trace.Tracer
}

// Dispatch runs one Step at the given structured path.
func (d *Dispatcher) Dispatch(ctx context.Context, path string, step program.Step) program.ExecutionResult {
	action := step.Action.Tag()

	if err := d.Cancel.CheckStopOrPause(ctx); err != nil {
		return d.fail(ctx, path, step, "CANCELLED", err.Error())
	}

	exec, ok := d.Registry.Get(step)
	if !ok {
		return d.fail(ctx, path, step, "NO_EXECUTOR", "no executor registered for this step's action")
	}

	pre := exec.CheckPreconditions(ctx, step)
	if !pre.Satisfied {
		msg := "precondition failed"
		if len(pre.FailedConditions) > 0 {
			msg = pre.FailedConditions[0]
		}
		return d.fail(ctx, path, step, "PRECONDITION_FAILED", msg)
	}

	d.emit(ctx, events.Event{Kind: events.KindStepStarted, StepPath: path, StepName: step.Name})

	if d.Tracer != nil {
		var span trace.Span
		ctx, span = telemetry.StepSpan(ctx, d.Tracer, path, action)
		defer span.End()
	}

	start := time.Now()
	res := exec.Execute(ctx, step)
	if res.DurationS == 0 {
		res.DurationS = time.Since(start).Seconds()
	}
	d.Metrics.ObserveStep(action, res.Success, time.Duration(res.DurationS*float64(time.Second)))

	if res.Success {
		d.emit(ctx, events.Event{
			Kind: events.KindStepCompleted, StepPath: path, StepName: step.Name,
			Duration: time.Duration(res.DurationS * float64(time.Second)),
		})
	} else {
		d.emit(ctx, events.Event{
			Kind: events.KindStepFailed, StepPath: path, StepName: step.Name,
			Code: res.ErrorCode, Message: res.ErrorMessage,
		})
	}
	return res
}

func (d *Dispatcher) fail(ctx context.Context, path string, step program.Step, code, msg string) program.ExecutionResult {
	d.Metrics.ObserveStep(step.Action.Tag(), false, 0)
	d.emit(ctx, events.Event{Kind: events.KindStepFailed, StepPath: path, StepName: step.Name, Code: code, Message: msg})
	return program.ExecutionResult{Success: false, ErrorCode: code, ErrorMessage: msg}
}

func (d *Dispatcher) emit(ctx context.Context, ev events.Event) {
	if d.Emitter == nil {
		return
	}
	d.Emitter.Emit(ctx, ev)
}

// Func is the function-shaped form of Dispatch, used where only the
// behavior (not the Dispatcher's fields) needs to be threaded through.
type Func func(ctx context.Context, path string, step program.Step) program.ExecutionResult

// AsFunc adapts d.Dispatch to Func.
func (d *Dispatcher) AsFunc() Func { return d.Dispatch }
