// Package scheduler implements the Execution Scheduler: a
// program cursor walking a Program's top-level Steps in order, routed
// through internal/dispatch.Dispatcher, with cooperative pause/stop via
// internal/cancel.Token and a structured ExperimentStatus a caller can
// poll at any point during the run.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/enose-rig/enosectl/internal/cancel"
	"github.com/enose-rig/enosectl/internal/dispatch"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/telemetry"
)

// Scheduler walks one Program at a time; Run is not re-entrant on the
// same Scheduler — callers that need concurrent programs construct one
// Scheduler per run.
type Scheduler struct {
	Dispatcher   *dispatch.Dispatcher
	Cancel       *cancel.Token
	Logger       *logging.Logger
	Activity     func() program.ActivityState // current L1 phase, for status reporting
	ForceInitial func(ctx context.Context)    // forces L0 back to initial on any step failure
	Metrics      *telemetry.Metrics           // optional; nil skips instrumentation

	mu     sync.Mutex
	status program.ExperimentStatus
	start  time.Time
}

// New constructs a Scheduler. forceInitial is called whenever Run stops
// on a failed or cancelled step, so L0 never sits in a workflow's
// coarse state once the scheduler itself has abandoned that workflow.
func New(dispatcher *dispatch.Dispatcher, tok *cancel.Token, logger *logging.Logger, activity func() program.ActivityState, forceInitial func(ctx context.Context)) *Scheduler {
	return &Scheduler{Dispatcher: dispatcher, Cancel: tok, Logger: logger, Activity: activity, ForceInitial: forceInitial}
}

// Run walks prog's top-level steps in order, dispatching each and
// stopping at the first failure or cancellation. It does not validate
// prog first — callers should run it through internal/validator before
// Run, keeping validation and execution as separate concerns.
func (s *Scheduler) Run(ctx context.Context, prog program.Program) program.ExecutionResult {
	s.start = time.Now()
	s.Cancel.Reset()
	s.publish(prog, 0, "", "", true)

	if s.Metrics != nil {
		s.Metrics.ActiveExperiments.Inc()
		defer s.Metrics.ActiveExperiments.Dec()
	}

	for i, step := range prog.Steps {
		if err := s.Cancel.CheckStopOrPause(ctx); err != nil {
			s.publish(prog, i, program.Path(i), step.Name, false)
			s.forceInitial(ctx)
			return program.ExecutionResult{Success: false, ErrorCode: "CANCELLED", ErrorMessage: err.Error(), DurationS: time.Since(s.start).Seconds()}
		}

		path := program.Path(i)
		s.publish(prog, i, path, step.Name, true)

		res := s.Dispatcher.Dispatch(ctx, path, step)
		if !res.Success {
			s.recordResult(res)
			s.publish(prog, i, path, step.Name, false)
			s.forceInitial(ctx)
			return res
		}
	}

	s.recordResult(program.ExecutionResult{Success: true})
	s.publish(prog, len(prog.Steps), "", "", false)
	return program.ExecutionResult{Success: true, DurationS: time.Since(s.start).Seconds()}
}

// Pause requests a pause before the next cooperative yield point.
func (s *Scheduler) Pause() { s.Cancel.RequestPause() }

// Resume clears a pause requested with Pause.
func (s *Scheduler) Resume() { s.Cancel.Resume() }

// Stop requests the run halt at the next cooperative yield point.
func (s *Scheduler) Stop() { s.Cancel.RequestStop() }

// Status returns a snapshot of the scheduler's current ExperimentStatus.
func (s *Scheduler) Status() program.ExperimentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) publish(prog program.Program, stepIndex int, path, name string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.ProgramName = prog.Name
	s.status.CurrentPath = path
	s.status.CurrentName = name
	s.status.StepIndex = stepIndex
	s.status.TotalSteps = len(prog.Steps)
	s.status.Elapsed = time.Since(s.start)
	s.status.Running = running
	s.status.Paused = s.Cancel.IsPaused()
	if s.Activity != nil {
		s.status.Phase = s.Activity()
	}
}

// forceInitial commands L0 back to initial after a failed or cancelled
// step, so a dead workflow never leaves the rig parked mid-sequence.
func (s *Scheduler) forceInitial(ctx context.Context) {
	if s.ForceInitial != nil {
		s.ForceInitial(ctx)
	}
}

func (s *Scheduler) recordResult(res program.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastCode = res.ErrorCode
	s.status.LastMessage = res.ErrorMessage
}
