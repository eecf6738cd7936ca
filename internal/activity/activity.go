// Package activity implements the L1 activity-state level of the
// two-level hardware state machine: fine-grained phase
// tracking over a sparse admissible-transition graph, mirroring every
// change down to L0 and accepting reverse updates pushed back up from
// it.
//
// Like peripheral.Controller, Machine is not thread-safe on its own —
// the owning internal/hwstate.Rig holds the single lock
// requires across L0 and L1 and calls Machine's methods only while
// holding it.
package activity

import (
	"context"
	"fmt"

	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/peripheral"
	"github.com/enose-rig/enosectl/internal/program"
)

// ErrInvalidTransition is returned by RequestTransition when target is
// not admissible from the current state.
type ErrInvalidTransition struct {
	Current program.ActivityState
	Target  program.ActivityState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid_transition: %s -> %s is not admissible", e.Current, e.Target)
}

// Machine owns L1's current ActivityState and mirrors it to L0.
type Machine struct {
	l0      *peripheral.Controller
	logger  *logging.Logger
	current program.ActivityState

	// OnTransition is fired after every successful Request/Force
	// transition (not on echo suppression), letting the owning Rig
	// publish a state_changed event.
	OnTransition func(old, new program.ActivityState)
}

// NewMachine constructs a Machine starting at ActivityIdle, wired to l0.
// It subscribes to l0's OnStateChanged to implement reverse sync.
func NewMachine(l0 *peripheral.Controller, logger *logging.Logger) *Machine {
	m := &Machine{l0: l0, logger: logger, current: program.ActivityIdle}
	l0.OnStateChanged = m.onL0Changed
	return m
}

// Current returns the current ActivityState.
func (m *Machine) Current() program.ActivityState { return m.current }

// RequestTransition rejects target if it is not admissible from the
// current state; otherwise it updates L1 and cascades to L0 via
// l0.TransitionTo(project(target)).
func (m *Machine) RequestTransition(ctx context.Context, target program.ActivityState) error {
	if !program.Admissible(m.current, target) {
		return &ErrInvalidTransition{Current: m.current, Target: target}
	}
	m.apply(ctx, target)
	return nil
}

// ForceTransition updates L1 and cascades to L0 without an
// admissibility check, used by emergency paths and guard rollback.
func (m *Machine) ForceTransition(ctx context.Context, target program.ActivityState) {
	m.apply(ctx, target)
}

func (m *Machine) apply(ctx context.Context, target program.ActivityState) {
	old := m.current
	m.current = target
	m.l0.TransitionTo(ctx, program.Project(target))

	if old != target {
		m.logger.Info("activity transition", "from", old.String(), "to", target.String())
		if m.OnTransition != nil {
			m.OnTransition(old, target)
		}
	}
}

// EmergencyStop force-transitions to ActivityEmergencyStop.
func (m *Machine) EmergencyStop(ctx context.Context) {
	m.logger.Warn("emergency stop requested")
	m.ForceTransition(ctx, program.ActivityEmergencyStop)
}

// RecoverFromError forces to idle; only valid from Error or
// EmergencyStop.
func (m *Machine) RecoverFromError(ctx context.Context) error {
	if m.current != program.ActivityError && m.current != program.ActivityEmergencyStop {
		return &ErrInvalidTransition{Current: m.current, Target: program.ActivityIdle}
	}
	m.ForceTransition(ctx, program.ActivityIdle)
	return nil
}

// onL0Changed is L0's OnStateChanged subscriber. If project(current) ==
// new this is a confirming echo of a change L1 itself just drove and is
// ignored (prevents feedback loops); otherwise L1 force-
// transitions to lift(new) to absorb an out-of-band L0 change (e.g. an
// emergency stop or hardware interlock driven directly at L0).
func (m *Machine) onL0Changed(old, new program.CoarseState) {
	if program.Project(m.current) == new {
		return
	}
	target := program.Lift(new)
	m.logger.Warn("reverse sync: L0 changed out of band", "l0_from", old.String(), "l0_to", new.String(), "l1_to", target.String())
	oldL1 := m.current
	m.current = target
	if oldL1 != target && m.OnTransition != nil {
		m.OnTransition(oldL1, target)
	}
}
