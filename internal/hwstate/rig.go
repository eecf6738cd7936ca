// Package hwstate wires the L0 peripheral.Controller and L1
// activity.Machine together behind a single lock: all mutations of L0
// and L1 serialize through one lock held for the duration of
// transition_to/request_transition/force_transition.
//
// Rig is the thing Transaction Guards, primitive executors, and the
// reverse-sync callback from the actuator driver all operate on.
package hwstate

import (
	"context"
	"sync"

	"github.com/enose-rig/enosectl/internal/activity"
	"github.com/enose-rig/enosectl/internal/actuator"
	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/peripheral"
	"github.com/enose-rig/enosectl/internal/program"
)

// Rig is the two-level hardware state machine.
type Rig struct {
	mu sync.Mutex

	L0 *peripheral.Controller
	L1 *activity.Machine

	emitter events.Emitter
	logger  *logging.Logger
}

// New constructs a Rig starting at StateInitial/ActivityIdle.
func New(driver actuator.Driver, emitter events.Emitter, logger *logging.Logger) *Rig {
	r := &Rig{emitter: emitter, logger: logger}
	r.L0 = peripheral.NewController(&r.mu, driver, logger)
	r.L1 = activity.NewMachine(r.L0, logger)
	r.L1.OnTransition = r.publishStateChanged
	return r
}

func (r *Rig) publishStateChanged(old, new program.ActivityState) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(context.Background(), events.Event{
		Kind:     events.KindStateChanged,
		OldState: program.Project(old),
		NewState: program.Project(new),
		Level:    new,
	})
}

// Lock acquires the shared lock. Callers (guards, executors) must pair
// every Lock with Unlock, typically via defer.
func (r *Rig) Lock() { r.mu.Lock() }

// Unlock releases the shared lock.
func (r *Rig) Unlock() { r.mu.Unlock() }

// RequestActivity is activity.Machine.RequestTransition under the
// shared lock.
func (r *Rig) RequestActivity(ctx context.Context, target program.ActivityState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.L1.RequestTransition(ctx, target)
}

// ForceActivity is activity.Machine.ForceTransition under the shared
// lock.
func (r *Rig) ForceActivity(ctx context.Context, target program.ActivityState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.L1.ForceTransition(ctx, target)
}

// EmergencyStop forces an emergency stop under the shared lock; only
// recoverable afterward via RecoverFromError.
func (r *Rig) EmergencyStop(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.L1.EmergencyStop(ctx)
}

// RecoverFromError forces L1 back to idle; fails if not currently in
// Error or EmergencyStop.
func (r *Rig) RecoverFromError(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.L1.RecoverFromError(ctx)
}

// PushReverseSync feeds an out-of-band L0 change (e.g. a hardware
// interlock reported by the driver's own callback thread) into the
// shared-lock path, exactly like any other L0 transition.
func (r *Rig) PushReverseSync(ctx context.Context, newL0 program.CoarseState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.L0.TransitionTo(ctx, newL0)
}

// StartInject starts a parallel injection move under the shared lock.
func (r *Rig) StartInject(ctx context.Context, params peripheral.InjectParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.L0.StartInject(ctx, params)
}

// StopInject stops an in-flight injection under the shared lock.
func (r *Rig) StopInject(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.L0.StopInject(ctx)
}

// SetGasPumpPWM sets the air pump's PWM directly under the shared lock,
// independent of CoarseState (the gas pump has no coarse state of its own).
func (r *Rig) SetGasPumpPWM(ctx context.Context, pwm float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.L0.SetGasPumpPWM(ctx, pwm)
}

// Snapshot is a consistent, lock-protected read of both levels.
type Snapshot struct {
	Coarse   program.CoarseState
	Activity program.ActivityState
	L0       program.PeripheralState
}

// Snapshot returns a consistent read of the current L0/L1 state.
func (r *Rig) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Coarse:   r.L0.CurrentCoarse(),
		Activity: r.L1.Current(),
		L0:       r.L0.Current(),
	}
}
