// Package primitives implements the nine primitive action executors:
// Inject, Drain, Acquire, Wash, Wait, SetState, SetGasPump, Loop, and
// PhaseMarker. Every executor shares the same skeleton: evaluate
// preconditions, open L0/L1 transaction guards at the appropriate
// target state, stream actuator commands, poll for sensor conditions
// with cooperative cancellation checks, and commit or let the guards
// auto-rollback.
package primitives

import (
	"context"
	"sync"
	"time"

	"github.com/enose-rig/enosectl/internal/calibration"
	"github.com/enose-rig/enosectl/internal/cancel"
	"github.com/enose-rig/enosectl/internal/dispatch"
	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/executor"
	"github.com/enose-rig/enosectl/internal/hwstate"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/sensor"
)

// pollInterval is how often executors re-sample the load cell / heater
// cycle counter while waiting on a condition.
const pollInterval = 200 * time.Millisecond

// Deps bundles everything a primitive executor needs, shared across all
// nine so construction stays uniform (mirrors the Config
// structs passed into New(...) constructors).
type Deps struct {
	Rig      *hwstate.Rig
	LoadCell sensor.LoadCell
	Heater   sensor.HeaterCycleCounter
	Hardware *program.HardwareConstraints
	Emitter  events.Emitter
	Logger   *logging.Logger
	Registry *executor.Registry
	Cancel   *cancel.Token
	Volume   calibration.VolumeToDistance

	// Dispatch is a borrowed reference to the scheduler's own dispatch
	// function (internal/dispatch.Dispatcher.AsFunc), letting Loop
	// recurse into child steps through the same registry/precondition/
	// event path a top-level step takes, without depending on the whole
	// scheduler type.
	Dispatch dispatch.Func

	// EmptyWeight is the running dynamic-empty-weight baseline shared
	// between Drain and Wait's kEmpty condition (see the Open
	// Question: kEmpty mirrors Drain's observation algorithm).
	EmptyWeight *EmptyWeightTracker
}

func (d *Deps) emit(ev events.Event) {
	if d.Emitter == nil {
		return
	}
	d.Emitter.Emit(context.Background(), ev)
}

// EmptyWeightTracker holds the last observed stable empty-bottle
// reading, used as the baseline for the next cycle's gross->net delta
// (the "Dynamic Empty Weight" baseline).
type EmptyWeightTracker struct {
	mu    sync.RWMutex
	value float64
	set   bool
}

// Get returns the current baseline and whether one has ever been set.
func (t *EmptyWeightTracker) Get() (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value, t.set
}

// Set updates the baseline to a newly observed settled value.
func (t *EmptyWeightTracker) Set(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = v
	t.set = true
}

// Reset forgets the running baseline (sweep controller's
// reset_dynamic_empty_weight).
func (t *EmptyWeightTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = 0
	t.set = false
}
