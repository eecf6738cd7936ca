// Package peripheral implements the L0 peripheral-state level of the
// two-level hardware state machine: it owns the desired
// PeripheralState, diffs it against the template for a requested
// CoarseState, and emits the resulting actuator commands in the
// deterministic order the wire protocol requires.
//
// Controller does not lock anything itself. The owning coordinator
// (internal/hwstate.Rig) holds the single shared lock required across
// L0 and L1 and calls into Controller only while holding it — except
// that Controller is handed the lock pointer so it can deliberately
// release it mid soft-start-ramp (the soft-start constraint: the lock
// is released between individual sub-commands).
package peripheral

import (
	"context"
	"sync"
	"time"

	"github.com/enose-rig/enosectl/internal/actuator"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
)

// softStartSteps is the number of equal-ramp SET_PIN commands emitted
// when the cleaning pump's PWM increases ("ramp from
// 0->1 emits exactly 10 set-PWM commands").
const softStartSteps = 10

// softStartInterval is the spacing between ramp steps.
const softStartInterval = 100 * time.Millisecond

// InjectParams is start_inject's input: per-axis metering distances and
// a speed the feedrate is derived from (feedrate = speed*60, per
// below).
type InjectParams struct {
	DistancesMM [program.PumpCount]float64
	SpeedMMPerS float64
}

// Controller owns L0's current applied PeripheralState.
type Controller struct {
	mu     *sync.Mutex // shared with the owning Rig; used only for ramp release
	driver actuator.Driver
	logger *logging.Logger

	current       program.PeripheralState
	currentCoarse program.CoarseState
	// lastCleanPumpPWM tracks the previously applied cleaning-pump PWM
	// so the soft-start ramp knows its starting point (program.Diff
	// only carries a changed bool, not the prior value).
	lastCleanPumpPWM float64

	// OnStateChanged is fired at the end of a successful TransitionTo,
	// after commands have been emitted. It is the "on_state_changed
	// subscriber" — the activity machine
	// subscribes here to implement reverse sync.
	OnStateChanged func(old, new program.CoarseState)
}

// NewController constructs a Controller starting at StateInitial. mu
// must be the same mutex the owning Rig locks before calling any
// Controller method.
func NewController(mu *sync.Mutex, driver actuator.Driver, logger *logging.Logger) *Controller {
	return &Controller{
		mu:            mu,
		driver:        driver,
		logger:        logger,
		current:       program.CoarseTemplates[program.StateInitial],
		currentCoarse: program.StateInitial,
	}
}

// Current returns the current applied PeripheralState.
func (c *Controller) Current() program.PeripheralState { return c.current }

// CurrentCoarse returns the CoarseState the current PeripheralState was
// last targeted at.
func (c *Controller) CurrentCoarse() program.CoarseState { return c.currentCoarse }

// TransitionTo applies target's template, diffs it against the current
// applied state, and emits the resulting commands. The caller must hold
// the shared lock. A no-op if already at target.
func (c *Controller) TransitionTo(ctx context.Context, target program.CoarseState) {
	if c.currentCoarse == target {
		return
	}

	if c.driver == nil {
		c.logger.Error("peripheral transition skipped: no actuator driver", "target", target.String())
		return
	}

	old := c.currentCoarse

	// any transition while metering pumps run
	// first emits the async-stop command, then the diff-derived
	// commands.
	if c.current.AnyMeteringRunning() {
		c.send(ctx, actuator.AsyncStop())
		for i := range c.current.Metering {
			c.current.Metering[i] = program.MeteringPumpState{}
		}
	}

	next := program.CoarseTemplates[target]
	// Preserve whatever metering state survived the async-stop above;
	// the template for non-inject states always has all pumps stopped
	// anyway, and start_inject sets them explicitly afterwards.
	next.Metering = c.current.Metering

	diff := program.DiffStates(c.current, next)
	c.current = next
	c.currentCoarse = target

	c.emitDiff(ctx, diff)

	c.logger.Info("peripheral transition", "from", old.String(), "to", target.String())

	if c.OnStateChanged != nil {
		c.OnStateChanged(old, target)
	}
}

// emitDiff issues commands in the deterministic order required:
// valves before pumps, pumps-stopped before pumps-started, with the
// linked pinch-valve pins batched alongside their trigger and the
// cleaning pump soft-started.
func (c *Controller) emitDiff(ctx context.Context, d program.Diff) {
	if d.ValveWasteChanged {
		c.send(ctx, actuator.SetPinInt(actuator.PinValveWaste, int(c.current.ValveWaste)))
	}
	if d.ValvePinchChanged {
		v := int(c.current.ValvePinch)
		c.send(ctx, actuator.SetPinInt(actuator.PinValvePinch, v))
		c.send(ctx, actuator.SetPinInt(actuator.PinValvePinchFanA, v))
		c.send(ctx, actuator.SetPinInt(actuator.PinValvePinchFanB, v))
	}
	if d.ValveGasChanged {
		c.send(ctx, actuator.SetPinInt(actuator.PinValveGas, int(c.current.ValveGas)))
	}
	if d.ValveRinseChanged {
		c.send(ctx, actuator.SetPinInt(actuator.PinValveRinse, int(c.current.ValveRinse)))
	}

	// Metering pumps are stopped via the async-stop path in
	// TransitionTo, not individually here; MeteringStopped/
	// MeteringStarted only matter to StartInject/StopInject.

	if d.AirPumpChanged {
		c.send(ctx, actuator.SetPinFloat(actuator.PinAirPump, c.current.AirPumpPWM))
	}
	if d.CleanPumpChanged {
		c.softStartCleanPump(ctx, d)
	}
	if d.HeaterChanged {
		c.send(ctx, actuator.SetPinFloat(actuator.PinHeater, c.current.HeaterPWM))
	}
}

// softStartCleanPump: increasing
// PWM ramps over 10 equal steps spaced 100ms apart, releasing the
// shared lock between steps so the reverse-sync subscriber can preempt
// (the soft-start constraint); decreasing PWM is a single
// immediate set.
func (c *Controller) softStartCleanPump(ctx context.Context, _ program.Diff) {
	target := c.current.CleanPumpPWM
	increasing := target > c.lastCleanPumpPWM

	if !increasing {
		c.send(ctx, actuator.SetPinFloat(actuator.PinCleanPump, target))
		c.lastCleanPumpPWM = target
		return
	}

	start := c.lastCleanPumpPWM
	step := (target - start) / float64(softStartSteps)
	for i := 1; i <= softStartSteps; i++ {
		v := start + step*float64(i)
		c.send(ctx, actuator.SetPinFloat(actuator.PinCleanPump, v))

		if i == softStartSteps {
			break
		}
		if c.mu != nil {
			c.mu.Unlock()
		}
		select {
		case <-time.After(softStartInterval):
		case <-ctx.Done():
		}
		if c.mu != nil {
			c.mu.Lock()
		}
	}
	c.lastCleanPumpPWM = target
}

func (c *Controller) send(ctx context.Context, line string) {
	if c.driver == nil {
		return
	}
	if err := c.driver.SendCommand(ctx, line); err != nil {
		// Command-send failures are the driver's own concern: logged
		// here, not surfaced as a TransitionTo error.
		c.logger.Error("actuator command failed", "command", line, "error", err)
	}
}

// StartInject registers the eight metering-pump axes and issues one
// multi-axis parallel move. It first transitions to
// StateInject.
func (c *Controller) StartInject(ctx context.Context, params InjectParams) {
	c.TransitionTo(ctx, program.StateInject)

	c.send(ctx, actuator.RegisterPumpsToAxis())

	for i, d := range params.DistancesMM {
		c.current.Metering[i] = program.MeteringPumpState{Running: d != 0, DistanceMM: d}
	}

	feedrate := params.SpeedMMPerS * 60
	c.send(ctx, actuator.ParallelMove(params.DistancesMM, feedrate))
}

// StopInject emits the async-stop command, marks all metering pumps
// stopped, and transitions back to StateInitial.
func (c *Controller) StopInject(ctx context.Context) {
	c.send(ctx, actuator.AsyncStop())
	for i := range c.current.Metering {
		c.current.Metering[i] = program.MeteringPumpState{}
	}
	c.TransitionTo(ctx, program.StateInitial)
}

// SetGasPumpPWM sets the air pump's PWM directly, independent of
// CoarseState (SetGasPump never changes coarse state).
func (c *Controller) SetGasPumpPWM(ctx context.Context, pwm float64) {
	c.current.AirPumpPWM = pwm
	c.send(ctx, actuator.SetPinFloat(actuator.PinAirPump, pwm))
}
