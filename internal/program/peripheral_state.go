// Package program holds the declarative data model shared by the rest of
// the control core: the hardware configuration types (CoarseState,
// PeripheralState), the experiment Program tree (Step/Action), the
// inventory/constraint types the validator checks against, and the
// result/estimate shapes every other package returns.
//
// Nothing in this package touches hardware or holds a lock — it is pure
// data plus the small pieces of arithmetic (templates, projection/lift)
// that every other package needs a single shared definition of.
package program

// CoarseState is the top-level peripheral configuration label (L0 in the
// design docs).
type CoarseState int

const (
	StateInitial CoarseState = iota
	StateDrain
	StateClean
	StateSample
	StateInject
)

func (s CoarseState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateDrain:
		return "drain"
	case StateClean:
		return "clean"
	case StateSample:
		return "sample"
	case StateInject:
		return "inject"
	default:
		return "unknown"
	}
}

// ValvePosition is the binary nominal position of a named valve.
type ValvePosition int

const (
	ValveA ValvePosition = iota
	ValveB
)

// MeteringPumpState is a single metering pump's run state plus the motion
// request attached to it while running.
type MeteringPumpState struct {
	Running bool
	// DistanceMM is the requested axis travel for the current move; only
	// meaningful while Running.
	DistanceMM float64
}

// PumpCount is the number of metering pumps the rig exposes. The
// Open Question about a 4-pump vs 8-pump SystemState is resolved in favor
// of the 8-pump form.
const PumpCount = 8

// PeripheralState is an immutable snapshot of the desired configuration
// of every actuator: four named valves, two PWM pumps (air, cleaning),
// eight metering pumps, and one heater.
type PeripheralState struct {
	ValveWaste  ValvePosition
	ValvePinch  ValvePosition
	ValveGas    ValvePosition
	ValveRinse  ValvePosition
	AirPumpPWM  float64
	CleanPumpPWM float64
	HeaterPWM   float64
	Metering    [PumpCount]MeteringPumpState
}

// AnyMeteringRunning reports whether at least one metering pump is
// currently running.
func (p PeripheralState) AnyMeteringRunning() bool {
	for _, m := range p.Metering {
		if m.Running {
			return true
		}
	}
	return false
}

// Diff describes which fields changed between two PeripheralState values,
// in the deterministic order commands must be emitted:
// valves before pumps, pumps-stopped before pumps-started.
type Diff struct {
	ValveWasteChanged bool
	ValvePinchChanged bool
	ValveGasChanged   bool
	ValveRinseChanged bool
	AirPumpChanged    bool
	CleanPumpChanged  bool
	HeaterChanged     bool
	MeteringStopped   []int // pump indices that transitioned running->stopped
	MeteringStarted   []int // pump indices that transitioned stopped->running
}

// IsZero reports whether the diff carries no changes at all.
func (d Diff) IsZero() bool {
	return !d.ValveWasteChanged && !d.ValvePinchChanged && !d.ValveGasChanged &&
		!d.ValveRinseChanged && !d.AirPumpChanged && !d.CleanPumpChanged &&
		!d.HeaterChanged && len(d.MeteringStopped) == 0 && len(d.MeteringStarted) == 0
}

// DiffStates computes the Diff taking old to new.
func DiffStates(old, new PeripheralState) Diff {
	var d Diff
	d.ValveWasteChanged = old.ValveWaste != new.ValveWaste
	d.ValvePinchChanged = old.ValvePinch != new.ValvePinch
	d.ValveGasChanged = old.ValveGas != new.ValveGas
	d.ValveRinseChanged = old.ValveRinse != new.ValveRinse
	d.AirPumpChanged = old.AirPumpPWM != new.AirPumpPWM
	d.CleanPumpChanged = old.CleanPumpPWM != new.CleanPumpPWM
	d.HeaterChanged = old.HeaterPWM != new.HeaterPWM
	for i := 0; i < PumpCount; i++ {
		o, n := old.Metering[i], new.Metering[i]
		if o.Running && !n.Running {
			d.MeteringStopped = append(d.MeteringStopped, i)
		} else if !o.Running && n.Running {
			d.MeteringStarted = append(d.MeteringStarted, i)
		}
	}
	return d
}

// CoarseTemplates maps each CoarseState to its predefined PeripheralState
// template: initial is idle; drain opens waste and runs
// the air pump; clean routes liquid through the pinch and rinse valves
// (its template leaves CleanPumpPWM at 0, so entering clean does not
// start the cleaning pump); sample
// routes gas to the chamber and runs the air pump; inject routes liquid
// and lets metering pumps be driven individually (so its template leaves
// the Metering array at whatever the caller sets afterwards).
var CoarseTemplates = map[CoarseState]PeripheralState{
	StateInitial: {
		ValveWaste: ValveA,
		ValvePinch: ValveA,
		ValveGas:   ValveA,
		ValveRinse: ValveA,
	},
	StateDrain: {
		ValveWaste: ValveB,
		ValvePinch: ValveA,
		ValveGas:   ValveA,
		ValveRinse: ValveA,
		AirPumpPWM: 1.0,
	},
	StateClean: {
		ValveWaste: ValveA,
		ValvePinch: ValveB,
		ValveGas:   ValveA,
		ValveRinse: ValveB,
	},
	StateSample: {
		ValveWaste: ValveA,
		ValvePinch: ValveA,
		ValveGas:   ValveB,
		ValveRinse: ValveA,
		AirPumpPWM: 1.0,
	},
	StateInject: {
		ValveWaste: ValveA,
		ValvePinch: ValveB,
		ValveGas:   ValveA,
		ValveRinse: ValveA,
	},
}
