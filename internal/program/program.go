package program

import "fmt"

// LiquidType classifies a LiquidInventory entry.
type LiquidType int

const (
	LiquidUnspecified LiquidType = iota
	LiquidRinse
	LiquidSample
	LiquidCalibration
)

// LiquidInventory describes one bottle of liquid wired to a metering
// pump.
type LiquidInventory struct {
	ID              string
	Name            string
	PumpIndex       int
	Type            LiquidType
	AvailableML     float64
	DensityGPerML   float64 // 0 means unknown/unspecified
}

// HardwareConstraints is the rig's static configuration: bottle
// capacity, max safe fill level, the air pump's PWM ceiling, and the
// liquid inventory.
type HardwareConstraints struct {
	BottleCapacityML float64
	MaxFillML        float64
	MaxGasPumpPWM    float64
	Liquids          []LiquidInventory
}

// LiquidByID returns the inventory entry with the given id, or false.
func (h *HardwareConstraints) LiquidByID(id string) (LiquidInventory, bool) {
	for _, l := range h.Liquids {
		if l.ID == id {
			return l, true
		}
	}
	return LiquidInventory{}, false
}

// FirstRinseLiquid returns the first inventory entry of type rinse, used
// by Wash steps that don't name one explicitly.
func (h *HardwareConstraints) FirstRinseLiquid() (LiquidInventory, bool) {
	for _, l := range h.Liquids {
		if l.Type == LiquidRinse {
			return l, true
		}
	}
	return LiquidInventory{}, false
}

// Component is one ingredient of an Inject action: a liquid id and its
// fraction of the total target volume. Ratios across an Inject's
// Components must sum to 1.
type Component struct {
	LiquidID string
	Ratio    float64
}

// ConditionKind is the discriminator for Wait/Acquire termination
// conditions.
type ConditionKind int

const (
	ConditionNone ConditionKind = iota
	ConditionDuration
	ConditionHeaterCycles
	ConditionStability
	ConditionWeight
	ConditionEmpty // Wait-only: specialized drain observation, no valve change
)

// Condition is a tagged union over the ways a Wait/Acquire can
// terminate.
type Condition struct {
	Kind ConditionKind

	DurationS float64

	HeaterCycles int

	// Stability window parameters.
	StabilityWindowS float64
	StabilityMaxSlope float64

	// Weight target parameters (also reused by the Empty condition as
	// the tolerance around the dynamic empty weight).
	TargetWeightG float64
	ToleranceG    float64
}

// InjectAction carries the parameters of an Inject step.
type InjectAction struct {
	// Exactly one of TargetVolumeML/TargetWeightG should be set; a zero
	// value in both is a validation error (no_target). Use HasVolume /
	// HasWeight at validation/execution time rather than comparing to 0,
	// since a caller may legitimately want a 0 mL injection (a no-op).
	HasVolume     bool
	TargetVolumeML float64
	HasWeight     bool
	TargetWeightG float64

	ToleranceG    float64
	FlowRateMLMin float64
	StableTimeoutS float64
	Components    []Component
}

// DrainAction carries the parameters of a Drain step.
type DrainAction struct {
	GasPumpPWM float64
	TimeoutS   float64
}

// AcquireAction carries the parameters of an Acquire step.
type AcquireAction struct {
	GasPumpPWM   float64
	Termination  Condition
	MaxDurationS float64
}

// WaitAction carries the parameters of a Wait step.
type WaitAction struct {
	Condition Condition
	TimeoutS  float64
}

// WashAction composes inject+drain repetitions.
type WashAction struct {
	RinseLiquidID string // empty = use HardwareConstraints.FirstRinseLiquid
	WashVolumeML  float64
	FlowRateMLMin float64
	RepeatCount   int
	FinalDrain    bool
}

// SetStateAction forces a CoarseState.
type SetStateAction struct {
	Target CoarseState
}

// SetGasPumpAction sets the air pump's PWM.
type SetGasPumpAction struct {
	PWM float64
}

// LoopAction executes its child Steps Count times in order.
type LoopAction struct {
	Steps []Step
	Count int
}

// PhaseMarkerAction emits an observable event with no hardware effect.
type PhaseMarkerAction struct {
	Name    string
	IsStart bool
}

// ActionKind tags which of the nine Action variants a Step carries.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionInject
	ActionDrain
	ActionAcquire
	ActionWash
	ActionWait
	ActionSetState
	ActionSetGasPump
	ActionLoop
	ActionPhaseMarker
)

// Tag returns the registry dispatch key for this ActionKind, per
// the action executor framework.
func (k ActionKind) Tag() string {
	switch k {
	case ActionInject:
		return "inject"
	case ActionDrain:
		return "drain"
	case ActionAcquire:
		return "acquire"
	case ActionWash:
		return "wash"
	case ActionWait:
		return "wait"
	case ActionSetState:
		return "set_state"
	case ActionSetGasPump:
		return "set_gas_pump"
	case ActionLoop:
		return "loop"
	case ActionPhaseMarker:
		return "phase_marker"
	default:
		return ""
	}
}

// Step is one node of a Program tree: a name plus exactly one of the
// nine Action variants.
type Step struct {
	Name   string
	Action ActionKind

	Inject      *InjectAction
	Drain       *DrainAction
	Acquire     *AcquireAction
	Wash        *WashAction
	Wait        *WaitAction
	SetState    *SetStateAction
	SetGasPump  *SetGasPumpAction
	Loop        *LoopAction
	PhaseMarker *PhaseMarkerAction
}

// Program is a tree of Steps, validated before execution.
type Program struct {
	Name  string
	Steps []Step
}

// Path renders the structured diagnostic path for a top-level step
// index, e.g. "steps[3]".
func Path(index int) string {
	return fmt.Sprintf("steps[%d]", index)
}

// ResolveInjectVolumes computes the total target volume and the per-pump
// volume to dispense for an Inject action: use
// target_volume_ml directly if set, otherwise derive it from
// target_weight_g and the ratio-weighted density of the named
// components. Shared by the Inject executor and the validator's
// resource simulation so both apply the identical rule.
func ResolveInjectVolumes(in *InjectAction, hw *HardwareConstraints) (float64, map[int]float64, error) {
	if len(in.Components) == 0 {
		return 0, nil, fmt.Errorf("inject action names no components")
	}

	var ratioSum float64
	for _, c := range in.Components {
		ratioSum += c.Ratio
	}
	if ratioSum < 0.999999 || ratioSum > 1.000001 {
		return 0, nil, fmt.Errorf("component ratios sum to %.4f, want 1.0", ratioSum)
	}

	var total float64
	switch {
	case in.HasVolume:
		total = in.TargetVolumeML
	case in.HasWeight:
		var weightedDensity float64
		for _, c := range in.Components {
			liquid, ok := hw.LiquidByID(c.LiquidID)
			if !ok || liquid.DensityGPerML <= 0 {
				weightedDensity = 0
				break
			}
			weightedDensity += c.Ratio * liquid.DensityGPerML
		}
		if weightedDensity <= 0 {
			weightedDensity = 1.0
		}
		total = in.TargetWeightG / weightedDensity
	default:
		return 0, nil, fmt.Errorf("no_target: neither target_volume_ml nor target_weight_g set")
	}

	volumes := make(map[int]float64, len(in.Components))
	for _, c := range in.Components {
		liquid, ok := hw.LiquidByID(c.LiquidID)
		if !ok {
			return 0, nil, fmt.Errorf("unknown liquid id %q", c.LiquidID)
		}
		volumes[liquid.PumpIndex] += total * c.Ratio
	}
	return total, volumes, nil
}
