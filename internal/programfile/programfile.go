// Package programfile loads a program.Program from a YAML document,
// the declarative experiment description an operator hands to
// enosectl validate/run, using the same gopkg.in/yaml.v3 + env
// expansion idiom as internal/rigconfig.
package programfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/enose-rig/enosectl/internal/program"
)

// doc mirrors the YAML document's shape one-for-one before it is
// converted into the program package's runtime Step tree.
type doc struct {
	Name  string     `yaml:"name"`
	Steps []stepDoc  `yaml:"steps"`
}

type stepDoc struct {
	Name   string `yaml:"name"`
	Action string `yaml:"action"`

	Inject *struct {
		TargetVolumeML *float64        `yaml:"target_volume_ml"`
		TargetWeightG  *float64        `yaml:"target_weight_g"`
		ToleranceG     float64         `yaml:"tolerance_g"`
		FlowRateMLMin  float64         `yaml:"flow_rate_ml_min"`
		StableTimeoutS float64         `yaml:"stable_timeout_s"`
		Components     []componentDoc  `yaml:"components"`
	} `yaml:"inject"`

	Drain *struct {
		GasPumpPWM float64 `yaml:"gas_pump_pwm"`
		TimeoutS   float64 `yaml:"timeout_s"`
	} `yaml:"drain"`

	Acquire *struct {
		GasPumpPWM   float64       `yaml:"gas_pump_pwm"`
		Termination  conditionDoc  `yaml:"termination"`
		MaxDurationS float64       `yaml:"max_duration_s"`
	} `yaml:"acquire"`

	Wash *struct {
		RinseLiquidID string  `yaml:"rinse_liquid_id"`
		WashVolumeML  float64 `yaml:"wash_volume_ml"`
		FlowRateMLMin float64 `yaml:"flow_rate_ml_min"`
		RepeatCount   int     `yaml:"repeat_count"`
		FinalDrain    bool    `yaml:"final_drain"`
	} `yaml:"wash"`

	Wait *struct {
		Condition conditionDoc `yaml:"condition"`
		TimeoutS  float64      `yaml:"timeout_s"`
	} `yaml:"wait"`

	SetState *struct {
		Target string `yaml:"target"`
	} `yaml:"set_state"`

	SetGasPump *struct {
		PWM float64 `yaml:"pwm"`
	} `yaml:"set_gas_pump"`

	Loop *struct {
		Count int       `yaml:"count"`
		Steps []stepDoc `yaml:"steps"`
	} `yaml:"loop"`

	PhaseMarker *struct {
		Name    string `yaml:"name"`
		IsStart bool   `yaml:"is_start"`
	} `yaml:"phase_marker"`
}

type componentDoc struct {
	LiquidID string  `yaml:"liquid_id"`
	Ratio    float64 `yaml:"ratio"`
}

type conditionDoc struct {
	Kind              string  `yaml:"kind"`
	DurationS         float64 `yaml:"duration_s"`
	HeaterCycles      int     `yaml:"heater_cycles"`
	StabilityWindowS  float64 `yaml:"stability_window_s"`
	StabilityMaxSlope float64 `yaml:"stability_max_slope"`
	TargetWeightG     float64 `yaml:"target_weight_g"`
	ToleranceG        float64 `yaml:"tolerance_g"`
}

// Load reads path and converts it into a program.Program.
func Load(path string) (program.Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return program.Program{}, fmt.Errorf("read program file: %w", err)
	}

	expanded := os.ExpandEnv(string(raw))

	var d doc
	if err := yaml.Unmarshal([]byte(expanded), &d); err != nil {
		return program.Program{}, fmt.Errorf("parse program yaml: %w", err)
	}

	steps, err := convertSteps(d.Steps)
	if err != nil {
		return program.Program{}, err
	}
	return program.Program{Name: d.Name, Steps: steps}, nil
}

func convertSteps(docs []stepDoc) ([]program.Step, error) {
	steps := make([]program.Step, 0, len(docs))
	for _, sd := range docs {
		step, err := convertStep(sd)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func convertStep(sd stepDoc) (program.Step, error) {
	step := program.Step{Name: sd.Name}

	switch sd.Action {
	case "inject":
		if sd.Inject == nil {
			return step, fmt.Errorf("step %q: action inject needs an inject block", sd.Name)
		}
		in := &program.InjectAction{
			ToleranceG:     sd.Inject.ToleranceG,
			FlowRateMLMin:  sd.Inject.FlowRateMLMin,
			StableTimeoutS: sd.Inject.StableTimeoutS,
		}
		if sd.Inject.TargetVolumeML != nil {
			in.HasVolume = true
			in.TargetVolumeML = *sd.Inject.TargetVolumeML
		}
		if sd.Inject.TargetWeightG != nil {
			in.HasWeight = true
			in.TargetWeightG = *sd.Inject.TargetWeightG
		}
		for _, c := range sd.Inject.Components {
			in.Components = append(in.Components, program.Component{LiquidID: c.LiquidID, Ratio: c.Ratio})
		}
		step.Action = program.ActionInject
		step.Inject = in

	case "drain":
		if sd.Drain == nil {
			return step, fmt.Errorf("step %q: action drain needs a drain block", sd.Name)
		}
		step.Action = program.ActionDrain
		step.Drain = &program.DrainAction{GasPumpPWM: sd.Drain.GasPumpPWM, TimeoutS: sd.Drain.TimeoutS}

	case "acquire":
		if sd.Acquire == nil {
			return step, fmt.Errorf("step %q: action acquire needs an acquire block", sd.Name)
		}
		cond, err := convertCondition(sd.Acquire.Termination)
		if err != nil {
			return step, fmt.Errorf("step %q: %w", sd.Name, err)
		}
		step.Action = program.ActionAcquire
		step.Acquire = &program.AcquireAction{GasPumpPWM: sd.Acquire.GasPumpPWM, Termination: cond, MaxDurationS: sd.Acquire.MaxDurationS}

	case "wash":
		if sd.Wash == nil {
			return step, fmt.Errorf("step %q: action wash needs a wash block", sd.Name)
		}
		step.Action = program.ActionWash
		step.Wash = &program.WashAction{
			RinseLiquidID: sd.Wash.RinseLiquidID,
			WashVolumeML:  sd.Wash.WashVolumeML,
			FlowRateMLMin: sd.Wash.FlowRateMLMin,
			RepeatCount:   sd.Wash.RepeatCount,
			FinalDrain:    sd.Wash.FinalDrain,
		}

	case "wait":
		if sd.Wait == nil {
			return step, fmt.Errorf("step %q: action wait needs a wait block", sd.Name)
		}
		cond, err := convertCondition(sd.Wait.Condition)
		if err != nil {
			return step, fmt.Errorf("step %q: %w", sd.Name, err)
		}
		step.Action = program.ActionWait
		step.Wait = &program.WaitAction{Condition: cond, TimeoutS: sd.Wait.TimeoutS}

	case "set_state":
		if sd.SetState == nil {
			return step, fmt.Errorf("step %q: action set_state needs a set_state block", sd.Name)
		}
		target, err := convertCoarseState(sd.SetState.Target)
		if err != nil {
			return step, fmt.Errorf("step %q: %w", sd.Name, err)
		}
		step.Action = program.ActionSetState
		step.SetState = &program.SetStateAction{Target: target}

	case "set_gas_pump":
		if sd.SetGasPump == nil {
			return step, fmt.Errorf("step %q: action set_gas_pump needs a set_gas_pump block", sd.Name)
		}
		step.Action = program.ActionSetGasPump
		step.SetGasPump = &program.SetGasPumpAction{PWM: sd.SetGasPump.PWM}

	case "loop":
		if sd.Loop == nil {
			return step, fmt.Errorf("step %q: action loop needs a loop block", sd.Name)
		}
		children, err := convertSteps(sd.Loop.Steps)
		if err != nil {
			return step, err
		}
		step.Action = program.ActionLoop
		step.Loop = &program.LoopAction{Steps: children, Count: sd.Loop.Count}

	case "phase_marker":
		if sd.PhaseMarker == nil {
			return step, fmt.Errorf("step %q: action phase_marker needs a phase_marker block", sd.Name)
		}
		step.Action = program.ActionPhaseMarker
		step.PhaseMarker = &program.PhaseMarkerAction{Name: sd.PhaseMarker.Name, IsStart: sd.PhaseMarker.IsStart}

	default:
		return step, fmt.Errorf("step %q: unknown action %q", sd.Name, sd.Action)
	}

	return step, nil
}

func convertCondition(c conditionDoc) (program.Condition, error) {
	cond := program.Condition{
		DurationS:         c.DurationS,
		HeaterCycles:      c.HeaterCycles,
		StabilityWindowS:  c.StabilityWindowS,
		StabilityMaxSlope: c.StabilityMaxSlope,
		TargetWeightG:     c.TargetWeightG,
		ToleranceG:        c.ToleranceG,
	}
	switch c.Kind {
	case "duration":
		cond.Kind = program.ConditionDuration
	case "heater_cycles":
		cond.Kind = program.ConditionHeaterCycles
	case "stability":
		cond.Kind = program.ConditionStability
	case "weight":
		cond.Kind = program.ConditionWeight
	case "empty":
		cond.Kind = program.ConditionEmpty
	default:
		return cond, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return cond, nil
}

func convertCoarseState(s string) (program.CoarseState, error) {
	switch s {
	case "initial":
		return program.StateInitial, nil
	case "drain":
		return program.StateDrain, nil
	case "clean":
		return program.StateClean, nil
	case "sample":
		return program.StateSample, nil
	case "inject":
		return program.StateInject, nil
	default:
		return 0, fmt.Errorf("unknown coarse state %q", s)
	}
}
