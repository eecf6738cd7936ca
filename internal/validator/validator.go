// Package validator implements the Experiment Validator: a
// static, single-pass simulated walk over a Program tree that projects
// per-pump liquid consumption, peak chamber fill level, total duration,
// and heater-cycle count without touching any hardware, surfacing
// structured Diagnostics at the step path that produced them.
package validator

import (
	"fmt"
	"math"

	"github.com/enose-rig/enosectl/internal/executor"
	"github.com/enose-rig/enosectl/internal/program"
)

// Validator holds the static configuration a simulation checks against.
type Validator struct {
	Hardware *program.HardwareConstraints
	Registry *executor.Registry
}

// New constructs a Validator.
func New(hw *program.HardwareConstraints, reg *executor.Registry) *Validator {
	return &Validator{Hardware: hw, Registry: reg}
}

// sim carries the mutable simulation state threaded through walk, kept
// separate from the returned Estimate so chamber level (which the
// Estimate only reports the peak of) doesn't leak into the result.
type sim struct {
	estimate     program.Estimate
	currentLevel float64
	errors       []program.Diagnostic
	warnings     []program.Diagnostic
}

func (s *sim) fail(path, code, msg string) {
	s.errors = append(s.errors, program.Diagnostic{Path: path, Code: code, Message: msg, Severity: program.SeverityError})
}

func (s *sim) warn(path, code, msg string) {
	s.warnings = append(s.warnings, program.Diagnostic{Path: path, Code: code, Message: msg, Severity: program.SeverityWarning})
}

func (s *sim) addConsumption(pumpIndex int, ml float64) {
	if s.estimate.PerPump == nil {
		s.estimate.PerPump = make(map[int]program.PumpEstimate)
	}
	pe := s.estimate.PerPump[pumpIndex]
	pe.PumpIndex = pumpIndex
	pe.ConsumedML += ml
	s.estimate.PerPump[pumpIndex] = pe
}

// addLevel folds ml into the simulated chamber level, tracks the peak,
// and fires the level-derived diagnostics: an error once the level
// exceeds the bottle's physical capacity, an error once it exceeds the
// configured max fill, or (mutually exclusive with both) a warning once
// it's within 90% of max fill.
func (v *Validator) addLevel(path string, ml float64, s *sim) {
	s.currentLevel += ml
	if s.currentLevel > s.estimate.PeakLevelML {
		s.estimate.PeakLevelML = s.currentLevel
	}
	switch {
	case s.currentLevel > v.Hardware.BottleCapacityML:
		s.fail(path, "CAPACITY_EXCEEDED", fmt.Sprintf("projected chamber level %.2fmL exceeds bottle capacity %.2fmL", s.currentLevel, v.Hardware.BottleCapacityML))
	case s.currentLevel > v.Hardware.MaxFillML:
		s.fail(path, "OVERFILL", fmt.Sprintf("projected chamber level %.2fmL exceeds max_fill_ml %.2fmL", s.currentLevel, v.Hardware.MaxFillML))
	case v.Hardware.MaxFillML > 0 && s.currentLevel >= 0.9*v.Hardware.MaxFillML:
		s.warn(path, "HIGH_FILL_LEVEL", fmt.Sprintf("projected chamber level %.2fmL is within 90%% of max_fill_ml %.2fmL", s.currentLevel, v.Hardware.MaxFillML))
	}
}

// Validate simulates prog once and returns the aggregated diagnostics
// and resource Estimate. A Program with any error-severity Diagnostic is
// Valid == false; warnings never block execution.
func (v *Validator) Validate(prog program.Program) program.ValidationResult {
	s := &sim{estimate: program.Estimate{PerPump: make(map[int]program.PumpEstimate)}}

	if v.Hardware == nil {
		s.fail("", "MISSING_HARDWARE", "no hardware constraints provided")
		return program.ValidationResult{Valid: false, Errors: s.errors, Warnings: s.warnings, Estimate: s.estimate}
	}

	v.checkDuplicates(s)

	for i, step := range prog.Steps {
		v.walk(program.Path(i), step, 1, s)
	}

	v.checkSufficiency(s)

	return program.ValidationResult{
		Valid:    len(s.errors) == 0,
		Errors:   s.errors,
		Warnings: s.warnings,
		Estimate: s.estimate,
	}
}

// checkDuplicates flags hardware inventory entries that share an id or
// a pump index, a configuration error the validator surfaces as a
// Diagnostic rather than only failing at config-load time.
func (v *Validator) checkDuplicates(s *sim) {
	seenID := make(map[string]bool, len(v.Hardware.Liquids))
	seenPump := make(map[int]bool, len(v.Hardware.Liquids))
	for _, l := range v.Hardware.Liquids {
		if seenID[l.ID] {
			s.fail("", "DUPLICATE_LIQUID_ID", fmt.Sprintf("liquid id %q is assigned to more than one inventory entry", l.ID))
		}
		seenID[l.ID] = true

		if seenPump[l.PumpIndex] {
			s.fail("", "DUPLICATE_PUMP_INDEX", fmt.Sprintf("pump_index %d is assigned to more than one liquid", l.PumpIndex))
		}
		seenPump[l.PumpIndex] = true
	}
}

func childPath(parent string, idx int) string {
	return fmt.Sprintf("%s.steps[%d]", parent, idx)
}

// walk simulates one Step's effect, scaled by mult (>1 inside a Loop's
// repeated body), recursing into Loop's children.
func (v *Validator) walk(path string, step program.Step, mult float64, s *sim) {
	if step.Name == "" {
		s.warn(path, "EMPTY_STEP_NAME", "step has no name")
	}

	switch step.Action {
	case program.ActionInject:
		v.walkInject(path, step.Inject, mult, s)
		v.addDuration(path, step, mult, s)

	case program.ActionDrain:
		if step.Drain == nil {
			s.fail(path, "MISSING_ACTION", "drain step carries no drain action")
			break
		}
		if step.Drain.GasPumpPWM <= 0 {
			s.warn(path, "EMPTY_DRAIN", "drain runs with no gas pump assist")
		}
		if step.Drain.TimeoutS <= 0 {
			s.warn(path, "NO_TIMEOUT", "drain has no timeout; a stuck empty-weight reading will hang indefinitely")
		}
		s.currentLevel = 0
		v.addDuration(path, step, mult, s)

	case program.ActionAcquire:
		v.walkAcquire(path, step.Acquire, mult, s)
		v.addDuration(path, step, mult, s)

	case program.ActionWash:
		v.walkWash(path, step.Wash, mult, s)
		v.addDuration(path, step, mult, s)

	case program.ActionWait:
		v.walkWait(path, step.Wait, mult, s)
		v.addDuration(path, step, mult, s)

	case program.ActionSetState:
		if step.SetState == nil {
			s.fail(path, "MISSING_ACTION", "set_state step carries no set_state action")
		}
		v.addDuration(path, step, mult, s)

	case program.ActionSetGasPump:
		if step.SetGasPump == nil {
			s.fail(path, "MISSING_ACTION", "set_gas_pump step carries no set_gas_pump action")
		} else if step.SetGasPump.PWM < 0 || step.SetGasPump.PWM > 1 {
			s.fail(path, "PWM_OUT_OF_RANGE", "set_gas_pump pwm must be within [0,1]")
		}
		v.addDuration(path, step, mult, s)

	case program.ActionPhaseMarker:
		if step.PhaseMarker == nil {
			s.fail(path, "MISSING_ACTION", "phase_marker step carries no phase_marker action")
		}
		v.addDuration(path, step, mult, s)

	case program.ActionLoop:
		v.walkLoop(path, step.Loop, mult, s)
		// Deliberately no addDuration here: the loop's own
		// EstimateDuration sums its children, which would double-count
		// against the per-child accumulation the recursion below already
		// performs.

	default:
		s.fail(path, "UNKNOWN_ACTION", "step carries no recognized action")
	}
}

func (v *Validator) walkInject(path string, in *program.InjectAction, mult float64, s *sim) {
	if in == nil {
		s.fail(path, "MISSING_ACTION", "inject step carries no inject action")
		return
	}
	if !in.HasVolume && !in.HasWeight {
		s.fail(path, "NO_TARGET", "neither target_volume_ml nor target_weight_g set")
		return
	}
	total, volumes, err := program.ResolveInjectVolumes(in, v.Hardware)
	if err != nil {
		s.fail(path, "INVALID_INJECT", err.Error())
		return
	}
	for pumpIndex, ml := range volumes {
		s.addConsumption(pumpIndex, ml*mult)
	}
	v.addLevel(path, total*mult, s)

	target := in.TargetVolumeML
	if !in.HasVolume {
		target = in.TargetWeightG
	}
	if target > 0 && in.ToleranceG > 0.5*target {
		s.warn(path, "LARGE_TOLERANCE", fmt.Sprintf("tolerance %.2f exceeds 50%% of target %.2f", in.ToleranceG, target))
	}
}

func (v *Validator) walkAcquire(path string, a *program.AcquireAction, mult float64, s *sim) {
	if a == nil {
		s.fail(path, "MISSING_ACTION", "acquire step carries no acquire action")
		return
	}
	if a.Termination.Kind == program.ConditionNone {
		s.fail(path, "NO_TERMINATION", "acquire termination condition not set")
		return
	}
	if a.Termination.Kind == program.ConditionEmpty {
		s.fail(path, "INVALID_TERMINATION", "empty termination is wait-only, not valid for acquire")
		return
	}
	if a.Termination.Kind == program.ConditionHeaterCycles {
		s.estimate.HeaterCycles += int(math.Round(float64(a.Termination.HeaterCycles) * mult))
	}
	if a.MaxDurationS <= 0 {
		s.warn(path, "NO_TIMEOUT", "acquire has no max_duration_s ceiling")
	}
}

func (v *Validator) walkWash(path string, w *program.WashAction, mult float64, s *sim) {
	if w == nil {
		s.fail(path, "MISSING_ACTION", "wash step carries no wash action")
		return
	}
	if w.RepeatCount <= 0 {
		s.fail(path, "INVALID_REPEAT_COUNT", "repeat_count must be > 0")
		return
	}
	if w.WashVolumeML <= 0 {
		s.fail(path, "INVALID_VOLUME", "wash_volume_ml must be > 0")
		return
	}

	var rinse program.LiquidInventory
	var ok bool
	if w.RinseLiquidID != "" {
		rinse, ok = v.Hardware.LiquidByID(w.RinseLiquidID)
	} else {
		rinse, ok = v.Hardware.FirstRinseLiquid()
	}
	if !ok {
		s.fail(path, "NO_RINSE_LIQUID", "no rinse liquid resolvable")
		return
	}

	for i := 0; i < w.RepeatCount; i++ {
		s.addConsumption(rinse.PumpIndex, w.WashVolumeML*mult)
		v.addLevel(childPath(path, i), w.WashVolumeML*mult, s)
		s.currentLevel = 0 // each rinse cycle's own drain empties the chamber
	}
}

func (v *Validator) walkWait(path string, w *program.WaitAction, mult float64, s *sim) {
	if w == nil {
		s.fail(path, "MISSING_ACTION", "wait step carries no wait action")
		return
	}
	if w.Condition.Kind == program.ConditionNone {
		s.fail(path, "NO_CONDITION", "wait condition not set")
		return
	}
	if w.Condition.Kind == program.ConditionHeaterCycles {
		s.estimate.HeaterCycles += int(math.Round(float64(w.Condition.HeaterCycles) * mult))
	}
}

func (v *Validator) walkLoop(path string, l *program.LoopAction, mult float64, s *sim) {
	if l == nil {
		s.fail(path, "MISSING_ACTION", "loop step carries no loop action")
		return
	}
	if l.Count <= 0 {
		s.fail(path, "INVALID_COUNT", "count must be > 0")
		return
	}
	if len(l.Steps) == 0 {
		s.warn(path, "EMPTY_LOOP", "loop has no child steps")
		return
	}
	for idx, child := range l.Steps {
		v.walk(childPath(path, idx), child, mult*float64(l.Count), s)
	}
}

func (v *Validator) addDuration(path string, step program.Step, mult float64, s *sim) {
	exec, ok := v.Registry.ByTag(step.Action.Tag())
	if !ok {
		s.warn(path, "NO_ESTIMATOR", "no registered executor to estimate this step's duration")
		return
	}
	s.estimate.TotalDurationS += exec.EstimateDuration(step) * mult
}

// checkSufficiency compares simulated consumption against each pump's
// inventory and appends an error (exhausted) or warning (running low)
// diagnostic at the program root.
func (v *Validator) checkSufficiency(s *sim) {
	byPump := make(map[int]program.LiquidInventory, len(v.Hardware.Liquids))
	for _, l := range v.Hardware.Liquids {
		byPump[l.PumpIndex] = l
	}

	for pumpIndex, pe := range s.estimate.PerPump {
		liquid, ok := byPump[pumpIndex]
		if !ok {
			s.warn("", "UNKNOWN_PUMP", fmt.Sprintf("pump %d consumed %.2fmL but has no inventory entry", pumpIndex, pe.ConsumedML))
			continue
		}
		pe.AvailableML = liquid.AvailableML
		if liquid.AvailableML > 0 {
			pe.SufficiencyRatio = pe.ConsumedML / liquid.AvailableML
		}
		s.estimate.PerPump[pumpIndex] = pe

		if pe.ConsumedML > liquid.AvailableML {
			s.fail("", "INSUFFICIENT_LIQUID", fmt.Sprintf("pump %d (%s) needs %.2fmL but only %.2fmL available", pumpIndex, liquid.Name, pe.ConsumedML, liquid.AvailableML))
		} else if liquid.AvailableML > 0 && pe.SufficiencyRatio > 0.9 {
			s.warn("", "LOW_LIQUID", fmt.Sprintf("pump %d (%s) will consume %.0f%% of available inventory", pumpIndex, liquid.Name, pe.SufficiencyRatio*100))
		}
	}
}
