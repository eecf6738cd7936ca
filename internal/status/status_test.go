package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/enose-rig/enosectl/internal/program"
)

func TestLineReportsRunningState(t *testing.T) {
	s := program.ExperimentStatus{
		ProgramName: "baseline",
		CurrentName: "fill-bottle",
		StepIndex:   2,
		TotalSteps:  5,
		Elapsed:     90 * time.Second,
		Running:     true,
	}
	line := Line(s)
	assert.Contains(t, line, "[running]")
	assert.Contains(t, line, "baseline")
	assert.Contains(t, line, "2/5")
	assert.Contains(t, line, "fill-bottle")
	assert.Contains(t, line, "1m30s")
}

func TestLineReportsPausedOverRunning(t *testing.T) {
	s := program.ExperimentStatus{Running: true, Paused: true}
	assert.Contains(t, Line(s), "[paused]")
}

func TestLineReportsStoppedWhenNotRunning(t *testing.T) {
	s := program.ExperimentStatus{Running: false}
	assert.Contains(t, Line(s), "[stopped]")
}

func TestLineIncludesLastStepOutcomeWhenPresent(t *testing.T) {
	s := program.ExperimentStatus{Running: true, LastCode: "TIMEOUT", LastMessage: "stability never reached"}
	line := Line(s)
	assert.Contains(t, line, "last: TIMEOUT stability never reached")
}

func TestReportRendersAValidResultWithNoDiagnostics(t *testing.T) {
	vr := program.ValidationResult{
		Valid: true,
		Estimate: program.Estimate{
			TotalDurationS: 125,
			PeakLevelML:    180,
			HeaterCycles:   4,
			PerPump: map[int]program.PumpEstimate{
				0: {PumpIndex: 0, ConsumedML: 45, AvailableML: 500, SufficiencyRatio: 0.09},
			},
		},
	}
	report := Report("baseline", vr)
	assert.Contains(t, report, "baseline: VALID")
	assert.Contains(t, report, "2m5s")
	assert.Contains(t, report, "heater cycles: 4")
	assert.Contains(t, report, "pump 0:")
}

func TestReportRendersErrorsAndWarningsForAnInvalidResult(t *testing.T) {
	vr := program.ValidationResult{
		Valid: false,
		Errors: []program.Diagnostic{
			{Path: "steps[0]", Code: "OVERFILL", Message: "exceeds bottle capacity"},
		},
		Warnings: []program.Diagnostic{
			{Path: "steps[1]", Code: "LOW_LIQUID", Message: "pump 0 near empty"},
		},
	}
	report := Report("risky", vr)
	assert.Contains(t, report, "risky: INVALID")
	assert.Contains(t, report, "[error] steps[0]: exceeds bottle capacity (OVERFILL)")
	assert.Contains(t, report, "[warn]  steps[1]: pump 0 near empty (LOW_LIQUID)")
}

func TestSummaryReportsSuccessWithoutAnErrorSuffix(t *testing.T) {
	started := time.Unix(1000, 0)
	finished := started.Add(2 * time.Second)
	line := Summary("run-1", true, "", "", started, finished)
	assert.Contains(t, line, "run-1: ok")
	assert.NotContains(t, line, "—")
}

func TestSummaryReportsFailureWithItsErrorDetails(t *testing.T) {
	started := time.Unix(1000, 0)
	finished := started.Add(3 * time.Second)
	line := Summary("run-2", false, "TIMEOUT", "never stabilized", started, finished)
	assert.Contains(t, line, "run-2: FAILED")
	assert.Contains(t, line, "TIMEOUT: never stabilized")
}
