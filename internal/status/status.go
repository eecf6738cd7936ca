// Package status renders program.ExperimentStatus and
// program.ValidationResult into the human-readable text the CLI prints,
// using dustin/go-humanize for durations and quantities the way a
// terminal-facing operator tool should.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/enose-rig/enosectl/internal/program"
)

// Line renders a single-line progress summary, suitable for a dashboard
// header or a log line.
func Line(s program.ExperimentStatus) string {
	state := "running"
	switch {
	case s.Paused:
		state = "paused"
	case !s.Running:
		state = "stopped"
	}

	progress := fmt.Sprintf("%d/%d", s.StepIndex, s.TotalSteps)

	line := fmt.Sprintf("[%s] %s step %s (%s elapsed)", state, s.ProgramName, progress, s.Elapsed.Round(time.Second))
	if s.CurrentName != "" {
		line += fmt.Sprintf(" — %s", s.CurrentName)
	}
	if s.LastCode != "" {
		line += fmt.Sprintf(" | last: %s %s", s.LastCode, s.LastMessage)
	}
	return line
}

// Report renders a multi-line human-readable ValidationResult: a
// pass/fail header, every error and warning, and the resource estimate.
func Report(name string, vr program.ValidationResult) string {
	var b strings.Builder

	verdict := "VALID"
	if !vr.Valid {
		verdict = "INVALID"
	}
	fmt.Fprintf(&b, "%s: %s\n", name, verdict)

	for _, d := range vr.Errors {
		fmt.Fprintf(&b, "  [error] %s: %s (%s)\n", d.Path, d.Message, d.Code)
	}
	for _, d := range vr.Warnings {
		fmt.Fprintf(&b, "  [warn]  %s: %s (%s)\n", d.Path, d.Message, d.Code)
	}

	estDuration := time.Duration(vr.Estimate.TotalDurationS * float64(time.Second)).Round(time.Second)
	fmt.Fprintf(&b, "  estimated duration: %s\n", estDuration)
	fmt.Fprintf(&b, "  peak chamber level: %s mL\n", humanize.Ftoa(vr.Estimate.PeakLevelML))
	fmt.Fprintf(&b, "  heater cycles: %s\n", humanize.Comma(int64(vr.Estimate.HeaterCycles)))

	for _, pe := range vr.Estimate.PerPump {
		fmt.Fprintf(&b, "  pump %d: %smL of %smL available (%.0f%%)\n",
			pe.PumpIndex,
			humanize.Ftoa(pe.ConsumedML),
			humanize.Ftoa(pe.AvailableML),
			pe.SufficiencyRatio*100,
		)
	}

	return b.String()
}

// Summary renders one sweep TestResult-shaped line; callers pass the
// fields they have rather than importing internal/sweep here, to avoid a
// status -> sweep -> primitives -> status import cycle risk as those
// packages grow.
func Summary(runID string, success bool, code, message string, started, finished time.Time) string {
	verdict := "ok"
	if !success {
		verdict = "FAILED"
	}
	line := fmt.Sprintf("%s: %s (%s)", runID, verdict, finished.Sub(started).Round(time.Millisecond))
	if !success {
		line += fmt.Sprintf(" — %s: %s", code, message)
	}
	return line
}
