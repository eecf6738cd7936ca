package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enose-rig/enosectl/internal/program"
)

func TestSummaryReportsValidWithDiagnosticCounts(t *testing.T) {
	result := program.ValidationResult{Valid: true}
	assert.Equal(t, "VALID (0 errors, 0 warnings)", Summary(result))
}

func TestSummaryReportsInvalidWithDiagnosticCounts(t *testing.T) {
	result := program.ValidationResult{
		Valid:    false,
		Errors:   []program.Diagnostic{{Path: "steps[0]", Code: "OVERFILL", Message: "too much"}},
		Warnings: []program.Diagnostic{{Path: "steps[1]", Code: "LOW_LIQUID", Message: "low"}},
	}
	assert.Equal(t, "INVALID (1 errors, 1 warnings)", Summary(result))
}
