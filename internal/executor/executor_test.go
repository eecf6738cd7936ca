package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enose-rig/enosectl/internal/program"
)

type fakeExecutor struct {
	name       string
	satisfied  bool
	idempotent bool
	duration   float64
	resources  []string
}

func (f *fakeExecutor) Name() string { return f.name }

func (f *fakeExecutor) CheckPreconditions(context.Context, program.Step) program.PreconditionResult {
	if f.satisfied {
		return program.PreconditionResult{Satisfied: true}
	}
	return program.PreconditionResult{Satisfied: false, FailedConditions: []string{"fake condition not met"}}
}

func (f *fakeExecutor) Execute(context.Context, program.Step) program.ExecutionResult {
	return program.ExecutionResult{Success: true}
}

func (f *fakeExecutor) EstimateDuration(program.Step) float64 { return f.duration }

func (f *fakeExecutor) IsIdempotent() bool { return f.idempotent }

func (f *fakeExecutor) RequiredResources() []string { return f.resources }

func TestRegisterAndGetRoundTripByActionTag(t *testing.T) {
	r := NewRegistry()
	fake := &fakeExecutor{name: "inject", satisfied: true}
	r.Register(fake)

	got, ok := r.ByTag("inject")
	require.True(t, ok)
	assert.Same(t, fake, got)
}

func TestGetReturnsFalseForAnUnregisteredTag(t *testing.T) {
	r := NewRegistry()
	_, ok := r.ByTag("drain")
	assert.False(t, ok)
}

func TestGetDispatchesByTheStepsActionKind(t *testing.T) {
	r := NewRegistry()
	fake := &fakeExecutor{name: "inject", satisfied: true}
	r.Register(fake)

	step := program.Step{Action: program.ActionInject, Inject: &program.InjectAction{}}
	got, ok := r.Get(step)
	require.True(t, ok)
	assert.Same(t, fake, got)
}

func TestGetReturnsFalseForAStepWithNoAction(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get(program.Step{})
	assert.False(t, ok)
}

func TestRegisterOverwritesAPreviousRegistrationUnderTheSameName(t *testing.T) {
	r := NewRegistry()
	first := &fakeExecutor{name: "wash"}
	second := &fakeExecutor{name: "wash"}
	r.Register(first)
	r.Register(second)

	got, ok := r.ByTag("wash")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestNextExecutionIDIsUniquePerCall(t *testing.T) {
	r := NewRegistry()
	a := r.NextExecutionID("inject")
	b := r.NextExecutionID("inject")
	assert.NotEqual(t, a, b)
}
