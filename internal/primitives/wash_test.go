package primitives

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enose-rig/enosectl/internal/program"
)

func TestWashRejectsAZeroRepeatCount(t *testing.T) {
	e := NewWash(newTestDeps(t))
	step := program.Step{Wash: &program.WashAction{RepeatCount: 0, WashVolumeML: 10}}
	res := e.CheckPreconditions(context.Background(), step)
	assert.False(t, res.Satisfied)
}

func TestWashRejectsWhenNoRinseLiquidIsResolvable(t *testing.T) {
	deps := newTestDeps(t)
	deps.Hardware = &program.HardwareConstraints{} // no liquids at all
	e := NewWash(deps)

	step := program.Step{Wash: &program.WashAction{RepeatCount: 1, WashVolumeML: 10}}
	res := e.CheckPreconditions(context.Background(), step)
	assert.False(t, res.Satisfied)
}

func TestWashFallsBackToTheFirstRinseTypeLiquidWhenNoneNamed(t *testing.T) {
	e := NewWash(newTestDeps(t))
	step := program.Step{Wash: &program.WashAction{RepeatCount: 1, WashVolumeML: 10}}
	res := e.CheckPreconditions(context.Background(), step)
	assert.True(t, res.Satisfied)
}

func TestWashRunsInjectDrainCyclesAndAnOptionalFinalDrain(t *testing.T) {
	deps := newTestDeps(t)
	e := NewWash(deps)

	step := program.Step{
		Name: "wash-1",
		Wash: &program.WashAction{
			RinseLiquidID: "water",
			WashVolumeML:  5,
			FlowRateMLMin: 600,
			RepeatCount:   2,
			FinalDrain:    true,
		},
	}
	res := e.Execute(context.Background(), step)
	require.True(t, res.Success)

	snap := deps.Rig.Snapshot()
	assert.Equal(t, program.ActivityIdle, snap.Activity)
	_, set := deps.EmptyWeight.Get()
	assert.True(t, set, "the final drain should have recorded a dynamic empty weight baseline")
}
