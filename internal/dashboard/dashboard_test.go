package dashboard

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enose-rig/enosectl/internal/cancel"
	"github.com/enose-rig/enosectl/internal/dispatch"
	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/executor"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/scheduler"
)

func newTestModel(t *testing.T) (Model, *events.ChanEmitter) {
	t.Helper()
	logger, err := logging.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	emitter := events.NewChanEmitter(8)
	t.Cleanup(emitter.Close)

	d := &dispatch.Dispatcher{Registry: executor.NewRegistry(), Emitter: emitter, Logger: logger, Cancel: cancel.NewToken()}
	sched := scheduler.New(d, d.Cancel, logger, func() program.ActivityState { return program.ActivityIdle }, nil)

	return New(sched, emitter.Subscribe()), emitter
}

func TestInitBatchesTheSpinnerAndEventReceiveCommands(t *testing.T) {
	m, _ := newTestModel(t)
	cmd := m.Init()
	assert.NotNil(t, cmd)
}

func TestUpdateOnKeyQReturnsAQuitCommand(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	msg := cmd()
	assert.IsType(t, tea.QuitMsg{}, msg)
}

func TestUpdateOnWindowSizeMsgStoresTheWidth(t *testing.T) {
	m, _ := newTestModel(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	nm := next.(Model)
	assert.Equal(t, 120, nm.width)
}

func TestUpdateAppendsAFormattedLineOnStepCompletedEvent(t *testing.T) {
	m, _ := newTestModel(t)
	ev := eventMsg(events.Event{
		Kind:     events.KindStepCompleted,
		StepPath: "steps[0]",
		Duration: 2 * time.Second,
	})
	next, cmd := m.Update(ev)
	nm := next.(Model)
	require.Len(t, nm.lines, 1)
	assert.Contains(t, nm.lines[0], "steps[0]")
	assert.NotNil(t, cmd)
}

func TestUpdateCapsLinesAtTwenty(t *testing.T) {
	m, _ := newTestModel(t)
	for i := 0; i < 25; i++ {
		next, _ := m.Update(eventMsg(events.Event{Kind: events.KindStepStarted, StepPath: "steps[0]"}))
		m = next.(Model)
	}
	assert.Len(t, m.lines, 20)
}

func TestViewRendersTheProgramHeaderAndControls(t *testing.T) {
	m, _ := newTestModel(t)
	view := m.View()
	assert.Contains(t, view, "enosectl")
	assert.Contains(t, view, "(p)ause")
	assert.Contains(t, view, "(q)uit")
}

func TestFormatEventCoversEveryKind(t *testing.T) {
	cases := []events.Event{
		{Kind: events.KindStateChanged, OldState: program.StateInitial, NewState: program.StateSample},
		{Kind: events.KindPhaseMarker, PhaseName: "warmup", IsStart: true},
		{Kind: events.KindStepStarted, StepPath: "steps[0]"},
		{Kind: events.KindStepCompleted, StepPath: "steps[0]", Duration: time.Second},
		{Kind: events.KindStepFailed, StepPath: "steps[0]", Code: "TIMEOUT", Message: "no stability"},
		{Kind: events.KindValidationCompleted},
		{Kind: events.KindTestCycleCompleted},
	}
	for _, ev := range cases {
		assert.NotPanics(t, func() { formatEvent(ev) })
	}
}
