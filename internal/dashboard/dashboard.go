// Package dashboard implements a small live-status Bubble Tea view over
// the control core's event sink: a ReceiveEventCmd/WaitForEvent pair
// converting an events.Subscriber into tea.Msg values, rendered with a
// lipgloss color palette.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/scheduler"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// eventMsg adapts one events.Event into a tea.Msg.
type eventMsg events.Event

// Model is the Bubble Tea model driving the live dashboard.
type Model struct {
	sched   *scheduler.Scheduler
	sub     events.Subscriber
	spinner spinner.Model

	lines []string
	width int
}

// New constructs a Model subscribed to sub, reporting sched's status.
func New(sched *scheduler.Scheduler, sub events.Subscriber) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = okStyle
	return Model{sched: sched, sub: sub, spinner: sp, width: 80}
}

func receiveEventCmd(sub events.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.Events()
		if !ok {
			return tea.QuitMsg{}
		}
		return eventMsg(ev)
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(receiveEventCmd(m.sub), m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "p":
			m.sched.Pause()
		case "r":
			m.sched.Resume()
		case "s":
			m.sched.Stop()
		}
		return m, nil

	case eventMsg:
		m.lines = append(m.lines, formatEvent(events.Event(msg)))
		if len(m.lines) > 20 {
			m.lines = m.lines[len(m.lines)-20:]
		}
		return m, receiveEventCmd(m.sub)

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

// View implements tea.Model.
func (m Model) View() string {
	status := m.sched.Status()

	var b strings.Builder
	prefix := " "
	if status.Running {
		prefix = m.spinner.View()
	}
	b.WriteString(prefix + " " + headerStyle.Render(fmt.Sprintf("enosectl — %s", status.ProgramName)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf(
		"step %d/%d  phase=%s  elapsed=%s  (p)ause (r)esume (s)top (q)uit",
		status.StepIndex, status.TotalSteps, status.Phase, status.Elapsed.Round(time.Second),
	)))
	b.WriteString("\n\n")

	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func formatEvent(ev events.Event) string {
	switch ev.Kind {
	case events.KindStateChanged:
		return dimStyle.Render(fmt.Sprintf("state %s -> %s", ev.OldState, ev.NewState))
	case events.KindPhaseMarker:
		dir := "end"
		if ev.IsStart {
			dir = "start"
		}
		return dimStyle.Render(fmt.Sprintf("phase marker %s (%s)", ev.PhaseName, dir))
	case events.KindStepStarted:
		return dimStyle.Render(fmt.Sprintf("-> %s", ev.StepPath))
	case events.KindStepCompleted:
		return okStyle.Render(fmt.Sprintf("ok   %s (%s)", ev.StepPath, ev.Duration))
	case events.KindStepFailed:
		return errStyle.Render(fmt.Sprintf("fail %s: %s: %s", ev.StepPath, ev.Code, ev.Message))
	case events.KindValidationCompleted:
		return dimStyle.Render("validation completed")
	case events.KindTestCycleCompleted:
		return dimStyle.Render("sweep cycle completed")
	default:
		return ""
	}
}
