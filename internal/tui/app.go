// Package tui provides the terminal user interface for Mender: a compact
// live view of one run fed by the orchestrator's event stream, plus a plain
// headless printer for non-interactive terminals.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/mender/internal/orchestrator"
	"github.com/ShayCichocki/mender/pkg/models"
)

// maxVisibleSteps bounds the step log shown on screen; older entries scroll
// off the top.
const maxVisibleSteps = 30

// EventMsg wraps one orchestrator event for the bubbletea update loop.
type EventMsg struct {
	Event orchestrator.Event
}

// StreamClosedMsg signals the orchestrator closed its event channel.
type StreamClosedMsg struct{}

// stepLine is one rendered row in the step log.
type stepLine struct {
	seq     int
	action  string
	message string
	kind    orchestrator.EventType
	at      time.Time
}

// App is the bubbletea model for a live run.
type App struct {
	task   string
	runID  string
	events <-chan orchestrator.Event

	spinner  spinner.Model
	steps    []stepLine
	warnings []string

	status   models.RunStatus
	finished bool
	reason   string
	started  time.Time

	width    int
	height   int
	quitting bool
}

// NewApp creates the run view for the given task and event stream.
func NewApp(task, runID string, events <-chan orchestrator.Event) *App {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return &App{
		task:    task,
		runID:   runID,
		events:  events,
		spinner: sp,
		status:  models.RunActive,
		started: time.Now(),
		width:   80,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.waitForEvent())
}

// waitForEvent reads the next orchestrator event as a bubbletea command.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-a.events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)
		if a.finished {
			return a, tea.Quit
		}
		return a, a.waitForEvent()

	case StreamClosedMsg:
		if !a.finished {
			a.finished = true
		}
		return a, tea.Quit
	}

	return a, nil
}

func (a *App) apply(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventRunStarted:
		a.started = ev.At

	case orchestrator.EventActionDispatched, orchestrator.EventObservationApplied, orchestrator.EventStuckDetected:
		a.steps = append(a.steps, stepLine{
			seq:     ev.Seq,
			action:  string(ev.Action),
			message: ev.Message,
			kind:    ev.Type,
			at:      ev.At,
		})
		if len(a.steps) > maxVisibleSteps {
			a.steps = a.steps[len(a.steps)-maxVisibleSteps:]
		}

	case orchestrator.EventBudgetWarning:
		a.warnings = append(a.warnings, ev.Message)

	case orchestrator.EventRunFinished:
		a.finished = true
		a.status = ev.Status
		a.reason = ev.Message
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting && !a.finished {
		return "Run continues in the background; stop it with `mender stop`.\n"
	}

	var b strings.Builder
	b.WriteString(a.viewHeader())
	b.WriteString("\n\n")
	b.WriteString(a.viewSteps())
	for _, w := range a.warnings {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("⚠ " + w))
	}
	b.WriteString("\n\n")
	b.WriteString(a.viewFooter())
	b.WriteString("\n")
	return b.String()
}

func (a *App) viewHeader() string {
	title := titleStyle.Render("mender")
	id := dimStyle.Render("run " + a.runID)
	task := taskStyle.Width(max(20, a.width-4)).Render(a.task)
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", id),
		task,
	)
}

func (a *App) viewSteps() string {
	if len(a.steps) == 0 {
		return dimStyle.Render("  waiting for the planner...")
	}
	var lines []string
	for _, s := range a.steps {
		lines = append(lines, a.renderStep(s))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderStep(s stepLine) string {
	switch s.kind {
	case orchestrator.EventActionDispatched:
		return fmt.Sprintf("  %s %s %s",
			a.spinner.View(),
			actionStyle.Render(fmt.Sprintf("%2d %-13s", s.seq, s.action)),
			truncate(s.message, max(10, a.width-22)))
	case orchestrator.EventStuckDetected:
		return warnStyle.Render("  ↻ " + s.message)
	default:
		marker := okStyle.Render("✓")
		if strings.HasPrefix(s.message, "failed") || strings.Contains(s.message, "timeout") {
			marker = failStyle.Render("✗")
		}
		return fmt.Sprintf("  %s %s %s",
			marker,
			actionStyle.Render(fmt.Sprintf("%2d %-13s", s.seq, s.action)),
			dimStyle.Render(truncate(s.message, max(10, a.width-22))))
	}
}

func (a *App) viewFooter() string {
	elapsed := time.Since(a.started).Round(time.Second)
	if a.finished {
		verdict := failStyle.Render(string(a.status))
		if a.status == models.RunSucceeded {
			verdict = okStyle.Render(string(a.status))
		}
		line := fmt.Sprintf("%s in %s", verdict, elapsed)
		if a.reason != "" {
			line += dimStyle.Render(" — " + a.reason)
		}
		return line
	}
	return dimStyle.Render(fmt.Sprintf("%s elapsed · q detaches, run keeps going", elapsed))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
