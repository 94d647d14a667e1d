package tui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ShayCichocki/mender/internal/orchestrator"
	"github.com/ShayCichocki/mender/pkg/models"
)

// HeadlessPrinter renders orchestrator events as plain log lines for
// non-interactive terminals and CI.
type HeadlessPrinter struct {
	out io.Writer

	action *color.Color
	ok     *color.Color
	fail   *color.Color
	warn   *color.Color
}

// NewHeadlessPrinter creates a printer writing to out.
func NewHeadlessPrinter(out io.Writer) *HeadlessPrinter {
	return &HeadlessPrinter{
		out:    out,
		action: color.New(color.FgCyan),
		ok:     color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		warn:   color.New(color.FgYellow),
	}
}

// Consume drains the event stream until it closes, printing one line per
// event. It blocks, so callers usually run it in a goroutine.
func (p *HeadlessPrinter) Consume(events <-chan orchestrator.Event) {
	for ev := range events {
		p.print(ev)
	}
}

func (p *HeadlessPrinter) print(ev orchestrator.Event) {
	ts := ev.At.Format("15:04:05")
	switch ev.Type {
	case orchestrator.EventRunStarted:
		fmt.Fprintf(p.out, "%s run started: %s\n", ts, ev.Message)
	case orchestrator.EventActionDispatched:
		fmt.Fprintf(p.out, "%s [%2d] %s %s\n", ts, ev.Seq, p.action.Sprint(ev.Action), ev.Message)
	case orchestrator.EventObservationApplied:
		fmt.Fprintf(p.out, "%s [%2d] %s %s\n", ts, ev.Seq, ev.Action, ev.Message)
	case orchestrator.EventStuckDetected:
		fmt.Fprintf(p.out, "%s %s\n", ts, p.warn.Sprintf("stuck: %s", ev.Message))
	case orchestrator.EventBudgetWarning:
		fmt.Fprintf(p.out, "%s %s\n", ts, p.warn.Sprintf("budget: %s", ev.Message))
	case orchestrator.EventRunFinished:
		verdict := p.fail.Sprint(string(ev.Status))
		if ev.Status == models.RunSucceeded {
			verdict = p.ok.Sprint(string(ev.Status))
		}
		fmt.Fprintf(p.out, "%s run finished: %s", ts, verdict)
		if ev.Message != "" {
			fmt.Fprintf(p.out, " (%s)", ev.Message)
		}
		fmt.Fprintln(p.out)
	default:
		fmt.Fprintf(p.out, "%s %s\n", ts, ev.Message)
	}
}
