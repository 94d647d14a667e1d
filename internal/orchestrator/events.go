// Package orchestrator drives a task run: one action in flight at a time,
// chosen by the planner, dispatched to a capability adapter under a
// wall-clock budget, its observation folded back into the run state.
package orchestrator

import (
	"time"

	"github.com/ShayCichocki/mender/internal/capability"
	"github.com/ShayCichocki/mender/pkg/models"
)

// EventType represents the type of run event.
type EventType string

const (
	// EventRunStarted indicates the run has started.
	EventRunStarted EventType = "run_started"
	// EventActionDispatched indicates an action was handed to an adapter.
	EventActionDispatched EventType = "action_dispatched"
	// EventObservationApplied indicates an observation was folded into state.
	EventObservationApplied EventType = "observation_applied"
	// EventStuckDetected indicates repetition crossed the stuck threshold.
	EventStuckDetected EventType = "stuck_detected"
	// EventBudgetWarning indicates cost crossed the warning threshold.
	EventBudgetWarning EventType = "budget_warning"
	// EventRunFinished indicates the run reached a terminal status.
	EventRunFinished EventType = "run_finished"
)

// Event is emitted by the loop for live display and journaling.
type Event struct {
	Type EventType
	// Seq is the history step number, when the event concerns a step.
	Seq int
	// Action names the capability involved, when any.
	Action capability.Name
	// Message is a short human-readable account.
	Message string
	// Status carries the terminal status on EventRunFinished.
	Status models.RunStatus
	// At is when the event occurred.
	At time.Time
}
