package models

import "time"

// RunStatus represents the current state of a task run.
type RunStatus string

const (
	// RunActive indicates the orchestration loop is still cycling.
	RunActive RunStatus = "active"
	// RunSucceeded indicates the run finished with a final patch.
	RunSucceeded RunStatus = "succeeded"
	// RunFailed indicates the run finished without a usable result.
	RunFailed RunStatus = "failed"
	// RunAborted indicates the run was cut short by budget exhaustion or cancellation.
	RunAborted RunStatus = "aborted"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunActive, RunSucceeded, RunFailed, RunAborted:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status ends the run.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunAborted
}

// Task is one end-to-end software-engineering request handled by a single
// orchestrator instance. The description is immutable for the task's lifetime.
type Task struct {
	// ID is the unique identifier for this task run.
	ID string `json:"id"`
	// Description is the natural-language statement of what should be done.
	Description string `json:"description"`
	// ProjectPath is the checkout the task operates on. The checkout is
	// exclusively owned by this task for its lifetime.
	ProjectPath string `json:"project_path"`
	// Seed holds environment facts known before the run starts, if any.
	Seed *Environment `json:"seed,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
}
