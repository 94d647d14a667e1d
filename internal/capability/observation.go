package capability

import (
	"fmt"

	"github.com/ShayCichocki/mender/pkg/models"
)

// FailureKind classifies a failed observation. Both kinds are recoverable at
// the planner level; the loop never retries them silently.
type FailureKind string

const (
	// FailureNone marks a successful observation.
	FailureNone FailureKind = ""
	// FailureTimeout indicates the adapter exceeded its wall-clock budget.
	// The planner may retry with reduced scope.
	FailureTimeout FailureKind = "timeout"
	// FailureAdapter indicates the adapter reported a structural failure:
	// invalid arguments, unusable model output, or a dependency it could not
	// resolve.
	FailureAdapter FailureKind = "adapter_error"
)

// Observation is the typed result of executing one Action. Exactly one
// observation is applied per dispatched action, success or failure.
type Observation struct {
	// Action is the capability that produced this observation.
	Action Name `json:"action"`
	// Ok indicates the action succeeded.
	Ok bool `json:"ok"`
	// Failure classifies the error when Ok is false.
	Failure FailureKind `json:"failure,omitempty"`
	// Summary is a short human-readable account of what happened.
	Summary string `json:"summary,omitempty"`

	// DiffContent is a new patch produced by the capability, if any. The
	// loop commits it to the diff store with DiffParents as its parents.
	DiffContent string `json:"diff_content,omitempty"`
	// DiffParents lists the parent entry IDs for DiffContent.
	DiffParents []string `json:"diff_parents,omitempty"`
	// DiffNotes is the capability's rationale for the patch.
	DiffNotes string `json:"diff_notes,omitempty"`
	// DiffID is filled by the loop after committing DiffContent.
	DiffID string `json:"diff_id,omitempty"`

	// Locations holds code spans found by the locator.
	Locations []models.Location `json:"locations,omitempty"`
	// Environment carries additive facts discovered by the probe.
	Environment *models.Environment `json:"environment,omitempty"`
	// TestOutcome is the structured result of a test run.
	TestOutcome *models.TestOutcome `json:"test_outcome,omitempty"`
	// Answer is free-text output (VCS queries, advisor diagnoses).
	Answer string `json:"answer,omitempty"`
}

// Failed builds a failure observation for the given action.
func Failed(name Name, kind FailureKind, format string, args ...any) Observation {
	return Observation{
		Action:  name,
		Ok:      false,
		Failure: kind,
		Summary: fmt.Sprintf(format, args...),
	}
}

// Timeout builds the single observation applied when a dispatch exceeds its
// budget. A timed-out call never applies a partial result.
func Timeout(name Name, budget string) Observation {
	return Observation{
		Action:  name,
		Ok:      false,
		Failure: FailureTimeout,
		Summary: fmt.Sprintf("%s exceeded its %s budget; consider retrying with reduced scope", name, budget),
	}
}
