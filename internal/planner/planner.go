// Package planner decides the next move for a run: invoke one capability or
// finish. The production planner is Claude-backed and stateless between
// cycles; everything it knows comes from the state snapshot it is handed.
package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShayCichocki/mender/internal/capability"
	"github.com/ShayCichocki/mender/internal/taskstate"
	"github.com/ShayCichocki/mender/pkg/models"
)

// ErrContract indicates the planner failed to produce a usable decision
// after being re-prompted. The loop aborts the run on this error.
var ErrContract = errors.New("planner violated its decision contract")

// Termination is a planner's request to end the run.
type Termination struct {
	// Status is the terminal verdict, Succeeded or Failed.
	Status models.RunStatus
	// FinalDiffID names the diff store entry to deliver. Required for
	// Succeeded; optional for Failed (best partial result).
	FinalDiffID string
	// Reason explains the verdict.
	Reason string
}

// Decision is the planner's output for one cycle: exactly one of Action or
// Termination is set.
type Decision struct {
	Action      *capability.Action
	Termination *Termination
}

// Valid checks the exactly-one shape and the termination's internal rules.
func (d Decision) Valid() error {
	switch {
	case d.Action != nil && d.Termination != nil:
		return fmt.Errorf("decision carries both an action and a termination")
	case d.Action == nil && d.Termination == nil:
		return fmt.Errorf("decision carries neither an action nor a termination")
	case d.Termination != nil:
		t := d.Termination
		if t.Status != models.RunSucceeded && t.Status != models.RunFailed {
			return fmt.Errorf("termination status must be succeeded or failed, got %q", t.Status)
		}
		if t.Status == models.RunSucceeded && t.FinalDiffID == "" {
			return fmt.Errorf("succeeded termination requires a final diff")
		}
	}
	return nil
}

// Planner proposes one decision per orchestration cycle.
type Planner interface {
	SelectNext(ctx context.Context, snap taskstate.Snapshot) (Decision, error)
}

// Scripted replays a fixed decision sequence. Used for dry runs and tests.
type Scripted struct {
	decisions []Decision
	pos       int
}

// NewScripted creates a scripted planner.
func NewScripted(decisions ...Decision) *Scripted {
	return &Scripted{decisions: decisions}
}

// Next returns the next scripted decision.
func (s *Scripted) SelectNext(_ context.Context, _ taskstate.Snapshot) (Decision, error) {
	if s.pos >= len(s.decisions) {
		return Decision{}, fmt.Errorf("scripted planner exhausted after %d decisions", s.pos)
	}
	d := s.decisions[s.pos]
	s.pos++
	return d, nil
}
