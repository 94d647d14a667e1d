// Package taskstate holds the single source of truth for one run: the
// accumulated environment facts, the append-only action/observation history,
// the diff store, and the run status. The orchestration loop owns the state
// exclusively and mutates it only by applying observations; everything else
// sees read-only snapshots.
package taskstate

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/mender/internal/capability"
	"github.com/ShayCichocki/mender/internal/diffstore"
	"github.com/ShayCichocki/mender/pkg/models"
)

// Step is one (action, observation) pair in the run's audit trail.
type Step struct {
	// Seq is the 1-indexed position of this step in history.
	Seq int `json:"seq"`
	// Action is the dispatched request.
	Action capability.Action `json:"action"`
	// Observation is the single result applied for the action.
	Observation capability.Observation `json:"observation"`
	// At is when the observation was applied.
	At time.Time `json:"at"`
}

// State is the mutable aggregate for one task run. It grows monotonically:
// history and the diff store only ever gain entries, and a confirmed
// environment fact is never regressed without new evidence.
type State struct {
	task        models.Task
	environment models.Environment
	history     []Step
	diffs       *diffstore.Store
	status      models.RunStatus
	finalDiffID string
	locations   []models.Location

	pending *capability.Action
}

// New creates an empty state for the given task, seeded with any environment
// facts known up front.
func New(task models.Task) *State {
	s := &State{
		task:   task,
		diffs:  diffstore.New(),
		status: models.RunActive,
	}
	s.environment.ProjectRoot = task.ProjectPath
	if task.Seed != nil {
		s.environment.Merge(task.Seed)
	}
	return s
}

// Diffs returns the run's diff store.
func (s *State) Diffs() *diffstore.Store {
	return s.diffs
}

// Status returns the current run status.
func (s *State) Status() models.RunStatus {
	return s.status
}

// FinalDiffID returns the selected final entry, set at termination.
func (s *State) FinalDiffID() string {
	return s.finalDiffID
}

// RecordAction registers the action about to be dispatched. Exactly one
// action may be pending at a time; a second registration before the matching
// observation is a sequencing bug.
func (s *State) RecordAction(a capability.Action) error {
	if s.status.Terminal() {
		return fmt.Errorf("run already terminal (%s)", s.status)
	}
	if s.pending != nil {
		return fmt.Errorf("action %s still awaiting its observation", s.pending.Name)
	}
	s.pending = &a
	return nil
}

// ApplyObservation applies the single observation for the pending action.
// History is appended unconditionally, failures included, so the planner can
// learn from errors. Environment facts are merged additively; a returned
// patch is committed to the diff store and its assigned ID written back into
// the recorded observation.
func (s *State) ApplyObservation(o capability.Observation) error {
	if s.pending == nil {
		return fmt.Errorf("no pending action for observation from %s", o.Action)
	}
	action := *s.pending
	s.pending = nil

	if o.Ok && o.DiffContent != "" {
		id, err := s.diffs.Create(o.DiffContent, o.DiffParents, o.DiffNotes)
		if err != nil {
			// The observation still lands in history as a failure so the
			// planner sees what went wrong.
			o = capability.Failed(o.Action, capability.FailureAdapter,
				"patch rejected by diff store: %v", err)
			s.appendStep(action, o)
			return fmt.Errorf("commit patch: %w", err)
		}
		o.DiffID = id
	}

	if o.Environment != nil {
		s.environment.Merge(o.Environment)
	}
	if len(o.Locations) > 0 {
		s.locations = append(s.locations, o.Locations...)
	}

	s.appendStep(action, o)
	return nil
}

func (s *State) appendStep(a capability.Action, o capability.Observation) {
	s.history = append(s.history, Step{
		Seq:         len(s.history) + 1,
		Action:      a,
		Observation: o,
		At:          time.Now(),
	})
}

// Finish transitions the run to a terminal status. Status never changes via
// observation application; only an explicit terminal decision lands here.
func (s *State) Finish(status models.RunStatus, finalDiffID string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish requires a terminal status, got %s", status)
	}
	if s.status.Terminal() {
		return fmt.Errorf("run already terminal (%s)", s.status)
	}
	if finalDiffID != "" {
		if _, ok := s.diffs.Get(finalDiffID); !ok {
			return fmt.Errorf("final diff %s not in store", finalDiffID)
		}
	}
	s.status = status
	s.finalDiffID = finalDiffID
	return nil
}

// Snapshot is a read-only view of the state handed to the planner each cycle.
// All planner continuity lives here; the planner itself is stateless between
// cycles.
type Snapshot struct {
	// Task is the immutable task under work.
	Task models.Task
	// Environment is a copy of the best-known facts.
	Environment models.Environment
	// History is a copy of all steps so far.
	History []Step
	// DiffIDs lists diff store entries in creation order.
	DiffIDs []string
	// DiffNotes maps entry ID to its notes and parent list rendering.
	DiffNotes map[string]string
	// Locations are the spans located so far.
	Locations []models.Location
	// Status is the run status at snapshot time.
	Status models.RunStatus
	// Store gives read access to the diff store for resolution checks.
	Store *diffstore.Store
}

// Snapshot captures the current state for one planner cycle.
func (s *State) Snapshot() Snapshot {
	env := *s.environment.Clone()
	hist := make([]Step, len(s.history))
	copy(hist, s.history)
	locs := make([]models.Location, len(s.locations))
	copy(locs, s.locations)

	ids := s.diffs.IDs()
	notes := make(map[string]string, len(ids))
	for _, id := range ids {
		if e, ok := s.diffs.Get(id); ok {
			desc := e.Notes
			if len(e.Parents) > 0 {
				desc = fmt.Sprintf("parents=[%s] %s", strings.Join(e.Parents, ","), desc)
			}
			notes[id] = strings.TrimSpace(desc)
		}
	}

	return Snapshot{
		Task:        s.task,
		Environment: env,
		History:     hist,
		DiffIDs:     ids,
		DiffNotes:   notes,
		Locations:   locs,
		Status:      s.status,
		Store:       s.diffs,
	}
}

// HistoryTail renders the last n steps for prompts and advisor transcripts.
func (snap Snapshot) HistoryTail(n int) string {
	steps := snap.History
	if len(steps) > n {
		steps = steps[len(steps)-n:]
	}
	var b strings.Builder
	for _, st := range steps {
		status := "ok"
		if !st.Observation.Ok {
			status = string(st.Observation.Failure)
		}
		fmt.Fprintf(&b, "%d. %s -> %s: %s\n", st.Seq, st.Action.String(), status, st.Observation.Summary)
	}
	return b.String()
}
