package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/mender/internal/capability"
	"github.com/ShayCichocki/mender/internal/diffstore"
	"github.com/ShayCichocki/mender/internal/planner"
	"github.com/ShayCichocki/mender/internal/taskstate"
	"github.com/ShayCichocki/mender/pkg/models"
)

// transcriptWindow is how many recent steps the advisor sees.
const transcriptWindow = 10

// StopChecker reports an external request to stop the run. Checked at cycle
// boundaries only; an action in flight always completes first.
type StopChecker interface {
	ShouldStop() bool
}

// Journal persists steps and the terminal verdict as they happen.
type Journal interface {
	RecordStep(step taskstate.Step) error
	RecordFinish(status models.RunStatus, finalDiffID, reason string) error
}

// Config assembles a loop.
type Config struct {
	Planner  planner.Planner
	Adapters *capability.Registry
	State    *taskstate.State
	// CostCeiling is the run's cost budget in adapter cost units (0 = off).
	CostCeiling float64
	// StuckWindow and StuckThreshold tune repetition detection.
	StuckWindow    int
	StuckThreshold int
	// MaxSteps hard-caps history length as a last-resort brake (0 = off).
	MaxSteps int
	// Stop is the optional external cancellation signal.
	Stop StopChecker
	// Journal is the optional run journal.
	Journal Journal
}

// Result is the outcome of a completed run.
type Result struct {
	Status      models.RunStatus
	FinalDiffID string
	// FinalPatch is the fully resolved patch text of the final diff, empty
	// when the run ended without one.
	FinalPatch string
	Reason     string
	Steps      int
	CostUsed   float64
}

// Loop owns a run's state exclusively and advances it one action at a time.
type Loop struct {
	planner  planner.Planner
	registry *capability.Registry
	state    *taskstate.State
	meter    *CostMeter
	stuck    *StuckDetector
	maxSteps int
	stop     StopChecker
	journal  Journal

	events chan Event
	steps  int
	// violations counts consecutive cycles that tripped a diff store
	// invariant; a clean cycle resets it, a second trip aborts the run.
	violations int
}

// New creates a loop from the given configuration.
func New(cfg Config) (*Loop, error) {
	if cfg.Planner == nil {
		return nil, fmt.Errorf("loop requires a planner")
	}
	if cfg.Adapters == nil {
		return nil, fmt.Errorf("loop requires an adapter registry")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("loop requires run state")
	}
	return &Loop{
		planner:  cfg.Planner,
		registry: cfg.Adapters,
		state:    cfg.State,
		meter:    NewCostMeter(cfg.CostCeiling),
		stuck:    NewStuckDetector(cfg.StuckWindow, cfg.StuckThreshold),
		maxSteps: cfg.MaxSteps,
		stop:     cfg.Stop,
		journal:  cfg.Journal,
		events:   make(chan Event, 100),
	}, nil
}

// Events returns the event stream for live display.
func (l *Loop) Events() <-chan Event {
	return l.events
}

// Snapshot returns a read-only view of the run state, for reporting after
// the loop returns.
func (l *Loop) Snapshot() taskstate.Snapshot {
	return l.state.Snapshot()
}

// Run executes the loop until the planner finishes the run or the loop
// aborts it. Exactly one action is in flight at any time.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	l.emit(Event{Type: EventRunStarted, At: time.Now()})
	log.Printf("[orchestrator] run started")

	for {
		if ctx.Err() != nil {
			return l.abort("run cancelled"), nil
		}
		if l.stop != nil && l.stop.ShouldStop() {
			return l.abort("external stop requested"), nil
		}
		if l.meter.Status() == CostExhausted {
			return l.abort("cost ceiling reached"), nil
		}
		if l.maxSteps > 0 && l.steps >= l.maxSteps {
			return l.abort("step limit reached"), nil
		}

		snap := l.state.Snapshot()
		decision, err := l.planner.SelectNext(ctx, snap)
		if err != nil {
			if errors.Is(err, planner.ErrContract) {
				return l.abort(fmt.Sprintf("planner contract violation: %v", err)), nil
			}
			return l.abort(fmt.Sprintf("planner error: %v", err)), nil
		}
		if err := decision.Valid(); err != nil {
			return l.abort(fmt.Sprintf("invalid decision: %v", err)), nil
		}

		if decision.Termination != nil {
			return l.finish(*decision.Termination)
		}

		stuck, violated := l.dispatch(ctx, *decision.Action, snap)
		if ctx.Err() != nil {
			return l.abort("run cancelled"), nil
		}

		if violated {
			l.violations++
			if l.violations >= 2 {
				return l.abort("repeated diff store violation"), nil
			}
		} else {
			l.violations = 0
		}

		if stuck && decision.Action.Name != capability.Advisor {
			l.emit(Event{
				Type:    EventStuckDetected,
				Action:  decision.Action.Name,
				Message: fmt.Sprintf("action %s repeated; consulting advisor", decision.Action.Name),
				At:      time.Now(),
			})
			log.Printf("[orchestrator] stuck on %s, consulting advisor", decision.Action.Name)

			advisory := capability.Action{
				Name:        capability.Advisor,
				Instruction: "the session keeps repeating the same action without progress; diagnose and recommend a different approach",
			}
			l.dispatch(ctx, advisory, l.state.Snapshot())
			l.stuck.Reset()
		}
	}
}

// dispatch runs one action end to end: registration, validation, budgeted
// invocation, observation application, cost charge. Returns whether the
// action's signature crossed the stuck threshold and whether the cycle
// tripped a diff store invariant.
func (l *Loop) dispatch(ctx context.Context, action capability.Action, snap taskstate.Snapshot) (stuck, violated bool) {
	if err := l.state.RecordAction(action); err != nil {
		log.Printf("[orchestrator] sequencing error: %v", err)
		return false, false
	}

	adapter, ok := l.registry.Get(action.Name)
	if !ok {
		l.apply(action, capability.Failed(action.Name, capability.FailureAdapter,
			"no adapter registered for %s", action.Name))
		return false, false
	}
	if err := adapter.Validate(action); err != nil {
		l.apply(action, capability.Failed(action.Name, capability.FailureAdapter,
			"invalid action: %v", err))
		return false, false
	}

	resolved := ""
	if len(action.PrePatches) > 0 {
		var err error
		resolved, err = l.state.Diffs().Resolve(action.PrePatches)
		if err != nil {
			l.apply(action, capability.Failed(action.Name, capability.FailureAdapter,
				"resolve pre-patches: %v", err))
			return false, isStoreViolation(err)
		}
	}

	inv := capability.Invocation{
		Task:           snap.Task,
		Environment:    snap.Environment,
		ResolvedPatch:  resolved,
		Transcript:     snap.HistoryTail(transcriptWindow),
		KnownLocations: snap.Locations,
	}

	l.emit(Event{
		Type:    EventActionDispatched,
		Seq:     l.steps + 1,
		Action:  action.Name,
		Message: action.String(),
		At:      time.Now(),
	})
	log.Printf("[orchestrator] step %d: %s", l.steps+1, action.String())

	budget := adapter.Budget()
	cctx, cancel := context.WithTimeout(ctx, budget)
	obs, err := adapter.Invoke(cctx, action, inv)
	cancel()

	switch {
	case err != nil && ctx.Err() != nil:
		// Outer cancellation; the cycle boundary aborts the run.
		obs = capability.Failed(action.Name, capability.FailureAdapter, "run cancelled mid-action")
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		obs = capability.Timeout(action.Name, budget.String())
	case err != nil:
		obs = capability.Failed(action.Name, capability.FailureAdapter, "%v", err)
	}

	violated = l.apply(action, obs)

	if status, firstWarning := l.meter.Charge(adapter.CostWeight()); firstWarning {
		used, ceiling, _ := l.meter.Usage()
		l.emit(Event{
			Type:    EventBudgetWarning,
			Message: fmt.Sprintf("cost at %.1f of %.1f", used, ceiling),
			At:      time.Now(),
		})
		log.Printf("[orchestrator] cost warning: %.1f of %.1f used (%s)", used, ceiling, status)
	}

	return l.stuck.Record(action.Signature()), violated
}

// isStoreViolation reports whether an error is a diff store invariant
// violation rather than an ordinary adapter failure.
func isStoreViolation(err error) bool {
	return errors.Is(err, diffstore.ErrUnknownParent) ||
		errors.Is(err, diffstore.ErrDuplicateID) ||
		errors.Is(err, diffstore.ErrCycle) ||
		errors.Is(err, diffstore.ErrUnknownID)
}

// apply folds an observation into state, journals the resulting step, and
// emits the applied event. Reports whether the observation tripped a diff
// store invariant.
func (l *Loop) apply(action capability.Action, obs capability.Observation) bool {
	violated := false
	if err := l.state.ApplyObservation(obs); err != nil {
		// The state has already recorded the failure in history.
		violated = isStoreViolation(err)
		log.Printf("[orchestrator] observation for %s degraded: %v", action.Name, err)
	}
	l.steps++

	snap := l.state.Snapshot()
	if len(snap.History) > 0 {
		step := snap.History[len(snap.History)-1]
		if l.journal != nil {
			if err := l.journal.RecordStep(step); err != nil {
				log.Printf("[orchestrator] warning: journal step: %v", err)
			}
		}
		l.emit(Event{
			Type:    EventObservationApplied,
			Seq:     step.Seq,
			Action:  step.Observation.Action,
			Message: step.Observation.Summary,
			At:      time.Now(),
		})
	}
	return violated
}

// finish applies the planner's terminal verdict.
func (l *Loop) finish(t planner.Termination) (Result, error) {
	if err := l.state.Finish(t.Status, t.FinalDiffID); err != nil {
		return l.abort(fmt.Sprintf("invalid termination: %v", err)), nil
	}
	log.Printf("[orchestrator] run finished: %s (%s)", t.Status, t.Reason)
	return l.conclude(t.Status, t.FinalDiffID, t.Reason), nil
}

// abort ends the run with Aborted, delivering the newest patch as the best
// partial result when one exists.
func (l *Loop) abort(reason string) Result {
	best := l.state.Diffs().Newest()
	if err := l.state.Finish(models.RunAborted, best); err != nil {
		log.Printf("[orchestrator] warning: abort finish: %v", err)
	}
	log.Printf("[orchestrator] run aborted: %s", reason)
	return l.conclude(models.RunAborted, best, reason)
}

func (l *Loop) conclude(status models.RunStatus, finalDiffID, reason string) Result {
	result := Result{
		Status:      status,
		FinalDiffID: finalDiffID,
		Reason:      reason,
		Steps:       l.steps,
	}
	result.CostUsed, _, _ = l.meter.Usage()

	if finalDiffID != "" {
		if patch, err := l.state.Diffs().Resolve([]string{finalDiffID}); err == nil {
			result.FinalPatch = patch
		} else {
			log.Printf("[orchestrator] warning: resolve final diff: %v", err)
		}
	}

	if l.journal != nil {
		if err := l.journal.RecordFinish(status, finalDiffID, reason); err != nil {
			log.Printf("[orchestrator] warning: journal finish: %v", err)
		}
	}

	l.emit(Event{
		Type:    EventRunFinished,
		Status:  status,
		Message: reason,
		At:      time.Now(),
	})
	close(l.events)
	return result
}

func (l *Loop) emit(event Event) {
	select {
	case l.events <- event:
	default:
		// Channel full, drop event to avoid blocking
	}
}
