package orchestrator

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/mender/internal/capability"
	"github.com/ShayCichocki/mender/internal/planner"
	"github.com/ShayCichocki/mender/internal/taskstate"
	"github.com/ShayCichocki/mender/pkg/models"
)

const testPatch = `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,1 +1,1 @@
-old
+new
`

// fakeAdapter scripts one capability's behavior for loop tests.
type fakeAdapter struct {
	name   capability.Name
	budget time.Duration
	weight float64
	invoke func(ctx context.Context, action capability.Action, inv capability.Invocation) (capability.Observation, error)
	calls  atomic.Int32
}

func (f *fakeAdapter) Name() capability.Name { return f.name }

func (f *fakeAdapter) Budget() time.Duration {
	if f.budget > 0 {
		return f.budget
	}
	return time.Second
}

func (f *fakeAdapter) CostWeight() float64 {
	if f.weight > 0 {
		return f.weight
	}
	return 1
}

func (f *fakeAdapter) Validate(action capability.Action) error { return nil }

func (f *fakeAdapter) Invoke(ctx context.Context, action capability.Action, inv capability.Invocation) (capability.Observation, error) {
	f.calls.Add(1)
	if f.invoke != nil {
		return f.invoke(ctx, action, inv)
	}
	return capability.Observation{Action: f.name, Ok: true, Summary: "done"}, nil
}

func okObservation(name capability.Name) func(context.Context, capability.Action, capability.Invocation) (capability.Observation, error) {
	return func(context.Context, capability.Action, capability.Invocation) (capability.Observation, error) {
		return capability.Observation{Action: name, Ok: true, Summary: "done"}, nil
	}
}

func newTask() models.Task {
	return models.Task{ID: "run-1", Description: "fix the bug", ProjectPath: "/tmp/p", CreatedAt: time.Now()}
}

func newLoop(t *testing.T, p planner.Planner, cfg Config, adapters ...capability.Adapter) (*Loop, *taskstate.State) {
	t.Helper()
	reg, err := capability.NewRegistry(adapters...)
	if err != nil {
		t.Fatal(err)
	}
	state := taskstate.New(newTask())
	cfg.Planner = p
	cfg.Adapters = reg
	cfg.State = state
	loop, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return loop, state
}

func TestRunHappyPath(t *testing.T) {
	probe := &fakeAdapter{name: capability.Probe, invoke: func(context.Context, capability.Action, capability.Invocation) (capability.Observation, error) {
		return capability.Observation{
			Action:      capability.Probe,
			Ok:          true,
			Summary:     "go project",
			Environment: &models.Environment{Commands: models.Commands{Test: "go test ./..."}},
		}, nil
	}}
	editor := &fakeAdapter{name: capability.Editor, invoke: func(_ context.Context, action capability.Action, _ capability.Invocation) (capability.Observation, error) {
		return capability.Observation{
			Action:      capability.Editor,
			Ok:          true,
			Summary:     "patched",
			DiffContent: testPatch,
			DiffParents: action.PrePatches,
			DiffNotes:   "the fix",
		}, nil
	}}
	tester := &fakeAdapter{name: capability.TestExecutor, invoke: func(context.Context, capability.Action, capability.Invocation) (capability.Observation, error) {
		return capability.Observation{
			Action:      capability.TestExecutor,
			Ok:          true,
			Summary:     "tests passed",
			TestOutcome: &models.TestOutcome{Command: "go test ./...", Passed: true, Rationale: "all green"},
		}, nil
	}}

	p := planner.NewScripted(
		planner.Decision{Action: &capability.Action{Name: capability.Probe, Instruction: "inspect"}},
		planner.Decision{Action: &capability.Action{Name: capability.Editor, Instruction: "fix"}},
		planner.Decision{Action: &capability.Action{Name: capability.TestExecutor, PrePatches: []string{"diff_1"}}},
		planner.Decision{Termination: &planner.Termination{Status: models.RunSucceeded, FinalDiffID: "diff_1", Reason: "verified"}},
	)

	loop, state := newLoop(t, p, Config{}, probe, editor, tester)
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Status != models.RunSucceeded {
		t.Errorf("Status = %s, want succeeded", result.Status)
	}
	if result.FinalDiffID != "diff_1" {
		t.Errorf("FinalDiffID = %q, want diff_1", result.FinalDiffID)
	}
	if result.FinalPatch == "" {
		t.Error("FinalPatch should carry the resolved patch")
	}
	if result.Steps != 3 {
		t.Errorf("Steps = %d, want 3", result.Steps)
	}

	snap := state.Snapshot()
	if snap.Status != models.RunSucceeded {
		t.Errorf("state status = %s, want succeeded", snap.Status)
	}
	if snap.Environment.Commands.Test != "go test ./..." {
		t.Error("probe's environment facts should be merged")
	}
	if len(snap.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(snap.History))
	}
	if snap.History[1].Observation.DiffID != "diff_1" {
		t.Errorf("editor step DiffID = %q, want diff_1", snap.History[1].Observation.DiffID)
	}

	// One test-executor invocation saw the resolved parent patch.
	if tester.calls.Load() != 1 {
		t.Errorf("test executor calls = %d, want 1", tester.calls.Load())
	}
}

func TestRunStuckConsultsAdvisor(t *testing.T) {
	failing := &fakeAdapter{name: capability.Editor, invoke: func(context.Context, capability.Action, capability.Invocation) (capability.Observation, error) {
		return capability.Failed(capability.Editor, capability.FailureAdapter, "no changes"), nil
	}}
	advisor := &fakeAdapter{name: capability.Advisor, invoke: func(_ context.Context, _ capability.Action, inv capability.Invocation) (capability.Observation, error) {
		if inv.Transcript == "" {
			t.Error("advisor should receive a transcript")
		}
		return capability.Observation{Action: capability.Advisor, Ok: true, Answer: "try locating first"}, nil
	}}

	repeat := capability.Action{Name: capability.Editor, Instruction: "same edit"}
	p := planner.NewScripted(
		planner.Decision{Action: &repeat},
		planner.Decision{Action: &repeat},
		planner.Decision{Termination: &planner.Termination{Status: models.RunFailed, Reason: "giving up"}},
	)

	loop, state := newLoop(t, p, Config{StuckWindow: 5, StuckThreshold: 2}, failing, advisor)
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if advisor.calls.Load() != 1 {
		t.Errorf("advisor calls = %d, want 1", advisor.calls.Load())
	}
	if result.Status != models.RunFailed {
		t.Errorf("Status = %s, want failed", result.Status)
	}

	// The advisor consultation is a recorded step like any other.
	snap := state.Snapshot()
	var sawAdvisor bool
	for _, step := range snap.History {
		if step.Action.Name == capability.Advisor {
			sawAdvisor = true
		}
	}
	if !sawAdvisor {
		t.Error("advisor step missing from history")
	}
}

func TestRunCostCeilingAborts(t *testing.T) {
	editor := &fakeAdapter{name: capability.Editor, weight: 1, invoke: func(_ context.Context, action capability.Action, _ capability.Invocation) (capability.Observation, error) {
		return capability.Observation{
			Action:      capability.Editor,
			Ok:          true,
			DiffContent: testPatch,
			DiffNotes:   "attempt",
		}, nil
	}}

	var decisions []planner.Decision
	for i := 0; i < 10; i++ {
		// Distinct instructions keep stuck detection out of this test.
		decisions = append(decisions, planner.Decision{
			Action: &capability.Action{Name: capability.Editor, Instruction: string(rune('a' + i))},
		})
	}
	p := planner.NewScripted(decisions...)

	loop, _ := newLoop(t, p, Config{CostCeiling: 2}, editor)
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Status != models.RunAborted {
		t.Errorf("Status = %s, want aborted", result.Status)
	}
	if result.Steps != 2 {
		t.Errorf("Steps = %d, want 2 (abort at the boundary after exhaustion)", result.Steps)
	}
	if result.FinalDiffID == "" || result.FinalPatch == "" {
		t.Error("abort should deliver the newest patch as best partial result")
	}
}

func TestRunTimeoutProducesSingleObservation(t *testing.T) {
	slow := &fakeAdapter{name: capability.Probe, budget: 20 * time.Millisecond, invoke: func(ctx context.Context, _ capability.Action, _ capability.Invocation) (capability.Observation, error) {
		<-ctx.Done()
		return capability.Observation{}, ctx.Err()
	}}

	p := planner.NewScripted(
		planner.Decision{Action: &capability.Action{Name: capability.Probe, Instruction: "slow question"}},
		planner.Decision{Termination: &planner.Termination{Status: models.RunFailed, Reason: "done"}},
	)

	loop, state := newLoop(t, p, Config{}, slow)
	if _, err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := state.Snapshot()
	if len(snap.History) != 1 {
		t.Fatalf("history length = %d, want exactly 1 observation for the timed-out action", len(snap.History))
	}
	obs := snap.History[0].Observation
	if obs.Ok || obs.Failure != capability.FailureTimeout {
		t.Errorf("observation = %+v, want timeout failure", obs)
	}
}

func TestRunStopCheckerAborts(t *testing.T) {
	editor := &fakeAdapter{name: capability.Editor}
	p := planner.NewScripted(
		planner.Decision{Action: &capability.Action{Name: capability.Editor, Instruction: "x"}},
	)

	loop, _ := newLoop(t, p, Config{Stop: stopNow{}}, editor)
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Status != models.RunAborted {
		t.Errorf("Status = %s, want aborted", result.Status)
	}
	if editor.calls.Load() != 0 {
		t.Error("no action should be dispatched after a stop request")
	}
}

type stopNow struct{}

func (stopNow) ShouldStop() bool { return true }

func TestRunPlannerErrorAborts(t *testing.T) {
	p := planner.NewScripted() // exhausted immediately
	loop, _ := newLoop(t, p, Config{}, &fakeAdapter{name: capability.Probe})

	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Status != models.RunAborted {
		t.Errorf("Status = %s, want aborted", result.Status)
	}
}

func TestRunInvalidPrePatchBecomesFailure(t *testing.T) {
	editor := &fakeAdapter{name: capability.Editor}
	p := planner.NewScripted(
		planner.Decision{Action: &capability.Action{Name: capability.Editor, Instruction: "x", PrePatches: []string{"diff_404"}}},
		planner.Decision{Termination: &planner.Termination{Status: models.RunFailed, Reason: "done"}},
	)

	loop, state := newLoop(t, p, Config{}, editor)
	if _, err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := state.Snapshot()
	if len(snap.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(snap.History))
	}
	if snap.History[0].Observation.Ok {
		t.Error("dangling pre-patch should produce a failed observation")
	}
	if editor.calls.Load() != 0 {
		t.Error("adapter should not be invoked when pre-patch resolution fails")
	}
}

func TestRunRepeatedStoreViolationAborts(t *testing.T) {
	// First cycle trips the store at pre-patch resolution, second at patch
	// commit. Two consecutive violations must end the run, not loop on.
	editor := &fakeAdapter{name: capability.Editor, invoke: func(context.Context, capability.Action, capability.Invocation) (capability.Observation, error) {
		return capability.Observation{
			Action:      capability.Editor,
			Ok:          true,
			Summary:     "patched",
			DiffContent: testPatch,
			DiffParents: []string{"diff_404"},
		}, nil
	}}

	var decisions []planner.Decision
	decisions = append(decisions,
		planner.Decision{Action: &capability.Action{Name: capability.Editor, Instruction: "first", PrePatches: []string{"diff_404"}}},
	)
	for i := 0; i < 5; i++ {
		decisions = append(decisions, planner.Decision{
			Action: &capability.Action{Name: capability.Editor, Instruction: string(rune('a' + i))},
		})
	}
	decisions = append(decisions, planner.Decision{Termination: &planner.Termination{Status: models.RunFailed, Reason: "never reached"}})

	loop, _ := newLoop(t, planner.NewScripted(decisions...), Config{}, editor)
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Status != models.RunAborted {
		t.Errorf("Status = %s, want aborted by the second violation", result.Status)
	}
	if result.Steps != 2 {
		t.Errorf("Steps = %d, want 2", result.Steps)
	}
	if !strings.Contains(result.Reason, "diff store") {
		t.Errorf("Reason = %q, want the store violation named", result.Reason)
	}
}

func TestRunStoreViolationCounterResetsOnCleanCycle(t *testing.T) {
	editor := &fakeAdapter{name: capability.Editor, invoke: func(context.Context, capability.Action, capability.Invocation) (capability.Observation, error) {
		return capability.Observation{
			Action:      capability.Editor,
			Ok:          true,
			DiffContent: testPatch,
			DiffParents: []string{"diff_404"},
		}, nil
	}}
	probe := &fakeAdapter{name: capability.Probe, invoke: okObservation(capability.Probe)}

	// Violations separated by clean cycles never accumulate to two.
	p := planner.NewScripted(
		planner.Decision{Action: &capability.Action{Name: capability.Editor, Instruction: "a"}},
		planner.Decision{Action: &capability.Action{Name: capability.Probe, Instruction: "look around"}},
		planner.Decision{Action: &capability.Action{Name: capability.Editor, Instruction: "b"}},
		planner.Decision{Action: &capability.Action{Name: capability.Probe, Instruction: "look again"}},
		planner.Decision{Termination: &planner.Termination{Status: models.RunFailed, Reason: "giving up"}},
	)

	loop, _ := newLoop(t, p, Config{}, editor, probe)
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Status != models.RunFailed {
		t.Errorf("Status = %s, want the planner's failed verdict, not an abort", result.Status)
	}
	if result.Steps != 4 {
		t.Errorf("Steps = %d, want 4", result.Steps)
	}
}

const chainPatch = `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,1 +1,1 @@
-new
+newer
`

func TestRunPatchChainComposes(t *testing.T) {
	// Edit, see tests fail, edit again on top of the first patch: the second
	// entry is parented on the first and resolving it yields both, parent
	// first.
	editor := &fakeAdapter{name: capability.Editor, invoke: func(_ context.Context, action capability.Action, inv capability.Invocation) (capability.Observation, error) {
		content := testPatch
		if len(action.PrePatches) > 0 {
			if inv.ResolvedPatch == "" {
				t.Error("editor with pre-patches should see the resolved parent patch")
			}
			content = chainPatch
		}
		return capability.Observation{
			Action:      capability.Editor,
			Ok:          true,
			Summary:     "patched",
			DiffContent: content,
			DiffParents: action.PrePatches,
			DiffNotes:   action.Instruction,
		}, nil
	}}
	tester := &fakeAdapter{name: capability.TestExecutor, invoke: func(_ context.Context, _ capability.Action, inv capability.Invocation) (capability.Observation, error) {
		if inv.ResolvedPatch == "" {
			t.Error("test executor should see the resolved patch under test")
		}
		return capability.Observation{
			Action:      capability.TestExecutor,
			Ok:          true,
			Summary:     "tests failed",
			TestOutcome: &models.TestOutcome{Command: "go test ./...", Passed: false, Rationale: "regression in main"},
		}, nil
	}}

	p := planner.NewScripted(
		planner.Decision{Action: &capability.Action{Name: capability.Editor, Instruction: "add the fix"}},
		planner.Decision{Action: &capability.Action{Name: capability.TestExecutor, PrePatches: []string{"diff_1"}}},
		planner.Decision{Action: &capability.Action{Name: capability.Editor, Instruction: "repair the regression", PrePatches: []string{"diff_1"}}},
		planner.Decision{Termination: &planner.Termination{Status: models.RunSucceeded, FinalDiffID: "diff_2", Reason: "verified"}},
	)

	loop, state := newLoop(t, p, Config{}, editor, tester)
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Status != models.RunSucceeded || result.FinalDiffID != "diff_2" {
		t.Fatalf("result = %+v, want succeeded with diff_2", result)
	}

	snap := state.Snapshot()
	entry, ok := snap.Store.Get("diff_2")
	if !ok {
		t.Fatal("diff_2 missing from store")
	}
	if len(entry.Parents) != 1 || entry.Parents[0] != "diff_1" {
		t.Errorf("diff_2 parents = %v, want [diff_1]", entry.Parents)
	}

	first := strings.Index(result.FinalPatch, "+new\n")
	second := strings.Index(result.FinalPatch, "+newer\n")
	if first < 0 || second < 0 {
		t.Fatalf("FinalPatch missing chained changes:\n%s", result.FinalPatch)
	}
	if first > second {
		t.Error("parent patch should be applied before its child")
	}
}

func TestRunMaxStepsBrake(t *testing.T) {
	editor := &fakeAdapter{name: capability.Editor}
	var decisions []planner.Decision
	for i := 0; i < 10; i++ {
		decisions = append(decisions, planner.Decision{
			Action: &capability.Action{Name: capability.Editor, Instruction: string(rune('a' + i))},
		})
	}
	loop, _ := newLoop(t, planner.NewScripted(decisions...), Config{MaxSteps: 3}, editor)

	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Status != models.RunAborted || result.Steps != 3 {
		t.Errorf("result = %+v, want aborted after 3 steps", result)
	}
}

func TestEventsStreamTerminalEvent(t *testing.T) {
	p := planner.NewScripted(
		planner.Decision{Termination: &planner.Termination{Status: models.RunFailed, Reason: "nothing to do"}},
	)
	loop, _ := newLoop(t, p, Config{}, &fakeAdapter{name: capability.Probe})

	if _, err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var last Event
	for ev := range loop.Events() {
		last = ev
	}
	if last.Type != EventRunFinished || last.Status != models.RunFailed {
		t.Errorf("last event = %+v, want run_finished/failed", last)
	}
}
