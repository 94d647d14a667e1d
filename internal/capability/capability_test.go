package capability

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/mender/pkg/models"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		input   string
		want    Name
		wantErr bool
	}{
		{"probe", Probe, false},
		{"  Editor ", Editor, false},
		{"TEST_EXECUTOR", TestExecutor, false},
		{"vcs", VCSAgent, false},
		{"oracle", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestActionSignature(t *testing.T) {
	base := Action{Name: Editor, Instruction: "fix the bug", PrePatches: []string{"diff_1"}}

	if base.Signature() != base.Signature() {
		t.Error("signature should be deterministic")
	}

	same := Action{Name: Editor, Instruction: "  Fix  the bug ", PrePatches: []string{"diff_1"}}
	if base.Signature() != same.Signature() {
		t.Error("whitespace and case differences should not change the signature")
	}

	different := []Action{
		{Name: Locator, Instruction: "fix the bug", PrePatches: []string{"diff_1"}},
		{Name: Editor, Instruction: "fix another bug", PrePatches: []string{"diff_1"}},
		{Name: Editor, Instruction: "fix the bug", PrePatches: []string{"diff_2"}},
		{Name: Editor, Instruction: "fix the bug"},
	}
	for i, other := range different {
		if base.Signature() == other.Signature() {
			t.Errorf("action %d should have a distinct signature", i)
		}
	}
}

// stubAdapter satisfies Adapter for registry tests.
type stubAdapter struct {
	name Name
}

func (s stubAdapter) Name() Name            { return s.name }
func (s stubAdapter) Budget() time.Duration { return time.Second }
func (s stubAdapter) CostWeight() float64   { return 1 }
func (s stubAdapter) Validate(Action) error { return nil }
func (s stubAdapter) Invoke(context.Context, Action, Invocation) (Observation, error) {
	return Observation{Action: s.name, Ok: true}, nil
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(stubAdapter{Probe}, stubAdapter{Editor})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	if _, ok := reg.Get(Probe); !ok {
		t.Error("Get(Probe) should find the adapter")
	}
	if _, ok := reg.Get(Advisor); ok {
		t.Error("Get(Advisor) should miss")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != Probe || names[1] != Editor {
		t.Errorf("Names() = %v, want [probe editor]", names)
	}

	if _, err := NewRegistry(stubAdapter{Probe}, stubAdapter{Probe}); err == nil {
		t.Error("duplicate adapter registration should fail")
	}
}

func TestAdapterValidation(t *testing.T) {
	opts := ClaudeOptions{}
	tests := []struct {
		name    string
		adapter interface{ Validate(Action) error }
		action  Action
		wantErr bool
	}{
		{"probe ok", NewProbe(opts), Action{Name: Probe, Instruction: "how to run tests"}, false},
		{"probe missing instruction", NewProbe(opts), Action{Name: Probe}, true},
		{"probe rejects command", NewProbe(opts), Action{Name: Probe, Instruction: "q", Command: "go test"}, true},
		{"locator ok", NewLocator(opts), Action{Name: Locator, Instruction: "find the parser"}, false},
		{"locator missing instruction", NewLocator(opts), Action{Name: Locator}, true},
		{"editor ok with location", NewEditor(opts), Action{
			Name:        Editor,
			Instruction: "rename the field",
			Locations:   []models.Location{{Path: "a.go", StartLine: 1, EndLine: 2}},
		}, false},
		{"editor ok with pre-patch", NewEditor(opts), Action{
			Name:        Editor,
			Instruction: "rename the field",
			PrePatches:  []string{"diff_1"},
		}, false},
		{"editor without anchor", NewEditor(opts), Action{Name: Editor, Instruction: "rename the field"}, true},
		{"editor missing instruction", NewEditor(opts), Action{Name: Editor}, true},
		{"test executor bare", NewTestExecutor(opts), Action{Name: TestExecutor}, false},
		{"test executor rejects locations", NewTestExecutor(opts), Action{
			Name:      TestExecutor,
			Locations: []models.Location{{Path: "a.go", StartLine: 1, EndLine: 2}},
		}, true},
		{"vcs ok", NewVCS(opts), Action{Name: VCSAgent, Instruction: "when did this file change"}, false},
		{"vcs missing instruction", NewVCS(opts), Action{Name: VCSAgent}, true},
		{"advisor bare", NewAdvisor(opts), Action{Name: Advisor}, false},
		{"advisor rejects pre-patches", NewAdvisor(opts), Action{Name: Advisor, PrePatches: []string{"diff_1"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.adapter.Validate(tt.action)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTestExecutorNeedsACommandFromSomewhere(t *testing.T) {
	adapter := NewTestExecutor(ClaudeOptions{})

	// No explicit command and nothing discovered: rejected before any work.
	obs, err := adapter.Invoke(context.Background(), Action{Name: TestExecutor}, Invocation{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if obs.Ok || obs.Failure != FailureAdapter {
		t.Errorf("observation = %+v, want adapter failure", obs)
	}
	if !strings.Contains(obs.Summary, "no test command") {
		t.Errorf("Summary = %q, want the missing command named", obs.Summary)
	}
}

func TestVCSObservationDerivesDiffFromWorkingTree(t *testing.T) {
	patch := "diff --git a/main.go b/main.go\n--- a/main.go\n+++ b/main.go\n@@ -1,1 +1,1 @@\n-old\n+new\n"
	git := models.GitStatus{Branch: "main", Commit: "abc123"}

	// A history query leaves the tree untouched: answer only, no patch.
	query := vcsObservation("last change was commit abc123", "", nil, git)
	if !query.Ok || query.Answer == "" {
		t.Errorf("query observation = %+v", query)
	}
	if query.DiffContent != "" {
		t.Error("read-only query must not carry a patch")
	}
	if query.Environment == nil || query.Environment.Git.Branch != "main" {
		t.Error("git position should be reported as an environment fact")
	}

	// A git operation that changed the tree comes back as a patch, parented
	// on the pre-patches the operation was built on.
	op := vcsObservation("reverted commit abc123", patch, []string{"diff_1"}, git)
	if op.DiffContent != patch {
		t.Errorf("DiffContent = %q, want the extracted patch", op.DiffContent)
	}
	if len(op.DiffParents) != 1 || op.DiffParents[0] != "diff_1" {
		t.Errorf("DiffParents = %v, want [diff_1]", op.DiffParents)
	}
	if op.DiffNotes == "" {
		t.Error("patch should carry the operation's rationale as notes")
	}

	// Whitespace-only extraction is treated as no change.
	blank := vcsObservation("nothing to do", "  \n", nil, models.GitStatus{})
	if blank.DiffContent != "" || blank.Environment != nil {
		t.Errorf("blank observation = %+v", blank)
	}
}

func TestAdapterDefaults(t *testing.T) {
	probe := NewProbe(ClaudeOptions{})
	if probe.Budget() != defaultBudget {
		t.Errorf("Budget() = %v, want default %v", probe.Budget(), defaultBudget)
	}
	if probe.CostWeight() != defaultCostWeight {
		t.Errorf("CostWeight() = %v, want default %v", probe.CostWeight(), defaultCostWeight)
	}

	tuned := NewEditor(ClaudeOptions{Budget: 2 * time.Minute, CostWeight: 3})
	if tuned.Budget() != 2*time.Minute {
		t.Errorf("Budget() = %v, want 2m", tuned.Budget())
	}
	if tuned.CostWeight() != 3 {
		t.Errorf("CostWeight() = %v, want 3", tuned.CostWeight())
	}
}

func TestFailureConstructors(t *testing.T) {
	failed := Failed(Editor, FailureAdapter, "bad input: %s", "nope")
	if failed.Ok || failed.Failure != FailureAdapter || failed.Action != Editor {
		t.Errorf("Failed() = %+v", failed)
	}
	if !strings.Contains(failed.Summary, "nope") {
		t.Errorf("Summary = %q, want formatted message", failed.Summary)
	}

	timeout := Timeout(Probe, "5m")
	if timeout.Ok || timeout.Failure != FailureTimeout {
		t.Errorf("Timeout() = %+v", timeout)
	}
	if !strings.Contains(timeout.Summary, "5m") {
		t.Errorf("Summary = %q, want budget mentioned", timeout.Summary)
	}
}

func TestRenderEnvironment(t *testing.T) {
	empty := renderEnvironment(models.Environment{})
	if !strings.Contains(empty, "No environment facts") {
		t.Errorf("empty rendering = %q", empty)
	}

	env := models.Environment{
		Packages: []string{"cobra"},
		Commands: models.Commands{Build: "go build ./...", Test: "go test ./..."},
		Git:      models.GitStatus{Branch: "main", Commit: "abc123"},
	}
	got := renderEnvironment(env)
	for _, want := range []string{"go build ./...", "go test ./...", "cobra", "main"} {
		if !strings.Contains(got, want) {
			t.Errorf("rendering missing %q:\n%s", want, got)
		}
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize("  first line\nsecond line", 100); got != "first line" {
		t.Errorf("summarize() = %q, want first line only", got)
	}
	long := strings.Repeat("a", 50)
	if got := summarize(long, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("summarize() = %q, want 20 chars ending in ellipsis", got)
	}
}
