package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/mender/internal/api"
	"github.com/ShayCichocki/mender/pkg/models"
)

// TestExecutorAdapter runs tests against the state described by the action's
// pre-patches and reports a judged outcome: whether tests genuinely passed,
// not just whether the command exited zero.
type TestExecutorAdapter struct {
	claudeAdapter
}

// NewTestExecutor creates the test executor adapter.
func NewTestExecutor(opts ClaudeOptions) *TestExecutorAdapter {
	return &TestExecutorAdapter{claudeAdapter{name: TestExecutor, opts: opts}}
}

// Validate checks the action's arguments. The command may be omitted only
// when the environment already carries a discovered test command; Invoke
// enforces that part, since Validate does not see the environment.
func (t *TestExecutorAdapter) Validate(action Action) error {
	if len(action.Locations) > 0 {
		return fmt.Errorf("test executor does not take locations")
	}
	return nil
}

// Invoke runs the test sub-agent and converts its report into a test
// outcome observation.
func (t *TestExecutorAdapter) Invoke(ctx context.Context, action Action, inv Invocation) (Observation, error) {
	if action.Command == "" && inv.Environment.Commands.Test == "" && inv.Environment.Commands.ReducedTestExample == "" {
		return Failed(TestExecutor, FailureAdapter,
			"no test command given and none discovered yet; probe the environment first"), nil
	}

	if err := t.prepareCheckout(inv.ResolvedPatch); err != nil {
		return Failed(TestExecutor, FailureAdapter, "prepare checkout: %v", err), nil
	}

	tools := append(api.InspectionTools(),
		api.Tool("report_test_result", "Report the judged outcome of the test run. Call exactly once when done.",
			map[string]api.Property{
				"command":   {Type: "string", Description: "The exact test command that was run"},
				"passed":    {Type: "boolean", Description: "Whether the tests genuinely passed"},
				"rationale": {Type: "string", Description: "Why the run is judged passed or failed"},
				"output":    {Type: "string", Description: "The decisive lines of test output"},
				"doubts":    {Type: "string", Description: "Reasons the judgment could be wrong, if any"},
			}, "command", "passed", "rationale"),
	)

	var directive strings.Builder
	fmt.Fprintf(&directive, "Task context: %s\n\n", inv.Task.Description)
	if action.Command != "" {
		fmt.Fprintf(&directive, "Run this test command: %s\n", action.Command)
	} else {
		directive.WriteString("Derive and run the appropriate test command.\n")
	}
	if action.Instruction != "" {
		fmt.Fprintf(&directive, "Focus: %s\n", action.Instruction)
	}
	fmt.Fprintf(&directive, "\nKnown environment facts:\n%s", renderEnvironment(inv.Environment))

	result, err := t.newLoop(true).Run(ctx, testExecutorSystemPrompt, directive.String(), tools, "report_test_result")
	if err != nil {
		if ctx.Err() != nil {
			return Observation{}, ctx.Err()
		}
		return Failed(TestExecutor, FailureAdapter, "test executor agent: %v", err), nil
	}
	if result.FinalTool == "" {
		return Failed(TestExecutor, FailureAdapter, "test executor finished without reporting a result"), nil
	}

	var report struct {
		Command   string `json:"command"`
		Passed    bool   `json:"passed"`
		Rationale string `json:"rationale"`
		Output    string `json:"output"`
		Doubts    string `json:"doubts"`
	}
	if err := json.Unmarshal(result.FinalInput, &report); err != nil {
		return Failed(TestExecutor, FailureAdapter, "unusable test report: %v", err), nil
	}

	verdict := "failed"
	if report.Passed {
		verdict = "passed"
	}
	return Observation{
		Action:  TestExecutor,
		Ok:      true,
		Summary: summarize(fmt.Sprintf("tests %s: %s", verdict, report.Rationale), 200),
		TestOutcome: &models.TestOutcome{
			Command:   report.Command,
			Passed:    report.Passed,
			Rationale: report.Rationale,
			Output:    report.Output,
			Doubts:    report.Doubts,
		},
	}, nil
}
