package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/mender/internal/api"
	"github.com/ShayCichocki/mender/pkg/models"
)

// ProbeAdapter answers questions about the project and discovers durable
// environment facts: build, test, run and lint commands, package managers,
// and version-control position.
type ProbeAdapter struct {
	claudeAdapter
}

// NewProbe creates the probe adapter.
func NewProbe(opts ClaudeOptions) *ProbeAdapter {
	return &ProbeAdapter{claudeAdapter{name: Probe, opts: opts}}
}

// Validate checks the action's arguments.
func (p *ProbeAdapter) Validate(action Action) error {
	if strings.TrimSpace(action.Instruction) == "" {
		return fmt.Errorf("probe requires an instruction")
	}
	if action.Command != "" {
		return fmt.Errorf("probe does not take a command")
	}
	return nil
}

// Invoke runs the probe sub-agent and converts its report into an
// environment observation.
func (p *ProbeAdapter) Invoke(ctx context.Context, action Action, inv Invocation) (Observation, error) {
	if err := p.prepareCheckout(inv.ResolvedPatch); err != nil {
		return Failed(Probe, FailureAdapter, "prepare checkout: %v", err), nil
	}

	tools := append(api.InspectionTools(),
		api.Tool("report_environment", "Report the answer and all discovered environment facts. Call exactly once when done.",
			map[string]api.Property{
				"answer":                  {Type: "string", Description: "Direct answer to the question asked"},
				"build_command":           {Type: "string", Description: "Command that builds the project"},
				"test_command":            {Type: "string", Description: "Command that runs the full test suite"},
				"run_command":             {Type: "string", Description: "Command that runs the project"},
				"lint_command":            {Type: "string", Description: "Command that lints the project"},
				"reducible_test_scope":    {Type: "boolean", Description: "Whether the test command can be narrowed to a subset"},
				"reduced_test_example":    {Type: "string", Description: "Example of a narrowed test command"},
				"system_package_manager":  {Type: "string", Description: "System-level package manager in use (apt, brew, ...)"},
				"project_package_manager": {Type: "string", Description: "Project-level package manager in use (go mod, npm, pip, ...)"},
				"packages":                {Type: "array", Description: "Notable packages or dependencies discovered", Items: "string"},
			}, "answer"),
	)

	userPrompt := fmt.Sprintf("Task context: %s\n\nQuestion: %s\n\nKnown environment facts:\n%s",
		inv.Task.Description, action.Instruction, renderEnvironment(inv.Environment))

	result, err := p.newLoop(true).Run(ctx, probeSystemPrompt, userPrompt, tools, "report_environment")
	if err != nil {
		if ctx.Err() != nil {
			return Observation{}, ctx.Err()
		}
		return Failed(Probe, FailureAdapter, "probe agent: %v", err), nil
	}
	if result.FinalTool == "" {
		return Failed(Probe, FailureAdapter, "probe finished without reporting findings"), nil
	}

	var report struct {
		Answer                string   `json:"answer"`
		BuildCommand          string   `json:"build_command"`
		TestCommand           string   `json:"test_command"`
		RunCommand            string   `json:"run_command"`
		LintCommand           string   `json:"lint_command"`
		ReducibleTestScope    bool     `json:"reducible_test_scope"`
		ReducedTestExample    string   `json:"reduced_test_example"`
		SystemPackageManager  string   `json:"system_package_manager"`
		ProjectPackageManager string   `json:"project_package_manager"`
		Packages              []string `json:"packages"`
	}
	if err := json.Unmarshal(result.FinalInput, &report); err != nil {
		return Failed(Probe, FailureAdapter, "unusable probe report: %v", err), nil
	}

	env := &models.Environment{
		ProjectRoot: p.opts.Workspace.Root(),
		Packages:    report.Packages,
		Commands: models.Commands{
			Build:                 report.BuildCommand,
			Test:                  report.TestCommand,
			Run:                   report.RunCommand,
			Lint:                  report.LintCommand,
			ReducibleTestScope:    report.ReducibleTestScope,
			ReducedTestExample:    report.ReducedTestExample,
			SystemPackageManager:  report.SystemPackageManager,
			ProjectPackageManager: report.ProjectPackageManager,
		},
	}
	if git, gerr := p.opts.Workspace.GitStatus(); gerr == nil {
		env.Git = git
	}

	return Observation{
		Action:      Probe,
		Ok:          true,
		Summary:     summarize(report.Answer, 200),
		Environment: env,
		Answer:      report.Answer,
	}, nil
}
