package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/mender/internal/taskstate"
	"github.com/ShayCichocki/mender/pkg/models"
)

// Report is the durable account of a finished run, written alongside the
// final patch.
type Report struct {
	RunID       string           `yaml:"run_id"`
	Task        string           `yaml:"task"`
	ProjectPath string           `yaml:"project_path"`
	Status      models.RunStatus `yaml:"status"`
	Reason      string           `yaml:"reason,omitempty"`
	FinalDiffID string           `yaml:"final_diff_id,omitempty"`
	StartedAt   time.Time        `yaml:"started_at"`
	FinishedAt  time.Time        `yaml:"finished_at"`
	Steps       []ReportStep     `yaml:"steps"`
	CostUsed    float64          `yaml:"cost_used"`
	TokensIn    int64            `yaml:"tokens_in,omitempty"`
	TokensOut   int64            `yaml:"tokens_out,omitempty"`
	Environment ReportEnv        `yaml:"environment"`
}

// ReportStep is one history step flattened for the report.
type ReportStep struct {
	Seq     int    `yaml:"seq"`
	Action  string `yaml:"action"`
	Ok      bool   `yaml:"ok"`
	Failure string `yaml:"failure,omitempty"`
	Summary string `yaml:"summary,omitempty"`
	DiffID  string `yaml:"diff_id,omitempty"`
}

// ReportEnv is the discovered environment flattened for the report.
type ReportEnv struct {
	Build  string `yaml:"build,omitempty"`
	Test   string `yaml:"test,omitempty"`
	Run    string `yaml:"run,omitempty"`
	Lint   string `yaml:"lint,omitempty"`
	Branch string `yaml:"branch,omitempty"`
	Commit string `yaml:"commit,omitempty"`
}

// BuildReport assembles a report from the run's final snapshot and result.
func BuildReport(runID string, snap taskstate.Snapshot, result Result, startedAt time.Time) Report {
	report := Report{
		RunID:       runID,
		Task:        snap.Task.Description,
		ProjectPath: snap.Task.ProjectPath,
		Status:      result.Status,
		Reason:      result.Reason,
		FinalDiffID: result.FinalDiffID,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		CostUsed:    result.CostUsed,
		Environment: ReportEnv{
			Build:  snap.Environment.Commands.Build,
			Test:   snap.Environment.Commands.Test,
			Run:    snap.Environment.Commands.Run,
			Lint:   snap.Environment.Commands.Lint,
			Branch: snap.Environment.Git.Branch,
			Commit: snap.Environment.Git.Commit,
		},
	}
	for _, step := range snap.History {
		report.Steps = append(report.Steps, ReportStep{
			Seq:     step.Seq,
			Action:  string(step.Action.Name),
			Ok:      step.Observation.Ok,
			Failure: string(step.Observation.Failure),
			Summary: step.Observation.Summary,
			DiffID:  step.Observation.DiffID,
		})
	}
	return report
}

// WriteReport writes report.yaml and, when the run produced one, final.patch
// into dir. The directory is created as needed.
func WriteReport(dir string, report Report, finalPatch string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.yaml"), data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if finalPatch != "" {
		if err := os.WriteFile(filepath.Join(dir, "final.patch"), []byte(finalPatch), 0o644); err != nil {
			return fmt.Errorf("write final patch: %w", err)
		}
	}
	return nil
}
