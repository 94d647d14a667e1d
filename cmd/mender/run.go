package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/mender/internal/api"
	"github.com/ShayCichocki/mender/internal/capability"
	"github.com/ShayCichocki/mender/internal/config"
	"github.com/ShayCichocki/mender/internal/orchestrator"
	"github.com/ShayCichocki/mender/internal/planner"
	"github.com/ShayCichocki/mender/internal/state"
	"github.com/ShayCichocki/mender/internal/stopfile"
	"github.com/ShayCichocki/mender/internal/taskstate"
	"github.com/ShayCichocki/mender/internal/tui"
	"github.com/ShayCichocki/mender/internal/workspace"
	"github.com/ShayCichocki/mender/pkg/models"
)

var (
	runProject     string
	runTaskFile    string
	runModel       string
	runOutputDir   string
	runHeadless    bool
	runCostCeiling float64
	runMaxSteps    int
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run one software-engineering task to a final patch",
	Long: `Run drives a single task against the project checkout.

Each cycle the planner chooses one action: probe the environment, locate
relevant code, edit, run tests, query version control, or consult the
advisor when the run repeats itself. Every diff produced along the way is
kept in the run's diff store; the planner composes them via pre-patches
until it declares a final one.

The checkout is locked and reset between actions; your working tree is
restored to its baseline when the run finishes. The final patch and a
step-by-step report land in .mender/runs/<id>/ unless --output-dir says
otherwise.

The task comes from the positional argument or from --task-file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runProject, "project", "", "Project path (default: current directory)")
	runCmd.Flags().StringVar(&runTaskFile, "task-file", "", "Read the task description from a file")
	runCmd.Flags().StringVar(&runModel, "model", "", "Override the configured Claude model")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "Where to write report.yaml and final.patch")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Plain log output instead of the live view")
	runCmd.Flags().Float64Var(&runCostCeiling, "ceiling", -1, "Override the run cost ceiling (0 disables)")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", -1, "Override the step limit (0 disables)")
}

// taskDescription resolves the task text from the argument or --task-file.
func taskDescription(args []string) (string, error) {
	if runTaskFile != "" {
		if len(args) > 0 {
			return "", fmt.Errorf("give a task argument or --task-file, not both")
		}
		data, err := os.ReadFile(runTaskFile)
		if err != nil {
			return "", fmt.Errorf("read task file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("task file %s is empty", runTaskFile)
		}
		return text, nil
	}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("no task given; pass one as an argument or via --task-file")
	}
	return strings.TrimSpace(args[0]), nil
}

func runTask(cmd *cobra.Command, args []string) error {
	description, err := taskDescription(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runCostCeiling >= 0 {
		cfg.Run.CostCeiling = runCostCeiling
	}
	if runMaxSteps >= 0 {
		cfg.Run.MaxSteps = runMaxSteps
	}
	if runModel != "" {
		cfg.Anthropic.Model = runModel
	}

	projectPath := runProject
	if projectPath == "" {
		projectPath, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}
	projectPath, err = filepath.Abs(projectPath)
	if err != nil {
		return fmt.Errorf("resolve project path: %w", err)
	}

	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}

	ws, err := workspace.New(projectPath)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}
	if err := ws.EnsureRepo(); err != nil {
		return fmt.Errorf("prepare checkout: %w", err)
	}

	runID := "run_" + uuid.NewString()[:8]
	if err := ws.AcquireLock(runID); err != nil {
		return err
	}
	defer func() {
		if err := ws.ReleaseLock(runID); err != nil {
			fmt.Fprintf(os.Stderr, "release lock: %v\n", err)
		}
	}()

	if err := stopfile.ClearMarker(projectPath); err != nil {
		return err
	}
	stop, err := stopfile.Watch(projectPath)
	if err != nil {
		return fmt.Errorf("watch stop signal: %w", err)
	}
	defer stop.Close()

	db, err := state.OpenProject(projectPath)
	if err != nil {
		return fmt.Errorf("open run journal: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate run journal: %w", err)
	}

	task := models.Task{
		ID:          runID,
		Description: description,
		ProjectPath: projectPath,
		Seed:        seedEnvironment(cfg),
		CreatedAt:   time.Now(),
	}
	if err := db.CreateRun(&state.Run{
		ID:          runID,
		Task:        task.Description,
		ProjectPath: projectPath,
		Status:      models.RunActive,
		StartedAt:   task.CreatedAt,
	}); err != nil {
		return err
	}

	registry, err := buildRegistry(client, ws, cfg)
	if err != nil {
		return err
	}

	loop, err := orchestrator.New(orchestrator.Config{
		Planner:        planner.NewClaude(client, cfg.Run.HistoryWindow),
		Adapters:       registry,
		State:          taskstate.New(task),
		CostCeiling:    cfg.Run.CostCeiling,
		StuckWindow:    cfg.Run.StuckWindow,
		StuckThreshold: cfg.Run.StuckThreshold,
		MaxSteps:       cfg.Run.MaxSteps,
		Stop:           stop,
		Journal:        state.NewJournal(db, runID),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	started := time.Now()
	// The display owns the event stream; the loop runs alongside it. Both
	// finish when the loop closes the stream.
	results := make(chan runOutcome, 1)
	go func() {
		result, err := loop.Run(ctx)
		results <- runOutcome{result: result, err: err}
	}()

	if err := display(task, runID, loop.Events()); err != nil {
		fmt.Fprintf(os.Stderr, "display error: %v\n", err)
	}

	outcome := <-results
	if outcome.err != nil {
		return outcome.err
	}

	return writeRunReport(projectPath, runID, loop, client, outcome.result, started)
}

// seedEnvironment converts configured seed facts into an environment seed,
// or nil when none were configured.
func seedEnvironment(cfg *config.Config) *models.Environment {
	if cfg.Seed.Empty() {
		return nil
	}
	return &models.Environment{
		Packages: cfg.Seed.Packages,
		Commands: models.Commands{
			Build: cfg.Seed.Build,
			Test:  cfg.Seed.Test,
			Run:   cfg.Seed.Run,
			Lint:  cfg.Seed.Lint,
		},
	}
}

type runOutcome struct {
	result orchestrator.Result
	err    error
}

// buildRegistry wires one Claude-backed adapter per capability with its
// configured budget and cost weight.
func buildRegistry(client *api.Client, ws *workspace.Workspace, cfg *config.Config) (*capability.Registry, error) {
	opts := func(budget time.Duration, weight float64) capability.ClaudeOptions {
		return capability.ClaudeOptions{
			Client:        client,
			Workspace:     ws,
			Budget:        budget,
			CostWeight:    weight,
			MaxIterations: cfg.Run.AgentMaxIterations,
		}
	}
	return capability.NewRegistry(
		capability.NewProbe(opts(cfg.Budgets.Probe, cfg.Weights.Probe)),
		capability.NewLocator(opts(cfg.Budgets.Locator, cfg.Weights.Locator)),
		capability.NewEditor(opts(cfg.Budgets.Editor, cfg.Weights.Editor)),
		capability.NewTestExecutor(opts(cfg.Budgets.TestExecutor, cfg.Weights.TestExecutor)),
		capability.NewVCS(opts(cfg.Budgets.VCS, cfg.Weights.VCS)),
		capability.NewAdvisor(opts(cfg.Budgets.Advisor, cfg.Weights.Advisor)),
	)
}

// display consumes the event stream until it closes, either through the
// live view or the plain printer.
func display(task models.Task, runID string, events <-chan orchestrator.Event) error {
	if runHeadless {
		tui.NewHeadlessPrinter(os.Stdout).Consume(events)
		return nil
	}
	app := tui.NewApp(task.Description, runID, events)
	_, err := tea.NewProgram(app).Run()
	if err != nil {
		// Fall back to draining headlessly so the loop never blocks on a
		// full event channel.
		tui.NewHeadlessPrinter(os.Stdout).Consume(events)
	}
	return err
}

func writeRunReport(projectPath, runID string, loop *orchestrator.Loop, client *api.Client, result orchestrator.Result, started time.Time) error {
	snap := loop.Snapshot()
	report := orchestrator.BuildReport(runID, snap, result, started)
	report.TokensIn, report.TokensOut = client.Tracker().Total()
	dir := runOutputDir
	if dir == "" {
		dir = filepath.Join(projectPath, ".mender", "runs", runID)
	}
	if err := orchestrator.WriteReport(dir, report, result.FinalPatch); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	fmt.Printf("\nrun %s %s after %d step(s), cost %.1f unit(s), ~$%.2f API spend\n",
		runID, result.Status, result.Steps, result.CostUsed, client.Tracker().Cost())
	if result.Reason != "" {
		fmt.Printf("reason: %s\n", result.Reason)
	}
	if result.FinalPatch != "" {
		fmt.Printf("final patch: %s\n", filepath.Join(dir, "final.patch"))
	}
	fmt.Printf("report: %s\n", filepath.Join(dir, "report.yaml"))
	return nil
}
