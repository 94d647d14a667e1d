package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/mender/internal/state"
)

var statusRunID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs for this project",
	Long: `Display the run journal for the current project.

Without flags, lists recent runs newest first. With --run, shows the full
step history of one run.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRunID, "run", "", "Show the step history of one run")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs recorded. Start one with 'mender run <task>'.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open run journal: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate run journal: %w", err)
	}

	if statusRunID != "" {
		return displayRunSteps(db, statusRunID)
	}
	return displayRecentRuns(db)
}

func displayRecentRuns(db *state.DB) error {
	runs, err := db.ListRuns(10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded. Start one with 'mender run <task>'.")
		return nil
	}

	for _, r := range runs {
		duration := "running"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("%s  %-9s  %-8s  %s\n", r.ID, r.Status, duration, truncateTask(r.Task, 60))
	}
	fmt.Println("\nUse 'mender status --run <id>' for step details.")
	return nil
}

func displayRunSteps(db *state.DB, runID string) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("run %s not found", runID)
	}

	fmt.Printf("run %s: %s\n", run.ID, run.Status)
	fmt.Printf("task: %s\n", run.Task)
	if run.Reason != "" {
		fmt.Printf("reason: %s\n", run.Reason)
	}
	if run.FinalDiffID != "" {
		fmt.Printf("final diff: %s\n", run.FinalDiffID)
	}

	steps, err := db.ListSteps(runID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Println("no steps recorded")
		return nil
	}

	fmt.Println()
	for _, s := range steps {
		mark := "ok"
		if !s.Ok {
			mark = "FAIL"
			if s.Failure != "" {
				mark = s.Failure
			}
		}
		line := fmt.Sprintf("%2d  %-13s  %-13s  %s", s.Seq, s.Action, mark, truncateTask(s.Summary, 70))
		if s.DiffID != "" {
			line += "  [" + s.DiffID + "]"
		}
		fmt.Println(line)
	}
	return nil
}

func truncateTask(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
