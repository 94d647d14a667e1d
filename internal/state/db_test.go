package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/mender/internal/capability"
	"github.com/ShayCichocki/mender/internal/taskstate"
	"github.com/ShayCichocki/mender/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestOpenProjectCreatesMenderDir(t *testing.T) {
	root := t.TempDir()
	db, err := OpenProject(root)
	if err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	defer db.Close()

	want := ProjectDBPath(root)
	if db.Path() != want {
		t.Errorf("Path() = %q, want %q", db.Path(), want)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)

	started := time.Now().Truncate(time.Second)
	run := &Run{
		ID:          "run_1",
		Task:        "fix the flaky test",
		ProjectPath: "/tmp/project",
		Status:      models.RunActive,
		StartedAt:   started,
	}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := db.GetRun("run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Task != run.Task || got.Status != models.RunActive {
		t.Errorf("GetRun = %+v", got)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt should be nil before finish")
	}

	j := NewJournal(db, "run_1")
	if err := j.RecordFinish(models.RunSucceeded, "diff_2", "tests pass"); err != nil {
		t.Fatalf("RecordFinish: %v", err)
	}

	got, err = db.GetRun("run_1")
	if err != nil {
		t.Fatalf("GetRun after finish: %v", err)
	}
	if got.Status != models.RunSucceeded || got.FinalDiffID != "diff_2" || got.Reason != "tests pass" {
		t.Errorf("finished run = %+v", got)
	}
	if got.FinishedAt == nil {
		t.Errorf("FinishedAt not set")
	}
}

func TestGetRunMissing(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetRun("nope"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run_a", "run_b", "run_c"} {
		run := &Run{
			ID:          id,
			Task:        "task " + id,
			ProjectPath: "/tmp/p",
			Status:      models.RunActive,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.CreateRun(run); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run_c" || runs[1].ID != "run_b" {
		t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestJournalRecordsStepsAndDiffs(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateRun(&Run{ID: "run_1", Task: "t", ProjectPath: "/p", Status: models.RunActive, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	j := NewJournal(db, "run_1")

	steps := []taskstate.Step{
		{
			Seq:    1,
			Action: capability.Action{Name: capability.Probe, Instruction: "inspect the build"},
			Observation: capability.Observation{
				Action: capability.Probe, Ok: true, Summary: "go project",
			},
			At: time.Now(),
		},
		{
			Seq:    2,
			Action: capability.Action{Name: capability.Editor, Instruction: "fix main.go"},
			Observation: capability.Observation{
				Action: capability.Editor, Ok: true, Summary: "patched main.go",
				DiffID: "diff_1", DiffContent: "diff --git a/main.go b/main.go\n",
				DiffParents: []string{}, DiffNotes: "swap the condition",
			},
			At: time.Now(),
		},
		{
			Seq:    3,
			Action: capability.Action{Name: capability.TestExecutor, Instruction: "run tests"},
			Observation: capability.Observation{
				Action: capability.TestExecutor, Ok: false,
				Failure: capability.FailureTimeout, Summary: "timed out",
			},
			At: time.Now(),
		},
	}
	for _, s := range steps {
		if err := j.RecordStep(s); err != nil {
			t.Fatalf("RecordStep %d: %v", s.Seq, err)
		}
	}

	got, err := db.ListSteps("run_1")
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d steps, want 3", len(got))
	}
	if got[0].Action != "probe" || !got[0].Ok {
		t.Errorf("step 1 = %+v", got[0])
	}
	if got[1].DiffID != "diff_1" {
		t.Errorf("step 2 diff id = %q", got[1].DiffID)
	}
	if got[2].Failure != string(capability.FailureTimeout) || got[2].Ok {
		t.Errorf("step 3 = %+v", got[2])
	}

	content, err := db.GetDiff("run_1", "diff_1")
	if err != nil {
		t.Fatalf("GetDiff: %v", err)
	}
	if content != "diff --git a/main.go b/main.go\n" {
		t.Errorf("diff content = %q", content)
	}
}

func TestDeletingRunCascades(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateRun(&Run{ID: "run_1", Task: "t", ProjectPath: "/p", Status: models.RunActive, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	j := NewJournal(db, "run_1")
	step := taskstate.Step{
		Seq:    1,
		Action: capability.Action{Name: capability.Probe},
		Observation: capability.Observation{
			Action: capability.Probe, Ok: true,
		},
		At: time.Now(),
	}
	if err := j.RecordStep(step); err != nil {
		t.Fatalf("RecordStep: %v", err)
	}

	if _, err := db.conn.Exec(`DELETE FROM runs WHERE id = 'run_1'`); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	remaining, err := db.ListSteps("run_1")
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("steps survived cascade: %d", len(remaining))
	}
}
