package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/mender/internal/taskstate"
	"github.com/ShayCichocki/mender/pkg/models"
)

// Run is one journaled run.
type Run struct {
	ID          string
	Task        string
	ProjectPath string
	Status      models.RunStatus
	Reason      string
	FinalDiffID string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// StepRecord is one journaled step.
type StepRecord struct {
	RunID       string
	Seq         int
	Action      string
	Instruction string
	Ok          bool
	Failure     string
	Summary     string
	DiffID      string
	At          time.Time
}

// CreateRun inserts a new run in active status.
func (db *DB) CreateRun(r *Run) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO runs (id, task, project_path, status, reason, final_diff_id, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Task, r.ProjectPath, string(r.Status), r.Reason, r.FinalDiffID, r.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun returns one run by ID.
func (db *DB) GetRun(id string) (*Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, task, project_path, status, reason, final_diff_id, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, task, project_path, status, reason, final_diff_id, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ListSteps returns a run's steps in sequence order.
func (db *DB) ListSteps(runID string) ([]StepRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT run_id, seq, action, instruction, ok, failure, summary, diff_id, at
		FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var s StepRecord
		var ok int
		var failure, summary, diffID, instruction sql.NullString
		if err := rows.Scan(&s.RunID, &s.Seq, &s.Action, &instruction, &ok, &failure, &summary, &diffID, &s.At); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		s.Ok = ok != 0
		s.Instruction = instruction.String
		s.Failure = failure.String
		s.Summary = summary.String
		s.DiffID = diffID.String
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// GetDiff returns one journaled diff's content.
func (db *DB) GetDiff(runID, diffID string) (content string, err error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`SELECT content FROM diffs WHERE run_id = ? AND id = ?`, runID, diffID)
	if err := row.Scan(&content); err != nil {
		return "", fmt.Errorf("get diff %s: %w", diffID, err)
	}
	return content, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var status string
	var reason, finalDiffID sql.NullString
	var finishedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.Task, &r.ProjectPath, &status, &reason, &finalDiffID, &r.StartedAt, &finishedAt); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.Status = models.RunStatus(status)
	r.Reason = reason.String
	r.FinalDiffID = finalDiffID.String
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}

// Journal binds the database to one run and persists its steps and verdict
// as the loop applies them.
type Journal struct {
	db    *DB
	runID string
}

// NewJournal creates a journal for the given run. The run row must already
// exist.
func NewJournal(db *DB, runID string) *Journal {
	return &Journal{db: db, runID: runID}
}

// RecordStep persists one applied step, and its diff when the step produced
// one.
func (j *Journal) RecordStep(step taskstate.Step) error {
	j.db.mu.Lock()
	defer j.db.mu.Unlock()

	obs := step.Observation
	_, err := j.db.conn.Exec(`
		INSERT INTO steps (run_id, seq, action, instruction, ok, failure, summary, diff_id, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, step.Seq, string(step.Action.Name), step.Action.Instruction,
		boolToInt(obs.Ok), string(obs.Failure), obs.Summary, obs.DiffID, step.At)
	if err != nil {
		return fmt.Errorf("record step %d: %w", step.Seq, err)
	}

	if obs.DiffID != "" && obs.DiffContent != "" {
		_, err := j.db.conn.Exec(`
			INSERT INTO diffs (run_id, id, parents, notes, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			j.runID, obs.DiffID, strings.Join(obs.DiffParents, ","), obs.DiffNotes, obs.DiffContent, step.At)
		if err != nil {
			return fmt.Errorf("record diff %s: %w", obs.DiffID, err)
		}
	}
	return nil
}

// RecordFinish persists the terminal verdict.
func (j *Journal) RecordFinish(status models.RunStatus, finalDiffID, reason string) error {
	j.db.mu.Lock()
	defer j.db.mu.Unlock()

	_, err := j.db.conn.Exec(`
		UPDATE runs SET status = ?, reason = ?, final_diff_id = ?, finished_at = ?
		WHERE id = ?`,
		string(status), reason, finalDiffID, time.Now(), j.runID)
	if err != nil {
		return fmt.Errorf("record finish: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
