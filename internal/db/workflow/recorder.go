package workflowdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vortx/internal/apperr"
	"vortx/internal/workflow"
)

// Recorder persists workflow executions and their step transitions in Postgres.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// NewRecorderWithSchema initializes the schema then returns the recorder.
func NewRecorderWithSchema(ctx context.Context, db *sql.DB) (*Recorder, error) {
	rec := NewRecorder(db)
	if err := rec.InitSchema(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// InitSchema creates the execution tables if they do not exist.
func (r *Recorder) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflow_executions (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			steps TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_execution_steps (
			id BIGSERIAL PRIMARY KEY,
			execution_id TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			FOREIGN KEY (execution_id) REFERENCES workflow_executions(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) Start(ctx context.Context, rec workflow.ExecutionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow, steps, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Workflow, strings.Join(rec.Steps, ","), workflow.StatusRunning, rec.StartedAt,
	)
	return err
}

func (r *Recorder) AddStep(ctx context.Context, executionID, step string, status workflow.StepStatus, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_execution_steps (execution_id, step, status, detail)
		VALUES ($1, $2, $3, $4)`,
		executionID, step, status, detail,
	)
	return err
}

func (r *Recorder) UpdateStatus(ctx context.Context, executionID string, status workflow.Status, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE workflow_executions
		SET status = $2, detail = $3, updated_at = NOW()
		WHERE id = $1`,
		executionID, status, detail,
	)
	return err
}

// StepEntry is one audited step transition.
type StepEntry struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Execution is a stored execution with its step history.
type Execution struct {
	ID        string      `json:"id"`
	Workflow  string      `json:"workflow"`
	Steps     []string    `json:"steps"`
	Status    string      `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	StartedAt time.Time   `json:"startedAt"`
	History   []StepEntry `json:"history"`
}

// ErrExecutionNotFound is returned by Get for unknown ids.
var ErrExecutionNotFound = fmt.Errorf("workflow execution: %w", apperr.ErrNotFound)

// Get loads an execution and its step history in insertion order.
func (r *Recorder) Get(ctx context.Context, id string) (Execution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, workflow, steps, status, COALESCE(detail, ''), started_at
		FROM workflow_executions
		WHERE id = $1`,
		id,
	)

	var exec Execution
	var steps string
	if err := row.Scan(&exec.ID, &exec.Workflow, &steps, &exec.Status, &exec.Detail, &exec.StartedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Execution{}, ErrExecutionNotFound
		}
		return Execution{}, err
	}
	if steps != "" {
		exec.Steps = strings.Split(steps, ",")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT step, status, COALESCE(detail, ''), created_at
		FROM workflow_execution_steps
		WHERE execution_id = $1
		ORDER BY id`,
		id,
	)
	if err != nil {
		return Execution{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry StepEntry
		if err := rows.Scan(&entry.Step, &entry.Status, &entry.Detail, &entry.CreatedAt); err != nil {
			return Execution{}, err
		}
		exec.History = append(exec.History, entry)
	}
	return exec, rows.Err()
}
