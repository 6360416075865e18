package workflow

import (
	"context"
	"time"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// StepStatus is the audit state of one step within an execution.
type StepStatus string

const (
	StepStarted            StepStatus = "started"
	StepSucceeded          StepStatus = "succeeded"
	StepFailed             StepStatus = "failed"
	StepCompensated        StepStatus = "compensated"
	StepCompensationFailed StepStatus = "compensation_failed"
)

// ExecutionRecord describes an execution when it begins.
type ExecutionRecord struct {
	ID        string
	Workflow  string
	Steps     []string
	StartedAt time.Time
}

// Recorder persists an audit trail of executions. Recorder errors are logged
// and never change the outcome of a run.
type Recorder interface {
	Start(ctx context.Context, rec ExecutionRecord) error
	AddStep(ctx context.Context, executionID, step string, status StepStatus, detail string) error
	UpdateStatus(ctx context.Context, executionID string, status Status, detail string) error
}

// Observer receives aggregate run outcomes, typically for metrics.
type Observer interface {
	RecordWorkflow(workflow, status string, elapsed time.Duration)
	RecordCompensationFailure(workflow, step string)
}
