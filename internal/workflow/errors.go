package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStepOutOfOrder is returned by Exec when a step is not the next one
	// in the workflow's declared order.
	ErrStepOutOfOrder = errors.New("step executed out of declared order")
	// ErrExecutionHalted is returned by Exec once a step of the execution has failed.
	ErrExecutionHalted = errors.New("execution halted after step failure")
)

// StepFailure is what Exec returns when a step's invoke fails.
type StepFailure struct {
	Step string
	Err  error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepFailure) Unwrap() error { return e.Err }

// CompensationFailure records a compensation that failed during rollback.
// It never replaces the error that caused the rollback.
type CompensationFailure struct {
	Step string
	Err  error
}

func (e *CompensationFailure) Error() string {
	return fmt.Sprintf("compensate %s: %v", e.Step, e.Err)
}

func (e *CompensationFailure) Unwrap() error { return e.Err }

// WorkflowError is returned by Run after a failed execution has been rolled back.
// Cause is the original step error; Unwrap exposes it to errors.Is / errors.As.
type WorkflowError struct {
	Workflow           string
	ExecutionID        string
	FailedStep         string
	Cause              error
	CompensationErrors []*CompensationFailure
}

func (e *WorkflowError) Error() string {
	var b strings.Builder
	b.WriteString("workflow ")
	b.WriteString(e.Workflow)
	if e.FailedStep != "" {
		b.WriteString(": step ")
		b.WriteString(e.FailedStep)
	}
	b.WriteString(" failed")
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if n := len(e.CompensationErrors); n > 0 {
		fmt.Fprintf(&b, " (%d compensation(s) failed)", n)
	}
	return b.String()
}

func (e *WorkflowError) Unwrap() error { return e.Cause }
