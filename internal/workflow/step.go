package workflow

import "context"

// InvokeFunc performs a step's forward action. Alongside the output it
// returns the data its compensation will need to undo the action.
type InvokeFunc[In, Out, C any] func(ctx context.Context, in In) (Out, C, error)

// CompensateFunc undoes a completed step using the data captured by its invoke.
type CompensateFunc[C any] func(ctx context.Context, data C) error

// Step is a named, reusable unit of work with an optional compensation.
// Steps hold no per-run state and may be shared by concurrent executions.
type Step[In, Out, C any] struct {
	name       string
	invoke     InvokeFunc[In, Out, C]
	compensate CompensateFunc[C]
}

// NewStep defines a step. compensate may be nil when the step has nothing to undo.
func NewStep[In, Out, C any](name string, invoke InvokeFunc[In, Out, C], compensate CompensateFunc[C]) *Step[In, Out, C] {
	if name == "" {
		panic("workflow: step name required")
	}
	if invoke == nil {
		panic("workflow: step " + name + " has no invoke function")
	}
	return &Step[In, Out, C]{name: name, invoke: invoke, compensate: compensate}
}

func (s *Step[In, Out, C]) Name() string { return s.name }

// Compensable reports whether the step registers a compensation.
func (s *Step[In, Out, C]) Compensable() bool { return s.compensate != nil }

// Named is satisfied by every Step regardless of its type parameters.
type Named interface {
	Name() string
}
