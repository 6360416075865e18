package workflow

import (
	"context"
	"fmt"
)

// ComposeFunc wires a workflow's steps: it receives the execution and the
// workflow input, calls Exec for each step in declared order, feeding each
// step from the input and earlier outputs, and builds the workflow output.
type ComposeFunc[In, Out any] func(x *Execution, in In) (Out, error)

// Workflow is a named, ordered composition of steps. The step order is fixed
// when the workflow is defined.
type Workflow[In, Out any] struct {
	name    string
	steps   []string
	compose ComposeFunc[In, Out]
}

// New defines a workflow. steps lists the workflow's steps in the order
// compose must execute them.
func New[In, Out any](name string, compose ComposeFunc[In, Out], steps ...Named) *Workflow[In, Out] {
	if name == "" {
		panic("workflow: name required")
	}
	if compose == nil {
		panic("workflow: " + name + " has no compose function")
	}
	seen := make(map[string]struct{}, len(steps))
	order := make([]string, 0, len(steps))
	for _, step := range steps {
		stepName := step.Name()
		if _, dup := seen[stepName]; dup {
			panic(fmt.Sprintf("workflow: %s declares step %q twice", name, stepName))
		}
		seen[stepName] = struct{}{}
		order = append(order, stepName)
	}
	return &Workflow[In, Out]{name: name, steps: order, compose: compose}
}

func (w *Workflow[In, Out]) Name() string { return w.name }

// Steps returns the declared step order.
func (w *Workflow[In, Out]) Steps() []string {
	return append([]string(nil), w.steps...)
}

// Run executes the workflow. On success every step has run once and no
// compensation has run. On failure every completed step is compensated in
// reverse order and the caller receives a *WorkflowError carrying the
// failed step and its original error.
func (w *Workflow[In, Out]) Run(ctx context.Context, engine *Engine, in In) (Out, error) {
	if engine == nil {
		engine = NewEngine()
	}
	x := engine.start(ctx, w.name, w.steps, in)

	out, err := w.runCompose(x, in)
	if err == nil && x.failure == nil {
		engine.complete(x)
		return out, nil
	}

	var zero Out
	return zero, engine.rollback(x, err)
}

func (w *Workflow[In, Out]) runCompose(x *Execution, in In) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow %s panicked: %v", w.name, r)
		}
	}()
	return w.compose(x, in)
}
