package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "vortx/workflow"

// Engine runs workflows. It keeps no per-execution state and is shared by
// every request.
type Engine struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder
	observer Observer
	newID    func() string
	now      func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithRecorder enables the execution audit trail.
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) { e.observer = observer }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine constructs an Engine. Without options it logs through
// slog.Default, traces through the global otel provider and keeps no audit trail.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execution is the state of one run of a workflow. It is created by Run,
// handed to the workflow's composition function and discarded afterwards.
type Execution struct {
	ctx       context.Context
	engine    *Engine
	id        string
	workflow  string
	input     any
	order     []string
	next      int
	done      []completedStep
	status    Status
	failure   *StepFailure
	startedAt time.Time
}

type completedStep struct {
	name       string
	data       any
	compensate func(context.Context) error
}

func (x *Execution) ID() string               { return x.id }
func (x *Execution) Workflow() string         { return x.workflow }
func (x *Execution) Input() any               { return x.input }
func (x *Execution) Status() Status           { return x.status }
func (x *Execution) Context() context.Context { return x.ctx }

// CompletedSteps lists the steps that finished successfully, in order.
func (x *Execution) CompletedSteps() []string {
	names := make([]string, 0, len(x.done))
	for _, step := range x.done {
		names = append(names, step.name)
	}
	return names
}

func (x *Execution) expected() string {
	if x.next < len(x.order) {
		return x.order[x.next]
	}
	return "<none>"
}

// Exec runs step as the next step of x. The step must be the next one in the
// workflow's declared order, and no step may run after a failure.
func Exec[In, Out, C any](x *Execution, step *Step[In, Out, C], in In) (Out, error) {
	var zero Out
	if x.failure != nil || x.status != StatusRunning {
		return zero, ErrExecutionHalted
	}
	if x.next >= len(x.order) || x.order[x.next] != step.name {
		return zero, fmt.Errorf("%w: got %q, want %q", ErrStepOutOfOrder, step.name, x.expected())
	}
	x.next++

	e := x.engine
	ctx, span := e.tracer.Start(x.ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.name", x.workflow),
		attribute.String("workflow.execution_id", x.id),
		attribute.String("workflow.step", step.name),
	))
	defer span.End()

	e.recordStep(x, step.name, StepStarted, "")

	var (
		out  Out
		data C
		err  error
	)
	if err = ctx.Err(); err == nil {
		out, data, err = invokeStep(ctx, step, in)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.failure = &StepFailure{Step: step.name, Err: err}
		e.recordStep(x, step.name, StepFailed, err.Error())
		e.logger.Warn("workflow step failed",
			"workflow", x.workflow,
			"execution_id", x.id,
			"step", step.name,
			"error", err,
		)
		return zero, x.failure
	}

	done := completedStep{name: step.name, data: data}
	if step.compensate != nil {
		compensate := step.compensate
		done.compensate = func(ctx context.Context) error { return compensate(ctx, data) }
	}
	x.done = append(x.done, done)
	e.recordStep(x, step.name, StepSucceeded, "")
	return out, nil
}

func invokeStep[In, Out, C any](ctx context.Context, step *Step[In, Out, C], in In) (out Out, data C, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.invoke(ctx, in)
}

func (e *Engine) start(ctx context.Context, workflow string, order []string, input any) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	x := &Execution{
		ctx:       ctx,
		engine:    e,
		id:        e.newID(),
		workflow:  workflow,
		input:     input,
		order:     order,
		status:    StatusRunning,
		startedAt: e.now(),
	}
	if e.recorder != nil {
		rec := ExecutionRecord{ID: x.id, Workflow: workflow, Steps: order, StartedAt: x.startedAt}
		if err := e.recorder.Start(context.WithoutCancel(ctx), rec); err != nil {
			e.logger.Warn("workflow audit start failed", "workflow", workflow, "execution_id", x.id, "error", err)
		}
	}
	e.logger.Debug("workflow started", "workflow", workflow, "execution_id", x.id)
	return x
}

// rollback compensates completed steps newest first. Every compensation is
// attempted; failures are collected on the returned error.
func (e *Engine) rollback(x *Execution, err error) *WorkflowError {
	werr := &WorkflowError{Workflow: x.workflow, ExecutionID: x.id, Cause: err}
	if x.failure != nil {
		werr.FailedStep = x.failure.Step
		werr.Cause = x.failure.Err
	}
	e.setStatus(x, StatusFailed, werr.Error())

	ctx := context.WithoutCancel(x.ctx)
	for i := len(x.done) - 1; i >= 0; i-- {
		step := x.done[i]
		if step.compensate == nil {
			continue
		}
		if cerr := e.compensate(ctx, x, step); cerr != nil {
			werr.CompensationErrors = append(werr.CompensationErrors, &CompensationFailure{Step: step.name, Err: cerr})
		}
	}

	e.setStatus(x, StatusRolledBack, werr.Error())
	e.logger.Warn("workflow rolled back",
		"workflow", x.workflow,
		"execution_id", x.id,
		"failed_step", werr.FailedStep,
		"error", werr.Cause,
		"compensation_failures", len(werr.CompensationErrors),
	)
	return werr
}

func (e *Engine) compensate(ctx context.Context, x *Execution, step completedStep) error {
	ctx, span := e.tracer.Start(ctx, "workflow.compensate", trace.WithAttributes(
		attribute.String("workflow.name", x.workflow),
		attribute.String("workflow.execution_id", x.id),
		attribute.String("workflow.step", step.name),
	))
	defer span.End()

	err := runCompensation(ctx, step)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("workflow compensation failed",
			"workflow", x.workflow,
			"execution_id", x.id,
			"step", step.name,
			"error", err,
		)
		e.recordStep(x, step.name, StepCompensationFailed, err.Error())
		if e.observer != nil {
			e.observer.RecordCompensationFailure(x.workflow, step.name)
		}
		return err
	}
	e.logger.Info("workflow step compensated", "workflow", x.workflow, "execution_id", x.id, "step", step.name)
	e.recordStep(x, step.name, StepCompensated, "")
	return nil
}

func runCompensation(ctx context.Context, step completedStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.compensate(ctx)
}

func (e *Engine) complete(x *Execution) {
	e.setStatus(x, StatusCompleted, "")
	e.logger.Info("workflow completed",
		"workflow", x.workflow,
		"execution_id", x.id,
		"steps", len(x.done),
		"elapsed", e.now().Sub(x.startedAt),
	)
}

func (e *Engine) setStatus(x *Execution, status Status, detail string) {
	x.status = status
	if e.recorder != nil {
		if err := e.recorder.UpdateStatus(context.WithoutCancel(x.ctx), x.id, status, detail); err != nil {
			e.logger.Warn("workflow audit status failed", "workflow", x.workflow, "execution_id", x.id, "status", status, "error", err)
		}
	}
	if e.observer != nil && status != StatusFailed {
		e.observer.RecordWorkflow(x.workflow, string(status), e.now().Sub(x.startedAt))
	}
}

func (e *Engine) recordStep(x *Execution, step string, status StepStatus, detail string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.AddStep(context.WithoutCancel(x.ctx), x.id, step, status, detail); err != nil {
		e.logger.Warn("workflow audit step failed", "workflow", x.workflow, "execution_id", x.id, "step", step, "error", err)
	}
}
