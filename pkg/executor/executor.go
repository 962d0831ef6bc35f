// Package executor runs the steps of one transaction through an integration definition.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/metrics"
	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/otelhelper"
	"github.com/dukex/integra/pkg/protocol"
)

// StepLog receives one step and step-info row per executed step.
type StepLog interface {
	InsertStep(ctx context.Context, step *models.StepRecord, info *models.StepInfoRecord) error
}

// Dependencies are the collaborators used by step variants. Missing collaborators make the
// steps that need them fail.
type Dependencies struct {
	Endpoints protocol.Endpoints
	Modules   protocol.Modules
	IDs       protocol.IDGenerator
	Log       StepLog
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Metrics   *metrics.Metrics
}

// StepExecution describes one executed step.
type StepExecution struct {
	StepID   string
	StepType models.StepType
	Input    any
	Output   any
	Err      error
	Started  time.Time
	Elapsed  time.Duration
	Routed   bool
}

// Failed reports whether the step returned an error.
func (s StepExecution) Failed() bool {
	return s.Err != nil
}

// Executor advances a single transaction one step at a time and owns its loop state.
// It is not safe for concurrent use; each transaction run gets its own Executor.
type Executor struct {
	def     *models.Definition
	deps    Dependencies
	probing bool
	logger  *slog.Logger
	tracer  trace.Tracer

	loopItems     []any
	loopResults   []any
	itemPointer   int
	activeForEach string
}

type Option func(*Executor)

// WithProbing turns on dry-run mode: nothing is persisted.
func WithProbing() Option {
	return func(e *Executor) { e.probing = true }
}

func New(def *models.Definition, deps Dependencies, opts ...Option) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		def:    def,
		deps:   deps,
		logger: logger.With("module", "executor", "integration_id", def.ID),
		tracer: otelhelper.Tracer(deps.Tracer),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// InLoop reports whether a for_each loop is active.
func (e *Executor) InLoop() bool {
	return e.activeForEach != ""
}

// ActiveForEach returns the step ID of the active loop head, empty when not in a loop.
func (e *Executor) ActiveForEach() string {
	return e.activeForEach
}

// Probing reports whether the executor runs in dry-run mode.
func (e *Executor) Probing() bool {
	return e.probing
}

// Execute runs the current step of tx. Step failures never escape: they are absorbed into the
// transaction routing and reported in the returned StepExecution.
func (e *Executor) Execute(ctx context.Context, tx *models.Transaction) StepExecution {
	exec := StepExecution{
		StepID:  tx.CurrentStep,
		Input:   tx.Message,
		Started: time.Now().UTC(),
	}

	if tx.Finished {
		return exec
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.step execute",
		attribute.String(otelhelper.IntegrationIDKey, tx.IntegrationID),
		attribute.String(otelhelper.ClientIDKey, tx.ClientID),
		attribute.String(otelhelper.TransactionIDKey, fmt.Sprint(tx.ID)),
		attribute.String(otelhelper.StepIDKey, tx.CurrentStep),
		attribute.Bool(otelhelper.ProbingKey, e.probing),
	)
	defer span.End()

	step := e.def.Step(tx.CurrentStep)

	var err error

	if step == nil {
		err = fmt.Errorf("%w: %s", ErrUnknownStep, tx.CurrentStep)
	} else {
		exec.StepType = step.Type
		span.SetAttributes(attribute.String(otelhelper.StepTypeKey, string(step.Type)))

		exec.Routed, err = e.dispatch(ctx, step, tx)
	}

	if err != nil {
		exec.Err = faults.Execution("ExecuteStep", exec.StepID, err)
		otelhelper.SetError(span, err)
		e.fail(tx, exec.StepID, exec.Err, span.SpanContext())
	} else if !exec.Routed {
		e.advance(tx, step.ID)
	}

	exec.Output = tx.Message
	exec.Elapsed = time.Since(exec.Started)

	e.logger.DebugContext(ctx, "Step executed",
		"transaction_id", tx.ID,
		"step_id", exec.StepID,
		"elapsed", exec.Elapsed,
		"failed", exec.Failed(),
	)

	if !e.probing {
		e.deps.Metrics.ObserveStep(tx.IntegrationID, string(exec.StepType), exec.Failed(), exec.Elapsed)
		e.record(ctx, tx, exec)
	}

	return exec
}

// Run drives tx until it finishes.
func (e *Executor) Run(ctx context.Context, tx *models.Transaction) []StepExecution {
	var executions []StepExecution

	for !tx.Finished {
		executions = append(executions, e.Execute(ctx, tx))
	}

	return executions
}

func (e *Executor) dispatch(ctx context.Context, step *models.Step, tx *models.Transaction) (bool, error) {
	switch step.Type {
	case models.StepTypeDirect:
		tx.Message = cloneValue(step.Message)

		return false, nil
	case models.StepTypeEndpoint:
		return false, e.executeEndpoint(ctx, step, tx)
	case models.StepTypeProcessor:
		return false, e.executeProcessor(ctx, step, tx)
	case models.StepTypeScript:
		return false, e.executeScript(ctx, step, tx)
	case models.StepTypeForEach:
		return e.executeForEach(step, tx)
	case models.StepTypeCollect:
		return e.executeCollect(step, tx)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedStep, step.Type)
	}
}

// advance moves to the first declared successor, or finishes the transaction.
func (e *Executor) advance(tx *models.Transaction, stepID string) {
	e.jump(tx, e.def.Next(stepID))
}

func (e *Executor) jump(tx *models.Transaction, next string) {
	if next == "" {
		tx.PreviousStep = tx.CurrentStep
		tx.Finished = true

		return
	}

	tx.MoveTo(next)
}

// fail routes a failed step. The first failure goes to the exception step, if any, and drops
// loop state. A failure on an already failed transaction terminates it.
func (e *Executor) fail(tx *models.Transaction, stepID string, err error, sc trace.SpanContext) {
	e.clearLoop()

	tx.ErrorMessage = err.Error()
	if sc.HasTraceID() {
		tx.ErrorMessage = fmt.Sprintf("%s (trace_id=%s)", tx.ErrorMessage, sc.TraceID())
	}

	e.logger.Warn("Step failed", "transaction_id", tx.ID, "step_id", stepID, "error", err, "already_failed", tx.Failed)

	if tx.Failed {
		tx.PreviousStep = tx.CurrentStep
		tx.Finished = true

		return
	}

	tx.Failed = true

	if e.def.ExceptionStepID == "" || e.def.ExceptionStepID == stepID {
		tx.PreviousStep = tx.CurrentStep
		tx.Finished = true

		return
	}

	tx.MoveTo(e.def.ExceptionStepID)
}

func (e *Executor) record(ctx context.Context, tx *models.Transaction, exec StepExecution) {
	if e.deps.Log == nil || e.deps.IDs == nil {
		return
	}

	stepRowID, err := e.deps.IDs.NextID()
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to allocate step record id", "error", err)

		return
	}

	infoRowID, err := e.deps.IDs.NextID()
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to allocate step info record id", "error", err)

		return
	}

	step := &models.StepRecord{
		ID:            stepRowID,
		TransactionID: tx.ID,
		IntegrationID: tx.IntegrationID,
		StepID:        exec.StepID,
		StepType:      exec.StepType,
		Failed:        exec.Failed(),
		StartedAt:     exec.Started,
		DurationMs:    exec.Elapsed.Milliseconds(),
	}

	info := &models.StepInfoRecord{
		ID:           infoRowID,
		StepRecordID: stepRowID,
		Input:        exec.Input,
		Output:       exec.Output,
		Properties:   tx.Properties,
	}

	if exec.Err != nil {
		info.ErrorMessage = exec.Err.Error()
	}

	if err := e.deps.Log.InsertStep(ctx, step, info); err != nil {
		e.logger.ErrorContext(ctx, "Failed to record step", "step_id", exec.StepID, "error", err)
	}
}
