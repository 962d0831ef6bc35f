// Package integration manages the lifecycle of registered integrations and runs their instances.
package integration

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/integra/pkg/condition"
	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/metrics"
	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/persistence"
	"github.com/dukex/integra/pkg/protocol"
	"github.com/dukex/integra/pkg/scheduler"
)

// Scheduler is the subset of the task scheduler used by integrations.
type Scheduler interface {
	ScheduleCron(taskID, expr string, clustered bool, task scheduler.Task) error
	ScheduleInterval(taskID string, interval time.Duration, repeatCount int, clustered bool, task scheduler.Task) error
	Remove(taskID string) bool
	Exists(taskID string) bool
}

// Dependencies are shared by every integration of an engine.
type Dependencies struct {
	Scheduler Scheduler
	Endpoints protocol.Endpoints
	Modules   protocol.Modules
	IDs       protocol.IDGenerator
	Log       persistence.TransactionLog
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Metrics   *metrics.Metrics
}

// TestInstance describes a transaction positioned at an arbitrary step for probing.
type TestInstance struct {
	StepID       string         `json:"step_id"        validate:"required"`
	PreviousStep string         `json:"previous_step,omitempty"`
	Message      any            `json:"message,omitempty"`
	Failed       bool           `json:"failed,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// Integration is the runtime state of one registered definition.
// States: stopped -> running -> stopped; destroyed is terminal and reachable only when stopped.
type Integration struct {
	id       string
	clientID string
	deps     Dependencies
	logger   *slog.Logger

	mu        sync.RWMutex
	def       *models.Definition
	condition *condition.Evaluator
	config    any
	running   bool
	destroyed bool
	bound     map[string]bool
	tasks     map[string]bool

	probesMu sync.Mutex
	probes   map[uint64]*probeSession

	background sync.WaitGroup
}

// New validates the definition and compiles its start condition.
func New(def *models.Definition, deps Dependencies) (*Integration, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	evaluator, err := condition.Compile(def.Condition)
	if err != nil {
		return nil, err
	}

	if (def.Schedule.IsCron() || def.Schedule.IsInterval()) && deps.Scheduler == nil {
		return nil, faults.Configuration("NewIntegration", def.ID, ErrNoScheduler)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	deps.Logger = logger

	return &Integration{
		id:        def.ID,
		clientID:  def.ClientID,
		deps:      deps,
		logger:    logger.With("module", "integration", "integration_id", def.ID),
		def:       def,
		condition: evaluator,
		config:    def.Config,
		bound:     make(map[string]bool),
		tasks:     make(map[string]bool),
		probes:    make(map[uint64]*probeSession),
	}, nil
}

func (i *Integration) ID() string       { return i.id }
func (i *Integration) ClientID() string { return i.clientID }

// Definition returns the current definition snapshot.
func (i *Integration) Definition() *models.Definition {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.def
}

func (i *Integration) Config() any {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.config
}

func (i *Integration) Running() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.running
}

func (i *Integration) Destroyed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.destroyed
}

// ScheduledTasks returns the IDs of tasks registered by this integration.
func (i *Integration) ScheduledTasks() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return sortedKeys(i.tasks)
}

// BoundEndpoints returns the IDs of endpoints this integration is bound to.
func (i *Integration) BoundEndpoints() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return sortedKeys(i.bound)
}

// Start binds endpoints of running applications and arranges execution: a cron or interval
// schedule, or one immediate background run. Inbound integrations wait for their endpoint.
// Starting a running integration is a no-op.
func (i *Integration) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.destroyed {
		return faults.State("Start", i.id, ErrIntegrationDestroyed)
	}

	if i.running {
		return nil
	}

	i.bindEndpointsLocked(ctx, "")

	first := i.def.FirstStep()
	if !first.IsInbound() {
		if err := i.scheduleLocked(ctx); err != nil {
			i.unbindEndpointsLocked(ctx)

			return err
		}
	}

	i.running = true
	i.deps.Metrics.IntegrationStarted()
	i.logger.InfoContext(ctx, "Integration started", "tasks", len(i.tasks), "endpoints", len(i.bound))

	return nil
}

func (i *Integration) scheduleLocked(ctx context.Context) error {
	schedule := i.def.Schedule

	switch {
	case schedule.IsCron():
		taskID := i.taskID("cron")
		if err := i.deps.Scheduler.ScheduleCron(taskID, schedule.Cron, schedule.Clustered, i.scheduledRun); err != nil {
			return err
		}

		i.tasks[taskID] = true
	case schedule.IsInterval():
		taskID := i.taskID("interval")
		if err := i.deps.Scheduler.ScheduleInterval(taskID, schedule.Interval(), schedule.RepeatCount, schedule.Clustered, i.scheduledRun); err != nil {
			return err
		}

		i.tasks[taskID] = true
	default:
		runCtx := context.WithoutCancel(ctx)

		i.background.Add(1)

		go func() {
			defer i.background.Done()

			if err := i.scheduledRun(runCtx); err != nil {
				i.logger.ErrorContext(runCtx, "Immediate run failed", "error", err)
			}
		}()
	}

	return nil
}

// taskID names scheduled tasks. It is identical on every engine so clustered runs contend
// for the same lease.
func (i *Integration) taskID(kind string) string {
	return fmt.Sprintf("integration:%s:%s", i.id, kind)
}

// scheduledRun executes one instance in a fresh context scoped to the integration.
func (i *Integration) scheduledRun(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	ok, err := i.CanStart(nil)
	if err != nil {
		return err
	}

	if !ok {
		i.logger.DebugContext(ctx, "Start condition not met, skipping run")

		return nil
	}

	tx, err := i.CreateInstance(nil)
	if err != nil {
		return err
	}

	if err := i.RunInstance(ctx, tx); err != nil {
		return err
	}

	if tx.Failed {
		return fmt.Errorf("transaction %d failed: %s", tx.ID, tx.ErrorMessage)
	}

	return nil
}

// Stop unbinds endpoints and cancels scheduled tasks. Transactions already running are not
// interrupted. Stopping a stopped integration is a no-op.
func (i *Integration) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.running {
		return nil
	}

	i.unbindEndpointsLocked(ctx)

	for taskID := range i.tasks {
		i.deps.Scheduler.Remove(taskID)
		delete(i.tasks, taskID)
	}

	i.running = false
	i.deps.Metrics.IntegrationStopped()
	i.logger.InfoContext(ctx, "Integration stopped")

	return nil
}

// Destroy marks the integration unusable. It fails while running.
func (i *Integration) Destroy() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running {
		return faults.State("Destroy", i.id, ErrIntegrationRunning)
	}

	i.destroyed = true
	i.dropProbes()

	return nil
}

// Wait blocks until immediate background runs started by Start have finished.
func (i *Integration) Wait() {
	i.background.Wait()
}

// CanStart evaluates the start condition against message and the current configuration.
func (i *Integration) CanStart(message any) (bool, error) {
	i.mu.RLock()
	evaluator, config := i.condition, i.config
	i.mu.RUnlock()

	return evaluator.Evaluate(message, config)
}

// UpdateConfig replaces the integration configuration, also while running. Transactions
// created afterwards see the new configuration.
func (i *Integration) UpdateConfig(config any) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.config = config
	i.logger.Info("Integration configuration updated")
}

// UpdateStepMessage replaces the static message of a step, also while running.
func (i *Integration) UpdateStepMessage(stepID string, message any) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	def, err := i.def.WithStepMessage(stepID, message)
	if err != nil {
		return faults.Configuration("UpdateStepMessage", i.id, err)
	}

	i.def = def
	i.logger.Info("Step message updated", "step_id", stepID)

	return nil
}

// Trigger creates and runs an instance for an inbound message when the start condition holds.
func (i *Integration) Trigger(ctx context.Context, message any) (*models.Transaction, error) {
	if !i.Running() {
		return nil, faults.State("Trigger", i.id, ErrIntegrationStopped)
	}

	ok, err := i.CanStart(message)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrConditionNotMet
	}

	tx, err := i.CreateInstance(message)
	if err != nil {
		return nil, err
	}

	if err := i.RunInstance(ctx, tx); err != nil {
		return nil, err
	}

	return tx, nil
}

func (i *Integration) bindEndpointsLocked(ctx context.Context, applicationID string) {
	if i.deps.Endpoints == nil {
		return
	}

	for _, step := range i.def.EndpointSteps() {
		if i.bound[step.EndpointID] {
			continue
		}

		status, err := i.deps.Endpoints.Status(ctx, step.EndpointID)
		if err != nil {
			i.logger.WarnContext(ctx, "Skipping endpoint binding", "endpoint_id", step.EndpointID, "error", err)

			continue
		}

		if applicationID != "" && status.ApplicationID != applicationID {
			continue
		}

		if !status.ApplicationRunning {
			i.logger.DebugContext(ctx, "Application not running, endpoint left unbound",
				"endpoint_id", step.EndpointID, "application_id", status.ApplicationID)

			continue
		}

		if err := i.deps.Endpoints.Bind(ctx, step.EndpointID, i.id); err != nil {
			i.logger.WarnContext(ctx, "Failed to bind endpoint", "endpoint_id", step.EndpointID, "error", err)

			continue
		}

		i.bound[step.EndpointID] = true
	}
}

func (i *Integration) unbindEndpointsLocked(ctx context.Context) {
	for endpointID := range i.bound {
		if err := i.deps.Endpoints.Unbind(ctx, endpointID, i.id); err != nil {
			i.logger.WarnContext(ctx, "Failed to unbind endpoint", "endpoint_id", endpointID, "error", err)
		}

		delete(i.bound, endpointID)
	}
}

// Rebind binds the endpoints owned by an application that started after this integration.
func (i *Integration) Rebind(ctx context.Context, applicationID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.running {
		return
	}

	i.bindEndpointsLocked(ctx, applicationID)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
