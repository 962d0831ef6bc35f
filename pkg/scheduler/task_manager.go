package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/metrics"
	"github.com/dukex/integra/pkg/otelhelper"
	"github.com/dukex/integra/pkg/protocol"
)

var (
	ErrInvalidTiming = errors.New("invalid cluster timing")
	ErrNoLockStore   = errors.New("lock store is required")
)

// Outcome of one task firing.
type Outcome int

const (
	OutcomeRan Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRan:
		return "ran"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds the cluster timing. Lease must exceed ten jitter windows and the jitter window
// must exceed ten times the tolerated clock skew.
type Config struct {
	Jitter    time.Duration
	Lease     time.Duration
	ClockSkew time.Duration
}

func DefaultConfig() Config {
	return Config{
		Jitter:    2 * time.Second,
		Lease:     30 * time.Second,
		ClockSkew: 100 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.Jitter <= 0 || c.Lease <= 0 || c.ClockSkew < 0 {
		return fmt.Errorf("%w: durations must be positive", ErrInvalidTiming)
	}

	if c.Lease <= 10*c.Jitter {
		return fmt.Errorf("%w: lease %s must exceed 10x jitter %s", ErrInvalidTiming, c.Lease, c.Jitter)
	}

	if c.Jitter <= 10*c.ClockSkew {
		return fmt.Errorf("%w: jitter %s must exceed 10x clock skew %s", ErrInvalidTiming, c.Jitter, c.ClockSkew)
	}

	return nil
}

// TaskManager decides whether this engine runs a fired task. Clustered tasks wait a random
// jitter and then race for a lease named after the task. The winner never releases the lease,
// so no other engine reruns the task before it expires.
type TaskManager struct {
	locks   protocol.LockStore
	config  Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
	jitter  func(time.Duration) time.Duration
}

// TaskManagerOption configures a TaskManager.
type TaskManagerOption func(*TaskManager)

func WithTracer(tracer trace.Tracer) TaskManagerOption {
	return func(m *TaskManager) { m.tracer = tracer }
}

func WithMetrics(mtr *metrics.Metrics) TaskManagerOption {
	return func(m *TaskManager) { m.metrics = mtr }
}

// WithJitterSource replaces the random jitter draw.
func WithJitterSource(jitter func(window time.Duration) time.Duration) TaskManagerOption {
	return func(m *TaskManager) { m.jitter = jitter }
}

func NewTaskManager(locks protocol.LockStore, config Config, logger *slog.Logger, opts ...TaskManagerOption) (*TaskManager, error) {
	if locks == nil {
		return nil, faults.Configuration("NewTaskManager", "", ErrNoLockStore)
	}

	if err := config.Validate(); err != nil {
		return nil, faults.Configuration("NewTaskManager", "", err)
	}

	m := &TaskManager{
		locks:  locks,
		config: config,
		logger: logger.With("module", "task_manager"),
		jitter: randomJitter,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.tracer = otelhelper.Tracer(m.tracer)

	return m, nil
}

func (m *TaskManager) Config() Config {
	return m.config
}

// Run executes task according to its clustering mode. Task errors and panics are logged and
// reported as OutcomeFailed; they never reach the caller.
func (m *TaskManager) Run(ctx context.Context, taskID string, clustered bool, task Task) (outcome Outcome) {
	start := time.Now()
	logger := m.logger.With("task_id", taskID, "clustered", clustered)

	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "scheduler.task run",
		attribute.String(otelhelper.TaskIDKey, taskID),
		attribute.Bool(otelhelper.ClusteredKey, clustered),
	)

	defer func() {
		elapsed := time.Since(start)

		span.SetAttributes(attribute.String(otelhelper.TaskOutcomeKey, outcome.String()))
		span.End()

		m.metrics.ObserveTask(clustered, outcome.String(), elapsed)
		logger.InfoContext(ctx, "Task run finished", "outcome", outcome.String(), "elapsed", elapsed)
	}()

	if clustered {
		acquired, err := m.arbitrate(ctx, taskID)
		if err != nil {
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Failed to acquire task lease", "error", err)

			return OutcomeFailed
		}

		if !acquired {
			return OutcomeSkipped
		}
	}

	if err := m.invoke(ctx, task); err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Task failed", "error", err)

		return OutcomeFailed
	}

	return OutcomeRan
}

// arbitrate sleeps the jitter and tries to take the lease. The lease is left to expire.
// Cancellation during the sleep gives up the race without an error.
func (m *TaskManager) arbitrate(ctx context.Context, taskID string) (bool, error) {
	wait := m.jitter(m.config.Jitter)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			m.logger.DebugContext(ctx, "Task canceled during jitter", "task_id", taskID, "error", ctx.Err())

			return false, nil
		case <-timer.C:
		}
	}

	return m.locks.TryAcquire(ctx, taskID, m.config.Lease)
}

func (m *TaskManager) invoke(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return task(ctx)
}

func randomJitter(window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}

	return time.Duration(rand.Int64N(int64(window)))
}
