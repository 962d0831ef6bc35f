// Package scheduler fires cron and fixed-interval tasks on every engine and arbitrates
// clustered tasks so that one engine runs them per lease period.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/models"
)

var (
	ErrTaskExists      = errors.New("task already scheduled")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Task is the unit of scheduled work.
type Task func(ctx context.Context) error

type entry struct {
	entryID   cron.EntryID
	clustered bool
	repeat    int
	fires     atomic.Int64
	task      Task
}

// Scheduler is the local scheduler of one engine process.
type Scheduler struct {
	cron    *cron.Cron
	manager *TaskManager
	logger  *slog.Logger

	mu    sync.Mutex
	tasks map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
}

func New(manager *TaskManager, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "scheduler")
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		manager: manager,
		logger:  logger,
		tasks:   make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ScheduleCron registers a task fired by a cron expression (5 fields, 6 with seconds, or a
// descriptor such as "@every 1m").
func (s *Scheduler) ScheduleCron(taskID, expr string, clustered bool, task Task) error {
	schedule, err := models.CronParser.Parse(expr)
	if err != nil {
		return faults.Configuration("ScheduleCron", taskID, fmt.Errorf("%w: %w", models.ErrInvalidSchedule, err))
	}

	return s.add(taskID, schedule, 0, clustered, task)
}

// ScheduleInterval registers a task fired every interval. A positive repeatCount fires it exactly
// that many times; otherwise it fires until removed.
func (s *Scheduler) ScheduleInterval(taskID string, interval time.Duration, repeatCount int, clustered bool, task Task) error {
	if interval <= 0 {
		return faults.Configuration("ScheduleInterval", taskID, ErrInvalidInterval)
	}

	return s.add(taskID, newIntervalSchedule(interval, repeatCount), repeatCount, clustered, task)
}

func (s *Scheduler) add(taskID string, schedule cron.Schedule, repeat int, clustered bool, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; ok {
		return faults.State("ScheduleTask", taskID, ErrTaskExists)
	}

	e := &entry{clustered: clustered, repeat: repeat, task: task}
	s.tasks[taskID] = e
	e.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(taskID, e) }))

	s.logger.Info("Task scheduled", "task_id", taskID, "clustered", clustered)

	return nil
}

// fire hands the task to the task manager while e is still the entry registered under taskID.
func (s *Scheduler) fire(taskID string, e *entry) {
	if !s.current(taskID, e) {
		return
	}

	s.manager.Run(s.ctx, taskID, e.clustered, e.task)

	if e.repeat > 0 && e.fires.Add(1) >= int64(e.repeat) {
		s.removeEntry(taskID, e)
	}
}

func (s *Scheduler) current(taskID string, e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tasks[taskID] == e
}

// Remove cancels future firings. A run already in progress is not interrupted.
func (s *Scheduler) Remove(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[taskID]
	if !ok {
		return false
	}

	s.removeLocked(taskID, e)

	return true
}

// removeEntry removes taskID only while it still refers to e; a task re-registered under
// the same ID is left alone.
func (s *Scheduler) removeEntry(taskID string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tasks[taskID] == e {
		s.removeLocked(taskID, e)
	}
}

func (s *Scheduler) removeLocked(taskID string, e *entry) {
	delete(s.tasks, taskID)
	s.cron.Remove(e.entryID)

	s.logger.Info("Task removed", "task_id", taskID)
}

func (s *Scheduler) Exists(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tasks[taskID]

	return ok
}

// Tasks returns the IDs of every scheduled task.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}

	return ids
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop halts firing and waits for running tasks until ctx is done, then cancels them.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")

	done := s.cron.Stop()
	defer s.cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
