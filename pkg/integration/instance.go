package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/integra/pkg/executor"
	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/models"
)

// CreateInstance creates a transaction in normal mode. A supplied message stands for the
// output of the already executed first step, so the transaction starts at its successor.
func (i *Integration) CreateInstance(message any) (*models.Transaction, error) {
	i.mu.RLock()
	def, config := i.def, i.config
	i.mu.RUnlock()

	tx, err := i.newTransaction(config)
	if err != nil {
		return nil, err
	}

	first := def.FirstStep()
	tx.CurrentStep = first.ID

	if message != nil {
		tx.Message = message

		if next := def.Next(first.ID); next != "" {
			tx.MoveTo(next)
		} else {
			tx.PreviousStep = first.ID
			tx.Finished = true
		}
	}

	return tx, nil
}

// CreateTestInstance creates a transaction positioned at an arbitrary step for probing.
func (i *Integration) CreateTestInstance(instance TestInstance) (*models.Transaction, error) {
	i.mu.RLock()
	def, config := i.def, i.config
	i.mu.RUnlock()

	if def.Step(instance.StepID) == nil {
		return nil, faults.Configuration("CreateTestInstance", i.id, fmt.Errorf("%w: %s", ErrUnknownStep, instance.StepID))
	}

	tx, err := i.newTransaction(config)
	if err != nil {
		return nil, err
	}

	tx.CurrentStep = instance.StepID
	tx.PreviousStep = instance.PreviousStep
	tx.Message = instance.Message
	tx.Failed = instance.Failed

	for k, v := range instance.Properties {
		tx.SetProperty(k, v)
	}

	return tx, nil
}

func (i *Integration) newTransaction(config any) (*models.Transaction, error) {
	if i.deps.IDs == nil {
		return nil, faults.Configuration("CreateInstance", i.id, fmt.Errorf("%w: id generator", executor.ErrNoCollaborator))
	}

	id, err := i.deps.IDs.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate transaction id: %w", err)
	}

	return &models.Transaction{
		ID:                id,
		IntegrationID:     i.id,
		ClientID:          i.clientID,
		IntegrationConfig: config,
		Properties:        make(map[string]any),
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// RunInstance drives tx to completion and writes its transaction row at start and finish.
// Step failures are routed inside the transaction and never returned.
func (i *Integration) RunInstance(ctx context.Context, tx *models.Transaction) error {
	if tx.IntegrationID != i.id {
		return faults.State("RunInstance", i.id, ErrForeignTransaction)
	}

	logger := i.logger.With("transaction_id", tx.ID)
	logger.DebugContext(ctx, "Running transaction", "step_id", tx.CurrentStep)

	i.logTransaction(ctx, tx, true)

	executor.New(i.Definition(), i.executorDeps()).Run(ctx, tx)

	i.logTransaction(ctx, tx, false)
	i.deps.Metrics.ObserveTransaction(i.id, tx.Failed)

	logger.InfoContext(ctx, "Transaction finished", "failed", tx.Failed)

	return nil
}

func (i *Integration) executorDeps() executor.Dependencies {
	return executor.Dependencies{
		Endpoints: i.deps.Endpoints,
		Modules:   i.deps.Modules,
		IDs:       i.deps.IDs,
		Log:       i.deps.Log,
		Logger:    i.deps.Logger,
		Tracer:    i.deps.Tracer,
		Metrics:   i.deps.Metrics,
	}
}

func (i *Integration) logTransaction(ctx context.Context, tx *models.Transaction, start bool) {
	if i.deps.Log == nil {
		return
	}

	record := models.NewTransactionRecord(tx)

	var err error
	if start {
		err = i.deps.Log.InsertTransaction(ctx, record)
	} else {
		err = i.deps.Log.UpdateTransaction(ctx, record)
	}

	if err != nil {
		i.logger.ErrorContext(ctx, "Failed to write transaction log", "transaction_id", tx.ID, "error", err)
	}
}
