// Package persistence provides the transaction log storage abstraction.
package persistence

import (
	"context"

	"github.com/dukex/integra/pkg/models"
)

// TransactionLog is the append-only side used by the engine while running instances.
type TransactionLog interface {
	InsertTransaction(ctx context.Context, record *models.TransactionRecord) error
	UpdateTransaction(ctx context.Context, record *models.TransactionRecord) error
	InsertStep(ctx context.Context, step *models.StepRecord, info *models.StepInfoRecord) error
}

type Persistence interface {
	TransactionLog

	TransactionByID(ctx context.Context, id uint64) (*models.TransactionRecord, error)
	Transactions(ctx context.Context, integrationID string, limit int) ([]*models.TransactionRecord, error)
	StepsByTransaction(ctx context.Context, transactionID uint64) ([]*models.StepLogEntry, error)
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
