// Package postgresql provides the PostgreSQL transaction log.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/persistence"
	"github.com/dukex/integra/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db              *sql.DB
	logger          *slog.Logger
	transactionRepo *TransactionRepository
	stepRepo        *StepRepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql")
	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:              database,
		logger:          logger,
		transactionRepo: NewTransactionRepository(database, logger),
		stepRepo:        NewStepRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) InsertTransaction(ctx context.Context, record *models.TransactionRecord) error {
	return p.transactionRepo.Insert(ctx, record)
}

func (p *Persistence) UpdateTransaction(ctx context.Context, record *models.TransactionRecord) error {
	return p.transactionRepo.Update(ctx, record)
}

func (p *Persistence) TransactionByID(ctx context.Context, id uint64) (*models.TransactionRecord, error) {
	return p.transactionRepo.GetByID(ctx, id)
}

func (p *Persistence) Transactions(ctx context.Context, integrationID string, limit int) ([]*models.TransactionRecord, error) {
	return p.transactionRepo.List(ctx, integrationID, limit)
}

func (p *Persistence) InsertStep(ctx context.Context, step *models.StepRecord, info *models.StepInfoRecord) error {
	return p.stepRepo.Insert(ctx, step, info)
}

func (p *Persistence) StepsByTransaction(ctx context.Context, transactionID uint64) ([]*models.StepLogEntry, error) {
	return p.stepRepo.GetByTransaction(ctx, transactionID)
}
