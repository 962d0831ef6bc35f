package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/persistence"
)

const defaultListLimit = 100

// TransactionRepository handles transaction log rows.
type TransactionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db *sql.DB, logger *slog.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, logger: logger}
}

// Insert writes the row of a starting transaction.
func (r *TransactionRepository) Insert(ctx context.Context, record *models.TransactionRecord) error {
	messageJSON, err := json.Marshal(record.Message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	query := `
		INSERT INTO transactions (id, integration_id, client_id, status, message, error_message, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		int64(record.ID),
		record.IntegrationID,
		nullString(record.ClientID),
		record.Status,
		messageJSON,
		nullString(record.ErrorMessage),
		record.CreatedAt,
		record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return persistence.NewTransactionError("InsertTransaction", record.ID, persistence.ErrTransactionAlreadyExists)
	}

	return nil
}

// Update writes the final state of a transaction.
func (r *TransactionRepository) Update(ctx context.Context, record *models.TransactionRecord) error {
	messageJSON, err := json.Marshal(record.Message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	query := `
		UPDATE transactions
		SET status = $2, message = $3, error_message = $4, finished_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		int64(record.ID),
		record.Status,
		messageJSON,
		nullString(record.ErrorMessage),
		record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewTransactionError("UpdateTransaction", record.ID, persistence.ErrTransactionNotFound)
	}

	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uint64) (*models.TransactionRecord, error) {
	query := `
		SELECT
			id
		  , integration_id
		  , client_id
		  , status
		  , message
		  , error_message
		  , created_at
		  , finished_at
		FROM transactions
		WHERE id = $1
	`

	record, err := r.scan(r.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTransactionError("TransactionByID", id, persistence.ErrTransactionNotFound)
		}

		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	return record, nil
}

// List returns the newest transactions, filtered by integration when integrationID is set.
func (r *TransactionRepository) List(ctx context.Context, integrationID string, limit int) ([]*models.TransactionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT
			id
		  , integration_id
		  , client_id
		  , status
		  , message
		  , error_message
		  , created_at
		  , finished_at
		FROM transactions
		WHERE ($1 = '' OR integration_id = $1)
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, integrationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.TransactionRecord, 0)

	for rows.Next() {
		record, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *TransactionRepository) scan(row scanner) (*models.TransactionRecord, error) {
	var (
		record       models.TransactionRecord
		id           int64
		clientID     sql.NullString
		status       string
		messageJSON  []byte
		errorMessage sql.NullString
		finishedAt   sql.NullTime
	)

	err := row.Scan(&id, &record.IntegrationID, &clientID, &status, &messageJSON, &errorMessage, &record.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	record.ID = uint64(id)
	record.ClientID = clientID.String
	record.Status = models.TransactionStatus(status)
	record.ErrorMessage = errorMessage.String

	if finishedAt.Valid {
		record.FinishedAt = &finishedAt.Time
	}

	if err := unmarshalJSON(messageJSON, &record.Message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func unmarshalJSON(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}
