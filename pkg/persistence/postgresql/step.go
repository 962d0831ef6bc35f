package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/integra/pkg/models"
)

// StepRepository handles step and step-info rows.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

// Insert writes a step row and its info row in one database transaction.
func (r *StepRepository) Insert(ctx context.Context, step *models.StepRecord, info *models.StepInfoRecord) (err error) {
	inputJSON, err := json.Marshal(info.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	outputJSON, err := json.Marshal(info.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	propertiesJSON, err := json.Marshal(info.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO steps (id, transaction_id, integration_id, step_id, step_type, failed, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		int64(step.ID),
		int64(step.TransactionID),
		step.IntegrationID,
		step.StepID,
		string(step.StepType),
		step.Failed,
		step.StartedAt,
		step.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO step_infos (id, step_record_id, input, output, properties, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		int64(info.ID),
		int64(step.ID),
		inputJSON,
		outputJSON,
		propertiesJSON,
		nullString(info.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to insert step info: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByTransaction returns the steps of a transaction in execution order.
func (r *StepRepository) GetByTransaction(ctx context.Context, transactionID uint64) ([]*models.StepLogEntry, error) {
	query := `
		SELECT
			s.id
		  , s.transaction_id
		  , s.integration_id
		  , s.step_id
		  , s.step_type
		  , s.failed
		  , s.started_at
		  , s.duration_ms
		  , i.id
		  , i.input
		  , i.output
		  , i.properties
		  , i.error_message
		FROM steps s
		LEFT JOIN step_infos i ON i.step_record_id = s.id
		WHERE s.transaction_id = $1
		ORDER BY s.id
	`

	rows, err := r.db.QueryContext(ctx, query, int64(transactionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.StepLogEntry, 0)

	for rows.Next() {
		entry, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return entries, nil
}

func (r *StepRepository) scan(row scanner) (*models.StepLogEntry, error) {
	var (
		step           models.StepRecord
		stepRowID      int64
		transactionID  int64
		stepType       string
		infoID         sql.NullInt64
		inputJSON      []byte
		outputJSON     []byte
		propertiesJSON []byte
		errorMessage   sql.NullString
	)

	err := row.Scan(
		&stepRowID, &transactionID, &step.IntegrationID, &step.StepID, &stepType, &step.Failed, &step.StartedAt, &step.DurationMs,
		&infoID, &inputJSON, &outputJSON, &propertiesJSON, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	step.ID = uint64(stepRowID)
	step.TransactionID = uint64(transactionID)
	step.StepType = models.StepType(stepType)

	entry := &models.StepLogEntry{Step: &step}

	if infoID.Valid {
		info := &models.StepInfoRecord{
			ID:           uint64(infoID.Int64),
			StepRecordID: step.ID,
			ErrorMessage: errorMessage.String,
		}

		if err := unmarshalJSON(inputJSON, &info.Input); err != nil {
			return nil, err
		}

		if err := unmarshalJSON(outputJSON, &info.Output); err != nil {
			return nil, err
		}

		if err := unmarshalJSON(propertiesJSON, &info.Properties); err != nil {
			return nil, err
		}

		entry.Info = info
	}

	return entry, nil
}
