package models

import "time"

// TransactionStatus represents the state of a logged transaction.
type TransactionStatus string

const (
	TransactionStatusRunning   TransactionStatus = "running"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// TransactionRecord is the "transaction" row, inserted at instance start and updated at finish.
type TransactionRecord struct {
	ID            uint64            `json:"id,string"`
	IntegrationID string            `json:"integration_id"`
	ClientID      string            `json:"client_id,omitempty"`
	Status        TransactionStatus `json:"status"`
	Message       any               `json:"message,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
}

// NewTransactionRecord snapshots a transaction.
func NewTransactionRecord(tx *Transaction) *TransactionRecord {
	record := &TransactionRecord{
		ID:            tx.ID,
		IntegrationID: tx.IntegrationID,
		ClientID:      tx.ClientID,
		Status:        TransactionStatusRunning,
		Message:       tx.Message,
		ErrorMessage:  tx.ErrorMessage,
		CreatedAt:     tx.CreatedAt,
	}

	if tx.Finished {
		now := time.Now().UTC()
		record.FinishedAt = &now
		record.Status = TransactionStatusCompleted

		if tx.Failed {
			record.Status = TransactionStatusFailed
		}
	}

	return record
}

// StepRecord is the "step" row written for every executed, non-probing step.
type StepRecord struct {
	ID            uint64    `json:"id,string"`
	TransactionID uint64    `json:"transaction_id,string"`
	IntegrationID string    `json:"integration_id"`
	StepID        string    `json:"step_id"`
	StepType      StepType  `json:"step_type"`
	Failed        bool      `json:"failed"`
	StartedAt     time.Time `json:"started_at"`
	DurationMs    int64     `json:"duration_ms"`
}

// StepInfoRecord is the "step-info" row paired with a StepRecord.
type StepInfoRecord struct {
	ID           uint64         `json:"id,string"`
	StepRecordID uint64         `json:"step_record_id,string"`
	Input        any            `json:"input,omitempty"`
	Output       any            `json:"output,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// StepLogEntry pairs a step row with its info row.
type StepLogEntry struct {
	Step *StepRecord     `json:"step"`
	Info *StepInfoRecord `json:"info,omitempty"`
}
