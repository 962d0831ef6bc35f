package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/persistence"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

var _ persistence.Persistence = (*MockPersistence)(nil)

func (m *MockPersistence) InsertTransaction(ctx context.Context, record *models.TransactionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockPersistence) UpdateTransaction(ctx context.Context, record *models.TransactionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockPersistence) InsertStep(ctx context.Context, step *models.StepRecord, info *models.StepInfoRecord) error {
	args := m.Called(ctx, step, info)

	return args.Error(0)
}

func (m *MockPersistence) TransactionByID(ctx context.Context, id uint64) (*models.TransactionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.TransactionRecord), args.Error(1)
}

func (m *MockPersistence) Transactions(ctx context.Context, integrationID string, limit int) ([]*models.TransactionRecord, error) {
	args := m.Called(ctx, integrationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TransactionRecord), args.Error(1)
}

func (m *MockPersistence) StepsByTransaction(ctx context.Context, transactionID uint64) ([]*models.StepLogEntry, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StepLogEntry), args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// RecordingLog is an in-memory transaction log for tests that inspect what was written.
type RecordingLog struct {
	mu           sync.Mutex
	Transactions []*models.TransactionRecord
	Updates      []*models.TransactionRecord
	Steps        []*models.StepLogEntry
}

func (r *RecordingLog) InsertTransaction(_ context.Context, record *models.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Transactions = append(r.Transactions, record)

	return nil
}

func (r *RecordingLog) UpdateTransaction(_ context.Context, record *models.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Updates = append(r.Updates, record)

	return nil
}

func (r *RecordingLog) InsertStep(_ context.Context, step *models.StepRecord, info *models.StepInfoRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Steps = append(r.Steps, &models.StepLogEntry{Step: step, Info: info})

	return nil
}

// Counts returns the number of inserted transactions, updates and steps.
func (r *RecordingLog) Counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.Transactions), len(r.Updates), len(r.Steps)
}
