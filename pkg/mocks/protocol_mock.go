package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/protocol"
)

// MockEndpoints is a mock implementation of protocol.Endpoints interface.
type MockEndpoints struct {
	mock.Mock
}

func (m *MockEndpoints) Status(ctx context.Context, endpointID string) (protocol.EndpointStatus, error) {
	args := m.Called(ctx, endpointID)

	return args.Get(0).(protocol.EndpointStatus), args.Error(1)
}

func (m *MockEndpoints) Bind(ctx context.Context, endpointID, integrationID string) error {
	args := m.Called(ctx, endpointID, integrationID)

	return args.Error(0)
}

func (m *MockEndpoints) Unbind(ctx context.Context, endpointID, integrationID string) error {
	args := m.Called(ctx, endpointID, integrationID)

	return args.Error(0)
}

func (m *MockEndpoints) IsBound(endpointID, integrationID string) bool {
	args := m.Called(endpointID, integrationID)

	return args.Bool(0)
}

func (m *MockEndpoints) CallOutbound(ctx context.Context, endpointID, integrationID string, message any) (any, error) {
	args := m.Called(ctx, endpointID, integrationID, message)

	return args.Get(0), args.Error(1)
}

// MockModules is a mock implementation of protocol.Modules interface.
type MockModules struct {
	mock.Mock
}

func (m *MockModules) RunProcessor(ctx context.Context, moduleID, processor string, tx *models.Transaction) error {
	args := m.Called(ctx, moduleID, processor, tx)

	return args.Error(0)
}

func (m *MockModules) RunScript(ctx context.Context, scriptID string, tx *models.Transaction, async bool) (*models.Transaction, error) {
	args := m.Called(ctx, scriptID, tx, async)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Transaction), args.Error(1)
}

// MockLockStore is a mock implementation of protocol.LockStore interface.
type MockLockStore struct {
	mock.Mock
}

func (m *MockLockStore) TryAcquire(ctx context.Context, key string, lease time.Duration) (bool, error) {
	args := m.Called(ctx, key, lease)

	return args.Bool(0), args.Error(1)
}
