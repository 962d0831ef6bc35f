package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/mocks"
	"github.com/dukex/integra/pkg/protocol"
)

func TestManager_Registry(t *testing.T) {
	deps, _ := testDeps(t)
	manager := NewManager(deps)

	_, err := manager.Register(inboundDefinition("b"))
	require.NoError(t, err)
	_, err = manager.Register(inboundDefinition("a"))
	require.NoError(t, err)

	_, err = manager.Register(inboundDefinition("a"))
	assert.ErrorIs(t, err, ErrIntegrationExists)

	list := manager.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID())
	assert.Equal(t, "b", list[1].ID())

	_, err = manager.Get("missing")
	assert.ErrorIs(t, err, ErrIntegrationNotFound)
	assert.True(t, faults.IsState(err))
}

func TestManager_RemoveRequiresStopped(t *testing.T) {
	deps, _ := testDeps(t)
	manager := NewManager(deps)
	ctx := context.Background()

	integration, err := manager.Register(inboundDefinition("running"))
	require.NoError(t, err)
	require.NoError(t, manager.StartAll(ctx))

	assert.ErrorIs(t, manager.Remove("running"), ErrIntegrationRunning)

	require.NoError(t, manager.StopAll(ctx))
	require.NoError(t, manager.Remove("running"))
	assert.True(t, integration.Destroyed())

	assert.ErrorIs(t, manager.Remove("running"), ErrIntegrationNotFound)
}

func TestManager_TriggerAndRebind(t *testing.T) {
	deps, log := testDeps(t)
	endpoints := &mocks.MockEndpoints{}
	deps.Endpoints = endpoints
	manager := NewManager(deps)
	ctx := context.Background()

	endpoints.On("Status", mock.Anything, "orders").
		Return(protocol.EndpointStatus{ApplicationID: "shop", ApplicationRunning: true, Connected: true}, nil)
	endpoints.On("Bind", mock.Anything, "orders", "shop-orders").Return(nil).Once()

	_, err := manager.Register(inboundDefinition("shop-orders"))
	require.NoError(t, err)
	require.NoError(t, manager.StartAll(ctx))

	manager.RebindApplication(ctx, "shop")

	tx, err := manager.Trigger(ctx, "shop-orders", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "ack", tx.Message)

	_, err = manager.Trigger(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrIntegrationNotFound)

	inserted, _, _ := log.Counts()
	assert.Equal(t, 1, inserted)
	endpoints.AssertExpectations(t)
}
