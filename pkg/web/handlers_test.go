package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/integra/pkg/condition"
	"github.com/dukex/integra/pkg/endpoint"
	"github.com/dukex/integra/pkg/idgen"
	"github.com/dukex/integra/pkg/integration"
	"github.com/dukex/integra/pkg/metrics"
	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/persistence/file"
	"github.com/dukex/integra/pkg/web"
)

type mockApplications struct {
	mock.Mock
}

func (m *mockApplications) StartApplication(ctx context.Context, applicationID string) error {
	return m.Called(applicationID).Error(0)
}

func (m *mockApplications) StopApplication(ctx context.Context, applicationID string) error {
	return m.Called(applicationID).Error(0)
}

func ordersDefinition() *models.Definition {
	return &models.Definition{
		ID:   "orders",
		Name: "Orders",
		Steps: []*models.Step{
			{ID: "in", Type: models.StepTypeEndpoint, EndpointID: "orders-in", Direction: models.DirectionInbound},
			{ID: "ack", Type: models.StepTypeDirect, Message: "ack"},
		},
		Edges: map[string][]string{"in": {"ack"}},
		Condition: &condition.Definition{
			Expression: "amount > 10",
			Vars: map[string]condition.Variable{
				"amount": {Type: condition.TypeInteger, FromMessage: "amount"},
			},
		},
	}
}

func setupTestApp(t *testing.T) (*fiber.App, *integration.Manager, *mockApplications) {
	t.Helper()

	ids, err := idgen.New(1, 1)
	require.NoError(t, err)

	store := file.NewPersistence(t.TempDir())
	reg := prometheus.NewRegistry()

	manager := integration.NewManager(integration.Dependencies{
		IDs:     ids,
		Log:     store,
		Logger:  slog.Default(),
		Metrics: metrics.New(reg),
	})

	_, err = manager.Register(ordersDefinition())
	require.NoError(t, err)

	apps := &mockApplications{}
	api := web.NewAPI(slog.Default(), manager, store, apps, reg)

	return api.App(), manager, apps
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func TestAPIHandlers_IntegrationLifecycle(t *testing.T) {
	t.Parallel()

	app, manager, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/integrations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Integrations []web.IntegrationResponse `json:"integrations"`
		TotalCount   int                       `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.TotalCount)
	assert.Equal(t, "orders", list.Integrations[0].ID)
	assert.False(t, list.Integrations[0].Running)

	resp, _ = doRequest(t, app, http.MethodGet, "/integrations/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/integrations/orders/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	i, err := manager.Get("orders")
	require.NoError(t, err)
	assert.True(t, i.Running())

	resp, _ = doRequest(t, app, http.MethodDelete, "/integrations/orders", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/integrations/orders/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodDelete, "/integrations/orders", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = manager.Get("orders")
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
}

func TestAPIHandlers_RunInstanceAndTransactionLog(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp, _ := doRequest(t, app, http.MethodPost, "/integrations/orders/instances", web.RunInstanceRequest{Message: map[string]any{"amount": 50}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "stopped integrations do not run")

	resp, _ = doRequest(t, app, http.MethodPost, "/integrations/orders/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/integrations/orders/instances", web.RunInstanceRequest{Message: map[string]any{"amount": 5}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body := doRequest(t, app, http.MethodPost, "/integrations/orders/instances", web.RunInstanceRequest{Message: map[string]any{"amount": 50}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var tx models.Transaction
	require.NoError(t, json.Unmarshal(body, &tx))
	assert.True(t, tx.Finished)
	assert.False(t, tx.Failed)
	assert.Equal(t, "ack", tx.Message)

	txPath := "/transactions/" + strconv.FormatUint(tx.ID, 10)

	resp, body = doRequest(t, app, http.MethodGet, txPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record models.TransactionRecord
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, models.TransactionStatusCompleted, record.Status)

	resp, body = doRequest(t, app, http.MethodGet, txPath+"/steps", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var steps struct {
		Steps []models.StepLogEntry `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(body, &steps))
	require.Len(t, steps.Steps, 1)
	assert.Equal(t, "ack", steps.Steps[0].Step.StepID)

	resp, body = doRequest(t, app, http.MethodGet, "/transactions?integration_id=orders&limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"total_count":1`)

	resp, _ = doRequest(t, app, http.MethodGet, "/transactions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, "/transactions/42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, "/transactions/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doRequest(t, app, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "integra_transactions_total")
}

func TestAPIHandlers_ProbeAndUpdates(t *testing.T) {
	t.Parallel()

	app, manager, _ := setupTestApp(t)

	probe := web.ProbeRequest{
		TestInstance: integration.TestInstance{StepID: "ack", Message: "in"},
	}

	resp, body := doRequest(t, app, http.MethodPost, "/integrations/orders/probe", probe)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var probed web.ProbeResponse
	require.NoError(t, json.Unmarshal(body, &probed))
	require.Len(t, probed.Executions, 1)
	assert.Equal(t, "ack", probed.Executions[0].StepID)
	assert.Equal(t, "ack", probed.Transaction.Message)

	resp, _ = doRequest(t, app, http.MethodPost, "/integrations/orders/probe", web.ProbeRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	probe.StepID = "nope"
	resp, _ = doRequest(t, app, http.MethodPost, "/integrations/orders/probe", probe)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPut, "/integrations/orders/steps/ack/message", web.UpdateStepMessageRequest{Message: "changed"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	i, err := manager.Get("orders")
	require.NoError(t, err)
	assert.Equal(t, "changed", i.Definition().Step("ack").Message)

	resp, _ = doRequest(t, app, http.MethodPut, "/integrations/orders/steps/nope/message", web.UpdateStepMessageRequest{Message: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPut, "/integrations/orders/config", web.UpdateConfigRequest{Config: map[string]any{"region": "eu"}})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, map[string]any{"region": "eu"}, i.Config())

	resp, _ = doRequest(t, app, http.MethodPut, "/integrations/orders/config", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_ContinueTransaction(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodPost, "/integrations/orders/probe", web.ProbeRequest{
		TestInstance: integration.TestInstance{StepID: "in", Message: map[string]any{"amount": 20}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var first web.ProbeResponse
	require.NoError(t, json.Unmarshal(body, &first))
	require.False(t, first.Transaction.Finished)
	assert.Equal(t, "ack", first.Transaction.CurrentStep)

	path := "/integrations/orders/probe/" + strconv.FormatUint(first.Transaction.ID, 10)

	resp, body = doRequest(t, app, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var next web.ProbeResponse
	require.NoError(t, json.Unmarshal(body, &next))
	require.Len(t, next.Executions, 1)
	assert.Equal(t, "ack", next.Executions[0].StepID)
	assert.Equal(t, first.Transaction.ID, next.Transaction.ID)
	assert.True(t, next.Transaction.Finished)
	assert.Equal(t, "ack", next.Transaction.Message)

	resp, _ = doRequest(t, app, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/integrations/orders/probe/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_ApplicationsAndHealth(t *testing.T) {
	t.Parallel()

	app, _, apps := setupTestApp(t)

	apps.On("StartApplication", "crm").Return(nil).Once()
	apps.On("StopApplication", "erp").Return(endpoint.ErrApplicationNotFound).Once()

	resp, _ := doRequest(t, app, http.MethodPost, "/applications/crm/start", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/applications/erp/stop", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	apps.AssertExpectations(t)

	resp, body := doRequest(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"repository":"ok"`)
}
