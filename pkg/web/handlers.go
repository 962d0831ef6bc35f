// Package web provides the admin HTTP API of an engine node.
package web

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/integra/pkg/integration"
	"github.com/dukex/integra/pkg/persistence"
)

// Applications starts and stops endpoint applications.
type Applications interface {
	StartApplication(ctx context.Context, applicationID string) error
	StopApplication(ctx context.Context, applicationID string) error
}

type APIHandlers struct {
	manager      *integration.Manager
	persistence  persistence.Persistence
	applications Applications
	validator    *validator.Validate
}

func NewAPIHandlers(
	manager *integration.Manager,
	persistence persistence.Persistence,
	applications Applications,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		manager:      manager,
		persistence:  persistence,
		applications: applications,
		validator:    validator,
	}
}

func (h *APIHandlers) GetIntegrations(c fiber.Ctx) error {
	integrations := h.manager.List()

	responses := make([]IntegrationResponse, 0, len(integrations))
	for _, i := range integrations {
		responses = append(responses, toIntegrationResponse(i, false))
	}

	return c.JSON(fiber.Map{
		"integrations": responses,
		"total_count":  len(responses),
	})
}

func (h *APIHandlers) GetIntegration(c fiber.Ctx) error {
	i, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(toIntegrationResponse(i, true))
}

func (h *APIHandlers) StartIntegration(c fiber.Ctx) error {
	i, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if err := i.Start(c.Context()); err != nil {
		return handleError(c, err)
	}

	return c.JSON(toIntegrationResponse(i, false))
}

func (h *APIHandlers) StopIntegration(c fiber.Ctx) error {
	i, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if err := i.Stop(c.Context()); err != nil {
		return handleError(c, err)
	}

	return c.JSON(toIntegrationResponse(i, false))
}

func (h *APIHandlers) DeleteIntegration(c fiber.Ctx) error {
	if err := h.manager.Remove(c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RunInstance(c fiber.Ctx) error {
	var req RunInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	tx, err := h.manager.Trigger(c.Context(), c.Params("id"), req.Message)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tx)
}

func (h *APIHandlers) Probe(c fiber.Ctx) error {
	var req ProbeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	i, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	tx, err := i.CreateTestInstance(req.TestInstance)
	if err != nil {
		return handleError(c, err)
	}

	if req.Config != nil {
		tx.IntegrationConfig = req.Config
	}

	executions, err := i.Probe(c.Context(), tx, req.Continue)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(ProbeResponse{
		Transaction: tx,
		Executions:  toExecutionResponses(executions),
	})
}

// ProbeNext continues a probed transaction that has not finished yet.
func (h *APIHandlers) ProbeNext(c fiber.Ctx) error {
	txID, err := strconv.ParseUint(c.Params("transactionId"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid transaction ID")
	}

	var req ProbeNextRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	i, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	tx, executions, err := i.ProbeNext(c.Context(), txID, req.Continue)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(ProbeResponse{
		Transaction: tx,
		Executions:  toExecutionResponses(executions),
	})
}

func (h *APIHandlers) UpdateConfig(c fiber.Ctx) error {
	var req UpdateConfigRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	i, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	i.UpdateConfig(req.Config)

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) UpdateStepMessage(c fiber.Ctx) error {
	var req UpdateStepMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	i, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if err := i.UpdateStepMessage(c.Params("stepId"), req.Message); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetTransactions(c fiber.Ctx) error {
	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		var err error

		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return badRequest(c, "Invalid limit")
		}
	}

	records, err := h.persistence.Transactions(c.Context(), c.Query("integration_id"), limit)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"transactions": records,
		"total_count":  len(records),
	})
}

func (h *APIHandlers) GetTransaction(c fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid transaction ID")
	}

	record, err := h.persistence.TransactionByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetTransactionSteps(c fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid transaction ID")
	}

	entries, err := h.persistence.StepsByTransaction(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"steps": entries})
}

func (h *APIHandlers) StartApplication(c fiber.Ctx) error {
	if err := h.applications.StartApplication(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) StopApplication(c fiber.Ctx) error {
	if err := h.applications.StopApplication(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck := "ok"
	status := fiber.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		repositoryCheck = err.Error()
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"checkers": fiber.Map{
			"repository":   repositoryCheck,
			"integrations": len(h.manager.List()),
		},
		"timestamp": time.Now().UTC(),
	})
}
