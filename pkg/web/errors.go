package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/integra/pkg/endpoint"
	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/integration"
	"github.com/dukex/integra/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps engine errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, integration.ErrIntegrationNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("integration_not_found").
			WithDetail("integration not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case persistence.IsTransactionNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("transaction_not_found").
			WithDetail("transaction not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, endpoint.ErrApplicationNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("application_not_found").
			WithDetail("application not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, integration.ErrProbeNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("probe_not_found").
			WithDetail("probe session not found or finished")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, integration.ErrConditionNotMet):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("condition_not_met").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case faults.IsState(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case faults.IsConfiguration(err):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
