package modules

import (
	"context"
	"log/slog"

	"github.com/dukex/integra/pkg/models"
)

// CoreModuleID names the module holding the built-in processors.
const CoreModuleID = "core"

type coreModule struct {
	logger *slog.Logger
}

// Core returns the built-in module:
//   - log: logs the transaction message
//   - set_property: copies the "properties" object of the integration config into the
//     transaction properties
func Core(logger *slog.Logger) Module {
	return &coreModule{logger: logger.With("module", "core")}
}

func (c *coreModule) ID() string { return CoreModuleID }

func (c *coreModule) Processors() map[string]Processor {
	return map[string]Processor{
		"log":          ProcessorFunc(c.log),
		"set_property": ProcessorFunc(setProperty),
	}
}

func (c *coreModule) log(ctx context.Context, tx *models.Transaction) error {
	c.logger.InfoContext(ctx, "Transaction message",
		"integration_id", tx.IntegrationID,
		"transaction_id", tx.ID,
		"step_id", tx.CurrentStep,
		"message", tx.Message,
	)

	return nil
}

func setProperty(_ context.Context, tx *models.Transaction) error {
	config, ok := tx.IntegrationConfig.(map[string]any)
	if !ok {
		return nil
	}

	properties, ok := config["properties"].(map[string]any)
	if !ok {
		return nil
	}

	for k, v := range properties {
		tx.SetProperty(k, v)
	}

	return nil
}
