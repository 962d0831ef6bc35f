package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/integra/pkg/modules"
)

// NewModules registers the core module and the plugins found in pluginsPath. A missing plugin
// directory is not an error.
func NewModules(logger *slog.Logger, pluginsPath string, scriptTimeout time.Duration) (*modules.Registry, error) {
	registry := modules.NewRegistry(logger, modules.WithScriptTimeout(scriptTimeout))

	if err := registry.Load(modules.Core(logger)); err != nil {
		return nil, err
	}

	if pluginsPath == "" {
		return registry, nil
	}

	if _, err := os.Stat(pluginsPath); errors.Is(err, fs.ErrNotExist) {
		logger.Info("Plugins path not found, skipping", "path", pluginsPath)

		return registry, nil
	}

	if err := registry.LoadPlugins(pluginsPath); err != nil {
		return nil, err
	}

	return registry, nil
}
