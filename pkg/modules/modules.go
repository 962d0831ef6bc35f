// Package modules holds the user code an integration runs: processors grouped by module and
// standalone scripts.
package modules

import (
	"context"
	"errors"

	"github.com/dukex/integra/pkg/models"
)

var (
	ErrProcessorExists   = errors.New("processor already registered")
	ErrProcessorNotFound = errors.New("processor not registered")
	ErrScriptExists      = errors.New("script already registered")
	ErrInvalidModule     = errors.New("invalid module")
	ErrScriptTimeout     = errors.New("script timed out")
)

// Processor transforms a transaction in place.
type Processor interface {
	Process(ctx context.Context, tx *models.Transaction) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, tx *models.Transaction) error

func (f ProcessorFunc) Process(ctx context.Context, tx *models.Transaction) error {
	return f(ctx, tx)
}

// CompleteFunc reports the result of an asynchronous script. Only the first call counts.
type CompleteFunc func(result *models.Transaction, err error)

// Script runs against a transaction. A synchronous script returns its result; an asynchronous
// one returns (nil, nil) and calls complete later, from any goroutine.
type Script interface {
	Run(ctx context.Context, tx *models.Transaction, complete CompleteFunc) (*models.Transaction, error)
}

// ScriptFunc adapts a function to Script.
type ScriptFunc func(ctx context.Context, tx *models.Transaction, complete CompleteFunc) (*models.Transaction, error)

func (f ScriptFunc) Run(ctx context.Context, tx *models.Transaction, complete CompleteFunc) (*models.Transaction, error) {
	return f(ctx, tx, complete)
}

// Module is a named set of processors, the unit that is loaded and unloaded together.
// Plugins export it under the symbol "Module".
type Module interface {
	ID() string
	Processors() map[string]Processor
}
