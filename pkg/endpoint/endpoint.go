// Package endpoint keeps the applications, connections and endpoints integrations talk to.
package endpoint

import (
	"context"
	"errors"

	"github.com/dukex/integra/pkg/models"
)

var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrEndpointExists      = errors.New("endpoint already registered")
	ErrNotOutbound         = errors.New("endpoint is not outbound")
	ErrNotBound            = errors.New("integration is not bound to endpoint")
	ErrNoHandler           = errors.New("endpoint has no handler")
	ErrNoTriggerer         = errors.New("no triggerer configured")
)

// Application owns connections. Endpoints only carry messages while their application runs.
type Application struct {
	ID      string
	Running bool
}

// Connection links an application to an external system.
type Connection struct {
	ID            string
	ApplicationID string
	Connected     bool
}

// Endpoint is one message entry or exit point of a connection. Outbound endpoints need an
// Outbound handler; inbound ones need an Inbound source.
type Endpoint struct {
	ID           string
	ConnectionID string
	Direction    models.Direction
	Outbound     Outbound
	Inbound      Inbound
}

// Outbound sends a message and returns the reply.
type Outbound interface {
	Call(ctx context.Context, integrationID string, message any) (any, error)
}

// Deliver hands an inbound message to the engine.
type Deliver func(ctx context.Context, message any) error

// Inbound feeds messages to a bound integration until the returned stop function is called.
type Inbound interface {
	Listen(ctx context.Context, integrationID string, deliver Deliver) (stop func() error, err error)
}

// Triggerer starts an instance of an integration with a message.
type Triggerer interface {
	Trigger(ctx context.Context, integrationID string, message any) (*models.Transaction, error)
}

// ApplicationListener is told when an application starts.
type ApplicationListener func(ctx context.Context, applicationID string)
