// Package protocol defines the contracts between the engine core and its collaborators.
package protocol

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/integra/pkg/models"
)

var (
	// ErrModuleNotFound is returned when a processor or script is not loaded.
	ErrModuleNotFound = errors.New("module not found")

	// ErrEndpointNotFound is returned when an endpoint ID is unknown.
	ErrEndpointNotFound = errors.New("endpoint not found")
)

// IDGenerator hands out cluster-unique, increasing identifiers.
type IDGenerator interface {
	NextID() (uint64, error)
}

// LockStore is a shared mutual-exclusion store with lease semantics. Leases expire on their
// own; callers are not required to release them.
type LockStore interface {
	// TryAcquire claims key for lease. It returns false when another owner holds it.
	TryAcquire(ctx context.Context, key string, lease time.Duration) (bool, error)
}

// EndpointStatus describes the runtime state behind an endpoint.
type EndpointStatus struct {
	ApplicationID      string
	ApplicationRunning bool
	Connected          bool
	Direction          models.Direction
}

// Available reports whether messages can flow through the endpoint.
func (s EndpointStatus) Available() bool {
	return s.ApplicationRunning && s.Connected
}

// Endpoints gives the engine access to applications, their connections and endpoints.
type Endpoints interface {
	// Status returns the state of the application and connection owning the endpoint.
	Status(ctx context.Context, endpointID string) (EndpointStatus, error)

	// Bind attaches an integration to an endpoint. Binding twice is a no-op.
	Bind(ctx context.Context, endpointID, integrationID string) error

	// Unbind detaches an integration from an endpoint. Unbinding an unbound pair is a no-op.
	Unbind(ctx context.Context, endpointID, integrationID string) error

	// IsBound reports whether the integration is attached to the endpoint.
	IsBound(endpointID, integrationID string) bool

	// CallOutbound sends message through the endpoint and returns the reply.
	CallOutbound(ctx context.Context, endpointID, integrationID string, message any) (any, error)
}

// Modules runs user code registered with the engine.
type Modules interface {
	// RunProcessor runs a registered processor against the transaction, synchronously.
	RunProcessor(ctx context.Context, moduleID, processor string, tx *models.Transaction) error

	// RunScript runs a registered script. Async scripts signal completion later; the call
	// still blocks until then.
	RunScript(ctx context.Context, scriptID string, tx *models.Transaction, async bool) (*models.Transaction, error)
}
