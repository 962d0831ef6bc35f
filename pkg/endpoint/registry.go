package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/protocol"
)

// Registry is the in-process endpoint layer of an engine node.
type Registry struct {
	logger *slog.Logger

	mu           sync.RWMutex
	applications map[string]*Application
	connections  map[string]*Connection
	endpoints    map[string]*Endpoint
	// endpoint id -> integration id -> stop function of the inbound subscription (nil for outbound)
	bindings  map[string]map[string]func() error
	listeners []ApplicationListener
	triggerer Triggerer
}

var _ protocol.Endpoints = (*Registry)(nil)

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:       logger.With("module", "endpoint"),
		applications: make(map[string]*Application),
		connections:  make(map[string]*Connection),
		endpoints:    make(map[string]*Endpoint),
		bindings:     make(map[string]map[string]func() error),
	}
}

// SetTriggerer sets where inbound messages go. It is usually the integration manager.
func (r *Registry) SetTriggerer(t Triggerer) {
	r.mu.Lock()
	r.triggerer = t
	r.mu.Unlock()
}

// OnApplicationStarted registers a listener run after every StartApplication.
func (r *Registry) OnApplicationStarted(l ApplicationListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

func (r *Registry) AddApplication(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.applications[id]; !ok {
		r.applications[id] = &Application{ID: id}
	}
}

func (r *Registry) AddConnection(id, applicationID string, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.applications[applicationID]; !ok {
		return fmt.Errorf("%w: %s", ErrApplicationNotFound, applicationID)
	}

	r.connections[id] = &Connection{ID: id, ApplicationID: applicationID, Connected: connected}

	return nil
}

func (r *Registry) AddEndpoint(e Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[e.ConnectionID]; !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, e.ConnectionID)
	}

	if _, ok := r.endpoints[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrEndpointExists, e.ID)
	}

	r.endpoints[e.ID] = &e

	return nil
}

func (r *Registry) SetConnected(connectionID string, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.connections[connectionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}

	c.Connected = connected

	return nil
}

// StartApplication marks the application running and notifies listeners, which rebind the
// integrations using its endpoints.
func (r *Registry) StartApplication(ctx context.Context, applicationID string) error {
	r.mu.Lock()

	app, ok := r.applications[applicationID]
	if !ok {
		r.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrApplicationNotFound, applicationID)
	}

	app.Running = true
	listeners := append([]ApplicationListener(nil), r.listeners...)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Application started", "application_id", applicationID)

	for _, l := range listeners {
		l(ctx, applicationID)
	}

	return nil
}

// StopApplication marks the application stopped. Bindings are kept.
func (r *Registry) StopApplication(ctx context.Context, applicationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[applicationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrApplicationNotFound, applicationID)
	}

	app.Running = false
	r.logger.InfoContext(ctx, "Application stopped", "application_id", applicationID)

	return nil
}

func (r *Registry) Status(_ context.Context, endpointID string) (protocol.EndpointStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[endpointID]
	if !ok {
		return protocol.EndpointStatus{}, fmt.Errorf("%w: %s", protocol.ErrEndpointNotFound, endpointID)
	}

	status := protocol.EndpointStatus{Direction: e.Direction}

	if c, ok := r.connections[e.ConnectionID]; ok {
		status.Connected = c.Connected
		status.ApplicationID = c.ApplicationID

		if app, ok := r.applications[c.ApplicationID]; ok {
			status.ApplicationRunning = app.Running
		}
	}

	return status, nil
}

func (r *Registry) Bind(ctx context.Context, endpointID, integrationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.endpoints[endpointID]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrEndpointNotFound, endpointID)
	}

	if _, bound := r.bindings[endpointID][integrationID]; bound {
		return nil
	}

	var stop func() error

	if e.Direction == models.DirectionInbound {
		if e.Inbound == nil {
			return fmt.Errorf("%w: %s", ErrNoHandler, endpointID)
		}

		var err error

		stop, err = e.Inbound.Listen(ctx, integrationID, r.deliverTo(integrationID))
		if err != nil {
			return fmt.Errorf("failed to listen on endpoint %s: %w", endpointID, err)
		}
	}

	if r.bindings[endpointID] == nil {
		r.bindings[endpointID] = make(map[string]func() error)
	}

	r.bindings[endpointID][integrationID] = stop
	r.logger.InfoContext(ctx, "Endpoint bound", "endpoint_id", endpointID, "integration_id", integrationID)

	return nil
}

func (r *Registry) Unbind(ctx context.Context, endpointID, integrationID string) error {
	r.mu.Lock()
	stop, bound := r.bindings[endpointID][integrationID]

	if bound {
		delete(r.bindings[endpointID], integrationID)
	}
	r.mu.Unlock()

	if !bound {
		return nil
	}

	r.logger.InfoContext(ctx, "Endpoint unbound", "endpoint_id", endpointID, "integration_id", integrationID)

	if stop != nil {
		return stop()
	}

	return nil
}

func (r *Registry) IsBound(endpointID, integrationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, bound := r.bindings[endpointID][integrationID]

	return bound
}

func (r *Registry) CallOutbound(ctx context.Context, endpointID, integrationID string, message any) (any, error) {
	r.mu.RLock()
	e, ok := r.endpoints[endpointID]
	_, bound := r.bindings[endpointID][integrationID]
	r.mu.RUnlock()

	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %s", protocol.ErrEndpointNotFound, endpointID)
	case e.Direction != models.DirectionOutbound:
		return nil, fmt.Errorf("%w: %s", ErrNotOutbound, endpointID)
	case !bound:
		return nil, fmt.Errorf("%w: %s/%s", ErrNotBound, endpointID, integrationID)
	case e.Outbound == nil:
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, endpointID)
	}

	return e.Outbound.Call(ctx, integrationID, message)
}

// Close stops every inbound subscription.
func (r *Registry) Close() error {
	r.mu.Lock()
	bindings := r.bindings
	r.bindings = make(map[string]map[string]func() error)
	r.mu.Unlock()

	var errs []error

	for _, integrations := range bindings {
		for _, stop := range integrations {
			if stop != nil {
				errs = append(errs, stop())
			}
		}
	}

	return errors.Join(errs...)
}

func (r *Registry) deliverTo(integrationID string) Deliver {
	return func(ctx context.Context, message any) error {
		r.mu.RLock()
		t := r.triggerer
		r.mu.RUnlock()

		if t == nil {
			return ErrNoTriggerer
		}

		_, err := t.Trigger(ctx, integrationID, message)

		return err
	}
}
