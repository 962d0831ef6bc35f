package integration

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/models"
)

// Manager is the registry of integrations of one engine.
type Manager struct {
	deps   Dependencies
	logger *slog.Logger

	mu           sync.RWMutex
	integrations map[string]*Integration
}

func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Manager{
		deps:         deps,
		logger:       deps.Logger.With("module", "integration_manager"),
		integrations: make(map[string]*Integration),
	}
}

// Register creates an integration from def. The integration starts stopped.
func (m *Manager) Register(def *models.Definition) (*Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.integrations[def.ID]; ok {
		return nil, faults.State("Register", def.ID, ErrIntegrationExists)
	}

	integration, err := New(def, m.deps)
	if err != nil {
		return nil, err
	}

	m.integrations[def.ID] = integration
	m.logger.Info("Integration registered", "integration_id", def.ID)

	return integration, nil
}

func (m *Manager) Get(id string) (*Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	integration, ok := m.integrations[id]
	if !ok {
		return nil, faults.State("Get", id, ErrIntegrationNotFound)
	}

	return integration, nil
}

// List returns every integration ordered by ID.
func (m *Manager) List() []*Integration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Integration, 0, len(m.integrations))
	for _, integration := range m.integrations {
		list = append(list, integration)
	}

	slices.SortFunc(list, func(a, b *Integration) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return list
}

// Remove destroys and unregisters an integration. It fails while the integration runs.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	integration, ok := m.integrations[id]
	if !ok {
		return faults.State("Remove", id, ErrIntegrationNotFound)
	}

	if err := integration.Destroy(); err != nil {
		return err
	}

	delete(m.integrations, id)
	m.logger.Info("Integration removed", "integration_id", id)

	return nil
}

func (m *Manager) StartAll(ctx context.Context) error {
	var errs []error

	for _, integration := range m.List() {
		if err := integration.Start(ctx); err != nil {
			m.logger.ErrorContext(ctx, "Failed to start integration", "integration_id", integration.ID(), "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error

	for _, integration := range m.List() {
		if err := integration.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RebindApplication binds the endpoints of a newly started application to every running
// integration that uses them. Application startup calls it.
func (m *Manager) RebindApplication(ctx context.Context, applicationID string) {
	for _, integration := range m.List() {
		integration.Rebind(ctx, applicationID)
	}
}

// Trigger runs an instance of integration id for an inbound message.
func (m *Manager) Trigger(ctx context.Context, id string, message any) (*models.Transaction, error) {
	integration, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	return integration.Trigger(ctx, message)
}
