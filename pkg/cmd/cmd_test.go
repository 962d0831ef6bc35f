package cmd_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/integra/pkg/channels/kafka"
	"github.com/dukex/integra/pkg/cmd"
	"github.com/dukex/integra/pkg/endpoint"
	"github.com/dukex/integra/pkg/lock"
	"github.com/dukex/integra/pkg/modules"
	"github.com/dukex/integra/pkg/persistence/file"
)

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	p, err := cmd.NewPersistence(context.Background(), slog.Default(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, p)

	_, err = cmd.NewPersistence(context.Background(), slog.Default(), "mongodb://localhost")
	require.ErrorIs(t, err, cmd.ErrUnsupportedScheme)

	_, err = cmd.NewPersistence(context.Background(), slog.Default(), "/no/scheme")
	assert.ErrorIs(t, err, cmd.ErrUnsupportedScheme)
}

func TestNewLockStore(t *testing.T) {
	t.Parallel()

	for _, url := range []string{"", "memory://"} {
		store, err := cmd.NewLockStore(context.Background(), slog.Default(), url)
		require.NoError(t, err)
		assert.IsType(t, &lock.MemoryStore{}, store)
	}

	_, err := cmd.NewLockStore(context.Background(), slog.Default(), "etcd://localhost:2379")
	assert.ErrorIs(t, err, cmd.ErrUnsupportedScheme)
}

func TestNewChannel(t *testing.T) {
	t.Parallel()

	pub, sub, err := cmd.NewChannel("gochannel", slog.Default(), kafka.Config{})
	require.NoError(t, err)
	assert.Same(t, pub, sub)
	require.NoError(t, pub.Close())

	_, _, err = cmd.NewChannel("kafka", slog.Default(), kafka.Config{})
	require.ErrorIs(t, err, kafka.ErrNoBrokers)

	_, _, err = cmd.NewChannel("nats", slog.Default(), kafka.Config{})
	assert.ErrorIs(t, err, cmd.ErrUnsupportedScheme)
}

func TestNewModules(t *testing.T) {
	t.Parallel()

	registry, err := cmd.NewModules(slog.Default(), filepath.Join(t.TempDir(), "missing"), modules.DefaultScriptTimeout)
	require.NoError(t, err)
	assert.Equal(t, []string{"core"}, registry.Modules())
}

const endpointsYAML = `
applications:
  - id: crm
    running: true
    connections:
      - id: crm-api
        connected: true
        endpoints:
          - id: contacts-out
            direction: outbound
            kind: http
            url: http://crm.local/contacts
            timeout: 5s
          - id: contacts-in
            direction: inbound
            kind: topic
            topic: crm.contacts
  - id: erp
    connections:
      - id: erp-bus
        connected: true
        endpoints:
          - id: invoices-out
            direction: outbound
            kind: topic
            topic: erp.invoices
`

func TestEndpointsConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte(endpointsYAML), 0o600))

	validate := validator.New(validator.WithRequiredStructEnabled())

	config, err := cmd.ReadEndpointsConfig(path, validate)
	require.NoError(t, err)
	require.Len(t, config.Applications, 2)

	ctx := context.Background()
	pub, sub, err := cmd.NewChannel("gochannel", slog.Default(), kafka.Config{})
	require.NoError(t, err)

	defer pub.Close()

	registry := endpoint.NewRegistry(slog.Default())
	require.NoError(t, cmd.RegisterEndpoints(ctx, slog.Default(), config, registry, pub, sub))

	status, err := registry.Status(ctx, "contacts-out")
	require.NoError(t, err)
	assert.True(t, status.Available())

	status, err = registry.Status(ctx, "invoices-out")
	require.NoError(t, err)
	assert.False(t, status.ApplicationRunning)

	bad := &cmd.EndpointsConfig{Applications: []cmd.ApplicationConfig{{
		ID: "x",
		Connections: []cmd.ConnectionConfig{{
			ID:        "c",
			Endpoints: []cmd.EndpointConfig{{ID: "e", Direction: "inbound", Kind: "http", URL: "http://x"}},
		}},
	}}}
	err = cmd.RegisterEndpoints(ctx, slog.Default(), bad, endpoint.NewRegistry(slog.Default()), pub, sub)
	assert.ErrorIs(t, err, cmd.ErrInboundHTTP)

	require.NoError(t, os.WriteFile(path, []byte("applications:\n  - id: ''\n"), 0o600))
	_, err = cmd.ReadEndpointsConfig(path, validate)
	assert.Error(t, err)
}
