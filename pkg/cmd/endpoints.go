package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dukex/integra/pkg/endpoint"
	"github.com/dukex/integra/pkg/models"
)

var ErrInboundHTTP = errors.New("http endpoints can only be outbound")

// EndpointsConfig is the application/connection/endpoint topology of an engine node.
type EndpointsConfig struct {
	Applications []ApplicationConfig `yaml:"applications" validate:"dive"`
}

type ApplicationConfig struct {
	ID          string             `yaml:"id"          validate:"required"`
	Running     bool               `yaml:"running"`
	Connections []ConnectionConfig `yaml:"connections" validate:"dive"`
}

type ConnectionConfig struct {
	ID        string           `yaml:"id"        validate:"required"`
	Connected bool             `yaml:"connected"`
	Endpoints []EndpointConfig `yaml:"endpoints" validate:"dive"`
}

type EndpointConfig struct {
	ID        string           `yaml:"id"        validate:"required"`
	Direction models.Direction `yaml:"direction" validate:"required,oneof=inbound outbound"`
	Kind      string           `yaml:"kind"      validate:"required,oneof=http topic"`

	// http
	URL         string            `yaml:"url"          validate:"required_if=Kind http"`
	Method      string            `yaml:"method"`
	Headers     map[string]string `yaml:"headers"`
	Timeout     time.Duration     `yaml:"timeout"`
	MaxFailures uint32            `yaml:"max_failures"`
	OpenTimeout time.Duration     `yaml:"open_timeout"`

	// topic
	Topic string `yaml:"topic" validate:"required_if=Kind topic"`
}

func ReadEndpointsConfig(path string, validate *validator.Validate) (*EndpointsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoints config: %w", err)
	}

	var config EndpointsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse endpoints config: %w", err)
	}

	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid endpoints config: %w", err)
	}

	return &config, nil
}

// RegisterEndpoints builds the topology of config into registry. Topic endpoints use
// publisher and subscriber; applications marked running are started.
func RegisterEndpoints(
	ctx context.Context,
	logger *slog.Logger,
	config *EndpointsConfig,
	registry *endpoint.Registry,
	publisher message.Publisher,
	subscriber message.Subscriber,
) error {
	for _, app := range config.Applications {
		registry.AddApplication(app.ID)

		for _, conn := range app.Connections {
			if err := registry.AddConnection(conn.ID, app.ID, conn.Connected); err != nil {
				return err
			}

			for _, ec := range conn.Endpoints {
				e, err := buildEndpoint(logger, conn.ID, ec, publisher, subscriber)
				if err != nil {
					return err
				}

				if err := registry.AddEndpoint(e); err != nil {
					return err
				}
			}
		}
	}

	for _, app := range config.Applications {
		if !app.Running {
			continue
		}

		if err := registry.StartApplication(ctx, app.ID); err != nil {
			return err
		}
	}

	return nil
}

func buildEndpoint(
	logger *slog.Logger,
	connectionID string,
	ec EndpointConfig,
	publisher message.Publisher,
	subscriber message.Subscriber,
) (endpoint.Endpoint, error) {
	e := endpoint.Endpoint{
		ID:           ec.ID,
		ConnectionID: connectionID,
		Direction:    ec.Direction,
	}

	switch {
	case ec.Kind == "http" && ec.Direction == models.DirectionInbound:
		return e, fmt.Errorf("%w: %s", ErrInboundHTTP, ec.ID)
	case ec.Kind == "http":
		e.Outbound = endpoint.NewHTTP(endpoint.HTTPConfig{
			Name:        ec.ID,
			URL:         ec.URL,
			Method:      ec.Method,
			Headers:     ec.Headers,
			Timeout:     ec.Timeout,
			MaxFailures: ec.MaxFailures,
			OpenTimeout: ec.OpenTimeout,
		})
	case ec.Direction == models.DirectionInbound:
		e.Inbound = &endpoint.Subscriber{
			Topic:      ec.Topic,
			Subscriber: subscriber,
			Logger:     logger.With("endpoint_id", ec.ID),
		}
	default:
		e.Outbound = &endpoint.Publisher{
			EndpointID: ec.ID,
			Topic:      ec.Topic,
			Publisher:  publisher,
		}
	}

	return e, nil
}
