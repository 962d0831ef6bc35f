package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dukex/integra/pkg/faults"
)

const defaultHTTPTimeout = 30 * time.Second

var ErrHTTPStatus = errors.New("unexpected HTTP status")

// HTTPConfig configures an outbound HTTP endpoint.
type HTTPConfig struct {
	Name    string
	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration

	// Consecutive failures before the breaker opens and how long it stays open.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// HTTP is an outbound endpoint sending the message as a JSON body. Replies are decoded as
// JSON when possible, otherwise returned as a string.
type HTTP struct {
	config  HTTPConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTP(config HTTPConfig) *HTTP {
	if config.Method == "" {
		config.Method = http.MethodPost
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultHTTPTimeout
	}

	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}

	maxFailures := config.MaxFailures

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: 1,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// only retryable failures count towards tripping
		IsSuccessful: func(err error) bool {
			return err == nil || !faults.IsRetryable(err)
		},
	}

	return &HTTP{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State exposes the breaker state, mostly for health reporting.
func (h *HTTP) State() gobreaker.State {
	return h.breaker.State()
}

func (h *HTTP) Call(ctx context.Context, integrationID string, message any) (any, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	reply, err := h.breaker.Execute(func() (any, error) {
		return h.do(ctx, integrationID, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, faults.Retryable(fmt.Errorf("endpoint %s: %w", h.config.Name, err))
		}

		return nil, err
	}

	return reply, nil
}

func (h *HTTP) do(ctx context.Context, integrationID string, body []byte) (any, error) {
	req, err := http.NewRequestWithContext(ctx, h.config.Method, h.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Integration-Id", integrationID)

	for k, v := range h.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, faults.Retryable(fmt.Errorf("http request failed: %w", err))
	}

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, faults.Retryable(fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %d: %s", ErrHTTPStatus, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if len(data) == 0 {
		return nil, nil
	}

	var reply any
	if err := json.Unmarshal(data, &reply); err != nil {
		return string(data), nil //nolint:nilerr // non-JSON replies are passed through
	}

	return reply, nil
}
