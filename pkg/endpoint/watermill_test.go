package endpoint_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/integra/pkg/channels/gochannel"
	"github.com/dukex/integra/pkg/endpoint"
	"github.com/dukex/integra/pkg/faults"
)

func TestWatermill_PublishAndSubscribe(t *testing.T) {
	t.Parallel()

	pubSub := gochannel.CreateChannel(watermill.NopLogger{}, false)
	defer pubSub.Close()

	sub := &endpoint.Subscriber{Topic: "orders", Subscriber: pubSub, Logger: slog.Default()}

	var (
		mu       sync.Mutex
		received []any
		attempts int
	)

	stop, err := sub.Listen(context.Background(), "orders-sync", func(_ context.Context, message any) error {
		mu.Lock()
		defer mu.Unlock()

		attempts++
		if attempts == 1 {
			return faults.Retryable(errors.New("busy"))
		}

		received = append(received, message)

		return nil
	})
	require.NoError(t, err)

	pub := &endpoint.Publisher{EndpointID: "orders-out", Topic: "orders", Publisher: pubSub}

	reply, err := pub.Call(context.Background(), "orders-sync", map[string]any{"id": "A1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "A1"}, reply)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []any{map[string]any{"id": "A1"}}, received)
	assert.Equal(t, 2, attempts)
	mu.Unlock()

	require.NoError(t, stop())
}
