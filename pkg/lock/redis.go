package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps leases in redis with SET NX PX. The value is the owner token of the engine.
type RedisStore struct {
	client redis.UniversalClient
	owner  string
	logger *slog.Logger
}

// NewRedisStore connects to the redis server at url (redis://[:password@]host:port/db).
func NewRedisStore(ctx context.Context, logger *slog.Logger, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisStoreWithClient(client, logger)
	store.logger.InfoContext(ctx, "Connected to Redis lock store", "addr", opts.Addr, "db", opts.DB)

	return store, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		owner:  uuid.NewString(),
		logger: logger.With("module", "redis_lock"),
	}
}

// TryAcquire sets the lease key only when absent.
func (s *RedisStore) TryAcquire(ctx context.Context, name string, d time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key(name), s.owner, d).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}

	s.logger.DebugContext(ctx, "Lease attempt", "key", name, "acquired", ok)

	return ok, nil
}

// Owner returns the token stored in leases held by this store.
func (s *RedisStore) Owner() string {
	return s.owner
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
