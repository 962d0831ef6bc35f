package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/integra/pkg/lock"
	"github.com/dukex/integra/pkg/protocol"
)

var ErrUnsupportedScheme = errors.New("unsupported scheme")

// NewLockStore picks the lease store by URL scheme. memory:// (or an empty URL) only
// arbitrates between schedulers of the same process.
func NewLockStore(ctx context.Context, logger *slog.Logger, lockURL string) (protocol.LockStore, error) {
	if lockURL == "" {
		return lock.NewMemoryStore(), nil
	}

	switch scheme(lockURL) {
	case "memory":
		return lock.NewMemoryStore(), nil
	case "redis", "rediss":
		store, err := lock.NewRedisStore(ctx, logger, lockURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: unsupported lock URL %q (supported: memory://, redis://)", ErrUnsupportedScheme, lockURL)
	}
}
