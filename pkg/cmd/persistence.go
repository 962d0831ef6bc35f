// Package cmd provides the factories shared by the command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/integra/pkg/persistence"
	"github.com/dukex/integra/pkg/persistence/file"
	"github.com/dukex/integra/pkg/persistence/postgresql"
)

// scheme returns the part of url before "://", or "" when there is none.
func scheme(url string) string {
	before, _, found := strings.Cut(url, "://")
	if !found {
		return ""
	}

	return strings.ToLower(before)
}

// NewPersistence picks the transaction log by URL scheme: file:// or postgres(ql)://.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch scheme(databaseURL) {
	case "file":
		return file.NewPersistence(databaseURL), nil
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: unsupported persistence URL %q (supported: file://, postgres://)", ErrUnsupportedScheme, databaseURL)
	}
}
