package migration

import (
	"context"
	"log/slog"

	"github.com/example/scope-migrator/internal/logging"
)

func operationLogger(ctx context.Context, base *slog.Logger, scope, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"component", "migrator", "scope", scope}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}
