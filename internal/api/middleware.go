package api

import (
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-scene/internal/ctxlog"
)

// Logger returns a Huma middleware that puts logger, tagged with the
// operation id, into the request context and logs each request.
func Logger(logger *slog.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		log := logger
		if op := ctx.Operation(); op != nil {
			log = log.With("op", op.OperationID)
		}
		start := time.Now()
		next(huma.WithContext(ctx, ctxlog.WithLogger(ctx.Context(), log)))
		log.Debug("request",
			"method", ctx.Method(),
			"path", ctx.URL().Path,
			"status", ctx.Status(),
			"duration", time.Since(start),
		)
	}
}
