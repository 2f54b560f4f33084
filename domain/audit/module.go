package audit

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/opennotes-ai/opennotes-server/internal/config"
)

// Module provides the audit-log lifecycle (C12): a bounded async persist pool, the
// request-auditing Echo middleware, and metrics — wired the same way domain/tracing
// wires its Echo middleware via fx.Invoke rather than a route group.
var Module = fx.Module("audit",
	fx.Provide(
		NewRepository,
		newPool,
		NewService,
	),
	fx.Invoke(registerLifecycle, RegisterEchoMiddleware),
)

func newPool(log *slog.Logger) *Pool {
	return NewPool(DefaultPoolWorkers, DefaultQueueSize, log)
}

// registerLifecycle starts the service's pool on app start and drains it on app stop.
func registerLifecycle(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			svc.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return svc.Stop(ctx)
		},
	})
}

// RegisterEchoMiddleware installs the audit middleware globally, ahead of route
// handlers, mirroring domain/tracing.RegisterEchoMiddleware.
func RegisterEchoMiddleware(e *echo.Echo, svc *Service, cfg *config.Config) {
	e.Use(Middleware(svc, cfg))
}
