// Package main provides the entry point for the OpenNotes-Server API server
//
// @title OpenNotes-Server API
// @version 0.1.0
// @description OpenNotes-Server - federated community-notes platform backend
// @contact.name OpenNotes Team
// @license.name Proprietary
// @host localhost:3002
// @BasePath /
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description OAuth 2.0 access token (format: "Bearer <token>")
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/opennotes-ai/opennotes-server/domain/audit"
	"github.com/opennotes-ai/opennotes-server/domain/batchjobs"
	"github.com/opennotes-ai/opennotes-server/domain/bulkscan"
	"github.com/opennotes-ai/opennotes-server/domain/chunking"
	"github.com/opennotes-ai/opennotes-server/domain/chunks"
	"github.com/opennotes-ai/opennotes-server/domain/health"
	"github.com/opennotes-ai/opennotes-server/domain/scheduler"
	"github.com/opennotes-ai/opennotes-server/domain/scoring"
	"github.com/opennotes-ai/opennotes-server/domain/search"
	"github.com/opennotes-ai/opennotes-server/domain/similarity"
	"github.com/opennotes-ai/opennotes-server/domain/tracing"
	"github.com/opennotes-ai/opennotes-server/domain/webhooks"
	"github.com/opennotes-ai/opennotes-server/domain/workflows"
	"github.com/opennotes-ai/opennotes-server/internal/config"
	"github.com/opennotes-ai/opennotes-server/internal/database"
	"github.com/opennotes-ai/opennotes-server/internal/server"
	"github.com/opennotes-ai/opennotes-server/internal/storage"
	"github.com/opennotes-ai/opennotes-server/pkg/auth"
	"github.com/opennotes-ai/opennotes-server/pkg/cache"
	"github.com/opennotes-ai/opennotes-server/pkg/circuitbreaker"
	"github.com/opennotes-ai/opennotes-server/pkg/embeddings"
	"github.com/opennotes-ai/opennotes-server/pkg/eventbus"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
	"github.com/opennotes-ai/opennotes-server/pkg/tokenbucket"
)

func main() {
	// Load .env files if present (for local development)
	// Order matters: .env.local overrides .env
	// Note: Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load("../../.env")
	_ = godotenv.Overload("../../.env.local") // Overload ensures local values take precedence

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		server.Module,
		storage.Module,
		tracing.Module,

		// Auth module
		auth.Module,

		// Embeddings module (provides embedding client)
		embeddings.Module,

		// Shared concurrency/transport primitives
		cache.Module,
		circuitbreaker.Module,
		eventbus.Module,
		tokenbucket.Module,

		// Scheduled-task infrastructure (batch job sweeps, cron-triggered workflows)
		scheduler.Module,

		// Domain modules
		health.Module,
		chunks.Module,
		chunking.Module,
		search.Module,
		similarity.Module,
		scoring.Module,
		bulkscan.Module,
		batchjobs.Module,
		workflows.Module,
		webhooks.Module,
		audit.Module,

		// The workflow orchestrator dispatches the work batchjobs/scoring/chunking
		// enqueue onto; *workflows.Service satisfies all three Dispatcher shapes
		// structurally, so bind it here rather than inside those packages, keeping them
		// independent of domain/workflows.
		fx.Provide(
			func(s *workflows.Service) batchjobs.Dispatcher { return s },
			func(s *workflows.Service) scoring.Dispatcher { return s },
			func(s *workflows.Service) chunking.EmbeddingDispatcher { return s },
		),
	).Run()
}
