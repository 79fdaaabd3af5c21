// Package leads wires the lead lifecycle bounded context: repository,
// assignment engine, scorer, permission guard, visit scheduling, and the
// HTTP surface. Other modules interact with leads through the event bus or
// the services exposed here, never through its internals.
package leads

import (
	directoryrepo "estatedesk_backend/internal/directory/repository"
	"estatedesk_backend/internal/events"
	apphttp "estatedesk_backend/internal/http"
	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/adapters"
	"estatedesk_backend/internal/leads/assignment"
	"estatedesk_backend/internal/leads/handler"
	"estatedesk_backend/internal/leads/repository"
	"estatedesk_backend/internal/leads/scheduling"
	"estatedesk_backend/internal/leads/scoring"
	"estatedesk_backend/internal/leads/service"
	"estatedesk_backend/internal/storage"
	"estatedesk_backend/platform/config"
	"estatedesk_backend/platform/logger"
	"estatedesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler   *handler.Handler
	repo      *repository.Repository
	lifecycle *service.Service
	visits    *scheduling.Service
}

// NewModule creates and initializes the leads module with all its
// dependencies. docs may be nil when object storage is not configured;
// documents then degrade to metadata-only.
func NewModule(pool *pgxpool.Pool, directory *directoryrepo.Repository, bus events.Bus, docs *storage.MinIOService, val *validator.Validator, cfg *config.Config, log *logger.Logger) *Module {
	repo := repository.New(pool)

	dirAdapter := adapters.NewDirectoryAdapter(directory)
	engine := assignment.New(dirAdapter, repo, repo, adapters.NewPropertyAdapter(directory), log)
	scorer := scoring.New(repo, log)
	guard := access.NewEvaluator(nil)

	// A nil *MinIOService must stay a nil interface value, otherwise the
	// document endpoints would see a non-nil Storage and call through it.
	var docStorage service.Storage
	if docs != nil {
		docStorage = docs
	}

	lifecycle := service.New(repo, dirAdapter, engine, scorer, guard, bus, docStorage, cfg.GetMinioBucketLeadDocuments(), cfg.GetFirstContactSLA(), log)
	visits := scheduling.New(repo, lifecycle, guard, bus, log)

	return &Module{
		handler:   handler.New(lifecycle, visits, val),
		repo:      repo,
		lifecycle: lifecycle,
		visits:    visits,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Lifecycle returns the lead lifecycle service for workers and sibling
// modules (webhook intake, scheduled re-scoring).
func (m *Module) Lifecycle() *service.Service {
	return m.lifecycle
}

// Scheduling returns the visit scheduling service; the worker's overdue
// sweep runs through it.
func (m *Module) Scheduling() *scheduling.Service {
	return m.visits
}

// Repository returns the leads repository for workers that read lead state
// directly (reminder sweep, exports).
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts leads routes on the provided router context.
// All lead routes require authentication.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leadsGroup := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leadsGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
