// Package directory exposes the agency and user directory to the rest of the
// application: active agents for assignment, agency settings for intake
// behavior, and user lookups for the permission guard.
package directory

import (
	apphttp "estatedesk_backend/internal/http"

	"estatedesk_backend/internal/directory/repository"
	"estatedesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	repo    *repository.Repository
	handler *Handler
}

func NewModule(pool *pgxpool.Pool, log *logger.Logger) *Module {
	repo := repository.New(pool)
	return &Module{
		repo:    repo,
		handler: NewHandler(repo, log),
	}
}

func (m *Module) Name() string { return "directory" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/directory")
	group.GET("/agents", m.handler.ListAgents)
	group.GET("/users", m.handler.ListUsers)
	group.GET("/agency", m.handler.GetAgency)
}

// Repository exposes the directory reads for other modules (assignment,
// guard, notification fan-out).
func (m *Module) Repository() *repository.Repository { return m.repo }
