package webhook

import (
	"estatedesk_backend/internal/events"
	apphttp "estatedesk_backend/internal/http"
	"estatedesk_backend/internal/scheduler"
	"estatedesk_backend/platform/config"
	"estatedesk_backend/platform/logger"
	"estatedesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the inbound intake surface and the outbound emitter.
type Module struct {
	handler *Handler
	repo    *Repository
	emitter *Emitter
}

// NewModule wires the webhook bounded context and subscribes the outbound
// emitter to the event bus.
func NewModule(pool *pgxpool.Pool, intake LeadIntake, visits VisitBooker, recent RecentLeadFinder, bus events.Bus, cfg *config.Config, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	svc := NewService(intake, visits, recent, log)

	emitter := NewEmitter(cfg, log)
	emitter.RegisterSubscribers(bus)

	return &Module{
		handler: NewHandler(svc, repo, val),
		repo:    repo,
		emitter: emitter,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// Emitter exposes the outbound emitter for background export jobs.
func (m *Module) Emitter() *Emitter {
	return m.emitter
}

// SetExportEnqueuer wires the background export queue once the scheduler
// client exists. Until then the export endpoint answers 503.
func (m *Module) SetExportEnqueuer(exports scheduler.ExportEnqueuer) {
	m.handler.exports = exports
}

// RegisterRoutes mounts the public intake route and the admin key routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	public := ctx.Engine.Group("/public/webhook")
	if ctx.IntakeRateLimiter != nil {
		public.Use(ctx.IntakeRateLimiter.RateLimit())
	}
	public.Use(APIKeyAuth(m.repo))
	public.POST("/leads", m.handler.HandleIntake)

	keys := ctx.Admin.Group("/webhook/keys")
	keys.POST("", m.handler.HandleCreateAPIKey)
	keys.GET("", m.handler.HandleListAPIKeys)
	keys.DELETE("/:keyId", m.handler.HandleRevokeAPIKey)

	ctx.Admin.POST("/webhook/export", m.handler.HandleTriggerExport)
}

var _ apphttp.Module = (*Module)(nil)
