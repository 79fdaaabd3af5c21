package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"estatedesk_backend/internal/directory"
	"estatedesk_backend/internal/email"
	"estatedesk_backend/internal/events"
	apphttp "estatedesk_backend/internal/http"
	"estatedesk_backend/internal/http/router"
	"estatedesk_backend/internal/leads"
	"estatedesk_backend/internal/notification"
	"estatedesk_backend/internal/scheduler"
	"estatedesk_backend/internal/sms"
	"estatedesk_backend/internal/storage"
	"estatedesk_backend/internal/webhook"
	"estatedesk_backend/migrations"
	"estatedesk_backend/platform/config"
	"estatedesk_backend/platform/db"
	"estatedesk_backend/platform/logger"
	"estatedesk_backend/platform/phone"
	"estatedesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	phone.SetDefaultRegion(cfg.GetPhoneDefaultRegion())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Object storage for lead documents. Optional: without MinIO the document
	// endpoints degrade to metadata-only.
	var docStorage *storage.MinIOService
	if cfg.IsMinIOEnabled() {
		docStorage, err = storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure lead documents bucket", 5, 2*time.Second, func() error {
			return docStorage.EnsureBucketExists(ctx, cfg.GetMinioBucketLeadDocuments())
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketLeadDocuments())
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		log.Info("storage service initialized", "leadDocumentsBucket", cfg.GetMinioBucketLeadDocuments())
	} else {
		log.Warn("MINIO_ENDPOINT not configured; document uploads disabled")
	}

	// Task queue client. Optional: without Redis the deferred jobs (bulk
	// export) are unavailable while intake and the rest of the API still work.
	jobs, closeJobs := initSchedulerClient(cfg, log)
	if closeJobs != nil {
		defer closeJobs()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	directoryModule := directory.NewModule(pool, log)
	leadsModule := leads.NewModule(pool, directoryModule.Repository(), eventBus, docStorage, val, cfg, log)

	// Notification module subscribes to domain events and serves the in-app feed
	notificationModule := notification.NewModule(
		pool,
		directoryModule.Repository(),
		directoryModule.Repository(),
		leadsModule.Repository(),
		email.NewSender(cfg),
		sms.NewClient(cfg, log),
		cfg,
		log,
	)
	notificationModule.RegisterHandlers(eventBus)

	// The webhook module registers the outbound emitter on the bus itself.
	webhookModule := webhook.NewModule(pool, leadsModule.Lifecycle(), leadsModule.Scheduling(), leadsModule.Repository(), eventBus, cfg, val, log)
	if jobs != nil {
		webhookModule.SetExportEnqueuer(jobs)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadsModule,
			directoryModule,
			notificationModule,
			webhookModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initSchedulerClient(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; deferred jobs disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
