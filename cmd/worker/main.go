package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"estatedesk_backend/internal/directory"
	"estatedesk_backend/internal/email"
	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads"
	"estatedesk_backend/internal/notification"
	"estatedesk_backend/internal/scheduler"
	"estatedesk_backend/internal/sms"
	"estatedesk_backend/internal/webhook"
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

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	phone.SetDefaultRegion(cfg.GetPhoneDefaultRegion())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	directoryModule := directory.NewModule(pool, log)
	// Documents stay metadata-only on the worker; no storage client needed.
	leadsModule := leads.NewModule(pool, directoryModule.Repository(), eventBus, nil, val, cfg, log)

	// The worker runs the same notification handlers as the API so events
	// published during job handling (re-scores, no-shows, due reminders)
	// produce the same messages.
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

	emitter := webhook.NewEmitter(cfg, log)
	emitter.RegisterSubscribers(eventBus)

	jobs, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = jobs.Close() }()

	dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	// Zero intervals pick up the package defaults.
	go scheduler.NewNoShowSweeper(leadsModule.Scheduling(), jobs, log, 0).Run(ctx)
	go scheduler.NewReminderSweeper(leadsModule.Repository(), eventBus, log, 0).Run(ctx)

	worker, err := scheduler.NewWorker(cfg, eventBus, leadsModule.Lifecycle(), leadsModule.Repository(), emitter, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
