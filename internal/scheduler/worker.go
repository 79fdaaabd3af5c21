package scheduler

import (
	"context"
	"fmt"
	"time"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/config"
	"estatedesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

const (
	exportPageSize    = 100
	exportConcurrency = 4
)

// EventLeadExport names the envelope emitted per lead during a bulk export.
const EventLeadExport = "lead.export"

// Rescorer recomputes a lead's score without an acting user. Satisfied by
// *service.Service.
type Rescorer interface {
	RescoreAutomatic(ctx context.Context, leadID, agencyID uuid.UUID, reason string) error
}

// ExportSource pages an agency's leads by modification time. Satisfied by
// *repository.Repository.
type ExportSource interface {
	ListUpdatedSince(ctx context.Context, agencyID uuid.UUID, since time.Time, limit int) ([]domain.Lead, error)
}

// ExportSink delivers signed envelopes to the configured external endpoint.
// Satisfied by *webhook.Emitter.
type ExportSink interface {
	Enabled() bool
	Emit(ctx context.Context, eventName string, data, previous any) error
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	bus       events.Bus
	lifecycle Rescorer
	exports   ExportSource
	sink      ExportSink
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, lifecycle Rescorer, exports ExportSource, sink ExportSink, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		bus:       bus,
		lifecycle: lifecycle,
		exports:   exports,
		sink:      sink,
		log:       log,
	}

	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)
	mux.HandleFunc(TaskLeadRescore, w.handleLeadRescore)
	mux.HandleFunc(TaskWebhookExport, w.handleWebhookExport)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleNotificationOutboxDue replays the due record onto the bus so the
// notification module delivers it. Synchronous publish: a delivery failure
// must surface here for asynq to retry the task.
func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	agencyID, err := uuid.Parse(payload.AgencyID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
		AgencyID:  agencyID,
	})
}

func (w *Worker) handleLeadRescore(ctx context.Context, task *asynq.Task) error {
	if w.lifecycle == nil {
		return nil
	}

	payload, err := ParseLeadRescorePayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	agencyID, err := uuid.Parse(payload.AgencyID)
	if err != nil {
		return err
	}

	reason := payload.Reason
	if reason == "" {
		reason = "scheduled re-score"
	}

	if err := w.lifecycle.RescoreAutomatic(ctx, leadID, agencyID, reason); err != nil {
		// A lead deleted between enqueue and execution stays deleted;
		// retrying cannot change that.
		if apperr.Is(err, apperr.KindNotFound) {
			w.log.Warn("rescore target gone", "leadId", payload.LeadID)
			return nil
		}
		return err
	}
	return nil
}

// leadExportRow is the per-lead payload of an export envelope.
type leadExportRow struct {
	ID           uuid.UUID  `json:"id"`
	LeadNumber   string     `json:"leadNumber"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	Source       string     `json:"source"`
	AssignedTo   *uuid.UUID `json:"assignedTo,omitempty"`
	PropertyName string     `json:"propertyName,omitempty"`
	Score        int        `json:"score"`
	SLAStatus    string     `json:"slaStatus,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func exportRowFromLead(lead domain.Lead) leadExportRow {
	return leadExportRow{
		ID:           lead.ID,
		LeadNumber:   lead.LeadNumber,
		Name:         lead.Name,
		Email:        lead.Email,
		Phone:        lead.Phone,
		Status:       lead.Status,
		Priority:     lead.Priority,
		Source:       lead.Source,
		AssignedTo:   lead.AssignedTo,
		PropertyName: lead.PropertyName,
		Score:        lead.Score,
		SLAStatus:    lead.SLAStatus,
		CreatedAt:    lead.CreatedAt,
		UpdatedAt:    lead.UpdatedAt,
	}
}

// handleWebhookExport streams every lead modified since the payload instant
// to the external endpoint, one signed envelope per lead. Pages advance by
// the last row's UpdatedAt; the boundary row repeats across pages, so
// receivers see at-least-once delivery keyed by lead id.
func (w *Worker) handleWebhookExport(ctx context.Context, task *asynq.Task) error {
	if w.exports == nil || w.sink == nil || !w.sink.Enabled() {
		return nil
	}

	payload, err := ParseWebhookExportPayload(task)
	if err != nil {
		return err
	}

	agencyID, err := uuid.Parse(payload.AgencyID)
	if err != nil {
		return err
	}

	since := payload.Since
	exported := 0
	for {
		page, err := w.exports.ListUpdatedSince(ctx, agencyID, since, exportPageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(exportConcurrency)
		for i := range page {
			row := exportRowFromLead(page[i])
			g.Go(func() error {
				return w.sink.Emit(gctx, EventLeadExport, row, nil)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		exported += len(page)

		if len(page) < exportPageSize {
			break
		}
		last := page[len(page)-1].UpdatedAt
		if !last.After(since) {
			// A full page sharing one timestamp cannot advance the cursor.
			w.log.Warn("webhook export stopped on flat page", "agencyId", payload.AgencyID, "since", since)
			break
		}
		since = last
	}

	w.log.Info("webhook export finished", "agencyId", payload.AgencyID, "exported", exported)
	return nil
}
