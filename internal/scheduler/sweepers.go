package scheduler

import (
	"context"
	"time"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/repository"
	"estatedesk_backend/internal/leads/scheduling"
	"estatedesk_backend/platform/logger"
)

const (
	defaultNoShowSweepInterval   = 15 * time.Minute
	noShowSweepBatchSize         = 200
	defaultReminderSweepInterval = time.Minute
	reminderSweepBatchSize       = 100
)

// VisitSweeper flags overdue scheduled visits. Satisfied by
// *scheduling.Service.
type VisitSweeper interface {
	SweepNoShows(ctx context.Context, limit int) ([]scheduling.NoShowResult, error)
}

// RescoreEnqueuer submits deferred re-score jobs. Satisfied by *Client.
type RescoreEnqueuer interface {
	EnqueueLeadRescore(ctx context.Context, payload LeadRescorePayload) error
}

// NoShowSweeper periodically flags scheduled visits whose day has passed
// without an outcome and queues a re-score for each affected lead, so the
// engagement penalty lands without waiting for the next manual touch.
type NoShowSweeper struct {
	visits   VisitSweeper
	jobs     RescoreEnqueuer
	log      *logger.Logger
	interval time.Duration
}

func NewNoShowSweeper(visits VisitSweeper, jobs RescoreEnqueuer, log *logger.Logger, interval time.Duration) *NoShowSweeper {
	if interval <= 0 {
		interval = defaultNoShowSweepInterval
	}
	return &NoShowSweeper{visits: visits, jobs: jobs, log: log, interval: interval}
}

func (s *NoShowSweeper) Run(ctx context.Context) {
	if s == nil || s.visits == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *NoShowSweeper) sweep(ctx context.Context) {
	swept, err := s.visits.SweepNoShows(ctx, noShowSweepBatchSize)
	if err != nil {
		s.log.Warn("no-show sweep failed", "error", err)
		return
	}
	if len(swept) == 0 {
		return
	}

	for _, item := range swept {
		err := s.jobs.EnqueueLeadRescore(ctx, LeadRescorePayload{
			LeadID:   item.LeadID.String(),
			AgencyID: item.AgencyID.String(),
			Reason:   "score refreshed after site visit no-show",
		})
		if err != nil {
			// The visit is already flagged; the score catches up on the
			// lead's next write instead.
			s.log.Warn("enqueue no-show rescore failed", "leadId", item.LeadID.String(), "error", err)
		}
	}
	s.log.Info("no-show sweep flagged visits", "count", len(swept))
}

// DueReminderSource claims reminders whose remind-at has passed. Satisfied
// by *repository.Repository.
type DueReminderSource interface {
	ClaimDueReminders(ctx context.Context, due time.Time, limit int) ([]repository.DueReminder, error)
}

// ReminderSweeper turns due lead reminders into bus events once each.
// Claiming stamps the reminder as notified, so a restart never re-fires one.
type ReminderSweeper struct {
	reminders DueReminderSource
	bus       events.Bus
	log       *logger.Logger
	interval  time.Duration
}

func NewReminderSweeper(reminders DueReminderSource, bus events.Bus, log *logger.Logger, interval time.Duration) *ReminderSweeper {
	if interval <= 0 {
		interval = defaultReminderSweepInterval
	}
	return &ReminderSweeper{reminders: reminders, bus: bus, log: log, interval: interval}
}

func (s *ReminderSweeper) Run(ctx context.Context) {
	if s == nil || s.reminders == nil || s.bus == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ReminderSweeper) sweep(ctx context.Context) {
	due, err := s.reminders.ClaimDueReminders(ctx, time.Now().UTC(), reminderSweepBatchSize)
	if err != nil {
		s.log.Warn("reminder sweep failed", "error", err)
		return
	}

	for _, item := range due {
		s.bus.Publish(ctx, events.ReminderDue{
			BaseEvent:  events.NewBaseEvent(),
			ReminderID: item.Reminder.ID,
			LeadID:     item.Reminder.LeadID,
			AgencyID:   item.AgencyID,
			Message:    item.Reminder.Message,
			RemindAt:   item.Reminder.RemindAt,
			CreatedBy:  item.Reminder.CreatedBy,
		})
	}
	if len(due) > 0 {
		s.log.Info("reminder sweep published due reminders", "count", len(due))
	}
}
