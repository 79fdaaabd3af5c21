package repository

import (
	"context"
	"errors"
	"time"

	"estatedesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AddReminderParams struct {
	LeadID    uuid.UUID
	AgencyID  uuid.UUID
	Message   string
	RemindAt  time.Time
	CreatedBy *uuid.UUID
	Activity  []ActivityParams
}

func (r *Repository) AddReminder(ctx context.Context, params AddReminderParams) (domain.Reminder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Reminder{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var reminder domain.Reminder
	err = tx.QueryRow(ctx, `
		INSERT INTO lead_reminders (lead_id, agency_id, message, remind_at, created_by)
		SELECT l.id, l.agency_id, $3, $4, $5
		FROM leads l
		WHERE l.id = $1 AND l.agency_id = $2 AND l.deleted_at IS NULL
		RETURNING id, lead_id, message, remind_at, completed, created_by, created_at
	`, params.LeadID, params.AgencyID, params.Message, params.RemindAt, params.CreatedBy).Scan(
		&reminder.ID, &reminder.LeadID, &reminder.Message, &reminder.RemindAt,
		&reminder.Completed, &reminder.CreatedBy, &reminder.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reminder{}, ErrNotFound
	}
	if err != nil {
		return domain.Reminder{}, err
	}

	if err := insertActivity(ctx, tx, params.LeadID, params.AgencyID, params.Activity); err != nil {
		return domain.Reminder{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Reminder{}, err
	}
	return reminder, nil
}

func (r *Repository) CompleteReminder(ctx context.Context, reminderID, leadID, agencyID uuid.UUID, activity []ActivityParams) (domain.Reminder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Reminder{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var reminder domain.Reminder
	err = tx.QueryRow(ctx, `
		UPDATE lead_reminders
		SET completed = true
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3
		RETURNING id, lead_id, message, remind_at, completed, created_by, created_at
	`, reminderID, leadID, agencyID).Scan(
		&reminder.ID, &reminder.LeadID, &reminder.Message, &reminder.RemindAt,
		&reminder.Completed, &reminder.CreatedBy, &reminder.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reminder{}, ErrNotFound
	}
	if err != nil {
		return domain.Reminder{}, err
	}

	if err := insertActivity(ctx, tx, leadID, agencyID, activity); err != nil {
		return domain.Reminder{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Reminder{}, err
	}
	return reminder, nil
}

func (r *Repository) ListReminders(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, message, remind_at, completed, created_by, created_at
		FROM lead_reminders
		WHERE lead_id = $1 AND agency_id = $2
		ORDER BY remind_at ASC
	`, leadID, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reminders := make([]domain.Reminder, 0)
	for rows.Next() {
		var reminder domain.Reminder
		if err := rows.Scan(
			&reminder.ID, &reminder.LeadID, &reminder.Message, &reminder.RemindAt,
			&reminder.Completed, &reminder.CreatedBy, &reminder.CreatedAt,
		); err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return reminders, nil
}

// DueReminder pairs a due reminder with its owning agency for the sweep.
type DueReminder struct {
	Reminder domain.Reminder
	AgencyID uuid.UUID
}

// ClaimDueReminders stamps and returns uncompleted reminders due at or before
// the given instant, across all agencies. The notified_at stamp makes the
// claim one-shot, and SKIP LOCKED keeps concurrent sweep workers from
// claiming the same rows.
func (r *Repository) ClaimDueReminders(ctx context.Context, due time.Time, limit int) ([]DueReminder, error) {
	rows, err := r.pool.Query(ctx, `
		WITH cte AS (
			SELECT id
			FROM lead_reminders
			WHERE completed = false AND notified_at IS NULL AND remind_at <= $1
			ORDER BY remind_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE lead_reminders rem
		SET notified_at = now()
		FROM cte
		WHERE rem.id = cte.id
		RETURNING rem.id, rem.lead_id, rem.message, rem.remind_at, rem.completed, rem.created_by, rem.created_at, rem.agency_id
	`, due, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claimed := make([]DueReminder, 0)
	for rows.Next() {
		var item DueReminder
		if err := rows.Scan(
			&item.Reminder.ID, &item.Reminder.LeadID, &item.Reminder.Message, &item.Reminder.RemindAt,
			&item.Reminder.Completed, &item.Reminder.CreatedBy, &item.Reminder.CreatedAt,
			&item.AgencyID,
		); err != nil {
			return nil, err
		}
		claimed = append(claimed, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return claimed, nil
}
