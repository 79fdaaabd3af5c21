package repository

import (
	"context"
	"errors"

	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/sla"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AddCommunicationParams struct {
	LeadID    uuid.UUID
	AgencyID  uuid.UUID
	Type      string
	Direction string
	Subject   string
	Body      string
	LoggedBy  *uuid.UUID
	// SLA carries the first-contact clock changes computed for this
	// communication; nil leaves all SLA state untouched.
	SLA      *sla.Update
	Activity []ActivityParams
}

// AddCommunication logs a touchpoint and, in the same transaction, applies
// the SLA changes it caused. The first-contact columns are written with
// coalescing guards so a concurrent first contact is never overwritten; the
// clock stays one-shot even when two contacts race.
func (r *Repository) AddCommunication(ctx context.Context, params AddCommunicationParams) (domain.Communication, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Communication{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var comm domain.Communication
	err = tx.QueryRow(ctx, `
		INSERT INTO lead_communications (lead_id, agency_id, type, direction, subject, body, logged_by)
		SELECT l.id, l.agency_id, $3, $4, $5, $6, $7
		FROM leads l
		WHERE l.id = $1 AND l.agency_id = $2 AND l.deleted_at IS NULL
		RETURNING id, lead_id, type, direction, subject, body, logged_by, created_at
	`, params.LeadID, params.AgencyID, params.Type, params.Direction, params.Subject, params.Body, params.LoggedBy).Scan(
		&comm.ID, &comm.LeadID, &comm.Type, &comm.Direction, &comm.Subject, &comm.Body, &comm.LoggedBy, &comm.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Communication{}, ErrNotFound
	}
	if err != nil {
		return domain.Communication{}, err
	}

	if params.SLA != nil {
		var responseMS *int64
		if params.SLA.ResponseTime != nil {
			ms := params.SLA.ResponseTime.Milliseconds()
			responseMS = &ms
		}
		if _, err := tx.Exec(ctx, `
			UPDATE leads SET
				first_contact_at = COALESCE(first_contact_at, $3),
				response_time_ms = COALESCE(response_time_ms, $4),
				sla_status = CASE WHEN first_contact_at IS NULL AND $3::timestamptz IS NOT NULL THEN $5 ELSE sla_status END,
				last_contact_at = $6,
				updated_at = now()
			WHERE id = $1 AND agency_id = $2 AND deleted_at IS NULL
		`, params.LeadID, params.AgencyID, params.SLA.FirstContactAt, responseMS, params.SLA.Status, params.SLA.LastContactAt); err != nil {
			return domain.Communication{}, err
		}
	}

	if err := insertActivity(ctx, tx, params.LeadID, params.AgencyID, params.Activity); err != nil {
		return domain.Communication{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Communication{}, err
	}
	return comm, nil
}

func (r *Repository) ListCommunications(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Communication, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, type, direction, subject, body, logged_by, created_at
		FROM lead_communications
		WHERE lead_id = $1 AND agency_id = $2
		ORDER BY created_at DESC
	`, leadID, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comms := make([]domain.Communication, 0)
	for rows.Next() {
		var comm domain.Communication
		if err := rows.Scan(
			&comm.ID, &comm.LeadID, &comm.Type, &comm.Direction, &comm.Subject, &comm.Body, &comm.LoggedBy, &comm.CreatedAt,
		); err != nil {
			return nil, err
		}
		comms = append(comms, comm)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return comms, nil
}

// CountCommunications counts all logged touchpoints for a lead, including
// note-typed entries; any logged interaction is an engagement signal.
func (r *Repository) CountCommunications(ctx context.Context, leadID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM lead_communications WHERE lead_id = $1
	`, leadID).Scan(&count)
	return count, err
}
