package repository

import (
	"context"
	"errors"
	"time"

	"estatedesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const visitColumns = `id, lead_id, property_id, property_name, scheduled_date, scheduled_time,
	status, completed_date, cancelled_date, feedback, interest_level, next_action,
	relationship_manager, created_by, created_at, updated_at`

func scanVisit(row pgx.Row) (domain.SiteVisit, error) {
	var visit domain.SiteVisit
	err := row.Scan(
		&visit.ID, &visit.LeadID, &visit.PropertyID, &visit.PropertyName,
		&visit.ScheduledDate, &visit.ScheduledTime,
		&visit.Status, &visit.CompletedDate, &visit.CancelledDate,
		&visit.Feedback, &visit.InterestLevel, &visit.NextAction,
		&visit.RelationshipManager, &visit.CreatedBy, &visit.CreatedAt, &visit.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SiteVisit{}, ErrNotFound
	}
	return visit, err
}

type AddVisitParams struct {
	LeadID              uuid.UUID
	AgencyID            uuid.UUID
	PropertyID          *uuid.UUID
	PropertyName        string
	ScheduledDate       time.Time
	ScheduledTime       string
	RelationshipManager *uuid.UUID
	CreatedBy           *uuid.UUID
	// AdvanceLeadStatus moves the lead to site_visit_scheduled. The update
	// re-checks the current status, so a lead that advanced past
	// qualification between read and write keeps its later status.
	AdvanceLeadStatus bool
	Activity          []ActivityParams
}

// AddVisit appends a scheduled visit to the lead's visit list.
func (r *Repository) AddVisit(ctx context.Context, params AddVisitParams) (domain.SiteVisit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	visit, err := scanVisit(tx.QueryRow(ctx, `
		INSERT INTO lead_visits (lead_id, agency_id, property_id, property_name, scheduled_date, scheduled_time, relationship_manager, created_by)
		SELECT l.id, l.agency_id, $3, $4, $5, $6, $7, $8
		FROM leads l
		WHERE l.id = $1 AND l.agency_id = $2 AND l.deleted_at IS NULL
		RETURNING `+visitColumns,
		params.LeadID, params.AgencyID, params.PropertyID, params.PropertyName,
		params.ScheduledDate, params.ScheduledTime, params.RelationshipManager, params.CreatedBy,
	))
	if err != nil {
		return domain.SiteVisit{}, err
	}

	if params.AdvanceLeadStatus {
		if _, err := tx.Exec(ctx, `
			UPDATE leads SET status = $3, updated_at = now()
			WHERE id = $1 AND agency_id = $2 AND deleted_at IS NULL AND status = ANY($4)
		`, params.LeadID, params.AgencyID, domain.StatusSiteVisitScheduled,
			[]string{domain.StatusNew, domain.StatusContacted, domain.StatusQualified},
		); err != nil {
			return domain.SiteVisit{}, err
		}
	}

	if err := insertActivity(ctx, tx, params.LeadID, params.AgencyID, params.Activity); err != nil {
		return domain.SiteVisit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SiteVisit{}, err
	}
	return visit, nil
}

type CompleteVisitParams struct {
	VisitID       uuid.UUID
	LeadID        uuid.UUID
	AgencyID      uuid.UUID
	CompletedDate time.Time
	Feedback      string
	InterestLevel string
	NextAction    string
	// AdvanceLeadStatus moves site_visit_scheduled to site_visit_completed;
	// leads in any other status are untouched.
	AdvanceLeadStatus bool
	Activity          []ActivityParams
}

// CompleteVisit marks a visit completed with its outcome.
func (r *Repository) CompleteVisit(ctx context.Context, params CompleteVisitParams) (domain.SiteVisit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	visit, err := scanVisit(tx.QueryRow(ctx, `
		UPDATE lead_visits
		SET status = $4, completed_date = $5, feedback = $6, interest_level = $7, next_action = $8, updated_at = now()
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3
		RETURNING `+visitColumns,
		params.VisitID, params.LeadID, params.AgencyID, domain.VisitCompleted,
		params.CompletedDate, params.Feedback, params.InterestLevel, params.NextAction,
	))
	if err != nil {
		return domain.SiteVisit{}, err
	}

	if params.AdvanceLeadStatus {
		if _, err := tx.Exec(ctx, `
			UPDATE leads SET status = $3, updated_at = now()
			WHERE id = $1 AND agency_id = $2 AND deleted_at IS NULL AND status = $4
		`, params.LeadID, params.AgencyID, domain.StatusSiteVisitCompleted, domain.StatusSiteVisitScheduled); err != nil {
			return domain.SiteVisit{}, err
		}
	}

	if err := insertActivity(ctx, tx, params.LeadID, params.AgencyID, params.Activity); err != nil {
		return domain.SiteVisit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SiteVisit{}, err
	}
	return visit, nil
}

// CancelVisit marks a visit cancelled.
func (r *Repository) CancelVisit(ctx context.Context, visitID, leadID, agencyID uuid.UUID, cancelledDate time.Time, activity []ActivityParams) (domain.SiteVisit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	visit, err := scanVisit(tx.QueryRow(ctx, `
		UPDATE lead_visits
		SET status = $4, cancelled_date = $5, updated_at = now()
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3
		RETURNING `+visitColumns,
		visitID, leadID, agencyID, domain.VisitCancelled, cancelledDate,
	))
	if err != nil {
		return domain.SiteVisit{}, err
	}

	if err := insertActivity(ctx, tx, leadID, agencyID, activity); err != nil {
		return domain.SiteVisit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SiteVisit{}, err
	}
	return visit, nil
}

type UpdateVisitParams struct {
	VisitID             uuid.UUID
	LeadID              uuid.UUID
	AgencyID            uuid.UUID
	ScheduledDate       *time.Time
	ScheduledTime       *string
	PropertyID          *uuid.UUID
	PropertyIDSet       bool
	PropertyName        *string
	RelationshipManager *uuid.UUID
	RelationshipMgrSet  bool
	NextAction          *string
	Activity            []ActivityParams
}

// UpdateVisit reschedules or edits a visit in place.
func (r *Repository) UpdateVisit(ctx context.Context, params UpdateVisitParams) (domain.SiteVisit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	visit, err := scanVisit(tx.QueryRow(ctx, `
		UPDATE lead_visits SET
			scheduled_date = COALESCE($4, scheduled_date),
			scheduled_time = COALESCE($5, scheduled_time),
			property_id = CASE WHEN $6 THEN $7 ELSE property_id END,
			property_name = COALESCE($8, property_name),
			relationship_manager = CASE WHEN $9 THEN $10 ELSE relationship_manager END,
			next_action = COALESCE($11, next_action),
			updated_at = now()
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3
		RETURNING `+visitColumns,
		params.VisitID, params.LeadID, params.AgencyID,
		params.ScheduledDate, params.ScheduledTime,
		params.PropertyIDSet, params.PropertyID, params.PropertyName,
		params.RelationshipMgrSet, params.RelationshipManager, params.NextAction,
	))
	if err != nil {
		return domain.SiteVisit{}, err
	}

	if err := insertActivity(ctx, tx, params.LeadID, params.AgencyID, params.Activity); err != nil {
		return domain.SiteVisit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SiteVisit{}, err
	}
	return visit, nil
}

// DeleteVisit removes a visit from the list entirely. The current-visit
// pointer is derived from the remaining entries, so nothing else needs
// rewriting.
func (r *Repository) DeleteVisit(ctx context.Context, visitID, leadID, agencyID uuid.UUID, activity []ActivityParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM lead_visits WHERE id = $1 AND lead_id = $2 AND agency_id = $3
	`, visitID, leadID, agencyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := insertActivity(ctx, tx, leadID, agencyID, activity); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkVisitNoShow flags a still-scheduled visit whose date has passed. The
// lead's pipeline status is deliberately untouched.
func (r *Repository) MarkVisitNoShow(ctx context.Context, visitID, leadID, agencyID uuid.UUID, activity []ActivityParams) (domain.SiteVisit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	visit, err := scanVisit(tx.QueryRow(ctx, `
		UPDATE lead_visits
		SET status = $4, updated_at = now()
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3 AND status = $5
		RETURNING `+visitColumns,
		visitID, leadID, agencyID, domain.VisitNoShow, domain.VisitScheduled,
	))
	if err != nil {
		return domain.SiteVisit{}, err
	}

	if err := insertActivity(ctx, tx, leadID, agencyID, activity); err != nil {
		return domain.SiteVisit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SiteVisit{}, err
	}
	return visit, nil
}

func (r *Repository) GetVisit(ctx context.Context, visitID, leadID, agencyID uuid.UUID) (domain.SiteVisit, error) {
	return scanVisit(r.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM lead_visits
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3
	`, visitID, leadID, agencyID))
}

// ListVisits returns the lead's full visit history, oldest first. The
// current-visit pointer is derived from this list with domain.CurrentVisit.
func (r *Repository) ListVisits(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.SiteVisit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+visitColumns+`
		FROM lead_visits
		WHERE lead_id = $1 AND agency_id = $2
		ORDER BY created_at ASC
	`, leadID, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := make([]domain.SiteVisit, 0)
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, visit)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return visits, nil
}

// OverdueVisit pairs a stale scheduled visit with its owning agency for the
// no-show sweep.
type OverdueVisit struct {
	Visit    domain.SiteVisit
	AgencyID uuid.UUID
}

// ListOverdueScheduled returns visits still in scheduled state whose date has
// passed, across all agencies.
func (r *Repository) ListOverdueScheduled(ctx context.Context, before time.Time, limit int) ([]OverdueVisit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.id, v.lead_id, v.property_id, v.property_name, v.scheduled_date, v.scheduled_time,
			v.status, v.completed_date, v.cancelled_date, v.feedback, v.interest_level, v.next_action,
			v.relationship_manager, v.created_by, v.created_at, v.updated_at, v.agency_id
		FROM lead_visits v
		JOIN leads l ON l.id = v.lead_id AND l.deleted_at IS NULL
		WHERE v.status = $1 AND v.scheduled_date < $2
		ORDER BY v.scheduled_date ASC
		LIMIT $3
	`, domain.VisitScheduled, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overdue := make([]OverdueVisit, 0)
	for rows.Next() {
		var item OverdueVisit
		if err := rows.Scan(
			&item.Visit.ID, &item.Visit.LeadID, &item.Visit.PropertyID, &item.Visit.PropertyName,
			&item.Visit.ScheduledDate, &item.Visit.ScheduledTime,
			&item.Visit.Status, &item.Visit.CompletedDate, &item.Visit.CancelledDate,
			&item.Visit.Feedback, &item.Visit.InterestLevel, &item.Visit.NextAction,
			&item.Visit.RelationshipManager, &item.Visit.CreatedBy, &item.Visit.CreatedAt, &item.Visit.UpdatedAt,
			&item.AgencyID,
		); err != nil {
			return nil, err
		}
		overdue = append(overdue, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return overdue, nil
}
