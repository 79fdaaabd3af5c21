// Package repository persists the lead aggregate and its engagement
// sub-entities (notes, communications, tasks, reminders, documents, site
// visits, activity log) in PostgreSQL. Writes that change lead state append
// their audit entries inside the same transaction.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"estatedesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no matching lead (or sub-entity) exists.
	ErrNotFound = errors.New("lead not found")

	// ErrDuplicateNumber is returned when an insert collides on lead_number.
	// Callers retry with a fresh number or fall back to a time-based one.
	ErrDuplicateNumber = errors.New("lead number already taken")
)

// DBTX is the subset of pgx operations shared by pools and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActivityParams describes one audit entry appended in the same transaction
// as the write it records.
type ActivityParams struct {
	Action      string
	Field       string
	OldValue    string
	NewValue    string
	Description string
	PerformedBy *uuid.UUID
}

// leadColumns is the canonical select list for the leads table. scanLead
// depends on this exact order.
const leadColumns = `id, agency_id, lead_number, name, email, phone, alt_phone,
	status, priority, source, source_details,
	assigned_to, manager_id, team,
	property_id, property_name,
	budget_min, budget_max, timeline, preferred_locations, property_types, message,
	score, score_details,
	first_contact_at, first_contact_sla_ms, response_time_ms, sla_status, last_contact_at,
	booking_amount, converted_at, entry_permissions,
	created_by, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		lead         domain.Lead
		slaMillis    int64
		responseMS   *int64
		scoreDetails []byte
		entryPerms   []byte
	)
	err := row.Scan(
		&lead.ID, &lead.AgencyID, &lead.LeadNumber, &lead.Name, &lead.Email, &lead.Phone, &lead.AltPhone,
		&lead.Status, &lead.Priority, &lead.Source, &lead.SourceDetails,
		&lead.AssignedTo, &lead.ManagerID, &lead.Team,
		&lead.PropertyID, &lead.PropertyName,
		&lead.BudgetMin, &lead.BudgetMax, &lead.Timeline, &lead.PreferredLocations, &lead.PropertyTypes, &lead.Message,
		&lead.Score, &scoreDetails,
		&lead.FirstContactAt, &slaMillis, &responseMS, &lead.SLAStatus, &lead.LastContactAt,
		&lead.BookingAmount, &lead.ConvertedAt, &entryPerms,
		&lead.CreatedBy, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, err
	}

	lead.FirstContactSLA = time.Duration(slaMillis) * time.Millisecond
	if responseMS != nil {
		rt := time.Duration(*responseMS) * time.Millisecond
		lead.ResponseTime = &rt
	}
	if len(scoreDetails) > 0 {
		var details domain.ScoreDetails
		if err := json.Unmarshal(scoreDetails, &details); err != nil {
			return domain.Lead{}, fmt.Errorf("decode score details: %w", err)
		}
		lead.ScoreDetails = &details
	}
	if len(entryPerms) > 0 {
		if err := json.Unmarshal(entryPerms, &lead.EntryPermissions); err != nil {
			return domain.Lead{}, fmt.Errorf("decode entry permissions: %w", err)
		}
	}
	return lead, nil
}

func scanLeads(rows pgx.Rows) ([]domain.Lead, error) {
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}

func insertActivity(ctx context.Context, q DBTX, leadID, agencyID uuid.UUID, entries []ActivityParams) error {
	for _, entry := range entries {
		if _, err := q.Exec(ctx, `
			INSERT INTO lead_activity (lead_id, agency_id, action, field, old_value, new_value, description, performed_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, leadID, agencyID, entry.Action, entry.Field, entry.OldValue, entry.NewValue, entry.Description, entry.PerformedBy); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func encodeScoreDetails(details *domain.ScoreDetails) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	return json.Marshal(details)
}

func encodeEntryPermissions(perms domain.EntryPermissions) ([]byte, error) {
	if perms == nil {
		return nil, nil
	}
	return json.Marshal(perms)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
