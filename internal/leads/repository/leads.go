package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"estatedesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

type CreateLeadParams struct {
	AgencyID           uuid.UUID
	LeadNumber         string
	Name               string
	Email              string
	Phone              string
	AltPhone           string
	Status             string
	Priority           string
	Source             string
	SourceDetails      string
	AssignedTo         *uuid.UUID
	ManagerID          *uuid.UUID
	Team               string
	PropertyID         *uuid.UUID
	PropertyName       string
	BudgetMin          *float64
	BudgetMax          *float64
	Timeline           string
	PreferredLocations []string
	PropertyTypes      []string
	Message            string
	Score              int
	ScoreDetails       *domain.ScoreDetails
	FirstContactSLA    time.Duration
	EntryPermissions   domain.EntryPermissions
	CreatedBy          *uuid.UUID
	Activity           []ActivityParams
}

// Create inserts a lead and its initial audit entries in one transaction.
// A lead_number collision surfaces as ErrDuplicateNumber so the caller can
// retry with a fresh number.
func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	scoreDetails, err := encodeScoreDetails(params.ScoreDetails)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("encode score details: %w", err)
	}
	entryPerms, err := encodeEntryPermissions(params.EntryPermissions)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("encode entry permissions: %w", err)
	}

	locations := params.PreferredLocations
	if locations == nil {
		locations = []string{}
	}
	propertyTypes := params.PropertyTypes
	if propertyTypes == nil {
		propertyTypes = []string{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO leads (
			agency_id, lead_number, name, email, phone, alt_phone,
			status, priority, source, source_details,
			assigned_to, manager_id, team,
			property_id, property_name,
			budget_min, budget_max, timeline, preferred_locations, property_types, message,
			score, score_details, first_contact_sla_ms, entry_permissions, created_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
		RETURNING `+leadColumns,
		params.AgencyID, params.LeadNumber, params.Name, params.Email, params.Phone, params.AltPhone,
		params.Status, params.Priority, params.Source, params.SourceDetails,
		params.AssignedTo, params.ManagerID, params.Team,
		params.PropertyID, params.PropertyName,
		params.BudgetMin, params.BudgetMax, params.Timeline, locations, propertyTypes, params.Message,
		params.Score, scoreDetails, params.FirstContactSLA.Milliseconds(), entryPerms, params.CreatedBy,
	)
	lead, err := scanLead(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Lead{}, ErrDuplicateNumber
		}
		return domain.Lead{}, err
	}

	if err := insertActivity(ctx, tx, lead.ID, lead.AgencyID, params.Activity); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// GetByID loads one lead scoped to its agency.
func (r *Repository) GetByID(ctx context.Context, id, agencyID uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE id = $1 AND agency_id = $2 AND deleted_at IS NULL
	`, id, agencyID)
	return scanLead(row)
}

// GetByIDUnscoped loads a lead without tenant scoping. It exists for
// permission evaluation: callers must run the access guard against the
// returned lead before acting on it.
func (r *Repository) GetByIDUnscoped(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanLead(row)
}

// GetByNumber resolves a human-readable lead number within an agency.
func (r *Repository) GetByNumber(ctx context.Context, number string, agencyID uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE lead_number = $1 AND agency_id = $2 AND deleted_at IS NULL
	`, number, agencyID)
	return scanLead(row)
}

// FindRecentByContact returns the newest lead matching the phone or email
// created at or after the given instant, or nil when none matches.
//
// Known race: this lookup and the subsequent insert are separate statements,
// so two concurrent inquiries for the same contact can both pass the check
// and both insert. The business tolerates the occasional double entry.
func (r *Repository) FindRecentByContact(ctx context.Context, agencyID uuid.UUID, phone, email string, since time.Time) (*domain.Lead, error) {
	if phone == "" && email == "" {
		return nil, nil
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE agency_id = $1 AND deleted_at IS NULL AND created_at >= $2
		  AND (($3 != '' AND phone = $3) OR ($4 != '' AND email = $4))
		ORDER BY created_at DESC
		LIMIT 1
	`, agencyID, since, phone, email)
	lead, err := scanLead(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

type ListParams struct {
	AgencyID    uuid.UUID
	Status      *string
	Priority    *string
	Source      *string
	AssignedTo  *uuid.UUID
	Unassigned  bool
	PropertyID  *uuid.UUID
	Team        *string
	SLAStatus   *string
	MinScore    *int
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Offset      int
	Limit       int
	SortBy      string
	SortOrder   string
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
	whereClause, args, argIdx := buildLeadListWhere(params)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM leads WHERE %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortColumn := mapLeadSortColumn(params.SortBy)
	sortOrder := "DESC"
	if params.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	args = append(args, params.Limit, params.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM leads
		WHERE %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, leadColumns, whereClause, sortColumn, sortOrder, argIdx, argIdx+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	leads, err := scanLeads(rows)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// ListUpdatedSince returns leads whose last modification falls at or after
// the given instant, oldest change first. Callers page by advancing since to
// the last returned UpdatedAt.
func (r *Repository) ListUpdatedSince(ctx context.Context, agencyID uuid.UUID, since time.Time, limit int) ([]domain.Lead, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE agency_id = $1 AND deleted_at IS NULL AND updated_at >= $2
		ORDER BY updated_at ASC, id ASC
		LIMIT $3
	`, agencyID, since, limit)
	if err != nil {
		return nil, err
	}
	return scanLeads(rows)
}

func buildLeadListWhere(params ListParams) (string, []interface{}, int) {
	// Agency ID is always the first filter (mandatory for tenant isolation).
	whereClauses := []string{"agency_id = $1", "deleted_at IS NULL"}
	args := []interface{}{params.AgencyID}
	argIdx := 2

	addEquals := func(column string, value interface{}) {
		whereClauses = append(whereClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.Status != nil {
		addEquals("status", *params.Status)
	}
	if params.Priority != nil {
		addEquals("priority", *params.Priority)
	}
	if params.Source != nil {
		addEquals("source", *params.Source)
	}
	if params.AssignedTo != nil {
		addEquals("assigned_to", *params.AssignedTo)
	}
	if params.Unassigned {
		whereClauses = append(whereClauses, "assigned_to IS NULL")
	}
	if params.PropertyID != nil {
		addEquals("property_id", *params.PropertyID)
	}
	if params.Team != nil {
		addEquals("team", *params.Team)
	}
	if params.SLAStatus != nil {
		addEquals("sla_status", *params.SLAStatus)
	}
	if params.MinScore != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("score >= $%d", argIdx))
		args = append(args, *params.MinScore)
		argIdx++
	}
	if params.Search != "" {
		searchPattern := "%" + params.Search + "%"
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(name ILIKE $%d OR phone ILIKE $%d OR email ILIKE $%d OR lead_number ILIKE $%d)",
			argIdx, argIdx, argIdx, argIdx,
		))
		args = append(args, searchPattern)
		argIdx++
	}
	if params.CreatedFrom != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.CreatedFrom)
		argIdx++
	}
	if params.CreatedTo != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, *params.CreatedTo)
		argIdx++
	}

	return strings.Join(whereClauses, " AND "), args, argIdx
}

func mapLeadSortColumn(sortBy string) string {
	switch sortBy {
	case "name":
		return "name"
	case "status":
		return "status"
	case "priority":
		return "priority"
	case "score":
		return "score"
	case "lastContactAt":
		return "last_contact_at"
	case "updatedAt":
		return "updated_at"
	default:
		return "created_at"
	}
}

type UpdateLeadParams struct {
	Name               *string
	Email              *string
	Phone              *string
	AltPhone           *string
	Priority           *string
	Source             *string
	SourceDetails      *string
	PropertyID         *uuid.UUID
	PropertyIDSet      bool
	PropertyName       *string
	BudgetMin          *float64
	BudgetMinSet       bool
	BudgetMax          *float64
	BudgetMaxSet       bool
	Timeline           *string
	PreferredLocations []string
	PropertyTypes      []string
	Message            *string
	ManagerID          *uuid.UUID
	ManagerIDSet       bool
	Team               *string
	BookingAmount      *float64
	BookingAmountSet   bool
	FirstContactSLA    *time.Duration
	EntryPermissions   domain.EntryPermissions
}

// Update applies the set fields and appends the audit entries in one
// transaction. Status, assignment, score, and SLA state have dedicated
// methods and are not touched here.
func (r *Repository) Update(ctx context.Context, id, agencyID uuid.UUID, params UpdateLeadParams, activity []ActivityParams) (domain.Lead, error) {
	entryPerms, err := encodeEntryPermissions(params.EntryPermissions)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("encode entry permissions: %w", err)
	}

	var slaMillis int64
	if params.FirstContactSLA != nil {
		slaMillis = params.FirstContactSLA.Milliseconds()
	}

	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	fields := []struct {
		enabled bool
		column  string
		value   interface{}
	}{
		{params.Name != nil, "name", derefString(params.Name)},
		{params.Email != nil, "email", derefString(params.Email)},
		{params.Phone != nil, "phone", derefString(params.Phone)},
		{params.AltPhone != nil, "alt_phone", derefString(params.AltPhone)},
		{params.Priority != nil, "priority", derefString(params.Priority)},
		{params.Source != nil, "source", derefString(params.Source)},
		{params.SourceDetails != nil, "source_details", derefString(params.SourceDetails)},
		{params.PropertyIDSet, "property_id", params.PropertyID},
		{params.PropertyName != nil, "property_name", derefString(params.PropertyName)},
		{params.BudgetMinSet, "budget_min", params.BudgetMin},
		{params.BudgetMaxSet, "budget_max", params.BudgetMax},
		{params.Timeline != nil, "timeline", derefString(params.Timeline)},
		{params.PreferredLocations != nil, "preferred_locations", params.PreferredLocations},
		{params.PropertyTypes != nil, "property_types", params.PropertyTypes},
		{params.Message != nil, "message", derefString(params.Message)},
		{params.ManagerIDSet, "manager_id", params.ManagerID},
		{params.Team != nil, "team", derefString(params.Team)},
		{params.BookingAmountSet, "booking_amount", params.BookingAmount},
		{params.FirstContactSLA != nil, "first_contact_sla_ms", slaMillis},
		{params.EntryPermissions != nil, "entry_permissions", entryPerms},
	}

	for _, field := range fields {
		if !field.enabled {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field.column, argIdx))
		args = append(args, field.value)
		argIdx++
	}

	if len(setClauses) == 0 {
		return r.GetByID(ctx, id, agencyID)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id, agencyID)

	query := fmt.Sprintf(`
		UPDATE leads SET %s
		WHERE id = $%d AND agency_id = $%d AND deleted_at IS NULL
		RETURNING %s
	`, strings.Join(setClauses, ", "), argIdx, argIdx+1, leadColumns)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lead, err := scanLead(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Lead{}, err
	}
	if err := insertActivity(ctx, tx, lead.ID, lead.AgencyID, activity); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// StatusUpdate carries a pipeline transition. A non-nil ConvertedAt stamps
// the conversion time; an existing stamp is never cleared. A non-nil
// BookingAmount records the deal size alongside the booked transition.
type StatusUpdate struct {
	Status        string
	ConvertedAt   *time.Time
	BookingAmount *float64
}

// UpdateStatus moves the lead to a new pipeline status.
func (r *Repository) UpdateStatus(ctx context.Context, id, agencyID uuid.UUID, upd StatusUpdate, activity []ActivityParams) (domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lead, err := scanLead(tx.QueryRow(ctx, `
		UPDATE leads
		SET status = $3, converted_at = COALESCE($4, converted_at),
			booking_amount = COALESCE($5, booking_amount), updated_at = now()
		WHERE id = $1 AND agency_id = $2 AND deleted_at IS NULL
		RETURNING `+leadColumns,
		id, agencyID, upd.Status, upd.ConvertedAt, upd.BookingAmount,
	))
	if err != nil {
		return domain.Lead{}, err
	}
	if err := insertActivity(ctx, tx, lead.ID, lead.AgencyID, activity); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

type AssignmentUpdate struct {
	AgentID *uuid.UUID // nil clears the assignment
	Team    *string    // nil keeps the current team label
}

// UpdateAssignment sets or clears the assigned agent.
func (r *Repository) UpdateAssignment(ctx context.Context, id, agencyID uuid.UUID, upd AssignmentUpdate, activity []ActivityParams) (domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lead, err := scanLead(tx.QueryRow(ctx, `
		UPDATE leads
		SET assigned_to = $3, team = COALESCE($4, team), updated_at = now()
		WHERE id = $1 AND agency_id = $2 AND deleted_at IS NULL
		RETURNING `+leadColumns,
		id, agencyID, upd.AgentID, upd.Team,
	))
	if err != nil {
		return domain.Lead{}, err
	}
	if err := insertActivity(ctx, tx, lead.ID, lead.AgencyID, activity); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

type ScoreUpdate struct {
	Score    int
	Details  domain.ScoreDetails
	Priority *string // nil leaves the stored priority untouched
}

// SaveScore persists a scoring result. Activity entries are optional:
// automatic rescoring rides on the entry of the operation that triggered it,
// manual rescoring records its own.
func (r *Repository) SaveScore(ctx context.Context, id, agencyID uuid.UUID, upd ScoreUpdate, activity []ActivityParams) error {
	details, err := encodeScoreDetails(&upd.Details)
	if err != nil {
		return fmt.Errorf("encode score details: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET score = $3, score_details = $4, priority = COALESCE($5, priority), updated_at = now()
		WHERE id = $1 AND agency_id = $2 AND deleted_at IS NULL
	`, id, agencyID, upd.Score, details, upd.Priority)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := insertActivity(ctx, tx, id, agencyID, activity); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete soft-deletes a lead. The activity entry survives so the audit trail
// records who removed it.
func (r *Repository) Delete(ctx context.Context, id, agencyID uuid.UUID, activity []ActivityParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE leads SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND agency_id = $2 AND deleted_at IS NULL
	`, id, agencyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := insertActivity(ctx, tx, id, agencyID, activity); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// BulkDelete soft-deletes several leads in one transaction. Ids that are
// already deleted or belong to another agency are skipped. Returns how many
// leads were actually removed.
func (r *Repository) BulkDelete(ctx context.Context, ids []uuid.UUID, agencyID uuid.UUID, performedBy *uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE leads SET deleted_at = now(), updated_at = now()
		WHERE id = ANY($1) AND agency_id = $2 AND deleted_at IS NULL
		RETURNING id
	`, ids, agencyID)
	if err != nil {
		return 0, err
	}
	deleted := make([]uuid.UUID, 0, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		deleted = append(deleted, id)
	}
	rows.Close()
	if rows.Err() != nil {
		return 0, rows.Err()
	}

	for _, id := range deleted {
		entry := []ActivityParams{{
			Action:      domain.ActivityDeleted,
			Description: "lead deleted in bulk operation",
			PerformedBy: performedBy,
		}}
		if err := insertActivity(ctx, tx, id, agencyID, entry); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(deleted), nil
}

// MergeLeads folds the merged lead into the primary: empty contact and
// property fields on the primary are backfilled from the merged lead, all
// engagement history moves over, and the merged lead is soft-deleted. The
// whole fold is one transaction.
func (r *Repository) MergeLeads(ctx context.Context, primaryID, mergedID, agencyID uuid.UUID, activity []ActivityParams) (domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE leads p SET
			email = CASE WHEN p.email = '' THEN m.email ELSE p.email END,
			alt_phone = CASE WHEN p.alt_phone = '' THEN m.alt_phone ELSE p.alt_phone END,
			budget_min = COALESCE(p.budget_min, m.budget_min),
			budget_max = COALESCE(p.budget_max, m.budget_max),
			timeline = CASE WHEN p.timeline = '' THEN m.timeline ELSE p.timeline END,
			property_id = COALESCE(p.property_id, m.property_id),
			property_name = CASE WHEN p.property_name = '' THEN m.property_name ELSE p.property_name END,
			message = CASE WHEN p.message = '' THEN m.message ELSE p.message END,
			updated_at = now()
		FROM leads m
		WHERE p.id = $1 AND m.id = $2 AND p.agency_id = $3 AND m.agency_id = $3
		  AND p.deleted_at IS NULL AND m.deleted_at IS NULL
	`, primaryID, mergedID, agencyID)
	if err != nil {
		return domain.Lead{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.Lead{}, ErrNotFound
	}

	for _, table := range []string{
		"lead_notes", "lead_communications", "lead_tasks",
		"lead_reminders", "lead_documents", "lead_visits", "lead_activity",
	} {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf("UPDATE %s SET lead_id = $1 WHERE lead_id = $2", table),
			primaryID, mergedID,
		); err != nil {
			return domain.Lead{}, err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE leads SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND agency_id = $2
	`, mergedID, agencyID); err != nil {
		return domain.Lead{}, err
	}

	if err := insertActivity(ctx, tx, primaryID, agencyID, activity); err != nil {
		return domain.Lead{}, err
	}

	lead, err := scanLead(tx.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE id = $1 AND agency_id = $2 AND deleted_at IS NULL
	`, primaryID, agencyID))
	if err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// CountActiveLeads returns, per agent, how many active-status leads each of
// the given agents currently holds. Agents with none are absent from the map.
func (r *Repository) CountActiveLeads(ctx context.Context, agencyID uuid.UUID, agentIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT assigned_to, COUNT(*)
		FROM leads
		WHERE agency_id = $1 AND assigned_to = ANY($2) AND status = ANY($3) AND deleted_at IS NULL
		GROUP BY assigned_to
	`, agencyID, agentIDs, domain.ActiveStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int, len(agentIDs))
	for rows.Next() {
		var agentID uuid.UUID
		var count int
		if err := rows.Scan(&agentID, &count); err != nil {
			return nil, err
		}
		counts[agentID] = count
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// StatusCounts returns the agency's lead counts per pipeline status.
func (r *Repository) StatusCounts(ctx context.Context, agencyID uuid.UUID) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM leads
		WHERE agency_id = $1 AND deleted_at IS NULL
		GROUP BY status
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}
