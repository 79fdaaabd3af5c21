package repository

import (
	"context"

	"estatedesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// AddActivity appends audit entries outside of another write. Most callers
// get their activity rows for free inside the mutating transaction; this is
// for system events (sweeps, webhooks) that have nothing else to write.
func (r *Repository) AddActivity(ctx context.Context, leadID, agencyID uuid.UUID, entries []ActivityParams) error {
	return insertActivity(ctx, r.pool, leadID, agencyID, entries)
}

// ListActivity returns the lead's audit trail, newest first.
func (r *Repository) ListActivity(ctx context.Context, leadID, agencyID uuid.UUID, offset, limit int) ([]domain.ActivityEntry, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM lead_activity WHERE lead_id = $1 AND agency_id = $2
	`, leadID, agencyID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, action, field, old_value, new_value, description, performed_by, created_at
		FROM lead_activity
		WHERE lead_id = $1 AND agency_id = $2
		ORDER BY created_at DESC
		OFFSET $3 LIMIT $4
	`, leadID, agencyID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]domain.ActivityEntry, 0)
	for rows.Next() {
		var entry domain.ActivityEntry
		if err := rows.Scan(
			&entry.ID, &entry.LeadID, &entry.Action, &entry.Field,
			&entry.OldValue, &entry.NewValue, &entry.Description,
			&entry.PerformedBy, &entry.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return entries, total, nil
}
