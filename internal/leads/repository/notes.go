package repository

import (
	"context"
	"errors"

	"estatedesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AddNoteParams struct {
	LeadID    uuid.UUID
	AgencyID  uuid.UUID
	Body      string
	CreatedBy *uuid.UUID
	Activity  []ActivityParams
}

// AddNote appends a note and its audit entry in one transaction. The insert
// verifies the lead still exists in the caller's agency; a vanished or
// foreign lead yields ErrNotFound.
func (r *Repository) AddNote(ctx context.Context, params AddNoteParams) (domain.Note, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Note{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var note domain.Note
	err = tx.QueryRow(ctx, `
		INSERT INTO lead_notes (lead_id, agency_id, body, created_by)
		SELECT l.id, l.agency_id, $3, $4
		FROM leads l
		WHERE l.id = $1 AND l.agency_id = $2 AND l.deleted_at IS NULL
		RETURNING id, lead_id, body, created_by, created_at
	`, params.LeadID, params.AgencyID, params.Body, params.CreatedBy).Scan(
		&note.ID, &note.LeadID, &note.Body, &note.CreatedBy, &note.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Note{}, ErrNotFound
	}
	if err != nil {
		return domain.Note{}, err
	}

	if err := insertActivity(ctx, tx, params.LeadID, params.AgencyID, params.Activity); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Note{}, err
	}
	return note, nil
}

func (r *Repository) ListNotes(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Note, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT n.id, n.lead_id, n.body, COALESCE(u.name, ''), n.created_by, n.created_at
		FROM lead_notes n
		LEFT JOIN users u ON u.id = n.created_by
		WHERE n.lead_id = $1 AND n.agency_id = $2
		ORDER BY n.created_at DESC
	`, leadID, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make([]domain.Note, 0)
	for rows.Next() {
		var note domain.Note
		if err := rows.Scan(
			&note.ID, &note.LeadID, &note.Body, &note.AuthorName, &note.CreatedBy, &note.CreatedAt,
		); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return notes, nil
}
