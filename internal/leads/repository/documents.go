package repository

import (
	"context"
	"errors"

	"estatedesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AddDocumentParams struct {
	LeadID      uuid.UUID
	AgencyID    uuid.UUID
	FileName    string
	ContentType string
	SizeBytes   int64
	StorageKey  string
	UploadedBy  *uuid.UUID
	Activity    []ActivityParams
}

// AddDocument records file metadata; the bytes themselves live in object
// storage under StorageKey.
func (r *Repository) AddDocument(ctx context.Context, params AddDocumentParams) (domain.Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Document{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var doc domain.Document
	err = tx.QueryRow(ctx, `
		INSERT INTO lead_documents (lead_id, agency_id, file_name, content_type, size_bytes, storage_key, uploaded_by)
		SELECT l.id, l.agency_id, $3, $4, $5, $6, $7
		FROM leads l
		WHERE l.id = $1 AND l.agency_id = $2 AND l.deleted_at IS NULL
		RETURNING id, lead_id, file_name, content_type, size_bytes, storage_key, uploaded_by, created_at
	`, params.LeadID, params.AgencyID, params.FileName, params.ContentType, params.SizeBytes, params.StorageKey, params.UploadedBy).Scan(
		&doc.ID, &doc.LeadID, &doc.FileName, &doc.ContentType, &doc.SizeBytes,
		&doc.StorageKey, &doc.UploadedBy, &doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, ErrNotFound
	}
	if err != nil {
		return domain.Document{}, err
	}

	if err := insertActivity(ctx, tx, params.LeadID, params.AgencyID, params.Activity); err != nil {
		return domain.Document{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

func (r *Repository) GetDocument(ctx context.Context, documentID, leadID, agencyID uuid.UUID) (domain.Document, error) {
	var doc domain.Document
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, file_name, content_type, size_bytes, storage_key, uploaded_by, created_at
		FROM lead_documents
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3
	`, documentID, leadID, agencyID).Scan(
		&doc.ID, &doc.LeadID, &doc.FileName, &doc.ContentType, &doc.SizeBytes,
		&doc.StorageKey, &doc.UploadedBy, &doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, ErrNotFound
	}
	return doc, err
}

func (r *Repository) ListDocuments(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, file_name, content_type, size_bytes, storage_key, uploaded_by, created_at
		FROM lead_documents
		WHERE lead_id = $1 AND agency_id = $2
		ORDER BY created_at DESC
	`, leadID, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(
			&doc.ID, &doc.LeadID, &doc.FileName, &doc.ContentType, &doc.SizeBytes,
			&doc.StorageKey, &doc.UploadedBy, &doc.CreatedAt,
		); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return docs, nil
}

// DeleteDocument removes the metadata row and returns it so the caller can
// clean up object storage.
func (r *Repository) DeleteDocument(ctx context.Context, documentID, leadID, agencyID uuid.UUID, activity []ActivityParams) (domain.Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Document{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var doc domain.Document
	err = tx.QueryRow(ctx, `
		DELETE FROM lead_documents
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3
		RETURNING id, lead_id, file_name, content_type, size_bytes, storage_key, uploaded_by, created_at
	`, documentID, leadID, agencyID).Scan(
		&doc.ID, &doc.LeadID, &doc.FileName, &doc.ContentType, &doc.SizeBytes,
		&doc.StorageKey, &doc.UploadedBy, &doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, ErrNotFound
	}
	if err != nil {
		return domain.Document{}, err
	}

	if err := insertActivity(ctx, tx, leadID, agencyID, activity); err != nil {
		return domain.Document{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}
