package repository

import (
	"context"
	"errors"
	"time"

	"estatedesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AddTaskParams struct {
	LeadID      uuid.UUID
	AgencyID    uuid.UUID
	Title       string
	Description string
	DueAt       *time.Time
	AssignedTo  *uuid.UUID
	CreatedBy   *uuid.UUID
	Activity    []ActivityParams
}

// AddTask creates a follow-up task in pending state.
func (r *Repository) AddTask(ctx context.Context, params AddTaskParams) (domain.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var task domain.Task
	err = tx.QueryRow(ctx, `
		INSERT INTO lead_tasks (lead_id, agency_id, title, description, due_at, assigned_to, created_by)
		SELECT l.id, l.agency_id, $3, $4, $5, $6, $7
		FROM leads l
		WHERE l.id = $1 AND l.agency_id = $2 AND l.deleted_at IS NULL
		RETURNING id, lead_id, title, description, status, due_at, assigned_to, created_by, created_at, updated_at
	`, params.LeadID, params.AgencyID, params.Title, params.Description, params.DueAt, params.AssignedTo, params.CreatedBy).Scan(
		&task.ID, &task.LeadID, &task.Title, &task.Description, &task.Status,
		&task.DueAt, &task.AssignedTo, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}

	if err := insertActivity(ctx, tx, params.LeadID, params.AgencyID, params.Activity); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (r *Repository) GetTask(ctx context.Context, taskID, leadID, agencyID uuid.UUID) (domain.Task, error) {
	var task domain.Task
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, title, description, status, due_at, assigned_to, created_by, created_at, updated_at
		FROM lead_tasks
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3
	`, taskID, leadID, agencyID).Scan(
		&task.ID, &task.LeadID, &task.Title, &task.Description, &task.Status,
		&task.DueAt, &task.AssignedTo, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	return task, err
}

// UpdateTaskStatus moves a task to a new status. Transition validity is the
// caller's responsibility; the repository only persists.
func (r *Repository) UpdateTaskStatus(ctx context.Context, taskID, leadID, agencyID uuid.UUID, status string, activity []ActivityParams) (domain.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var task domain.Task
	err = tx.QueryRow(ctx, `
		UPDATE lead_tasks
		SET status = $4, updated_at = now()
		WHERE id = $1 AND lead_id = $2 AND agency_id = $3
		RETURNING id, lead_id, title, description, status, due_at, assigned_to, created_by, created_at, updated_at
	`, taskID, leadID, agencyID, status).Scan(
		&task.ID, &task.LeadID, &task.Title, &task.Description, &task.Status,
		&task.DueAt, &task.AssignedTo, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}

	if err := insertActivity(ctx, tx, leadID, agencyID, activity); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (r *Repository) ListTasks(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, title, description, status, due_at, assigned_to, created_by, created_at, updated_at
		FROM lead_tasks
		WHERE lead_id = $1 AND agency_id = $2
		ORDER BY created_at DESC
	`, leadID, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		var task domain.Task
		if err := rows.Scan(
			&task.ID, &task.LeadID, &task.Title, &task.Description, &task.Status,
			&task.DueAt, &task.AssignedTo, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tasks, nil
}
