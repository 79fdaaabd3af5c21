package repository

import (
	"context"

	"github.com/google/uuid"
)

// NextRotation atomically advances the agency's round-robin cursor and
// returns its new position. A fresh agency starts at zero, which maps to its
// oldest active agent.
func (r *Repository) NextRotation(ctx context.Context, agencyID uuid.UUID) (int64, error) {
	var value int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_rotation (agency_id, value) VALUES ($1, 0)
		ON CONFLICT (agency_id) DO UPDATE SET value = lead_rotation.value + 1
		RETURNING value
	`, agencyID).Scan(&value)
	return value, err
}
