package repository

import "context"

// NextLeadNumber advances the global lead number sequence and returns the new
// value. The upsert is atomic, so concurrent creates never receive the same
// number from the counter itself; collisions can still occur against imported
// or merged historical numbers and surface as ErrDuplicateNumber on insert.
func (r *Repository) NextLeadNumber(ctx context.Context) (int64, error) {
	var value int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_counters (name, value) VALUES ('lead_number', 1)
		ON CONFLICT (name) DO UPDATE SET value = lead_counters.value + 1
		RETURNING value
	`).Scan(&value)
	return value, err
}
