// Package repository provides read access to the agency and user directory.
// Directory rows are owned by the provisioning system; this module only ever
// reads them.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AgencySettings are the tenant-level knobs the lead engine consults.
type AgencySettings struct {
	AutoAssignLeads    bool   `json:"autoAssignLeads"`
	AssignmentMethod   string `json:"assignmentMethod"`
	SMSNotifications   bool   `json:"smsNotifications"`
	EmailNotifications bool   `json:"emailNotifications"`
	Currency           string `json:"currency"`
	Timezone           string `json:"timezone"`
}

// DefaultSettings apply when an agency has no settings row content.
func DefaultSettings() AgencySettings {
	return AgencySettings{
		AutoAssignLeads:    true,
		AssignmentMethod:   "round_robin",
		SMSNotifications:   false,
		EmailNotifications: true,
		Currency:           "INR",
		Timezone:           "Asia/Kolkata",
	}
}

type Agency struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Settings  AgencySettings
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID         uuid.UUID
	AgencyID   *uuid.UUID
	Name       string
	Email      string
	Phone      string
	Role       string
	Team       string
	Locations  []string
	IsActive   bool
	IsTeamLead bool
	CreatedAt  time.Time
}

const userColumns = `id, agency_id, name, email, phone, role, team, locations, is_active, is_team_lead, created_at`

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.AgencyID, &user.Name, &user.Email, &user.Phone,
		&user.Role, &user.Team, &user.Locations, &user.IsActive, &user.IsTeamLead,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *Repository) GetAgency(ctx context.Context, id uuid.UUID) (Agency, error) {
	var agency Agency
	var settings []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, settings, is_active, created_at, updated_at
		FROM agencies
		WHERE id = $1
	`, id).Scan(
		&agency.ID, &agency.Name, &agency.Email, &agency.Phone,
		&settings, &agency.IsActive, &agency.CreatedAt, &agency.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agency{}, ErrNotFound
	}
	if err != nil {
		return Agency{}, err
	}

	agency.Settings = DefaultSettings()
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &agency.Settings); err != nil {
			return Agency{}, err
		}
	}
	return agency, nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
}

// FindActiveAgents returns the agency's active agents in creation order.
// Round-robin rotation depends on this ordering being stable.
func (r *Repository) FindActiveAgents(ctx context.Context, agencyID uuid.UUID) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE agency_id = $1 AND role = 'agent' AND is_active = true
		ORDER BY created_at ASC
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, user)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return agents, nil
}

// ListUsers returns every user in the agency, active or not.
func (r *Repository) ListUsers(ctx context.Context, agencyID uuid.UUID) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE agency_id = $1
		ORDER BY created_at ASC
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return users, nil
}

// PropertyAgents returns the ids of agents assigned to a property listing.
// Used by the project assignment strategy; an unknown property id simply
// yields an empty list.
func (r *Repository) PropertyAgents(ctx context.Context, propertyID uuid.UUID) ([]uuid.UUID, error) {
	var agents []uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(assigned_agents, '{}')
		FROM properties
		WHERE id = $1
	`, propertyID).Scan(&agents)
	if errors.Is(err, pgx.ErrNoRows) {
		return []uuid.UUID{}, nil
	}
	if err != nil {
		return nil, err
	}
	return agents, nil
}
