// Package adapters bridges the leads module to its sibling modules without
// importing their services directly. Each adapter narrows a foreign
// repository down to the interface a lead component consumes.
package adapters

import (
	"context"

	directoryrepo "estatedesk_backend/internal/directory/repository"
	"estatedesk_backend/internal/leads/assignment"
	"estatedesk_backend/internal/leads/service"

	"github.com/google/uuid"
)

// DirectoryAdapter exposes the agency/user directory to the lead lifecycle:
// tenant settings for intake behavior, user rows for assignment validation,
// and the active-agent roster for the assignment strategies.
type DirectoryAdapter struct {
	repo *directoryrepo.Repository
}

func NewDirectoryAdapter(repo *directoryrepo.Repository) *DirectoryAdapter {
	return &DirectoryAdapter{repo: repo}
}

// AgencySettings implements service.Directory.
func (a *DirectoryAdapter) AgencySettings(ctx context.Context, agencyID uuid.UUID) (service.AgencySettings, error) {
	agency, err := a.repo.GetAgency(ctx, agencyID)
	if err != nil {
		return service.AgencySettings{}, err
	}
	return service.AgencySettings{
		AutoAssignLeads:  agency.Settings.AutoAssignLeads,
		AssignmentMethod: agency.Settings.AssignmentMethod,
	}, nil
}

// AgentByID implements service.Directory.
func (a *DirectoryAdapter) AgentByID(ctx context.Context, id uuid.UUID) (service.Agent, error) {
	user, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return service.Agent{}, err
	}
	return service.Agent{
		ID:       user.ID,
		AgencyID: user.AgencyID,
		Name:     user.Name,
		Team:     user.Team,
		IsActive: user.IsActive,
	}, nil
}

// FindActiveAgents implements assignment.AgentDirectory. The repository
// returns agents in creation order, which the rotation cursor depends on.
func (a *DirectoryAdapter) FindActiveAgents(ctx context.Context, agencyID uuid.UUID) ([]assignment.Agent, error) {
	users, err := a.repo.FindActiveAgents(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	agents := make([]assignment.Agent, 0, len(users))
	for _, user := range users {
		agents = append(agents, assignment.Agent{
			ID:        user.ID,
			Name:      user.Name,
			Team:      user.Team,
			Locations: user.Locations,
		})
	}
	return agents, nil
}

var (
	_ service.Directory         = (*DirectoryAdapter)(nil)
	_ assignment.AgentDirectory = (*DirectoryAdapter)(nil)
)

// PropertyAdapter resolves project-based routing against the property
// listings table.
type PropertyAdapter struct {
	repo *directoryrepo.Repository
}

func NewPropertyAdapter(repo *directoryrepo.Repository) *PropertyAdapter {
	return &PropertyAdapter{repo: repo}
}

// AssignedAgents implements assignment.PropertyReader. An unknown property
// yields an empty list, never an error.
func (a *PropertyAdapter) AssignedAgents(ctx context.Context, propertyID uuid.UUID) ([]uuid.UUID, error) {
	return a.repo.PropertyAgents(ctx, propertyID)
}

var _ assignment.PropertyReader = (*PropertyAdapter)(nil)
