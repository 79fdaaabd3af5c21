package service

import (
	"context"
	"errors"
	"fmt"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/repository"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Assign sets or clears the lead's agent by explicit choice. The chosen
// agent is validated hard: unknown, inactive, or cross-agency agents are
// validation errors, never silent fallbacks.
func (s *Service) Assign(ctx context.Context, actor access.Actor, id uuid.UUID, req transport.AssignLeadRequest) (transport.LeadResponse, error) {
	lead, err := s.authorize(ctx, actor, id, domain.ActionEdit)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	upd := repository.AssignmentUpdate{}
	performedBy := actorRef(actor)
	var activity []repository.ActivityParams

	if req.Team != nil {
		team := sanitize.Text(*req.Team)
		upd.Team = &team
	}

	if req.AgentID.Value != nil {
		agent, err := s.validateAgent(ctx, lead.AgencyID, *req.AgentID.Value)
		if err != nil {
			return transport.LeadResponse{}, err
		}
		upd.AgentID = &agent.ID
		// The agent's team label propagates unless the lead already carries
		// one or the request overrides it.
		if req.Team == nil && lead.Team == "" && agent.Team != "" {
			upd.Team = &agent.Team
		}
		if !sameAgent(lead.AssignedTo, &agent.ID) {
			activity = append(activity, repository.ActivityParams{
				Action:      domain.ActivityAssigned,
				Field:       "assignedTo",
				OldValue:    formatUUIDRef(lead.AssignedTo),
				NewValue:    agent.ID.String(),
				Description: "assigned to " + agent.Name,
				PerformedBy: performedBy,
			})
		}
	} else if lead.AssignedTo != nil {
		activity = append(activity, repository.ActivityParams{
			Action:      domain.ActivityUnassigned,
			Field:       "assignedTo",
			OldValue:    formatUUIDRef(lead.AssignedTo),
			Description: "assignment cleared",
			PerformedBy: performedBy,
		})
	}

	updated, err := s.repo.UpdateAssignment(ctx, lead.ID, lead.AgencyID, upd, activity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	if updated.AssignedTo != nil && !sameAgent(lead.AssignedTo, updated.AssignedTo) {
		s.publish(ctx, events.LeadAssigned{
			BaseEvent:       events.NewBaseEvent(),
			LeadID:          updated.ID,
			AgencyID:        updated.AgencyID,
			LeadNumber:      updated.LeadNumber,
			AgentID:         *updated.AssignedTo,
			PreviousAgentID: lead.AssignedTo,
			Method:          "manual",
		})
	}

	return toLeadResponse(updated), nil
}

// AutoAssign routes the lead through the assignment engine using the
// requested method, the agency's configured one, or round-robin in that
// order. No eligible agent is not an error: the lead comes back unchanged.
func (s *Service) AutoAssign(ctx context.Context, actor access.Actor, id uuid.UUID, req transport.AutoAssignRequest) (transport.LeadResponse, error) {
	lead, err := s.authorize(ctx, actor, id, domain.ActionEdit)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	method := req.Method
	if method == "" {
		settings, err := s.directory.AgencySettings(ctx, lead.AgencyID)
		if err != nil {
			s.log.Warn("agency settings unavailable, using round-robin", "agencyId", lead.AgencyID.String(), "error", err.Error())
		} else if settings.AssignmentMethod != "" {
			method = settings.AssignmentMethod
		}
		if method == "" {
			method = domain.AssignRoundRobin
		}
	}

	selection, err := s.assigner.Assign(ctx, lead.AgencyID, method, &lead)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	if selection == nil {
		return toLeadResponse(lead), nil
	}

	// Commit-time re-validation: the selection is moments old and the agent
	// could have been deactivated or moved since.
	agent, err := s.validateAgent(ctx, lead.AgencyID, selection.Agent.ID)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	upd := repository.AssignmentUpdate{AgentID: &agent.ID}
	if lead.Team == "" && agent.Team != "" {
		upd.Team = &agent.Team
	}

	var activity []repository.ActivityParams
	if !sameAgent(lead.AssignedTo, &agent.ID) {
		activity = append(activity, repository.ActivityParams{
			Action:      domain.ActivityAssigned,
			Field:       "assignedTo",
			OldValue:    formatUUIDRef(lead.AssignedTo),
			NewValue:    agent.ID.String(),
			Description: fmt.Sprintf("assigned to %s via %s", agent.Name, selection.Method),
			PerformedBy: actorRef(actor),
		})
	}

	updated, err := s.repo.UpdateAssignment(ctx, lead.ID, lead.AgencyID, upd, activity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	if updated.AssignedTo != nil && !sameAgent(lead.AssignedTo, updated.AssignedTo) {
		s.log.AssignmentEvent(selection.Method, updated.AgencyID.String(), updated.ID.String(), agent.ID.String())
		s.publish(ctx, events.LeadAssigned{
			BaseEvent:       events.NewBaseEvent(),
			LeadID:          updated.ID,
			AgencyID:        updated.AgencyID,
			LeadNumber:      updated.LeadNumber,
			AgentID:         *updated.AssignedTo,
			PreviousAgentID: lead.AssignedTo,
			Method:          selection.Method,
		})
	}

	return toLeadResponse(updated), nil
}

func sameAgent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
