package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/repository"
	"estatedesk_backend/internal/leads/scoring"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/phone"
	"estatedesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

// CreateResult distinguishes a fresh lead from a re-engaged duplicate.
type CreateResult struct {
	Lead transport.LeadResponse
	// ReEngaged is true when a recent lead with the same contact details
	// absorbed this inquiry instead of a new record being created.
	ReEngaged bool
}

// Create runs the intake pipeline: normalize, duplicate check, assignment,
// scoring, persist, events. A scoring or assignment problem degrades to an
// unassigned or default-scored lead; it never fails the create.
func (s *Service) Create(ctx context.Context, actor access.Actor, req transport.CreateLeadRequest) (CreateResult, error) {
	if actor.AgencyID == nil {
		return CreateResult{}, apperr.Forbidden("no agency context").WithCode(access.ReasonNoAgency)
	}
	agencyID := *actor.AgencyID

	req.Name = sanitize.Text(req.Name)
	req.Phone = phone.NormalizeE164(req.Phone)
	req.AltPhone = phone.NormalizeE164(req.AltPhone)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Message = sanitize.Text(req.Message)
	req.SourceDetails = sanitize.Text(req.SourceDetails)
	req.PropertyName = sanitize.Text(req.PropertyName)
	req.Team = sanitize.Text(req.Team)

	// Re-engagement: a recent lead with the same phone or email absorbs the
	// new inquiry instead of spawning a duplicate record. Read-then-decide;
	// the race with a concurrent identical create is a documented tolerance,
	// not a bug to lock away.
	existing, err := s.repo.FindRecentByContact(ctx, agencyID, req.Phone, req.Email, time.Now().Add(-duplicateWindow))
	if err != nil {
		return CreateResult{}, err
	}
	if existing != nil {
		return s.reEngage(ctx, actor, existing, req)
	}

	draft := domain.Lead{
		AgencyID:           agencyID,
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		AltPhone:           req.AltPhone,
		Status:             domain.StatusNew,
		Source:             domain.NormalizeSource(req.Source),
		SourceDetails:      req.SourceDetails,
		Team:               req.Team,
		PropertyID:         req.PropertyID.Value,
		PropertyName:       req.PropertyName,
		BudgetMin:          req.BudgetMin,
		BudgetMax:          req.BudgetMax,
		Timeline:           strings.ToLower(strings.TrimSpace(req.Timeline)),
		PreferredLocations: cleanList(req.PreferredLocations),
		PropertyTypes:      cleanList(req.PropertyTypes),
		Message:            req.Message,
	}

	assignedTo, team, method, err := s.resolveIntakeAssignment(ctx, agencyID, &draft, req)
	if err != nil {
		return CreateResult{}, err
	}
	if team != "" && draft.Team == "" {
		draft.Team = team
	}

	result := scoring.Compute(scoring.InputFromLead(&draft, 0))
	priority := result.Priority
	if req.Priority != "" {
		priority = domain.NormalizePriority(req.Priority)
	}

	threshold := s.defaultSLA
	if req.SLAMinutes != nil {
		threshold = time.Duration(*req.SLAMinutes) * time.Minute
	}

	// Entry permissions persist only when explicitly supplied: a stored flag
	// is an override that preempts the role table, so writing defaults here
	// would freeze today's policy into every record.
	perms := fromPermissionFlags(req.EntryPermissions)

	activity := []repository.ActivityParams{{
		Action:      domain.ActivityCreated,
		Description: fmt.Sprintf("lead created from %s", draft.Source),
		PerformedBy: actorRef(actor),
	}}
	if assignedTo != nil {
		activity = append(activity, repository.ActivityParams{
			Action:      domain.ActivityAssigned,
			Field:       "assignedTo",
			NewValue:    assignedTo.String(),
			Description: fmt.Sprintf("assigned via %s", method),
			PerformedBy: actorRef(actor),
		})
	}

	params := repository.CreateLeadParams{
		AgencyID:           agencyID,
		Name:               draft.Name,
		Email:              draft.Email,
		Phone:              draft.Phone,
		AltPhone:           draft.AltPhone,
		Status:             domain.StatusNew,
		Priority:           priority,
		Source:             draft.Source,
		SourceDetails:      draft.SourceDetails,
		AssignedTo:         assignedTo,
		ManagerID:          req.ManagerID.Value,
		Team:               draft.Team,
		PropertyID:         draft.PropertyID,
		PropertyName:       draft.PropertyName,
		BudgetMin:          draft.BudgetMin,
		BudgetMax:          draft.BudgetMax,
		Timeline:           draft.Timeline,
		PreferredLocations: draft.PreferredLocations,
		PropertyTypes:      draft.PropertyTypes,
		Message:            draft.Message,
		Score:              result.Score,
		ScoreDetails:       &result.Details,
		FirstContactSLA:    threshold,
		EntryPermissions:   perms,
		CreatedBy:          actorRef(actor),
		Activity:           activity,
	}

	lead, err := s.createWithNumber(ctx, params)
	if err != nil {
		return CreateResult{}, err
	}

	s.publish(ctx, events.LeadCreated{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		AgencyID:   lead.AgencyID,
		LeadNumber: lead.LeadNumber,
		Name:       lead.Name,
		Source:     lead.Source,
		Priority:   lead.Priority,
		Score:      lead.Score,
		AssignedTo: lead.AssignedTo,
	})
	if lead.AssignedTo != nil {
		s.publish(ctx, events.LeadAssigned{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     lead.ID,
			AgencyID:   lead.AgencyID,
			LeadNumber: lead.LeadNumber,
			AgentID:    *lead.AssignedTo,
			Method:     method,
		})
	}

	return CreateResult{Lead: toLeadResponse(lead)}, nil
}

// resolveIntakeAssignment decides who, if anyone, the new lead goes to. An
// explicitly named agent is validated hard; automatic assignment degrades to
// unassigned on any failure.
func (s *Service) resolveIntakeAssignment(ctx context.Context, agencyID uuid.UUID, draft *domain.Lead, req transport.CreateLeadRequest) (*uuid.UUID, string, string, error) {
	if req.AssignedTo.Set && req.AssignedTo.Value != nil {
		agent, err := s.validateAgent(ctx, agencyID, *req.AssignedTo.Value)
		if err != nil {
			return nil, "", "", err
		}
		return &agent.ID, agent.Team, "manual", nil
	}
	if req.SkipAutoAssign {
		return nil, "", "", nil
	}

	settings, err := s.directory.AgencySettings(ctx, agencyID)
	if err != nil {
		s.log.Warn("agency settings unavailable, skipping auto-assignment", "agencyId", agencyID.String(), "error", err.Error())
		return nil, "", "", nil
	}
	if !settings.AutoAssignLeads {
		return nil, "", "", nil
	}

	selection, err := s.assigner.Assign(ctx, agencyID, settings.AssignmentMethod, draft)
	if err != nil {
		s.log.Warn("auto-assignment failed, leaving lead unassigned", "agencyId", agencyID.String(), "error", err.Error())
		return nil, "", "", nil
	}
	if selection == nil {
		return nil, "", "", nil
	}
	return &selection.Agent.ID, selection.Agent.Team, selection.Method, nil
}

// validateAgent confirms an explicitly chosen agent exists, is active, and
// belongs to the lead's agency. Violations are hard validation errors.
func (s *Service) validateAgent(ctx context.Context, agencyID, agentID uuid.UUID) (Agent, error) {
	agent, err := s.directory.AgentByID(ctx, agentID)
	if err != nil {
		return Agent{}, apperr.Validation("assigned agent not found")
	}
	if !agent.IsActive {
		return Agent{}, apperr.Validation("assigned agent is not active")
	}
	if agent.AgencyID == nil || *agent.AgencyID != agencyID {
		return Agent{}, apperr.Validation("assigned agent belongs to a different agency")
	}
	return agent, nil
}

// createWithNumber inserts the lead under a freshly issued sequence number,
// retrying on collision. Number generation must never block creation: after
// the retries are spent (possible against imported historical numbers) a
// time-based identifier takes over.
func (s *Service) createWithNumber(ctx context.Context, params repository.CreateLeadParams) (domain.Lead, error) {
	for attempt := 0; attempt < leadNumberAttempts; attempt++ {
		seq, err := s.repo.NextLeadNumber(ctx)
		if err != nil {
			return domain.Lead{}, err
		}
		params.LeadNumber = fmt.Sprintf("LEAD-%06d", seq)

		lead, err := s.repo.Create(ctx, params)
		if err == nil {
			return lead, nil
		}
		if !errors.Is(err, repository.ErrDuplicateNumber) {
			return domain.Lead{}, err
		}
		s.log.Warn("lead number collision, retrying", "leadNumber", params.LeadNumber)
	}

	params.LeadNumber = fmt.Sprintf("LEAD-%d", time.Now().UnixNano())
	return s.repo.Create(ctx, params)
}

// reEngage records a repeat inquiry on an existing lead: a note documents
// the new contact and a forced re-score reflects the renewed interest.
func (s *Service) reEngage(ctx context.Context, actor access.Actor, existing *domain.Lead, req transport.CreateLeadRequest) (CreateResult, error) {
	body := fmt.Sprintf("Repeat inquiry received via %s", domain.NormalizeSource(req.Source))
	if req.Message != "" {
		body = fmt.Sprintf("%s: %s", body, req.Message)
	}

	_, err := s.repo.AddNote(ctx, repository.AddNoteParams{
		LeadID:    existing.ID,
		AgencyID:  existing.AgencyID,
		Body:      body,
		CreatedBy: actorRef(actor),
		Activity: []repository.ActivityParams{{
			Action:      domain.ActivityNoteAdded,
			Description: "repeat inquiry recorded",
			PerformedBy: actorRef(actor),
		}},
	})
	if err != nil {
		return CreateResult{}, err
	}

	// Forced: renewed interest always moves priority to the recommendation,
	// regardless of what the original intake supplied.
	if result := s.rescore(ctx, existing.ID, existing.AgencyID, existing.Score, true, nil); result != nil {
		existing.Score = result.Score
		existing.ScoreDetails = &result.Details
		existing.Priority = result.Priority
	}
	return CreateResult{Lead: toLeadResponse(*existing), ReEngaged: true}, nil
}

// cleanList sanitizes list entries and drops the empties.
func cleanList(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if cleaned := sanitize.Text(v); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
