// Package scheduling owns the site-visit sub-lifecycle: booking,
// rescheduling, completion, cancellation, and the overdue no-show sweep.
// This is a vertically sliced feature package beside the lifecycle service;
// it shares the lead repository and guard but carries its own orchestration.
package scheduling

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
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/logger"
	"estatedesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Repository is the slice of persistence the visit lifecycle needs.
// This is a consumer-driven interface - only what scheduling needs.
type Repository interface {
	GetByIDUnscoped(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	repository.VisitStore
	repository.ActivityStore
}

// Assignments is the slice of the lifecycle service used to route an
// unassigned lead before its first visit. Satisfied by *service.Service.
type Assignments interface {
	AutoAssign(ctx context.Context, actor access.Actor, id uuid.UUID, req transport.AutoAssignRequest) (transport.LeadResponse, error)
}

// Service handles the visit operations on leads.
type Service struct {
	repo        Repository
	assignments Assignments
	guard       *access.Evaluator
	bus         events.Bus
	log         *logger.Logger
}

// New creates a visit scheduling service. A nil guard falls back to the
// built-in role policy.
func New(repo Repository, assignments Assignments, guard *access.Evaluator, bus events.Bus, log *logger.Logger) *Service {
	if guard == nil {
		guard = access.NewEvaluator(nil)
	}
	return &Service{
		repo:        repo,
		assignments: assignments,
		guard:       guard,
		bus:         bus,
		log:         log,
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

// authorize loads the lead without tenant scoping and runs the guard, so a
// cross-agency caller receives a tenant-mismatch denial rather than a 404.
func (s *Service) authorize(ctx context.Context, actor access.Actor, leadID uuid.UUID, action string) (domain.Lead, error) {
	lead, err := s.repo.GetByIDUnscoped(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, err
	}

	if decision := s.guard.Evaluate(actor, access.ResourceFromLead(&lead, nil), action); !decision.Allowed {
		return domain.Lead{}, decision.Err()
	}
	return lead, nil
}

// ScheduleVisit books a new visit on the lead. An unassigned lead gets one
// routing attempt through the assignment engine first; a routing failure is
// logged and the visit is booked anyway. The lead's pipeline status advances
// to site_visit_scheduled only when it has not moved past qualification.
func (s *Service) ScheduleVisit(ctx context.Context, actor access.Actor, leadID uuid.UUID, req transport.ScheduleVisitRequest) (transport.VisitResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.VisitResponse{}, err
	}

	scheduledDate := req.ScheduledDate.UTC()
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if scheduledDate.Truncate(24 * time.Hour).Before(today) {
		return transport.VisitResponse{}, apperr.Validation("cannot schedule a visit in the past")
	}

	if lead.AssignedTo == nil && s.assignments != nil {
		routed, err := s.assignments.AutoAssign(ctx, actor, leadID, transport.AutoAssignRequest{})
		if err != nil {
			s.log.Warn("pre-visit assignment failed", "leadId", leadID.String(), "error", err.Error())
		} else {
			lead.AssignedTo = routed.AssignedTo
		}
	}

	propertyName := sanitize.Text(req.PropertyName)
	if propertyName == "" {
		propertyName = lead.PropertyName
	}

	advance := domain.VisitStatusAdvancesLead(lead.Status)
	visit, err := s.repo.AddVisit(ctx, repository.AddVisitParams{
		LeadID:              leadID,
		AgencyID:            lead.AgencyID,
		PropertyID:          req.PropertyID.Value,
		PropertyName:        propertyName,
		ScheduledDate:       scheduledDate,
		ScheduledTime:       sanitize.Text(req.ScheduledTime),
		RelationshipManager: req.RelationshipManager.Value,
		CreatedBy:           actorRef(actor),
		AdvanceLeadStatus:   advance,
		Activity: []repository.ActivityParams{{
			Action:      domain.ActivityVisitBooked,
			Description: fmt.Sprintf("visit scheduled for %s", scheduledDate.Format("2006-01-02")),
			PerformedBy: actorRef(actor),
		}},
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.VisitResponse{}, apperr.NotFound("lead not found")
		}
		return transport.VisitResponse{}, err
	}

	if advance {
		s.publish(ctx, events.LeadStatusChanged{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     leadID,
			AgencyID:   lead.AgencyID,
			LeadNumber: lead.LeadNumber,
			FromStatus: lead.Status,
			ToStatus:   domain.StatusSiteVisitScheduled,
			ChangedBy:  actorRef(actor),
			Automatic:  true,
		})
	}
	s.publish(ctx, events.VisitScheduled{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       leadID,
		AgencyID:     lead.AgencyID,
		VisitID:      visit.ID,
		PropertyName: visit.PropertyName,
		ScheduledAt:  visit.ScheduledDate,
		AgentID:      lead.AssignedTo,
	})

	return toVisitResponse(visit), nil
}

// CompleteVisit records the outcome of a visit. Scheduled and no-show visits
// can be completed; the sweep only knows the date passed, not whether the
// prospect showed up late. Completing advances site_visit_scheduled leads to
// site_visit_completed.
func (s *Service) CompleteVisit(ctx context.Context, actor access.Actor, leadID, visitID uuid.UUID, req transport.CompleteVisitRequest) (transport.VisitResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.VisitResponse{}, err
	}

	visit, err := s.repo.GetVisit(ctx, visitID, leadID, lead.AgencyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.VisitResponse{}, apperr.NotFound("visit not found")
		}
		return transport.VisitResponse{}, err
	}
	switch visit.Status {
	case domain.VisitCompleted:
		return transport.VisitResponse{}, apperr.Validation("visit is already completed")
	case domain.VisitCancelled:
		return transport.VisitResponse{}, apperr.Validation("cancelled visits cannot be completed")
	}

	now := time.Now().UTC()
	if visit.ScheduledDate.After(now) {
		return transport.VisitResponse{}, apperr.Validation("cannot complete a visit scheduled in the future")
	}

	completedDate := now
	if req.CompletedDate != nil {
		completedDate = req.CompletedDate.UTC()
	}
	interest := strings.ToLower(strings.TrimSpace(req.InterestLevel))
	if interest != "" && !domain.IsKnownInterestLevel(interest) {
		return transport.VisitResponse{}, apperr.Validation(fmt.Sprintf("unknown interest level %q", req.InterestLevel))
	}

	advance := lead.Status == domain.StatusSiteVisitScheduled
	description := "visit completed"
	if interest != "" {
		description = fmt.Sprintf("visit completed, interest %s", interest)
	}

	updated, err := s.repo.CompleteVisit(ctx, repository.CompleteVisitParams{
		VisitID:           visitID,
		LeadID:            leadID,
		AgencyID:          lead.AgencyID,
		CompletedDate:     completedDate,
		Feedback:          sanitize.Text(req.Feedback),
		InterestLevel:     interest,
		NextAction:        sanitize.Text(req.NextAction),
		AdvanceLeadStatus: advance,
		Activity: []repository.ActivityParams{{
			Action:      domain.ActivityVisitDone,
			Field:       "visitStatus",
			OldValue:    visit.Status,
			NewValue:    domain.VisitCompleted,
			Description: description,
			PerformedBy: actorRef(actor),
		}},
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.VisitResponse{}, apperr.NotFound("visit not found")
		}
		return transport.VisitResponse{}, err
	}

	if advance {
		s.publish(ctx, events.LeadStatusChanged{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     leadID,
			AgencyID:   lead.AgencyID,
			LeadNumber: lead.LeadNumber,
			FromStatus: domain.StatusSiteVisitScheduled,
			ToStatus:   domain.StatusSiteVisitCompleted,
			ChangedBy:  actorRef(actor),
			Automatic:  true,
		})
	}
	s.publish(ctx, events.VisitCompleted{
		BaseEvent:     events.NewBaseEvent(),
		LeadID:        leadID,
		AgencyID:      lead.AgencyID,
		VisitID:       updated.ID,
		InterestLevel: interest,
	})

	return toVisitResponse(updated), nil
}

// CancelVisit calls off a visit, keeping it in the history. Cancelling an
// already-cancelled visit is a no-op; completed visits cannot be cancelled.
func (s *Service) CancelVisit(ctx context.Context, actor access.Actor, leadID, visitID uuid.UUID, req transport.CancelVisitRequest) (transport.VisitResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.VisitResponse{}, err
	}

	visit, err := s.repo.GetVisit(ctx, visitID, leadID, lead.AgencyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.VisitResponse{}, apperr.NotFound("visit not found")
		}
		return transport.VisitResponse{}, err
	}
	if visit.Status == domain.VisitCancelled {
		return toVisitResponse(visit), nil
	}
	if visit.Status == domain.VisitCompleted {
		return transport.VisitResponse{}, apperr.Validation("completed visits cannot be cancelled")
	}

	reason := sanitize.Text(req.Reason)
	description := "visit cancelled"
	if reason != "" {
		description = "visit cancelled: " + reason
	}

	updated, err := s.repo.CancelVisit(ctx, visitID, leadID, lead.AgencyID, time.Now().UTC(), []repository.ActivityParams{{
		Action:      domain.ActivityVisitDropped,
		Field:       "visitStatus",
		OldValue:    visit.Status,
		NewValue:    domain.VisitCancelled,
		Description: description,
		PerformedBy: actorRef(actor),
	}})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.VisitResponse{}, apperr.NotFound("visit not found")
		}
		return transport.VisitResponse{}, err
	}

	s.publish(ctx, events.VisitCancelled{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		AgencyID:  lead.AgencyID,
		VisitID:   updated.ID,
		Reason:    reason,
	})

	return toVisitResponse(updated), nil
}

// UpdateVisit reschedules or edits a visit that is still in scheduled state.
func (s *Service) UpdateVisit(ctx context.Context, actor access.Actor, leadID, visitID uuid.UUID, req transport.UpdateVisitRequest) (transport.VisitResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionEdit)
	if err != nil {
		return transport.VisitResponse{}, err
	}

	visit, err := s.repo.GetVisit(ctx, visitID, leadID, lead.AgencyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.VisitResponse{}, apperr.NotFound("visit not found")
		}
		return transport.VisitResponse{}, err
	}
	if visit.Status != domain.VisitScheduled {
		return transport.VisitResponse{}, apperr.Validation("only scheduled visits can be edited")
	}

	params := repository.UpdateVisitParams{
		VisitID:  visitID,
		LeadID:   leadID,
		AgencyID: lead.AgencyID,
	}
	description := "visit updated"
	if req.ScheduledDate != nil {
		date := req.ScheduledDate.UTC()
		today := time.Now().UTC().Truncate(24 * time.Hour)
		if date.Truncate(24 * time.Hour).Before(today) {
			return transport.VisitResponse{}, apperr.Validation("cannot schedule a visit in the past")
		}
		params.ScheduledDate = &date
		description = fmt.Sprintf("visit rescheduled to %s", date.Format("2006-01-02"))
	}
	if req.ScheduledTime != nil {
		scheduledTime := sanitize.Text(*req.ScheduledTime)
		params.ScheduledTime = &scheduledTime
	}
	if req.PropertyID.Set {
		params.PropertyID = req.PropertyID.Value
		params.PropertyIDSet = true
	}
	if req.PropertyName != nil {
		name := sanitize.Text(*req.PropertyName)
		params.PropertyName = &name
	}
	if req.RelationshipManager.Set {
		params.RelationshipManager = req.RelationshipManager.Value
		params.RelationshipMgrSet = true
	}
	if req.NextAction != nil {
		nextAction := sanitize.Text(*req.NextAction)
		params.NextAction = &nextAction
	}
	params.Activity = []repository.ActivityParams{{
		Action:      domain.ActivityVisitUpdated,
		Description: description,
		PerformedBy: actorRef(actor),
	}}

	updated, err := s.repo.UpdateVisit(ctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.VisitResponse{}, apperr.NotFound("visit not found")
		}
		return transport.VisitResponse{}, err
	}
	return toVisitResponse(updated), nil
}

// DeleteVisit removes a visit row entirely. Cancellation is the normal path;
// removal is for entries that should never have existed, so it requires
// delete permission rather than edit. No event is published: subscribers
// already heard about the visit's real lifecycle, an erased entry has none.
func (s *Service) DeleteVisit(ctx context.Context, actor access.Actor, leadID, visitID uuid.UUID) error {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionDelete)
	if err != nil {
		return err
	}

	err = s.repo.DeleteVisit(ctx, visitID, leadID, lead.AgencyID, []repository.ActivityParams{{
		Action:      domain.ActivityVisitDropped,
		Description: "visit removed",
		PerformedBy: actorRef(actor),
	}})
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("visit not found")
	}
	return err
}

// ListVisits returns the lead's visit history, oldest first, with the
// derived current-visit pointer.
func (s *Service) ListVisits(ctx context.Context, actor access.Actor, leadID uuid.UUID) (transport.VisitListResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionView)
	if err != nil {
		return transport.VisitListResponse{}, err
	}

	visits, err := s.repo.ListVisits(ctx, leadID, lead.AgencyID)
	if err != nil {
		return transport.VisitListResponse{}, err
	}

	items := make([]transport.VisitResponse, 0, len(visits))
	for _, visit := range visits {
		items = append(items, toVisitResponse(visit))
	}
	resp := transport.VisitListResponse{Items: items}
	if current := domain.CurrentVisit(visits); current != nil {
		currentResp := toVisitResponse(*current)
		resp.Current = &currentResp
	}
	return resp, nil
}

// NoShowResult identifies a visit the overdue sweep flagged, with the lead
// it belongs to so callers can queue follow-up work.
type NoShowResult struct {
	VisitID  uuid.UUID
	LeadID   uuid.UUID
	AgencyID uuid.UUID
}

// SweepNoShows flags scheduled visits whose day has fully passed and returns
// the flagged set. Runs from the worker with no actor; the lead's pipeline
// status is left alone. Races with a concurrent completion or cancellation
// are resolved by the status-gated update and skipped.
func (s *Service) SweepNoShows(ctx context.Context, limit int) ([]NoShowResult, error) {
	cutoff := time.Now().UTC().Truncate(24 * time.Hour)
	overdue, err := s.repo.ListOverdueScheduled(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}

	swept := make([]NoShowResult, 0, len(overdue))
	for _, item := range overdue {
		_, err := s.repo.MarkVisitNoShow(ctx, item.Visit.ID, item.Visit.LeadID, item.AgencyID, []repository.ActivityParams{{
			Action:      domain.ActivityVisitUpdated,
			Field:       "visitStatus",
			OldValue:    domain.VisitScheduled,
			NewValue:    domain.VisitNoShow,
			Description: "visit marked no-show by overdue sweep",
		}})
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			s.log.Warn("no-show sweep failed for visit", "visitId", item.Visit.ID.String(), "error", err.Error())
			continue
		}
		swept = append(swept, NoShowResult{VisitID: item.Visit.ID, LeadID: item.Visit.LeadID, AgencyID: item.AgencyID})
	}
	return swept, nil
}

func toVisitResponse(visit domain.SiteVisit) transport.VisitResponse {
	return transport.VisitResponse{
		ID:                  visit.ID,
		LeadID:              visit.LeadID,
		PropertyID:          visit.PropertyID,
		PropertyName:        visit.PropertyName,
		ScheduledDate:       visit.ScheduledDate,
		ScheduledTime:       visit.ScheduledTime,
		Status:              visit.Status,
		CompletedDate:       visit.CompletedDate,
		CancelledDate:       visit.CancelledDate,
		Feedback:            visit.Feedback,
		InterestLevel:       visit.InterestLevel,
		NextAction:          visit.NextAction,
		RelationshipManager: visit.RelationshipManager,
		CreatedBy:           visit.CreatedBy,
		CreatedAt:           visit.CreatedAt,
		UpdatedAt:           visit.UpdatedAt,
	}
}

func actorRef(actor access.Actor) *uuid.UUID {
	if actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}
