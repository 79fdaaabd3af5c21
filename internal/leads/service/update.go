package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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

// rescore recomputes and persists the lead's score after a triggering write.
// With overridePriority the stored priority follows the recommendation;
// otherwise it is left alone because the caller supplied one in the same
// request. Failures are logged and swallowed: scoring never blocks the
// operation that triggered it. Returns the result so callers can patch
// their response, or nil when nothing was persisted.
func (s *Service) rescore(ctx context.Context, leadID, agencyID uuid.UUID, oldScore int, overridePriority bool, activity []repository.ActivityParams) *scoring.Result {
	result, err := s.scorer.Recalculate(ctx, leadID, agencyID)
	if err != nil {
		s.log.Warn("rescore failed", "leadId", leadID.String(), "error", err.Error())
		return nil
	}

	upd := repository.ScoreUpdate{Score: result.Score, Details: result.Details}
	if overridePriority {
		upd.Priority = &result.Priority
	}
	if err := s.repo.SaveScore(ctx, leadID, agencyID, upd, activity); err != nil {
		s.log.Warn("persisting rescore failed", "leadId", leadID.String(), "error", err.Error())
		return nil
	}

	if result.Score != oldScore {
		s.publish(ctx, events.LeadRescored{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			AgencyID:  agencyID,
			OldScore:  oldScore,
			NewScore:  result.Score,
			Priority:  result.Priority,
		})
	}
	return result
}

// Update applies a partial edit: guard, renormalize, diff into audit
// entries, persist, re-score. Status and assignment have their own
// operations and are not touched here.
func (s *Service) Update(ctx context.Context, actor access.Actor, id uuid.UUID, req transport.UpdateLeadRequest) (transport.LeadResponse, error) {
	lead, err := s.authorize(ctx, actor, id, domain.ActionEdit)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	params := repository.UpdateLeadParams{}
	performedBy := actorRef(actor)
	var activity []repository.ActivityParams

	appendChange := func(field, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		activity = append(activity, repository.ActivityParams{
			Action:      domain.ActivityUpdated,
			Field:       field,
			OldValue:    oldValue,
			NewValue:    newValue,
			PerformedBy: performedBy,
		})
	}

	if req.Name != nil {
		name := sanitize.Text(*req.Name)
		params.Name = &name
		appendChange("name", lead.Name, name)
	}
	if req.Phone != nil {
		normalized := phone.NormalizeE164(*req.Phone)
		params.Phone = &normalized
		appendChange("phone", lead.Phone, normalized)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		params.Email = &email
		appendChange("email", lead.Email, email)
	}
	if req.AltPhone != nil {
		altPhone := phone.NormalizeE164(*req.AltPhone)
		params.AltPhone = &altPhone
		appendChange("altPhone", lead.AltPhone, altPhone)
	}

	// Priority and source are renormalized on every save so legacy stored
	// values converge to canonical ones even when the request leaves them
	// alone.
	priority := domain.NormalizePriority(lead.Priority)
	if req.Priority != nil {
		priority = domain.NormalizePriority(*req.Priority)
	}
	params.Priority = &priority
	appendChange("priority", lead.Priority, priority)

	source := domain.NormalizeSource(lead.Source)
	if req.Source != nil {
		source = domain.NormalizeSource(*req.Source)
	}
	params.Source = &source
	appendChange("source", lead.Source, source)

	if req.SourceDetails != nil {
		details := sanitize.Text(*req.SourceDetails)
		params.SourceDetails = &details
		appendChange("sourceDetails", lead.SourceDetails, details)
	}
	if req.PropertyID.Set {
		params.PropertyID = req.PropertyID.Value
		params.PropertyIDSet = true
		appendChange("propertyId", formatUUIDRef(lead.PropertyID), formatUUIDRef(req.PropertyID.Value))
	}
	if req.PropertyName != nil {
		name := sanitize.Text(*req.PropertyName)
		params.PropertyName = &name
		appendChange("propertyName", lead.PropertyName, name)
	}
	if req.BudgetMin.Set {
		params.BudgetMin = req.BudgetMin.Value
		params.BudgetMinSet = true
		appendChange("budgetMin", formatFloatRef(lead.BudgetMin), formatFloatRef(req.BudgetMin.Value))
	}
	if req.BudgetMax.Set {
		params.BudgetMax = req.BudgetMax.Value
		params.BudgetMaxSet = true
		appendChange("budgetMax", formatFloatRef(lead.BudgetMax), formatFloatRef(req.BudgetMax.Value))
	}
	if req.Timeline != nil {
		timeline := strings.ToLower(strings.TrimSpace(*req.Timeline))
		params.Timeline = &timeline
		appendChange("timeline", lead.Timeline, timeline)
	}
	if req.PreferredLocations != nil {
		locations := cleanList(req.PreferredLocations)
		params.PreferredLocations = locations
		appendChange("preferredLocations", strings.Join(lead.PreferredLocations, ", "), strings.Join(locations, ", "))
	}
	if req.PropertyTypes != nil {
		types := cleanList(req.PropertyTypes)
		params.PropertyTypes = types
		appendChange("propertyTypes", strings.Join(lead.PropertyTypes, ", "), strings.Join(types, ", "))
	}
	if req.Message != nil {
		message := sanitize.Text(*req.Message)
		params.Message = &message
		appendChange("message", lead.Message, message)
	}
	if req.ManagerID.Set {
		params.ManagerID = req.ManagerID.Value
		params.ManagerIDSet = true
		appendChange("managerId", formatUUIDRef(lead.ManagerID), formatUUIDRef(req.ManagerID.Value))
	}
	if req.Team != nil {
		team := sanitize.Text(*req.Team)
		params.Team = &team
		appendChange("team", lead.Team, team)
	}
	if req.BookingAmount.Set {
		params.BookingAmount = req.BookingAmount.Value
		params.BookingAmountSet = true
		appendChange("bookingAmount", formatFloatRef(lead.BookingAmount), formatFloatRef(req.BookingAmount.Value))
	}
	if req.SLAMinutes != nil {
		threshold := time.Duration(*req.SLAMinutes) * time.Minute
		params.FirstContactSLA = &threshold
		appendChange("firstContactSla", lead.FirstContactSLA.String(), threshold.String())
	}
	if req.EntryPermissions != nil {
		params.EntryPermissions = fromPermissionFlags(req.EntryPermissions)
		activity = append(activity, repository.ActivityParams{
			Action:      domain.ActivityUpdated,
			Field:       "entryPermissions",
			Description: "entry permissions updated",
			PerformedBy: performedBy,
		})
	}

	updated, err := s.repo.Update(ctx, lead.ID, lead.AgencyID, params, activity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	// Every edit triggers a re-score; a caller-supplied priority survives it.
	if result := s.rescore(ctx, lead.ID, lead.AgencyID, updated.Score, req.Priority == nil, nil); result != nil {
		updated.Score = result.Score
		updated.ScoreDetails = &result.Details
		if req.Priority == nil {
			updated.Priority = result.Priority
		}
	}

	return toLeadResponse(updated), nil
}

// UpdateStatus moves the lead to a caller-chosen pipeline status. The
// machine is advisory: any status is reachable for a caller with edit
// permission. Booking onto booked stamps convertedAt once.
func (s *Service) UpdateStatus(ctx context.Context, actor access.Actor, id uuid.UUID, req transport.UpdateLeadStatusRequest) (transport.LeadResponse, error) {
	lead, err := s.authorize(ctx, actor, id, domain.ActionEdit)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	newStatus := domain.NormalizeStatus(req.Status)
	if newStatus == lead.Status && req.BookingAmount == nil {
		return toLeadResponse(lead), nil
	}

	upd := repository.StatusUpdate{Status: newStatus, BookingAmount: req.BookingAmount}
	if newStatus == domain.StatusBooked && lead.ConvertedAt == nil {
		now := time.Now().UTC()
		upd.ConvertedAt = &now
	}

	description := sanitize.Text(req.Reason)
	if description == "" {
		description = fmt.Sprintf("status changed from %s to %s", lead.Status, newStatus)
	}
	activity := []repository.ActivityParams{{
		Action:      domain.ActivityStatusChanged,
		Field:       "status",
		OldValue:    lead.Status,
		NewValue:    newStatus,
		Description: description,
		PerformedBy: actorRef(actor),
	}}

	updated, err := s.repo.UpdateStatus(ctx, lead.ID, lead.AgencyID, upd, activity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	if updated.Status != lead.Status {
		s.publish(ctx, events.LeadStatusChanged{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     updated.ID,
			AgencyID:   updated.AgencyID,
			LeadNumber: updated.LeadNumber,
			FromStatus: lead.Status,
			ToStatus:   updated.Status,
			ChangedBy:  actorRef(actor),
		})
	}

	return toLeadResponse(updated), nil
}

// AutoStage applies the forward-only staging heuristics to the lead's
// current state. At most one transition fires per invocation; a lead that
// matches nothing comes back unchanged. Heuristics never demote.
func (s *Service) AutoStage(ctx context.Context, actor access.Actor, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.authorize(ctx, actor, id, domain.ActionEdit)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	switch lead.Status {
	case domain.StatusSiteVisitCompleted:
		visits, err := s.repo.ListVisits(ctx, lead.ID, lead.AgencyID)
		if err != nil {
			return transport.LeadResponse{}, err
		}
		current := domain.CurrentVisit(visits)
		if current != nil && current.Status == domain.VisitCompleted && current.InterestLevel == domain.InterestHigh {
			return s.advanceStatus(ctx, actor, lead, domain.StatusNegotiation, "high interest after site visit")
		}

	case domain.StatusNegotiation:
		if lead.BookingAmount != nil && *lead.BookingAmount > 0 {
			return s.advanceStatus(ctx, actor, lead, domain.StatusBooked, "booking amount recorded")
		}

	case domain.StatusContacted:
		count, err := s.repo.CountCommunications(ctx, lead.ID)
		if err != nil {
			return transport.LeadResponse{}, err
		}
		if count >= 3 && (lead.PropertyID != nil || lead.HasBudget()) {
			return s.advanceStatus(ctx, actor, lead, domain.StatusQualified, "sustained engagement with property or budget")
		}

	case domain.StatusSiteVisitScheduled:
		// An overdue visit goes to no_show; the lead status stays put.
		visits, err := s.repo.ListVisits(ctx, lead.ID, lead.AgencyID)
		if err != nil {
			return transport.LeadResponse{}, err
		}
		current := domain.CurrentVisit(visits)
		today := time.Now().UTC().Truncate(24 * time.Hour)
		if current != nil && current.Status == domain.VisitScheduled && current.ScheduledDate.Before(today) {
			_, err := s.repo.MarkVisitNoShow(ctx, current.ID, lead.ID, lead.AgencyID, []repository.ActivityParams{{
				Action:      domain.ActivityVisitUpdated,
				Field:       "visitStatus",
				OldValue:    domain.VisitScheduled,
				NewValue:    domain.VisitNoShow,
				Description: "visit marked no-show by auto-stage",
				PerformedBy: actorRef(actor),
			}})
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return transport.LeadResponse{}, err
			}
		}
	}

	return toLeadResponse(lead), nil
}

func (s *Service) advanceStatus(ctx context.Context, actor access.Actor, lead domain.Lead, to, why string) (transport.LeadResponse, error) {
	upd := repository.StatusUpdate{Status: to}
	if to == domain.StatusBooked && lead.ConvertedAt == nil {
		now := time.Now().UTC()
		upd.ConvertedAt = &now
	}

	activity := []repository.ActivityParams{{
		Action:      domain.ActivityStatusChanged,
		Field:       "status",
		OldValue:    lead.Status,
		NewValue:    to,
		Description: "auto-staged: " + why,
		PerformedBy: actorRef(actor),
	}}

	updated, err := s.repo.UpdateStatus(ctx, lead.ID, lead.AgencyID, upd, activity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	s.publish(ctx, events.LeadStatusChanged{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     updated.ID,
		AgencyID:   updated.AgencyID,
		LeadNumber: updated.LeadNumber,
		FromStatus: lead.Status,
		ToStatus:   updated.Status,
		ChangedBy:  actorRef(actor),
		Automatic:  true,
	})

	return toLeadResponse(updated), nil
}

// Rescore recomputes the score on demand. Unlike the background triggers a
// manual re-score surfaces failures to the caller, and the stored priority
// always follows the fresh recommendation.
func (s *Service) Rescore(ctx context.Context, actor access.Actor, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.authorize(ctx, actor, id, domain.ActionEdit)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	result, err := s.scorer.Recalculate(ctx, lead.ID, lead.AgencyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	activity := []repository.ActivityParams{{
		Action:      domain.ActivityRescored,
		Field:       "score",
		OldValue:    strconv.Itoa(lead.Score),
		NewValue:    strconv.Itoa(result.Score),
		Description: "manual re-score",
		PerformedBy: actorRef(actor),
	}}
	upd := repository.ScoreUpdate{Score: result.Score, Details: result.Details, Priority: &result.Priority}
	if err := s.repo.SaveScore(ctx, lead.ID, lead.AgencyID, upd, activity); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	if result.Score != lead.Score {
		s.publish(ctx, events.LeadRescored{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			AgencyID:  lead.AgencyID,
			OldScore:  lead.Score,
			NewScore:  result.Score,
			Priority:  result.Priority,
		})
	}

	lead.Score = result.Score
	lead.ScoreDetails = &result.Details
	lead.Priority = result.Priority
	return toLeadResponse(lead), nil
}

// RescoreAutomatic recomputes the score for a background trigger such as the
// no-show sweep. There is no acting user, so the guard is skipped and the
// audit entry carries the trigger as its description with no performer.
// Errors propagate so the calling job can retry.
func (s *Service) RescoreAutomatic(ctx context.Context, leadID, agencyID uuid.UUID, reason string) error {
	lead, err := s.repo.GetByID(ctx, leadID, agencyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("lead not found")
		}
		return err
	}

	result, err := s.scorer.Recalculate(ctx, lead.ID, lead.AgencyID)
	if err != nil {
		return fmt.Errorf("recalculate lead %s: %w", lead.LeadNumber, err)
	}

	activity := []repository.ActivityParams{{
		Action:      domain.ActivityRescored,
		Field:       "score",
		OldValue:    strconv.Itoa(lead.Score),
		NewValue:    strconv.Itoa(result.Score),
		Description: reason,
	}}
	upd := repository.ScoreUpdate{Score: result.Score, Details: result.Details, Priority: &result.Priority}
	if err := s.repo.SaveScore(ctx, lead.ID, lead.AgencyID, upd, activity); err != nil {
		return fmt.Errorf("save score for lead %s: %w", lead.LeadNumber, err)
	}

	if result.Score != lead.Score {
		s.publish(ctx, events.LeadRescored{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			AgencyID:  lead.AgencyID,
			OldScore:  lead.Score,
			NewScore:  result.Score,
			Priority:  result.Priority,
		})
	}
	return nil
}

// Merge folds a duplicate lead into the primary: missing contact and
// property fields backfill from the duplicate, engagement history moves
// over, the duplicate is removed, and a forced re-score reflects the
// combined engagement.
func (s *Service) Merge(ctx context.Context, actor access.Actor, primaryID uuid.UUID, req transport.MergeLeadsRequest) (transport.LeadResponse, error) {
	if primaryID == req.MergedLeadID {
		return transport.LeadResponse{}, apperr.Validation("cannot merge a lead into itself")
	}

	primary, err := s.authorize(ctx, actor, primaryID, domain.ActionEdit)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	duplicate, err := s.authorize(ctx, actor, req.MergedLeadID, domain.ActionEdit)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	activity := []repository.ActivityParams{{
		Action:      domain.ActivityMerged,
		Field:       "mergedLeadId",
		NewValue:    duplicate.ID.String(),
		Description: fmt.Sprintf("absorbed duplicate lead %s", duplicate.LeadNumber),
		PerformedBy: actorRef(actor),
	}}

	merged, err := s.repo.MergeLeads(ctx, primary.ID, duplicate.ID, primary.AgencyID, activity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	// Forced: the absorbed engagement history counts immediately.
	if result := s.rescore(ctx, merged.ID, merged.AgencyID, merged.Score, true, nil); result != nil {
		merged.Score = result.Score
		merged.ScoreDetails = &result.Details
		merged.Priority = result.Priority
	}

	s.publish(ctx, events.LeadMerged{
		BaseEvent:     events.NewBaseEvent(),
		PrimaryLeadID: merged.ID,
		MergedLeadID:  duplicate.ID,
		AgencyID:      merged.AgencyID,
	})

	return toLeadResponse(merged), nil
}

// Delete soft-removes a single lead. Deletion defaults to denied in the
// role table, so this is reachable only for super_admin or via an explicit
// per-record grant.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	lead, err := s.authorize(ctx, actor, id, domain.ActionDelete)
	if err != nil {
		return err
	}

	err = s.repo.Delete(ctx, lead.ID, lead.AgencyID, []repository.ActivityParams{{
		Action:      domain.ActivityDeleted,
		Description: "lead deleted",
		PerformedBy: actorRef(actor),
	}})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("lead not found")
		}
		return err
	}

	s.publish(ctx, events.LeadDeleted{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		AgencyID:   lead.AgencyID,
		LeadNumber: lead.LeadNumber,
	})
	return nil
}

// BulkDelete removes a batch of leads. The guard runs per lead; ids that
// fail it, live in another agency, or are already gone are skipped rather
// than failing the batch.
func (s *Service) BulkDelete(ctx context.Context, actor access.Actor, req transport.BulkDeleteRequest) (transport.BulkDeleteResponse, error) {
	if actor.AgencyID == nil {
		return transport.BulkDeleteResponse{}, apperr.Forbidden("no agency context").WithCode(access.ReasonNoAgency)
	}

	eligible := make([]uuid.UUID, 0, len(req.IDs))
	for _, id := range req.IDs {
		if _, err := s.authorize(ctx, actor, id, domain.ActionDelete); err != nil {
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return transport.BulkDeleteResponse{}, apperr.NotFound("no deletable leads found")
	}

	deleted, err := s.repo.BulkDelete(ctx, eligible, *actor.AgencyID, actorRef(actor))
	if err != nil {
		return transport.BulkDeleteResponse{}, err
	}
	return transport.BulkDeleteResponse{Deleted: deleted}, nil
}
