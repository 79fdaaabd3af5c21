package service

import (
	"context"
	"fmt"
	"strings"

	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/repository"
	"estatedesk_backend/internal/leads/scoring"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/phone"
	"estatedesk_backend/platform/sanitize"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// bulkImportConcurrency bounds the parallel workers for a bulk import.
const bulkImportConcurrency = 5

// BulkImport loads a batch of leads, typically a migration from another
// system. Rows are processed concurrently and independently: a bad row
// reports its error and the rest keep going. Import rows skip duplicate
// suppression and auto-assignment — a migration carries whatever ownership
// and repeat inquiries the source system had, and rewriting either would
// falsify the history being imported.
func (s *Service) BulkImport(ctx context.Context, actor access.Actor, req transport.BulkImportRequest) (transport.BulkImportResponse, error) {
	if actor.AgencyID == nil {
		return transport.BulkImportResponse{}, apperr.Forbidden("no agency context").WithCode(access.ReasonNoAgency)
	}
	agencyID := *actor.AgencyID

	rowErrs := make([]error, len(req.Leads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkImportConcurrency)

	for i, row := range req.Leads {
		i, row := i, row
		g.Go(func() error {
			rowErrs[i] = s.importRow(gctx, actor, agencyID, row)
			return nil
		})
	}
	_ = g.Wait()

	resp := transport.BulkImportResponse{Errors: []transport.BulkImportError{}}
	for i, err := range rowErrs {
		if err != nil {
			resp.Failed++
			resp.Errors = append(resp.Errors, transport.BulkImportError{Index: i, Error: err.Error()})
			continue
		}
		resp.Imported++
	}
	return resp, nil
}

// importRow creates one lead from an import row. Unlike interactive create,
// the row may land anywhere in the pipeline: its status is normalized and
// stored as-is.
func (s *Service) importRow(ctx context.Context, actor access.Actor, agencyID uuid.UUID, row transport.BulkImportLead) error {
	draft := domain.Lead{
		AgencyID:           agencyID,
		Name:               sanitize.Text(row.Name),
		Email:              strings.ToLower(strings.TrimSpace(row.Email)),
		Phone:              phone.NormalizeE164(row.Phone),
		AltPhone:           phone.NormalizeE164(row.AltPhone),
		Status:             domain.NormalizeStatus(row.Status),
		Source:             domain.NormalizeSource(row.Source),
		SourceDetails:      sanitize.Text(row.SourceDetails),
		Team:               sanitize.Text(row.Team),
		PropertyID:         row.PropertyID.Value,
		PropertyName:       sanitize.Text(row.PropertyName),
		BudgetMin:          row.BudgetMin,
		BudgetMax:          row.BudgetMax,
		Timeline:           strings.ToLower(strings.TrimSpace(row.Timeline)),
		PreferredLocations: cleanList(row.PreferredLocations),
		PropertyTypes:      cleanList(row.PropertyTypes),
		Message:            sanitize.Text(row.Message),
	}

	activity := []repository.ActivityParams{{
		Action:      domain.ActivityImported,
		Description: fmt.Sprintf("imported from %s", draft.Source),
		PerformedBy: actorRef(actor),
	}}

	var assignedTo *uuid.UUID
	if row.AssignedTo.Value != nil {
		agent, err := s.validateAgent(ctx, agencyID, *row.AssignedTo.Value)
		if err != nil {
			return err
		}
		assignedTo = &agent.ID
		if draft.Team == "" {
			draft.Team = agent.Team
		}
		activity = append(activity, repository.ActivityParams{
			Action:      domain.ActivityAssigned,
			Field:       "assignedTo",
			NewValue:    agent.ID.String(),
			Description: "assigned during import",
			PerformedBy: actorRef(actor),
		})
	}

	result := scoring.Compute(scoring.InputFromLead(&draft, 0))
	priority := result.Priority
	if row.Priority != "" {
		priority = domain.NormalizePriority(row.Priority)
	}

	lead, err := s.createWithNumber(ctx, repository.CreateLeadParams{
		AgencyID:           agencyID,
		Name:               draft.Name,
		Email:              draft.Email,
		Phone:              draft.Phone,
		AltPhone:           draft.AltPhone,
		Status:             draft.Status,
		Priority:           priority,
		Source:             draft.Source,
		SourceDetails:      draft.SourceDetails,
		AssignedTo:         assignedTo,
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
		FirstContactSLA:    s.defaultSLA,
		CreatedBy:          actorRef(actor),
		Activity:           activity,
	})
	if err != nil {
		return err
	}

	if row.SiteVisit != nil {
		// The lead itself is in; losing its visit history is worth a warning,
		// not a failed row that would duplicate the lead on retry.
		if err := s.importLegacyVisit(ctx, actor, lead, row.SiteVisit); err != nil {
			s.log.Warn("legacy visit import failed", "leadId", lead.ID.String(), "error", err.Error())
		}
	}
	return nil
}

// importLegacyVisit converts the single-visit shape older exports carry into
// a visit-list row, replaying its terminal state when it has one. The lead's
// status is never advanced here: the import row's own status is
// authoritative.
func (s *Service) importLegacyVisit(ctx context.Context, actor access.Actor, lead domain.Lead, legacy *transport.LegacyVisit) error {
	propertyName := sanitize.Text(legacy.PropertyName)
	if propertyName == "" {
		propertyName = lead.PropertyName
	}

	visit, err := s.repo.AddVisit(ctx, repository.AddVisitParams{
		LeadID:        lead.ID,
		AgencyID:      lead.AgencyID,
		PropertyName:  propertyName,
		ScheduledDate: legacy.Date.UTC(),
		ScheduledTime: sanitize.Text(legacy.Time),
		CreatedBy:     actorRef(actor),
		Activity: []repository.ActivityParams{{
			Action:      domain.ActivityVisitBooked,
			Description: "visit migrated from single-visit record",
			PerformedBy: actorRef(actor),
		}},
	})
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(legacy.Status)) {
	case domain.VisitCompleted:
		interest := strings.ToLower(strings.TrimSpace(legacy.InterestLevel))
		if !domain.IsKnownInterestLevel(interest) {
			interest = ""
		}
		_, err = s.repo.CompleteVisit(ctx, repository.CompleteVisitParams{
			VisitID:       visit.ID,
			LeadID:        lead.ID,
			AgencyID:      lead.AgencyID,
			CompletedDate: legacy.Date.UTC(),
			Feedback:      sanitize.Text(legacy.Feedback),
			InterestLevel: interest,
		})
	case domain.VisitCancelled:
		_, err = s.repo.CancelVisit(ctx, visit.ID, lead.ID, lead.AgencyID, legacy.Date.UTC(), nil)
	case domain.VisitNoShow:
		_, err = s.repo.MarkVisitNoShow(ctx, visit.ID, lead.ID, lead.AgencyID, nil)
	}
	return err
}
