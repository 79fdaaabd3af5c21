package webhook

import (
	"context"
	"strings"
	"time"

	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/domain"
	leadservice "estatedesk_backend/internal/leads/service"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/logger"
	"estatedesk_backend/platform/phone"

	"github.com/google/uuid"
)

// intakeDuplicateWindow shields against double-submits and portal retries.
// Repeat inquiries outside this window are handled by the lead service's own
// re-engagement absorb.
const intakeDuplicateWindow = 60 * time.Second

// LeadIntake creates leads. Satisfied by the lead lifecycle service.
type LeadIntake interface {
	Create(ctx context.Context, actor access.Actor, req transport.CreateLeadRequest) (leadservice.CreateResult, error)
}

// VisitBooker schedules site visits. Satisfied by the scheduling service.
type VisitBooker interface {
	ScheduleVisit(ctx context.Context, actor access.Actor, leadID uuid.UUID, req transport.ScheduleVisitRequest) (transport.VisitResponse, error)
}

// RecentLeadFinder looks up a recent lead by contact details. Satisfied by
// the leads repository.
type RecentLeadFinder interface {
	FindRecentByContact(ctx context.Context, agencyID uuid.UUID, phoneNumber, email string, since time.Time) (*domain.Lead, error)
}

// IntakeSubmission is one inbound form or portal submission.
type IntakeSubmission struct {
	Fields       map[string]string
	SourceDomain string
	APIKeyID     uuid.UUID
	APIKeyName   string
}

// IntakeResponse is returned to the submitting system.
type IntakeResponse struct {
	LeadID     uuid.UUID         `json:"leadId"`
	LeadNumber string            `json:"leadNumber,omitempty"`
	Duplicate  bool              `json:"duplicate"`
	ReEngaged  bool              `json:"reEngaged"`
	Incomplete bool              `json:"incomplete"`
	Extracted  map[string]string `json:"extractedFields,omitempty"`
	Message    string            `json:"message"`
}

// Service turns raw submissions into leads.
type Service struct {
	intake LeadIntake
	visits VisitBooker
	recent RecentLeadFinder
	log    *logger.Logger
}

func NewService(intake LeadIntake, visits VisitBooker, recent RecentLeadFinder, log *logger.Logger) *Service {
	return &Service{intake: intake, visits: visits, recent: recent, log: log}
}

// ProcessIntake extracts lead fields from the submission, suppresses rapid
// duplicates, creates the lead, and books a requested site visit. Everything
// past lead creation is best-effort: a failed visit booking never fails the
// submission.
func (s *Service) ProcessIntake(ctx context.Context, agencyID uuid.UUID, sub IntakeSubmission) (IntakeResponse, error) {
	extracted := ExtractLead(sub.Fields)
	if extracted.Phone == "" && extracted.Email == "" {
		return IntakeResponse{}, apperr.Validation("submission carries no phone or email")
	}
	incomplete := extracted.IsIncomplete()

	// The lookup uses the same canonical forms the lead store persists,
	// otherwise an unnormalized repeat would never match its earlier self.
	normPhone := phone.NormalizeE164(extracted.Phone)
	normEmail := strings.ToLower(strings.TrimSpace(extracted.Email))

	dup, err := s.recent.FindRecentByContact(ctx, agencyID, normPhone, normEmail, time.Now().Add(-intakeDuplicateWindow))
	if err != nil {
		// Better to risk a duplicate than to drop a lead.
		s.log.Warn("intake duplicate check failed", "agencyId", agencyID.String(), "error", err.Error())
	}
	if dup != nil {
		s.log.Info("duplicate intake suppressed", "leadId", dup.ID.String(), "domain", sub.SourceDomain)
		return IntakeResponse{
			LeadID:     dup.ID,
			LeadNumber: dup.LeadNumber,
			Duplicate:  true,
			Incomplete: incomplete,
			Extracted:  extractedMap(extracted),
			Message:    "duplicate submission ignored",
		}, nil
	}

	actor := intakeActor(agencyID)
	result, err := s.intake.Create(ctx, actor, buildCreateRequest(extracted, sub))
	if err != nil {
		s.log.Error("intake lead creation failed", "domain", sub.SourceDomain, "error", err.Error())
		return IntakeResponse{}, err
	}

	if extracted.VisitDate != "" {
		s.bookRequestedVisit(ctx, actor, result.Lead.ID, extracted)
	}

	msg := "lead created"
	switch {
	case result.ReEngaged:
		msg = "repeat inquiry recorded on existing lead"
	case incomplete:
		msg = "lead created with partial contact details"
	}

	return IntakeResponse{
		LeadID:     result.Lead.ID,
		LeadNumber: result.Lead.LeadNumber,
		ReEngaged:  result.ReEngaged,
		Incomplete: incomplete,
		Extracted:  extractedMap(extracted),
		Message:    msg,
	}, nil
}

// bookRequestedVisit schedules the visit a submission asked for. Warn-only:
// the lead is already captured, an unparseable or past date just means the
// agent books the visit manually.
func (s *Service) bookRequestedVisit(ctx context.Context, actor access.Actor, leadID uuid.UUID, extracted ExtractedLead) {
	when, ok := parseVisitDate(extracted.VisitDate)
	if !ok {
		s.log.Warn("intake visit date not understood", "leadId", leadID.String(), "value", extracted.VisitDate)
		return
	}

	_, err := s.visits.ScheduleVisit(ctx, actor, leadID, transport.ScheduleVisitRequest{
		PropertyName:  extracted.PropertyName,
		ScheduledDate: when,
		ScheduledTime: extracted.VisitTime,
	})
	if err != nil {
		s.log.Warn("intake visit booking failed", "leadId", leadID.String(), "error", err.Error())
	}
}

// intakeActor is the system identity submissions run under. The zero user ID
// keeps createdBy empty on the records it writes.
func intakeActor(agencyID uuid.UUID) access.Actor {
	return access.Actor{AgencyID: &agencyID, Role: domain.RoleAgencyAdmin}
}

func buildCreateRequest(extracted ExtractedLead, sub IntakeSubmission) transport.CreateLeadRequest {
	name := extracted.Name
	if name == "" {
		name = "Unknown"
	}
	source := extracted.Source
	if source == "" {
		source = "website"
	}
	details := "webhook: " + sub.APIKeyName
	if sub.SourceDomain != "" {
		details = "webhook: " + sub.SourceDomain
	}

	req := transport.CreateLeadRequest{
		Name:               name,
		Phone:              extracted.Phone,
		Email:              extracted.Email,
		AltPhone:           extracted.AltPhone,
		Source:             source,
		SourceDetails:      details,
		PropertyName:       extracted.PropertyName,
		BudgetMin:          extracted.BudgetMin,
		BudgetMax:          extracted.BudgetMax,
		Timeline:           extracted.Timeline,
		PreferredLocations: extracted.Locations,
		Message:            extracted.Message,
	}
	if extracted.PropertyType != "" {
		req.PropertyTypes = []string{extracted.PropertyType}
	}
	return req
}

// visitDateLayouts are tried in order against the submitted visit date.
var visitDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	time.RFC3339,
}

func parseVisitDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range visitDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractedMap echoes the recognized fields back to the submitter, which is
// how form integrators debug their field naming.
func extractedMap(e ExtractedLead) map[string]string {
	out := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	set("name", e.Name)
	set("phone", e.Phone)
	set("altPhone", e.AltPhone)
	set("email", e.Email)
	set("source", e.Source)
	set("propertyName", e.PropertyName)
	set("propertyType", e.PropertyType)
	set("timeline", e.Timeline)
	set("message", e.Message)
	set("visitDate", e.VisitDate)
	if len(e.Locations) > 0 {
		out["preferredLocations"] = strings.Join(e.Locations, ", ")
	}
	return out
}
