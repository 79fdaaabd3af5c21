// Package service orchestrates the lead lifecycle: intake normalization,
// duplicate handling, assignment, scoring, the status machine, and every
// engagement sub-entity. All writes pass the permission guard first and
// append audit entries in the same transaction as the change.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/assignment"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/repository"
	"estatedesk_backend/internal/leads/scoring"
	"estatedesk_backend/internal/leads/sla"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/internal/storage"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/logger"
	"estatedesk_backend/platform/phone"
	"estatedesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

// duplicateWindow is how far back the intake duplicate check looks for a
// lead with the same phone or email.
const duplicateWindow = 30 * 24 * time.Hour

// leadNumberAttempts bounds the retry loop when a generated lead number
// collides (possible after a counter reset or restore).
const leadNumberAttempts = 3

// Repository is the consumer-driven persistence interface for the lifecycle
// service.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
	repository.ScoreWriter
	repository.NumberSequence
	repository.NoteStore
	repository.CommunicationStore
	repository.TaskStore
	repository.ReminderStore
	repository.DocumentStore
	repository.VisitStore
	repository.ActivityStore
}

// Directory is the read side of the agency/user directory the service needs:
// agency settings for intake behavior and user rows for assignment
// validation.
type Directory interface {
	AgencySettings(ctx context.Context, agencyID uuid.UUID) (AgencySettings, error)
	AgentByID(ctx context.Context, id uuid.UUID) (Agent, error)
}

// AgencySettings are the tenant-level knobs consulted at intake.
type AgencySettings struct {
	AutoAssignLeads  bool
	AssignmentMethod string
}

// Agent is a directory user reduced to assignment-validation fields.
type Agent struct {
	ID       uuid.UUID
	AgencyID *uuid.UUID
	Name     string
	Team     string
	IsActive bool
}

// Assigner selects an agent for a lead. Satisfied by *assignment.Engine.
type Assigner interface {
	Assign(ctx context.Context, agencyID uuid.UUID, method string, lead *domain.Lead) (*assignment.Selection, error)
}

// Scorer recomputes a lead's score from persisted state. Satisfied by
// *scoring.Service.
type Scorer interface {
	Recalculate(ctx context.Context, leadID, agencyID uuid.UUID) (*scoring.Result, error)
}

// Storage is the slice of object storage used for lead documents. Satisfied
// by *storage.MinIOService. A nil Storage degrades documents to
// metadata-only: presigned uploads are refused and download links omitted.
type Storage interface {
	GenerateUploadURL(ctx context.Context, bucket, folder, fileName, contentType string, sizeBytes int64) (*storage.PresignedURL, error)
	GenerateDownloadURL(ctx context.Context, bucket, fileKey string) (*storage.PresignedURL, error)
	DeleteObject(ctx context.Context, bucket, fileKey string) error
	ValidateContentType(contentType string) error
	ValidateFileSize(sizeBytes int64) error
}

type Service struct {
	repo       Repository
	directory  Directory
	assigner   Assigner
	scorer     Scorer
	guard      *access.Evaluator
	bus        events.Bus
	docs       Storage
	docBucket  string
	defaultSLA time.Duration
	log        *logger.Logger
}

func New(repo Repository, directory Directory, assigner Assigner, scorer Scorer, guard *access.Evaluator, bus events.Bus, docs Storage, docBucket string, defaultSLA time.Duration, log *logger.Logger) *Service {
	if guard == nil {
		guard = access.NewEvaluator(nil)
	}
	if defaultSLA <= 0 {
		defaultSLA = sla.DefaultFirstContactSLA
	}
	return &Service{
		repo:       repo,
		directory:  directory,
		assigner:   assigner,
		scorer:     scorer,
		guard:      guard,
		bus:        bus,
		docs:       docs,
		docBucket:  docBucket,
		defaultSLA: defaultSLA,
		log:        log,
	}
}

// publish sends a domain event when a bus is wired. Creation paths call it
// only after the owning transaction has committed.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

// authorize loads the lead without tenant scoping and runs the guard, so a
// cross-agency caller receives a tenant-mismatch denial rather than a 404.
// Returns the lead on success.
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

// GetByID returns a single lead after a view-permission check.
func (s *Service) GetByID(ctx context.Context, actor access.Actor, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.authorize(ctx, actor, id, domain.ActionView)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	visits, err := s.repo.ListVisits(ctx, id, lead.AgencyID)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return toLeadResponseWithVisits(lead, visits), nil
}

// List returns a filtered, paginated page of the agency's leads. Agents see
// only their own pipeline; the filter is forced server-side.
func (s *Service) List(ctx context.Context, actor access.Actor, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	if actor.AgencyID == nil {
		return transport.LeadListResponse{}, apperr.Forbidden("no agency context").WithCode(access.ReasonNoAgency)
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	params := repository.ListParams{
		AgencyID:   *actor.AgencyID,
		MinScore:   req.MinScore,
		Search:     sanitize.Text(req.Search),
		Unassigned: req.Unassigned,
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
		SortBy:     req.SortBy,
		SortOrder:  req.SortOrder,
	}

	// An empty status, priority, or source means no filter; the normalizers
	// would turn empties into defaults.
	if req.Status != "" {
		status := domain.NormalizeStatus(req.Status)
		params.Status = &status
	}
	if req.Priority != "" {
		priority := domain.NormalizePriority(req.Priority)
		params.Priority = &priority
	}
	if req.Source != "" {
		source := domain.NormalizeSource(req.Source)
		params.Source = &source
	}
	if req.Team != "" {
		team := req.Team
		params.Team = &team
	}
	if req.SLAStatus != "" {
		slaStatus := req.SLAStatus
		params.SLAStatus = &slaStatus
	}

	if req.AssignedTo != "" {
		id, err := uuid.Parse(req.AssignedTo)
		if err != nil {
			return transport.LeadListResponse{}, apperr.Validation("invalid assignedTo filter")
		}
		params.AssignedTo = &id
	}
	if req.PropertyID != "" {
		id, err := uuid.Parse(req.PropertyID)
		if err != nil {
			return transport.LeadListResponse{}, apperr.Validation("invalid propertyId filter")
		}
		params.PropertyID = &id
	}
	if req.CreatedFrom != "" {
		from, err := time.Parse("2006-01-02", req.CreatedFrom)
		if err != nil {
			return transport.LeadListResponse{}, apperr.Validation("invalid createdFrom date")
		}
		params.CreatedFrom = &from
	}
	if req.CreatedTo != "" {
		to, err := time.Parse("2006-01-02", req.CreatedTo)
		if err != nil {
			return transport.LeadListResponse{}, apperr.Validation("invalid createdTo date")
		}
		end := to.Add(24 * time.Hour)
		params.CreatedTo = &end
	}

	if actor.Role == domain.RoleAgent {
		params.AssignedTo = &actor.UserID
		params.Unassigned = false
	}

	leads, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.LeadListResponse{}, err
	}

	items := make([]transport.LeadResponse, 0, len(leads))
	for i := range leads {
		items = append(items, toLeadResponse(leads[i]))
	}

	return transport.LeadListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// StatusSummary returns the agency's pipeline funnel counts.
func (s *Service) StatusSummary(ctx context.Context, actor access.Actor) (transport.StatusSummaryResponse, error) {
	if actor.AgencyID == nil {
		return transport.StatusSummaryResponse{}, apperr.Forbidden("no agency context").WithCode(access.ReasonNoAgency)
	}
	counts, err := s.repo.StatusCounts(ctx, *actor.AgencyID)
	if err != nil {
		return transport.StatusSummaryResponse{}, err
	}
	return transport.StatusSummaryResponse{Counts: counts}, nil
}

// CheckDuplicate looks for a recent lead with the same phone or email.
func (s *Service) CheckDuplicate(ctx context.Context, actor access.Actor, req transport.CheckDuplicateRequest) (transport.DuplicateCheckResponse, error) {
	if actor.AgencyID == nil {
		return transport.DuplicateCheckResponse{}, apperr.Forbidden("no agency context").WithCode(access.ReasonNoAgency)
	}
	if req.Phone == "" && req.Email == "" {
		return transport.DuplicateCheckResponse{}, apperr.Validation("phone or email is required")
	}

	normalized := phone.NormalizeE164(req.Phone)
	existing, err := s.repo.FindRecentByContact(ctx, *actor.AgencyID, normalized, req.Email, time.Now().Add(-duplicateWindow))
	if err != nil {
		return transport.DuplicateCheckResponse{}, err
	}
	if existing == nil {
		return transport.DuplicateCheckResponse{IsDuplicate: false}, nil
	}

	resp := toLeadResponse(*existing)
	return transport.DuplicateCheckResponse{IsDuplicate: true, ExistingLead: &resp}, nil
}

// Activity returns a page of the lead's audit trail, newest first.
func (s *Service) Activity(ctx context.Context, actor access.Actor, leadID uuid.UUID, page, pageSize int) (transport.ActivityListResponse, error) {
	lead, err := s.authorize(ctx, actor, leadID, domain.ActionView)
	if err != nil {
		return transport.ActivityListResponse{}, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	entries, total, err := s.repo.ListActivity(ctx, leadID, lead.AgencyID, (page-1)*pageSize, pageSize)
	if err != nil {
		return transport.ActivityListResponse{}, err
	}

	items := make([]transport.ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toActivityResponse(entry))
	}
	return transport.ActivityListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// actorRef returns the actor's user id as an audit reference, nil for
// system actors.
func actorRef(actor access.Actor) *uuid.UUID {
	if actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}

func formatUUIDRef(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func formatFloatRef(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}
