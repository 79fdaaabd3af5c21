package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/assignment"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/repository"
	"estatedesk_backend/internal/leads/scoring"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/internal/storage"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/logger"

	"github.com/google/uuid"
)

const testDocBucket = "lead-docs"

// testRepo is an in-memory stand-in for the pgx repository with the same
// visible semantics: agency-scoped reads, soft-delete filtering, one-shot
// first contact, and per-lead activity collection.
type testRepo struct {
	mu        sync.Mutex
	leads     map[uuid.UUID]*domain.Lead
	deleted   map[uuid.UUID]bool
	notes     map[uuid.UUID][]domain.Note
	comms     map[uuid.UUID][]domain.Communication
	tasks     map[uuid.UUID]*domain.Task
	reminders map[uuid.UUID]*domain.Reminder
	documents map[uuid.UUID]*domain.Document
	visits    map[uuid.UUID][]domain.SiteVisit
	activity  map[uuid.UUID][]repository.ActivityParams

	nextNumber int64
	// numberConflicts makes Create fail with ErrDuplicateNumber this many
	// times before succeeding.
	numberConflicts int

	lastScore    *repository.ScoreUpdate
	scoreSaveErr error
}

func newTestRepo() *testRepo {
	return &testRepo{
		leads:     make(map[uuid.UUID]*domain.Lead),
		deleted:   make(map[uuid.UUID]bool),
		notes:     make(map[uuid.UUID][]domain.Note),
		comms:     make(map[uuid.UUID][]domain.Communication),
		tasks:     make(map[uuid.UUID]*domain.Task),
		reminders: make(map[uuid.UUID]*domain.Reminder),
		documents: make(map[uuid.UUID]*domain.Document),
		visits:    make(map[uuid.UUID][]domain.SiteVisit),
		activity:  make(map[uuid.UUID][]repository.ActivityParams),
	}
}

// seed stores a lead, filling in the bookkeeping fields a real insert would.
func (r *testRepo) seed(lead domain.Lead) domain.Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.LeadNumber == "" {
		r.nextNumber++
		lead.LeadNumber = fmt.Sprintf("LEAD-%06d", r.nextNumber)
	}
	if lead.Status == "" {
		lead.Status = domain.StatusNew
	}
	if lead.Priority == "" {
		lead.Priority = domain.PriorityWarm
	}
	if lead.SLAStatus == "" {
		lead.SLAStatus = domain.SLAPending
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	lead.UpdatedAt = lead.CreatedAt
	r.leads[lead.ID] = &lead
	return lead
}

func (r *testRepo) scoped(id, agencyID uuid.UUID) (*domain.Lead, error) {
	lead, ok := r.leads[id]
	if !ok || r.deleted[id] || lead.AgencyID != agencyID {
		return nil, repository.ErrNotFound
	}
	return lead, nil
}

func (r *testRepo) appendActivity(leadID uuid.UUID, entries []repository.ActivityParams) {
	r.activity[leadID] = append(r.activity[leadID], entries...)
}

// actions returns the recorded activity actions for a lead, in order.
func (r *testRepo) actions(leadID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.activity[leadID]))
	for _, entry := range r.activity[leadID] {
		out = append(out, entry.Action)
	}
	return out
}

func (r *testRepo) GetByID(_ context.Context, id, agencyID uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, err := r.scoped(id, agencyID)
	if err != nil {
		return domain.Lead{}, err
	}
	return *lead, nil
}

func (r *testRepo) GetByIDUnscoped(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok || r.deleted[id] {
		return domain.Lead{}, repository.ErrNotFound
	}
	return *lead, nil
}

func (r *testRepo) GetByNumber(_ context.Context, number string, agencyID uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, lead := range r.leads {
		if !r.deleted[id] && lead.AgencyID == agencyID && lead.LeadNumber == number {
			return *lead, nil
		}
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (r *testRepo) FindRecentByContact(_ context.Context, agencyID uuid.UUID, phone, email string, since time.Time) (*domain.Lead, error) {
	if phone == "" && email == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.Lead
	for id, lead := range r.leads {
		if r.deleted[id] || lead.AgencyID != agencyID || lead.CreatedAt.Before(since) {
			continue
		}
		if (phone != "" && lead.Phone == phone) || (email != "" && lead.Email == email) {
			if newest == nil || lead.CreatedAt.After(newest.CreatedAt) {
				newest = lead
			}
		}
	}
	if newest == nil {
		return nil, nil
	}
	match := *newest
	return &match, nil
}

func (r *testRepo) List(_ context.Context, params repository.ListParams) ([]domain.Lead, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Lead
	for id, lead := range r.leads {
		if r.deleted[id] || lead.AgencyID != params.AgencyID {
			continue
		}
		if params.Status != nil && lead.Status != *params.Status {
			continue
		}
		if params.Priority != nil && lead.Priority != *params.Priority {
			continue
		}
		if params.Source != nil && lead.Source != *params.Source {
			continue
		}
		if params.Team != nil && lead.Team != *params.Team {
			continue
		}
		if params.SLAStatus != nil && lead.SLAStatus != *params.SLAStatus {
			continue
		}
		if params.AssignedTo != nil && (lead.AssignedTo == nil || *lead.AssignedTo != *params.AssignedTo) {
			continue
		}
		if params.Unassigned && lead.AssignedTo != nil {
			continue
		}
		if params.MinScore != nil && lead.Score < *params.MinScore {
			continue
		}
		if params.CreatedFrom != nil && lead.CreatedAt.Before(*params.CreatedFrom) {
			continue
		}
		if params.CreatedTo != nil && !lead.CreatedAt.Before(*params.CreatedTo) {
			continue
		}
		if params.Search != "" {
			needle := strings.ToLower(params.Search)
			hay := strings.ToLower(lead.Name + " " + lead.Email + " " + lead.Phone + " " + lead.LeadNumber)
			if !strings.Contains(hay, needle) {
				continue
			}
		}
		matched = append(matched, *lead)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if params.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[params.Offset:]
	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}
	return matched, total, nil
}

func (r *testRepo) StatusCounts(_ context.Context, agencyID uuid.UUID) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for id, lead := range r.leads {
		if !r.deleted[id] && lead.AgencyID == agencyID {
			counts[lead.Status]++
		}
	}
	return counts, nil
}

func (r *testRepo) Create(_ context.Context, params repository.CreateLeadParams) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.numberConflicts > 0 {
		r.numberConflicts--
		return domain.Lead{}, repository.ErrDuplicateNumber
	}
	now := time.Now().UTC()
	lead := domain.Lead{
		ID:                 uuid.New(),
		LeadNumber:         params.LeadNumber,
		AgencyID:           params.AgencyID,
		Name:               params.Name,
		Email:              params.Email,
		Phone:              params.Phone,
		AltPhone:           params.AltPhone,
		Status:             params.Status,
		Priority:           params.Priority,
		Source:             params.Source,
		SourceDetails:      params.SourceDetails,
		AssignedTo:         params.AssignedTo,
		ManagerID:          params.ManagerID,
		Team:               params.Team,
		PropertyID:         params.PropertyID,
		PropertyName:       params.PropertyName,
		BudgetMin:          params.BudgetMin,
		BudgetMax:          params.BudgetMax,
		Timeline:           params.Timeline,
		PreferredLocations: params.PreferredLocations,
		PropertyTypes:      params.PropertyTypes,
		Message:            params.Message,
		Score:              params.Score,
		ScoreDetails:       params.ScoreDetails,
		FirstContactSLA:    params.FirstContactSLA,
		SLAStatus:          domain.SLAPending,
		EntryPermissions:   params.EntryPermissions,
		CreatedBy:          params.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.leads[lead.ID] = &lead
	r.appendActivity(lead.ID, params.Activity)
	return lead, nil
}

func (r *testRepo) Update(_ context.Context, id, agencyID uuid.UUID, params repository.UpdateLeadParams, activity []repository.ActivityParams) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, err := r.scoped(id, agencyID)
	if err != nil {
		return domain.Lead{}, err
	}
	if params.Name != nil {
		lead.Name = *params.Name
	}
	if params.Email != nil {
		lead.Email = *params.Email
	}
	if params.Phone != nil {
		lead.Phone = *params.Phone
	}
	if params.AltPhone != nil {
		lead.AltPhone = *params.AltPhone
	}
	if params.Priority != nil {
		lead.Priority = *params.Priority
	}
	if params.Source != nil {
		lead.Source = *params.Source
	}
	if params.SourceDetails != nil {
		lead.SourceDetails = *params.SourceDetails
	}
	if params.PropertyIDSet {
		lead.PropertyID = params.PropertyID
	}
	if params.PropertyName != nil {
		lead.PropertyName = *params.PropertyName
	}
	if params.BudgetMinSet {
		lead.BudgetMin = params.BudgetMin
	}
	if params.BudgetMaxSet {
		lead.BudgetMax = params.BudgetMax
	}
	if params.Timeline != nil {
		lead.Timeline = *params.Timeline
	}
	if params.PreferredLocations != nil {
		lead.PreferredLocations = params.PreferredLocations
	}
	if params.PropertyTypes != nil {
		lead.PropertyTypes = params.PropertyTypes
	}
	if params.Message != nil {
		lead.Message = *params.Message
	}
	if params.ManagerIDSet {
		lead.ManagerID = params.ManagerID
	}
	if params.Team != nil {
		lead.Team = *params.Team
	}
	if params.BookingAmountSet {
		lead.BookingAmount = params.BookingAmount
	}
	if params.FirstContactSLA != nil {
		lead.FirstContactSLA = *params.FirstContactSLA
	}
	if params.EntryPermissions != nil {
		lead.EntryPermissions = params.EntryPermissions
	}
	lead.UpdatedAt = time.Now().UTC()
	r.appendActivity(id, activity)
	return *lead, nil
}

func (r *testRepo) UpdateStatus(_ context.Context, id, agencyID uuid.UUID, upd repository.StatusUpdate, activity []repository.ActivityParams) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, err := r.scoped(id, agencyID)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Status = upd.Status
	if upd.ConvertedAt != nil {
		lead.ConvertedAt = upd.ConvertedAt
	}
	if upd.BookingAmount != nil {
		lead.BookingAmount = upd.BookingAmount
	}
	lead.UpdatedAt = time.Now().UTC()
	r.appendActivity(id, activity)
	return *lead, nil
}

func (r *testRepo) UpdateAssignment(_ context.Context, id, agencyID uuid.UUID, upd repository.AssignmentUpdate, activity []repository.ActivityParams) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, err := r.scoped(id, agencyID)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.AssignedTo = upd.AgentID
	if upd.Team != nil {
		lead.Team = *upd.Team
	}
	lead.UpdatedAt = time.Now().UTC()
	r.appendActivity(id, activity)
	return *lead, nil
}

func (r *testRepo) Delete(_ context.Context, id, agencyID uuid.UUID, activity []repository.ActivityParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(id, agencyID); err != nil {
		return err
	}
	r.deleted[id] = true
	r.appendActivity(id, activity)
	return nil
}

func (r *testRepo) BulkDelete(_ context.Context, ids []uuid.UUID, agencyID uuid.UUID, _ *uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, err := r.scoped(id, agencyID); err != nil {
			continue
		}
		r.deleted[id] = true
		deleted++
	}
	return deleted, nil
}

func (r *testRepo) MergeLeads(_ context.Context, primaryID, mergedID, agencyID uuid.UUID, activity []repository.ActivityParams) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	primary, err := r.scoped(primaryID, agencyID)
	if err != nil {
		return domain.Lead{}, err
	}
	merged, err := r.scoped(mergedID, agencyID)
	if err != nil {
		return domain.Lead{}, err
	}
	if primary.Email == "" {
		primary.Email = merged.Email
	}
	if primary.AltPhone == "" {
		primary.AltPhone = merged.AltPhone
	}
	if primary.BudgetMin == nil {
		primary.BudgetMin = merged.BudgetMin
	}
	if primary.BudgetMax == nil {
		primary.BudgetMax = merged.BudgetMax
	}
	if primary.Timeline == "" {
		primary.Timeline = merged.Timeline
	}
	if primary.PropertyID == nil {
		primary.PropertyID = merged.PropertyID
	}
	if primary.PropertyName == "" {
		primary.PropertyName = merged.PropertyName
	}
	if primary.Message == "" {
		primary.Message = merged.Message
	}
	r.notes[primaryID] = append(r.notes[primaryID], r.notes[mergedID]...)
	r.comms[primaryID] = append(r.comms[primaryID], r.comms[mergedID]...)
	r.visits[primaryID] = append(r.visits[primaryID], r.visits[mergedID]...)
	delete(r.notes, mergedID)
	delete(r.comms, mergedID)
	delete(r.visits, mergedID)
	r.deleted[mergedID] = true
	primary.UpdatedAt = time.Now().UTC()
	r.appendActivity(primaryID, activity)
	return *primary, nil
}

func (r *testRepo) SaveScore(_ context.Context, id, agencyID uuid.UUID, upd repository.ScoreUpdate, activity []repository.ActivityParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scoreSaveErr != nil {
		return r.scoreSaveErr
	}
	lead, err := r.scoped(id, agencyID)
	if err != nil {
		return err
	}
	lead.Score = upd.Score
	details := upd.Details
	lead.ScoreDetails = &details
	if upd.Priority != nil {
		lead.Priority = *upd.Priority
	}
	r.lastScore = &upd
	r.appendActivity(id, activity)
	return nil
}

func (r *testRepo) NextLeadNumber(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextNumber++
	return r.nextNumber, nil
}

func (r *testRepo) AddNote(_ context.Context, params repository.AddNoteParams) (domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(params.LeadID, params.AgencyID); err != nil {
		return domain.Note{}, err
	}
	note := domain.Note{
		ID:        uuid.New(),
		LeadID:    params.LeadID,
		Body:      params.Body,
		CreatedBy: params.CreatedBy,
		CreatedAt: time.Now().UTC(),
	}
	r.notes[params.LeadID] = append(r.notes[params.LeadID], note)
	r.appendActivity(params.LeadID, params.Activity)
	return note, nil
}

func (r *testRepo) ListNotes(_ context.Context, leadID, agencyID uuid.UUID) ([]domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return nil, err
	}
	return append([]domain.Note(nil), r.notes[leadID]...), nil
}

func (r *testRepo) AddCommunication(_ context.Context, params repository.AddCommunicationParams) (domain.Communication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, err := r.scoped(params.LeadID, params.AgencyID)
	if err != nil {
		return domain.Communication{}, err
	}
	comm := domain.Communication{
		ID:        uuid.New(),
		LeadID:    params.LeadID,
		Type:      params.Type,
		Direction: params.Direction,
		Subject:   params.Subject,
		Body:      params.Body,
		LoggedBy:  params.LoggedBy,
		CreatedAt: time.Now().UTC(),
	}
	r.comms[params.LeadID] = append(r.comms[params.LeadID], comm)
	if params.SLA != nil {
		if lead.FirstContactAt == nil && params.SLA.FirstContactAt != nil {
			lead.FirstContactAt = params.SLA.FirstContactAt
			lead.ResponseTime = params.SLA.ResponseTime
			lead.SLAStatus = params.SLA.Status
		}
		last := params.SLA.LastContactAt
		lead.LastContactAt = &last
	}
	r.appendActivity(params.LeadID, params.Activity)
	return comm, nil
}

func (r *testRepo) ListCommunications(_ context.Context, leadID, agencyID uuid.UUID) ([]domain.Communication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return nil, err
	}
	return append([]domain.Communication(nil), r.comms[leadID]...), nil
}

func (r *testRepo) CountCommunications(_ context.Context, leadID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.comms[leadID]), nil
}

func (r *testRepo) AddTask(_ context.Context, params repository.AddTaskParams) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(params.LeadID, params.AgencyID); err != nil {
		return domain.Task{}, err
	}
	now := time.Now().UTC()
	task := domain.Task{
		ID:          uuid.New(),
		LeadID:      params.LeadID,
		Title:       params.Title,
		Description: params.Description,
		Status:      domain.TaskPending,
		DueAt:       params.DueAt,
		AssignedTo:  params.AssignedTo,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.tasks[task.ID] = &task
	r.appendActivity(params.LeadID, params.Activity)
	return task, nil
}

func (r *testRepo) GetTask(_ context.Context, taskID, leadID, agencyID uuid.UUID) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return domain.Task{}, err
	}
	task, ok := r.tasks[taskID]
	if !ok || task.LeadID != leadID {
		return domain.Task{}, repository.ErrNotFound
	}
	return *task, nil
}

func (r *testRepo) UpdateTaskStatus(_ context.Context, taskID, leadID, agencyID uuid.UUID, status string, activity []repository.ActivityParams) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return domain.Task{}, err
	}
	task, ok := r.tasks[taskID]
	if !ok || task.LeadID != leadID {
		return domain.Task{}, repository.ErrNotFound
	}
	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	r.appendActivity(leadID, activity)
	return *task, nil
}

func (r *testRepo) ListTasks(_ context.Context, leadID, agencyID uuid.UUID) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return nil, err
	}
	var out []domain.Task
	for _, task := range r.tasks {
		if task.LeadID == leadID {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *testRepo) AddReminder(_ context.Context, params repository.AddReminderParams) (domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(params.LeadID, params.AgencyID); err != nil {
		return domain.Reminder{}, err
	}
	reminder := domain.Reminder{
		ID:        uuid.New(),
		LeadID:    params.LeadID,
		Message:   params.Message,
		RemindAt:  params.RemindAt,
		CreatedBy: params.CreatedBy,
		CreatedAt: time.Now().UTC(),
	}
	r.reminders[reminder.ID] = &reminder
	r.appendActivity(params.LeadID, params.Activity)
	return reminder, nil
}

func (r *testRepo) CompleteReminder(_ context.Context, reminderID, leadID, agencyID uuid.UUID, activity []repository.ActivityParams) (domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return domain.Reminder{}, err
	}
	reminder, ok := r.reminders[reminderID]
	if !ok || reminder.LeadID != leadID {
		return domain.Reminder{}, repository.ErrNotFound
	}
	reminder.Completed = true
	r.appendActivity(leadID, activity)
	return *reminder, nil
}

func (r *testRepo) ListReminders(_ context.Context, leadID, agencyID uuid.UUID) ([]domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return nil, err
	}
	var out []domain.Reminder
	for _, reminder := range r.reminders {
		if reminder.LeadID == leadID {
			out = append(out, *reminder)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemindAt.Before(out[j].RemindAt) })
	return out, nil
}

func (r *testRepo) ClaimDueReminders(_ context.Context, due time.Time, limit int) ([]repository.DueReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.DueReminder
	for _, reminder := range r.reminders {
		if reminder.Completed || reminder.RemindAt.After(due) {
			continue
		}
		lead, ok := r.leads[reminder.LeadID]
		if !ok {
			continue
		}
		out = append(out, repository.DueReminder{Reminder: *reminder, AgencyID: lead.AgencyID})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *testRepo) AddDocument(_ context.Context, params repository.AddDocumentParams) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(params.LeadID, params.AgencyID); err != nil {
		return domain.Document{}, err
	}
	doc := domain.Document{
		ID:          uuid.New(),
		LeadID:      params.LeadID,
		FileName:    params.FileName,
		ContentType: params.ContentType,
		SizeBytes:   params.SizeBytes,
		StorageKey:  params.StorageKey,
		UploadedBy:  params.UploadedBy,
		CreatedAt:   time.Now().UTC(),
	}
	r.documents[doc.ID] = &doc
	r.appendActivity(params.LeadID, params.Activity)
	return doc, nil
}

func (r *testRepo) GetDocument(_ context.Context, documentID, leadID, agencyID uuid.UUID) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return domain.Document{}, err
	}
	doc, ok := r.documents[documentID]
	if !ok || doc.LeadID != leadID {
		return domain.Document{}, repository.ErrNotFound
	}
	return *doc, nil
}

func (r *testRepo) ListDocuments(_ context.Context, leadID, agencyID uuid.UUID) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return nil, err
	}
	var out []domain.Document
	for _, doc := range r.documents {
		if doc.LeadID == leadID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *testRepo) DeleteDocument(_ context.Context, documentID, leadID, agencyID uuid.UUID, activity []repository.ActivityParams) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return domain.Document{}, err
	}
	doc, ok := r.documents[documentID]
	if !ok || doc.LeadID != leadID {
		return domain.Document{}, repository.ErrNotFound
	}
	delete(r.documents, documentID)
	r.appendActivity(leadID, activity)
	return *doc, nil
}

func (r *testRepo) AddVisit(_ context.Context, params repository.AddVisitParams) (domain.SiteVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, err := r.scoped(params.LeadID, params.AgencyID)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	now := time.Now().UTC()
	visit := domain.SiteVisit{
		ID:                  uuid.New(),
		LeadID:              params.LeadID,
		PropertyID:          params.PropertyID,
		PropertyName:        params.PropertyName,
		ScheduledDate:       params.ScheduledDate,
		ScheduledTime:       params.ScheduledTime,
		Status:              domain.VisitScheduled,
		RelationshipManager: params.RelationshipManager,
		CreatedBy:           params.CreatedBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	r.visits[params.LeadID] = append(r.visits[params.LeadID], visit)
	if params.AdvanceLeadStatus && domain.VisitStatusAdvancesLead(lead.Status) {
		lead.Status = domain.StatusSiteVisitScheduled
	}
	r.appendActivity(params.LeadID, params.Activity)
	return visit, nil
}

func (r *testRepo) findVisit(visitID, leadID uuid.UUID) (*domain.SiteVisit, error) {
	visits := r.visits[leadID]
	for i := range visits {
		if visits[i].ID == visitID {
			return &visits[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *testRepo) CompleteVisit(_ context.Context, params repository.CompleteVisitParams) (domain.SiteVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, err := r.scoped(params.LeadID, params.AgencyID)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	visit, err := r.findVisit(params.VisitID, params.LeadID)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	completed := params.CompletedDate
	visit.Status = domain.VisitCompleted
	visit.CompletedDate = &completed
	visit.Feedback = params.Feedback
	visit.InterestLevel = params.InterestLevel
	visit.NextAction = params.NextAction
	visit.UpdatedAt = time.Now().UTC()
	if params.AdvanceLeadStatus && lead.Status == domain.StatusSiteVisitScheduled {
		lead.Status = domain.StatusSiteVisitCompleted
	}
	r.appendActivity(params.LeadID, params.Activity)
	return *visit, nil
}

func (r *testRepo) CancelVisit(_ context.Context, visitID, leadID, agencyID uuid.UUID, cancelledDate time.Time, activity []repository.ActivityParams) (domain.SiteVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return domain.SiteVisit{}, err
	}
	visit, err := r.findVisit(visitID, leadID)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	visit.Status = domain.VisitCancelled
	visit.CancelledDate = &cancelledDate
	visit.UpdatedAt = time.Now().UTC()
	r.appendActivity(leadID, activity)
	return *visit, nil
}

func (r *testRepo) UpdateVisit(_ context.Context, params repository.UpdateVisitParams) (domain.SiteVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(params.LeadID, params.AgencyID); err != nil {
		return domain.SiteVisit{}, err
	}
	visit, err := r.findVisit(params.VisitID, params.LeadID)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	if params.ScheduledDate != nil {
		visit.ScheduledDate = *params.ScheduledDate
	}
	if params.ScheduledTime != nil {
		visit.ScheduledTime = *params.ScheduledTime
	}
	if params.PropertyIDSet {
		visit.PropertyID = params.PropertyID
	}
	if params.PropertyName != nil {
		visit.PropertyName = *params.PropertyName
	}
	if params.RelationshipMgrSet {
		visit.RelationshipManager = params.RelationshipManager
	}
	if params.NextAction != nil {
		visit.NextAction = *params.NextAction
	}
	visit.UpdatedAt = time.Now().UTC()
	r.appendActivity(params.LeadID, params.Activity)
	return *visit, nil
}

func (r *testRepo) DeleteVisit(_ context.Context, visitID, leadID, agencyID uuid.UUID, activity []repository.ActivityParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return err
	}
	visits := r.visits[leadID]
	for i := range visits {
		if visits[i].ID == visitID {
			r.visits[leadID] = append(visits[:i], visits[i+1:]...)
			r.appendActivity(leadID, activity)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *testRepo) MarkVisitNoShow(_ context.Context, visitID, leadID, agencyID uuid.UUID, activity []repository.ActivityParams) (domain.SiteVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return domain.SiteVisit{}, err
	}
	visit, err := r.findVisit(visitID, leadID)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	if visit.Status != domain.VisitScheduled {
		return domain.SiteVisit{}, repository.ErrNotFound
	}
	visit.Status = domain.VisitNoShow
	visit.UpdatedAt = time.Now().UTC()
	r.appendActivity(leadID, activity)
	return *visit, nil
}

func (r *testRepo) GetVisit(_ context.Context, visitID, leadID, agencyID uuid.UUID) (domain.SiteVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return domain.SiteVisit{}, err
	}
	visit, err := r.findVisit(visitID, leadID)
	if err != nil {
		return domain.SiteVisit{}, err
	}
	return *visit, nil
}

func (r *testRepo) ListVisits(_ context.Context, leadID, agencyID uuid.UUID) ([]domain.SiteVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return nil, err
	}
	return append([]domain.SiteVisit(nil), r.visits[leadID]...), nil
}

func (r *testRepo) ListOverdueScheduled(_ context.Context, before time.Time, limit int) ([]repository.OverdueVisit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.OverdueVisit
	for leadID, visits := range r.visits {
		lead, ok := r.leads[leadID]
		if !ok || r.deleted[leadID] {
			continue
		}
		for _, visit := range visits {
			if visit.Status == domain.VisitScheduled && visit.ScheduledDate.Before(before) {
				out = append(out, repository.OverdueVisit{Visit: visit, AgencyID: lead.AgencyID})
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *testRepo) AddActivity(_ context.Context, leadID, agencyID uuid.UUID, entries []repository.ActivityParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return err
	}
	r.appendActivity(leadID, entries)
	return nil
}

func (r *testRepo) ListActivity(_ context.Context, leadID, agencyID uuid.UUID, offset, limit int) ([]domain.ActivityEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.scoped(leadID, agencyID); err != nil {
		return nil, 0, err
	}
	all := r.activity[leadID]
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	page := all[offset:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	out := make([]domain.ActivityEntry, 0, len(page))
	for _, params := range page {
		out = append(out, domain.ActivityEntry{
			ID:          uuid.New(),
			LeadID:      leadID,
			Action:      params.Action,
			Field:       params.Field,
			OldValue:    params.OldValue,
			NewValue:    params.NewValue,
			Description: params.Description,
			PerformedBy: params.PerformedBy,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return out, total, nil
}

var _ Repository = (*testRepo)(nil)

// testDirectory serves agency settings and agent lookups from fixtures.
type testDirectory struct {
	settings    AgencySettings
	settingsErr error
	agents      map[uuid.UUID]Agent
}

func newTestDirectory() *testDirectory {
	return &testDirectory{agents: make(map[uuid.UUID]Agent)}
}

func (d *testDirectory) addAgent(agencyID uuid.UUID, name, team string) Agent {
	agent := Agent{ID: uuid.New(), AgencyID: &agencyID, Name: name, Team: team, IsActive: true}
	d.agents[agent.ID] = agent
	return agent
}

func (d *testDirectory) AgencySettings(_ context.Context, _ uuid.UUID) (AgencySettings, error) {
	if d.settingsErr != nil {
		return AgencySettings{}, d.settingsErr
	}
	return d.settings, nil
}

func (d *testDirectory) AgentByID(_ context.Context, id uuid.UUID) (Agent, error) {
	agent, ok := d.agents[id]
	if !ok {
		return Agent{}, errors.New("user not found")
	}
	return agent, nil
}

// testAssigner returns a fixed selection and records invocations.
type testAssigner struct {
	selection  *assignment.Selection
	err        error
	calls      int
	lastMethod string
}

func (a *testAssigner) Assign(_ context.Context, _ uuid.UUID, method string, _ *domain.Lead) (*assignment.Selection, error) {
	a.calls++
	a.lastMethod = method
	if a.err != nil {
		return nil, a.err
	}
	return a.selection, a.err
}

// testScorer returns a canned result instead of recomputing from state.
type testScorer struct {
	result scoring.Result
	err    error
	calls  int
}

func (s *testScorer) Recalculate(_ context.Context, _, _ uuid.UUID) (*scoring.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	result := s.result
	return &result, nil
}

// testBus records published events synchronously.
type testBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *testBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *testBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *testBus) Subscribe(string, events.Handler) {}

func (b *testBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, event := range b.events {
		out = append(out, event.EventName())
	}
	return out
}

func (b *testBus) has(name string) bool {
	for _, n := range b.names() {
		if n == name {
			return true
		}
	}
	return false
}

// testStorage fakes the presigned-URL surface of object storage.
type testStorage struct {
	uploads    int
	downloads  int
	deletes    int
	deleteErr  error
	deletedKey string
	maxSize    int64
}

func (s *testStorage) GenerateUploadURL(_ context.Context, _, folder, fileName, _ string, _ int64) (*storage.PresignedURL, error) {
	s.uploads++
	key := folder + "/" + fileName
	return &storage.PresignedURL{
		URL:       "https://storage.test/put/" + key,
		FileKey:   key,
		ExpiresAt: time.Now().Add(storage.PresignedURLTTL),
	}, nil
}

func (s *testStorage) GenerateDownloadURL(_ context.Context, _, fileKey string) (*storage.PresignedURL, error) {
	s.downloads++
	return &storage.PresignedURL{
		URL:       "https://storage.test/get/" + fileKey,
		FileKey:   fileKey,
		ExpiresAt: time.Now().Add(storage.PresignedURLTTL),
	}, nil
}

func (s *testStorage) DeleteObject(_ context.Context, _, fileKey string) error {
	s.deletes++
	s.deletedKey = fileKey
	return s.deleteErr
}

func (s *testStorage) ValidateContentType(contentType string) error {
	if contentType == "application/x-blocked" {
		return errors.New("content type \"application/x-blocked\" is not allowed")
	}
	return nil
}

func (s *testStorage) ValidateFileSize(sizeBytes int64) error {
	if s.maxSize > 0 && sizeBytes > s.maxSize {
		return errors.New("file too large")
	}
	return nil
}

// testEnv bundles a service wired to fakes.
type testEnv struct {
	repo      *testRepo
	directory *testDirectory
	assigner  *testAssigner
	scorer    *testScorer
	bus       *testBus
	store     *testStorage
	svc       *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:      newTestRepo(),
		directory: newTestDirectory(),
		assigner:  &testAssigner{},
		scorer:    &testScorer{result: scoring.Result{Score: 55, Priority: domain.PriorityWarm}},
		bus:       &testBus{},
		store:     &testStorage{},
	}
	env.svc = New(env.repo, env.directory, env.assigner, env.scorer, access.NewEvaluator(nil), env.bus, env.store, testDocBucket, time.Hour, logger.New("development"))
	return env
}

func adminActor(agencyID uuid.UUID) access.Actor {
	return access.Actor{UserID: uuid.New(), AgencyID: &agencyID, Role: domain.RoleAgencyAdmin}
}

func agentActor(agencyID, userID uuid.UUID) access.Actor {
	return access.Actor{UserID: userID, AgencyID: &agencyID, Role: domain.RoleAgent}
}

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if apperr.GetKind(err) != kind {
		t.Fatalf("expected error kind %v, got %v (%v)", kind, apperr.GetKind(err), err)
	}
}

func TestGetByIDCrossAgencyReportsTenantMismatch(t *testing.T) {
	env := newTestEnv()
	agencyA := uuid.New()
	agencyB := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyA, Name: "Asha Verma", Phone: "+919800000001"})

	_, err := env.svc.GetByID(context.Background(), adminActor(agencyB), lead.ID)
	expectKind(t, err, apperr.KindForbidden)
	if apperr.GetCode(err) != access.ReasonTenantMismatch {
		t.Fatalf("expected reason %s, got %s", access.ReasonTenantMismatch, apperr.GetCode(err))
	}
}

func TestGetByIDUnknownLeadIsNotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.GetByID(context.Background(), adminActor(uuid.New()), uuid.New())
	expectKind(t, err, apperr.KindNotFound)
}

func TestListScopesAgentsToTheirOwnLeads(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	agentID := uuid.New()
	mine := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Mine", Phone: "+911111111111", AssignedTo: &agentID})
	env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Someone Else", Phone: "+912222222222"})

	resp, err := env.svc.List(context.Background(), agentActor(agencyID, agentID), transport.ListLeadsRequest{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("expected exactly the agent's own lead, got total=%d items=%d", resp.Total, len(resp.Items))
	}
	if resp.Items[0].ID != mine.ID {
		t.Fatalf("expected lead %s, got %s", mine.ID, resp.Items[0].ID)
	}
}

func TestListNormalizesStatusFilter(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Visit", Phone: "+913333333333", Status: domain.StatusSiteVisitScheduled})
	env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Fresh", Phone: "+914444444444", Status: domain.StatusNew})

	// Legacy spelling should match the canonical stored value.
	resp, err := env.svc.List(context.Background(), adminActor(agencyID), transport.ListLeadsRequest{Status: "Visit Scheduled"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("expected 1 lead for normalized status filter, got %d", resp.Total)
	}
	if resp.Items[0].Status != domain.StatusSiteVisitScheduled {
		t.Fatalf("expected status %s, got %s", domain.StatusSiteVisitScheduled, resp.Items[0].Status)
	}
}

func TestListPaginationMath(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	for i := 0; i < 5; i++ {
		env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Lead", Phone: fmt.Sprintf("+91555555555%d", i)})
	}

	resp, err := env.svc.List(context.Background(), adminActor(agencyID), transport.ListLeadsRequest{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if resp.Page != 2 || resp.PageSize != 2 || resp.Total != 5 {
		t.Fatalf("unexpected page bookkeeping: %+v", resp)
	}
	if resp.TotalPages != 3 {
		t.Fatalf("expected 3 total pages for 5 leads at page size 2, got %d", resp.TotalPages)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items on page 2, got %d", len(resp.Items))
	}
}

func TestStatusSummaryRequiresAgency(t *testing.T) {
	env := newTestEnv()
	actor := access.Actor{UserID: uuid.New(), Role: domain.RoleAgencyAdmin}
	_, err := env.svc.StatusSummary(context.Background(), actor)
	expectKind(t, err, apperr.KindForbidden)
}

func TestCheckDuplicateNormalizesPhoneBeforeLookup(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Dup", Phone: "+919876543210", CreatedAt: time.Now().Add(-time.Hour)})

	resp, err := env.svc.CheckDuplicate(context.Background(), adminActor(agencyID), transport.CheckDuplicateRequest{Phone: "98765 43210"})
	if err != nil {
		t.Fatalf("CheckDuplicate returned error: %v", err)
	}
	if !resp.IsDuplicate || resp.ExistingLead == nil {
		t.Fatalf("expected duplicate hit, got %+v", resp)
	}
}

func TestCheckDuplicateIgnoresLeadsOutsideWindow(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Old", Phone: "+919876543210", CreatedAt: time.Now().Add(-31 * 24 * time.Hour)})

	resp, err := env.svc.CheckDuplicate(context.Background(), adminActor(agencyID), transport.CheckDuplicateRequest{Phone: "+919876543210"})
	if err != nil {
		t.Fatalf("CheckDuplicate returned error: %v", err)
	}
	if resp.IsDuplicate {
		t.Fatal("expected no duplicate outside the 30-day window")
	}
}

func TestActivityPaginates(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Audited", Phone: "+916666666666"})
	for i := 0; i < 7; i++ {
		env.repo.appendActivity(lead.ID, []repository.ActivityParams{{Action: domain.ActivityUpdated}})
	}

	resp, err := env.svc.Activity(context.Background(), adminActor(agencyID), lead.ID, 2, 3)
	if err != nil {
		t.Fatalf("Activity returned error: %v", err)
	}
	if resp.Total != 7 || resp.TotalPages != 3 || len(resp.Items) != 3 {
		t.Fatalf("unexpected pagination: total=%d pages=%d items=%d", resp.Total, resp.TotalPages, len(resp.Items))
	}
}
