package repository

import (
	"context"
	"time"

	"estatedesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data. All reads except
// GetByIDUnscoped are scoped to the caller's agency.
type LeadReader interface {
	GetByID(ctx context.Context, id, agencyID uuid.UUID) (domain.Lead, error)
	GetByIDUnscoped(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetByNumber(ctx context.Context, number string, agencyID uuid.UUID) (domain.Lead, error)
	FindRecentByContact(ctx context.Context, agencyID uuid.UUID, phone, email string, since time.Time) (*domain.Lead, error)
	List(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
	StatusCounts(ctx context.Context, agencyID uuid.UUID) (map[string]int, error)
}

// LeadWriter provides write operations for lead management.
type LeadWriter interface {
	Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error)
	Update(ctx context.Context, id, agencyID uuid.UUID, params UpdateLeadParams, activity []ActivityParams) (domain.Lead, error)
	UpdateStatus(ctx context.Context, id, agencyID uuid.UUID, upd StatusUpdate, activity []ActivityParams) (domain.Lead, error)
	UpdateAssignment(ctx context.Context, id, agencyID uuid.UUID, upd AssignmentUpdate, activity []ActivityParams) (domain.Lead, error)
	Delete(ctx context.Context, id, agencyID uuid.UUID, activity []ActivityParams) error
	BulkDelete(ctx context.Context, ids []uuid.UUID, agencyID uuid.UUID, performedBy *uuid.UUID) (int, error)
	MergeLeads(ctx context.Context, primaryID, mergedID, agencyID uuid.UUID, activity []ActivityParams) (domain.Lead, error)
}

// ScoreReader provides the read surface the scoring service needs.
type ScoreReader interface {
	GetByID(ctx context.Context, id, agencyID uuid.UUID) (domain.Lead, error)
	CountCommunications(ctx context.Context, leadID uuid.UUID) (int, error)
}

// ScoreWriter persists recomputed scores.
type ScoreWriter interface {
	SaveScore(ctx context.Context, id, agencyID uuid.UUID, upd ScoreUpdate, activity []ActivityParams) error
}

// NumberSequence issues globally unique lead sequence values.
type NumberSequence interface {
	NextLeadNumber(ctx context.Context) (int64, error)
}

// RotationCursor advances the per-agency round-robin position.
type RotationCursor interface {
	NextRotation(ctx context.Context, agencyID uuid.UUID) (int64, error)
}

// WorkloadCounter reports open-pipeline lead counts per agent.
type WorkloadCounter interface {
	CountActiveLeads(ctx context.Context, agencyID uuid.UUID, agentIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// NoteStore manages lead notes.
type NoteStore interface {
	AddNote(ctx context.Context, params AddNoteParams) (domain.Note, error)
	ListNotes(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Note, error)
}

// CommunicationStore manages logged communications and engagement counts.
type CommunicationStore interface {
	AddCommunication(ctx context.Context, params AddCommunicationParams) (domain.Communication, error)
	ListCommunications(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Communication, error)
	CountCommunications(ctx context.Context, leadID uuid.UUID) (int, error)
}

// TaskStore manages follow-up tasks on leads.
type TaskStore interface {
	AddTask(ctx context.Context, params AddTaskParams) (domain.Task, error)
	GetTask(ctx context.Context, taskID, leadID, agencyID uuid.UUID) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID, leadID, agencyID uuid.UUID, status string, activity []ActivityParams) (domain.Task, error)
	ListTasks(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Task, error)
}

// ReminderStore manages reminders and the due-reminder sweep.
type ReminderStore interface {
	AddReminder(ctx context.Context, params AddReminderParams) (domain.Reminder, error)
	CompleteReminder(ctx context.Context, reminderID, leadID, agencyID uuid.UUID, activity []ActivityParams) (domain.Reminder, error)
	ListReminders(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Reminder, error)
	ClaimDueReminders(ctx context.Context, due time.Time, limit int) ([]DueReminder, error)
}

// DocumentStore manages document metadata; the bytes live in object storage.
type DocumentStore interface {
	AddDocument(ctx context.Context, params AddDocumentParams) (domain.Document, error)
	GetDocument(ctx context.Context, documentID, leadID, agencyID uuid.UUID) (domain.Document, error)
	ListDocuments(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, documentID, leadID, agencyID uuid.UUID, activity []ActivityParams) (domain.Document, error)
}

// VisitStore manages the site-visit sub-lifecycle.
type VisitStore interface {
	AddVisit(ctx context.Context, params AddVisitParams) (domain.SiteVisit, error)
	CompleteVisit(ctx context.Context, params CompleteVisitParams) (domain.SiteVisit, error)
	CancelVisit(ctx context.Context, visitID, leadID, agencyID uuid.UUID, cancelledDate time.Time, activity []ActivityParams) (domain.SiteVisit, error)
	UpdateVisit(ctx context.Context, params UpdateVisitParams) (domain.SiteVisit, error)
	DeleteVisit(ctx context.Context, visitID, leadID, agencyID uuid.UUID, activity []ActivityParams) error
	MarkVisitNoShow(ctx context.Context, visitID, leadID, agencyID uuid.UUID, activity []ActivityParams) (domain.SiteVisit, error)
	GetVisit(ctx context.Context, visitID, leadID, agencyID uuid.UUID) (domain.SiteVisit, error)
	ListVisits(ctx context.Context, leadID, agencyID uuid.UUID) ([]domain.SiteVisit, error)
	ListOverdueScheduled(ctx context.Context, before time.Time, limit int) ([]OverdueVisit, error)
}

// ActivityStore records and reads the append-only audit trail.
type ActivityStore interface {
	AddActivity(ctx context.Context, leadID, agencyID uuid.UUID, entries []ActivityParams) error
	ListActivity(ctx context.Context, leadID, agencyID uuid.UUID, offset, limit int) ([]domain.ActivityEntry, int, error)
}

// =====================================
// Composite Interface (for backward compatibility)
// =====================================

// LeadsRepository defines the complete interface for leads data operations.
// Composed of smaller, focused interfaces for better testability and flexibility.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	ScoreWriter
	NumberSequence
	RotationCursor
	WorkloadCounter
	NoteStore
	CommunicationStore
	TaskStore
	ReminderStore
	DocumentStore
	VisitStore
	ActivityStore
}

// Ensure Repository implements LeadsRepository
var _ LeadsRepository = (*Repository)(nil)
