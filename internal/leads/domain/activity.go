package domain

import (
	"time"

	"github.com/google/uuid"
)

// Activity actions. Every state-changing operation appends at least one
// activity entry; the log is append-only and never rewritten.
const (
	ActivityCreated         = "created"
	ActivityUpdated         = "updated"
	ActivityStatusChanged   = "status_changed"
	ActivityAssigned        = "assigned"
	ActivityUnassigned      = "unassigned"
	ActivityRescored        = "rescored"
	ActivityNoteAdded       = "note_added"
	ActivityCommLogged      = "communication_logged"
	ActivityTaskAdded       = "task_added"
	ActivityTaskUpdated     = "task_updated"
	ActivityReminderAdded   = "reminder_added"
	ActivityReminderDone    = "reminder_completed"
	ActivityDocumentAdded   = "document_added"
	ActivityDocumentRemoved = "document_removed"
	ActivityVisitBooked     = "visit_scheduled"
	ActivityVisitDone       = "visit_completed"
	ActivityVisitDropped    = "visit_cancelled"
	ActivityVisitUpdated    = "visit_updated"
	ActivityMerged          = "merged"
	ActivityImported        = "imported"
	ActivityDeleted         = "deleted"
)

// ActivityEntry is one record of the append-only audit trail.
type ActivityEntry struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	Action      string
	Field       string
	OldValue    string
	NewValue    string
	Description string
	PerformedBy *uuid.UUID
	CreatedAt   time.Time
}
