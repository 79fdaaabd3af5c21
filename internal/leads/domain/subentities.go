package domain

import (
	"time"

	"github.com/google/uuid"
)

// Communication types. A note-typed communication is an internal annotation
// and does not count as customer contact for SLA purposes.
const (
	CommTypeCall    = "call"
	CommTypeEmail   = "email"
	CommTypeSMS     = "sms"
	CommTypeMeeting = "meeting"
	CommTypeNote    = "note"
)

var knownCommTypes = map[string]struct{}{
	CommTypeCall:    {},
	CommTypeEmail:   {},
	CommTypeSMS:     {},
	CommTypeMeeting: {},
	CommTypeNote:    {},
}

// IsKnownCommType reports whether t is a recognized communication type.
func IsKnownCommType(t string) bool {
	_, ok := knownCommTypes[t]
	return ok
}

// Communication directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Task statuses form their own small machine:
// pending -> in_progress -> completed | cancelled.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

var taskTransitions = map[string][]string{
	TaskPending:    {TaskInProgress, TaskCompleted, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskCancelled},
}

// CanTransitionTask reports whether a task may move from one status to another.
func CanTransitionTask(from, to string) bool {
	for _, allowed := range taskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Note is a free-text annotation on a lead.
type Note struct {
	ID     uuid.UUID
	LeadID uuid.UUID
	Body   string
	// AuthorName is resolved from the directory at read time; empty for
	// system-generated notes.
	AuthorName string
	CreatedBy  *uuid.UUID
	CreatedAt  time.Time
}

// Communication records a customer touchpoint (or internal note-typed entry).
type Communication struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Type      string
	Direction string
	Subject   string
	Body      string
	LoggedBy  *uuid.UUID
	CreatedAt time.Time
}

// IsContact reports whether this communication counts as customer contact
// for the first-contact SLA.
func (c Communication) IsContact() bool {
	return c.Type != CommTypeNote
}

// Task is an actionable follow-up item on a lead.
type Task struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	Title       string
	Description string
	Status      string
	DueAt       *time.Time
	AssignedTo  *uuid.UUID
	CreatedBy   *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Reminder is a date-triggered nudge with a completion flag.
type Reminder struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Message   string
	RemindAt  time.Time
	Completed bool
	CreatedBy *uuid.UUID
	CreatedAt time.Time
}

// Document holds file metadata only; bytes live in object storage.
type Document struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	FileName    string
	ContentType string
	SizeBytes   int64
	StorageKey  string
	UploadedBy  *uuid.UUID
	CreatedAt   time.Time
}
