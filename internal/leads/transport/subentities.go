package transport

import (
	"time"

	"github.com/google/uuid"
)

// Notes.

type CreateNoteRequest struct {
	Body string `json:"body" validate:"required,min=1,max=2000"`
}

type NoteResponse struct {
	ID         uuid.UUID  `json:"id"`
	LeadID     uuid.UUID  `json:"leadId"`
	Body       string     `json:"body"`
	AuthorID   *uuid.UUID `json:"authorId,omitempty"`
	AuthorName string     `json:"authorName,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type NoteListResponse struct {
	Items []NoteResponse `json:"items"`
}

// Communications.

type LogCommunicationRequest struct {
	Type      string `json:"type" validate:"required,oneof=call email sms meeting note"`
	Direction string `json:"direction,omitempty" validate:"omitempty,oneof=inbound outbound"`
	Subject   string `json:"subject,omitempty" validate:"max=200"`
	Body      string `json:"body,omitempty" validate:"max=5000"`
}

type CommunicationResponse struct {
	ID        uuid.UUID  `json:"id"`
	LeadID    uuid.UUID  `json:"leadId"`
	Type      string     `json:"type"`
	Direction string     `json:"direction,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	Body      string     `json:"body,omitempty"`
	LoggedBy  *uuid.UUID `json:"loggedBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type CommunicationListResponse struct {
	Items []CommunicationResponse `json:"items"`
}

// Tasks.

type CreateTaskRequest struct {
	Title       string       `json:"title" validate:"required,min=1,max=200"`
	Description string       `json:"description,omitempty" validate:"max=2000"`
	DueAt       *time.Time   `json:"dueAt,omitempty"`
	AssignedTo  OptionalUUID `json:"assignedTo,omitempty" validate:"-"`
}

type UpdateTaskStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress completed cancelled"`
}

type TaskResponse struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      uuid.UUID  `json:"leadId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	AssignedTo  *uuid.UUID `json:"assignedTo,omitempty"`
	CreatedBy   *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type TaskListResponse struct {
	Items []TaskResponse `json:"items"`
}

// Reminders.

type CreateReminderRequest struct {
	Message  string    `json:"message" validate:"required,min=1,max=500"`
	RemindAt time.Time `json:"remindAt" validate:"required"`
}

type ReminderResponse struct {
	ID        uuid.UUID  `json:"id"`
	LeadID    uuid.UUID  `json:"leadId"`
	Message   string     `json:"message"`
	RemindAt  time.Time  `json:"remindAt"`
	Completed bool       `json:"completed"`
	CreatedBy *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type ReminderListResponse struct {
	Items []ReminderResponse `json:"items"`
}

// Activity log.

type ActivityResponse struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      uuid.UUID  `json:"leadId"`
	Action      string     `json:"action"`
	Field       string     `json:"field,omitempty"`
	OldValue    string     `json:"oldValue,omitempty"`
	NewValue    string     `json:"newValue,omitempty"`
	Description string     `json:"description,omitempty"`
	PerformedBy *uuid.UUID `json:"performedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type ActivityListResponse struct {
	Items      []ActivityResponse `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalPages int                `json:"totalPages"`
}
