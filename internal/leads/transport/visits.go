package transport

import (
	"time"

	"github.com/google/uuid"
)

type ScheduleVisitRequest struct {
	PropertyID          OptionalUUID `json:"propertyId,omitempty" validate:"-"`
	PropertyName        string       `json:"propertyName,omitempty" validate:"max=200"`
	ScheduledDate       time.Time    `json:"scheduledDate" validate:"required"`
	ScheduledTime       string       `json:"scheduledTime,omitempty" validate:"max=20"`
	RelationshipManager OptionalUUID `json:"relationshipManager,omitempty" validate:"-"`
}

type CompleteVisitRequest struct {
	CompletedDate *time.Time `json:"completedDate,omitempty"`
	Feedback      string     `json:"feedback,omitempty" validate:"max=2000"`
	InterestLevel string     `json:"interestLevel,omitempty" validate:"omitempty,oneof=high medium low not_interested"`
	NextAction    string     `json:"nextAction,omitempty" validate:"max=500"`
}

type CancelVisitRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type UpdateVisitRequest struct {
	ScheduledDate       *time.Time   `json:"scheduledDate,omitempty"`
	ScheduledTime       *string      `json:"scheduledTime,omitempty" validate:"omitempty,max=20"`
	PropertyID          OptionalUUID `json:"propertyId,omitempty" validate:"-"`
	PropertyName        *string      `json:"propertyName,omitempty" validate:"omitempty,max=200"`
	RelationshipManager OptionalUUID `json:"relationshipManager,omitempty" validate:"-"`
	NextAction          *string      `json:"nextAction,omitempty" validate:"omitempty,max=500"`
}

type VisitResponse struct {
	ID                  uuid.UUID  `json:"id"`
	LeadID              uuid.UUID  `json:"leadId"`
	PropertyID          *uuid.UUID `json:"propertyId,omitempty"`
	PropertyName        string     `json:"propertyName,omitempty"`
	ScheduledDate       time.Time  `json:"scheduledDate"`
	ScheduledTime       string     `json:"scheduledTime,omitempty"`
	Status              string     `json:"status"`
	CompletedDate       *time.Time `json:"completedDate,omitempty"`
	CancelledDate       *time.Time `json:"cancelledDate,omitempty"`
	Feedback            string     `json:"feedback,omitempty"`
	InterestLevel       string     `json:"interestLevel,omitempty"`
	NextAction          string     `json:"nextAction,omitempty"`
	RelationshipManager *uuid.UUID `json:"relationshipManager,omitempty"`
	CreatedBy           *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type VisitListResponse struct {
	Items []VisitResponse `json:"items"`
	// Current points at the visit the lead is presently working toward,
	// derived from the list; null when there are no visits.
	Current *VisitResponse `json:"current,omitempty"`
}
