// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"estatedesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadCreated is published after a new lead has been persisted.
type LeadCreated struct {
	BaseEvent
	LeadID     uuid.UUID  `json:"leadId"`
	AgencyID   uuid.UUID  `json:"agencyId"`
	LeadNumber string     `json:"leadNumber"`
	Name       string     `json:"name"`
	Source     string     `json:"source"`
	Priority   string     `json:"priority"`
	Score      int        `json:"score"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`
}

func (e LeadCreated) EventName() string { return "lead.created" }

// LeadAssigned is published when a lead is routed to an agent, either at
// creation time or by a later manual or automatic reassignment.
type LeadAssigned struct {
	BaseEvent
	LeadID          uuid.UUID  `json:"leadId"`
	AgencyID        uuid.UUID  `json:"agencyId"`
	LeadNumber      string     `json:"leadNumber"`
	AgentID         uuid.UUID  `json:"agentId"`
	PreviousAgentID *uuid.UUID `json:"previousAgentId,omitempty"`
	Method          string     `json:"method"`
}

func (e LeadAssigned) EventName() string { return "lead.assigned" }

// LeadStatusChanged is published on every pipeline status transition,
// manual or automatic.
type LeadStatusChanged struct {
	BaseEvent
	LeadID     uuid.UUID  `json:"leadId"`
	AgencyID   uuid.UUID  `json:"agencyId"`
	LeadNumber string     `json:"leadNumber"`
	FromStatus string     `json:"fromStatus"`
	ToStatus   string     `json:"toStatus"`
	ChangedBy  *uuid.UUID `json:"changedBy,omitempty"`
	Automatic  bool       `json:"automatic"`
}

func (e LeadStatusChanged) EventName() string { return "lead.status.changed" }

// LeadRescored is published when the scoring engine recomputes a lead's score.
type LeadRescored struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	AgencyID uuid.UUID `json:"agencyId"`
	OldScore int       `json:"oldScore"`
	NewScore int       `json:"newScore"`
	Priority string    `json:"priority"`
}

func (e LeadRescored) EventName() string { return "lead.rescored" }

// CommunicationLogged is published after a communication touchpoint has been
// recorded on a lead. FirstContact is true when this touchpoint resolved the
// first-contact SLA clock.
type CommunicationLogged struct {
	BaseEvent
	LeadID          uuid.UUID `json:"leadId"`
	AgencyID        uuid.UUID `json:"agencyId"`
	CommunicationID uuid.UUID `json:"communicationId"`
	Type            string    `json:"type"`
	FirstContact    bool      `json:"firstContact"`
}

func (e CommunicationLogged) EventName() string { return "lead.communication.logged" }

// VisitScheduled is published when a site visit is booked on a lead.
type VisitScheduled struct {
	BaseEvent
	LeadID       uuid.UUID  `json:"leadId"`
	AgencyID     uuid.UUID  `json:"agencyId"`
	VisitID      uuid.UUID  `json:"visitId"`
	PropertyName string     `json:"propertyName"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	AgentID      *uuid.UUID `json:"agentId,omitempty"`
}

func (e VisitScheduled) EventName() string { return "lead.visit.scheduled" }

// VisitCompleted is published when a site visit is marked done.
type VisitCompleted struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	AgencyID      uuid.UUID `json:"agencyId"`
	VisitID       uuid.UUID `json:"visitId"`
	InterestLevel string    `json:"interestLevel"`
}

func (e VisitCompleted) EventName() string { return "lead.visit.completed" }

// VisitCancelled is published when a scheduled site visit is called off.
type VisitCancelled struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	AgencyID uuid.UUID `json:"agencyId"`
	VisitID  uuid.UUID `json:"visitId"`
	Reason   string    `json:"reason"`
}

func (e VisitCancelled) EventName() string { return "lead.visit.cancelled" }

// LeadMerged is published after a duplicate lead has been folded into a
// surviving primary record.
type LeadMerged struct {
	BaseEvent
	PrimaryLeadID uuid.UUID `json:"primaryLeadId"`
	MergedLeadID  uuid.UUID `json:"mergedLeadId"`
	AgencyID      uuid.UUID `json:"agencyId"`
}

func (e LeadMerged) EventName() string { return "lead.merged" }

// LeadDeleted is published after a lead has been removed.
type LeadDeleted struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	AgencyID   uuid.UUID `json:"agencyId"`
	LeadNumber string    `json:"leadNumber"`
}

func (e LeadDeleted) EventName() string { return "lead.deleted" }

// =============================================================================
// Worker-Driven Events
// =============================================================================

// ReminderDue is published by the worker when a lead reminder's time has
// arrived and the sweep has claimed it.
type ReminderDue struct {
	BaseEvent
	ReminderID uuid.UUID  `json:"reminderId"`
	LeadID     uuid.UUID  `json:"leadId"`
	AgencyID   uuid.UUID  `json:"agencyId"`
	Message    string     `json:"message"`
	RemindAt   time.Time  `json:"remindAt"`
	CreatedBy  *uuid.UUID `json:"createdBy,omitempty"`
}

func (e ReminderDue) EventName() string { return "lead.reminder.due" }

// NotificationOutboxDue is published by the worker when an outbox record has
// been claimed for delivery.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	AgencyID uuid.UUID `json:"agencyId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
