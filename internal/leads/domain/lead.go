// Package domain provides core business rules for the leads bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline statuses.
const (
	StatusNew                = "new"
	StatusContacted          = "contacted"
	StatusQualified          = "qualified"
	StatusSiteVisitScheduled = "site_visit_scheduled"
	StatusSiteVisitCompleted = "site_visit_completed"
	StatusNegotiation        = "negotiation"
	StatusBooked             = "booked"
	StatusLost               = "lost"
	StatusClosed             = "closed"
	StatusJunk               = "junk"
)

var knownStatuses = map[string]struct{}{
	StatusNew:                {},
	StatusContacted:          {},
	StatusQualified:          {},
	StatusSiteVisitScheduled: {},
	StatusSiteVisitCompleted: {},
	StatusNegotiation:        {},
	StatusBooked:             {},
	StatusLost:               {},
	StatusClosed:             {},
	StatusJunk:               {},
}

// terminalStatuses are pipeline endpoints; leads in these statuses no longer
// count toward an agent's workload.
var terminalStatuses = map[string]bool{
	StatusBooked: true,
	StatusLost:   true,
	StatusClosed: true,
	StatusJunk:   true,
}

// ActiveStatuses is the status set counted as open workload when balancing
// assignments across agents.
var ActiveStatuses = []string{
	StatusNew,
	StatusContacted,
	StatusQualified,
	StatusSiteVisitScheduled,
	StatusSiteVisitCompleted,
	StatusNegotiation,
}

// IsKnownStatus reports whether status is a canonical pipeline status.
func IsKnownStatus(status string) bool {
	_, ok := knownStatuses[status]
	return ok
}

// IsTerminalStatus reports whether the status ends the pipeline.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

// Priorities.
const (
	PriorityHot           = "Hot"
	PriorityWarm          = "Warm"
	PriorityCold          = "Cold"
	PriorityNotInterested = "Not_interested"
)

var knownPriorities = map[string]struct{}{
	PriorityHot:           {},
	PriorityWarm:          {},
	PriorityCold:          {},
	PriorityNotInterested: {},
}

// IsKnownPriority reports whether priority is canonical.
func IsKnownPriority(priority string) bool {
	_, ok := knownPriorities[priority]
	return ok
}

// Sources.
const (
	SourceWebsite     = "website"
	SourcePhone       = "phone"
	SourceEmail       = "email"
	SourceWalkIn      = "walk_in"
	SourceReferral    = "referral"
	SourceSocialMedia = "social_media"
	SourceOther       = "other"
)

var knownSources = map[string]struct{}{
	SourceWebsite:     {},
	SourcePhone:       {},
	SourceEmail:       {},
	SourceWalkIn:      {},
	SourceReferral:    {},
	SourceSocialMedia: {},
	SourceOther:       {},
}

// IsKnownSource reports whether source is canonical.
func IsKnownSource(source string) bool {
	_, ok := knownSources[source]
	return ok
}

// Assignment methods an agency can configure.
const (
	AssignRoundRobin = "round_robin"
	AssignWorkload   = "workload"
	AssignLocation   = "location"
	AssignProject    = "project"
	AssignSource     = "source"
	AssignSmart      = "smart"
)

var knownAssignmentMethods = map[string]struct{}{
	AssignRoundRobin: {},
	AssignWorkload:   {},
	AssignLocation:   {},
	AssignProject:    {},
	AssignSource:     {},
	AssignSmart:      {},
}

// IsKnownAssignmentMethod reports whether method is a supported strategy.
func IsKnownAssignmentMethod(method string) bool {
	_, ok := knownAssignmentMethods[method]
	return ok
}

// Purchase timelines recognized by the scoring engine.
const (
	TimelineImmediate   = "immediate"
	TimelineOneMonth    = "1_month"
	TimelineThreeMonths = "3_months"
	TimelineSixMonths   = "6_months"
	TimelineOneYear     = "1_year"
	TimelineFlexible    = "flexible"
)

// First-contact SLA compliance states.
const (
	SLAPending  = "pending"
	SLAMet      = "met"
	SLABreached = "breached"
)

// ScoreDetails is the per-factor breakdown persisted alongside the score.
type ScoreDetails struct {
	SourceScore     int       `json:"sourceScore"`
	BudgetScore     int       `json:"budgetScore"`
	TimelineScore   int       `json:"timelineScore"`
	EngagementScore int       `json:"engagementScore"`
	Total           int       `json:"total"`
	CalculatedAt    time.Time `json:"calculatedAt"`
}

// Lead is the central aggregate of the bounded context. Sub-entity
// collections (notes, communications, tasks, reminders, documents, visits,
// activity log) are loaded separately by the repository.
type Lead struct {
	ID         uuid.UUID
	LeadNumber string
	AgencyID   uuid.UUID

	Name     string
	Email    string
	Phone    string
	AltPhone string

	Status        string
	Priority      string
	Source        string
	SourceDetails string

	AssignedTo *uuid.UUID
	ManagerID  *uuid.UUID
	Team       string

	PropertyID   *uuid.UUID
	PropertyName string

	BudgetMin          *float64
	BudgetMax          *float64
	Timeline           string
	PreferredLocations []string
	PropertyTypes      []string
	Message            string

	Score        int
	ScoreDetails *ScoreDetails

	FirstContactAt  *time.Time
	FirstContactSLA time.Duration
	ResponseTime    *time.Duration
	SLAStatus       string
	LastContactAt   *time.Time

	BookingAmount *float64
	ConvertedAt   *time.Time

	EntryPermissions EntryPermissions

	CreatedBy *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasBudget reports whether the lead carries any positive budget bound.
func (l *Lead) HasBudget() bool {
	if l.BudgetMin != nil && *l.BudgetMin > 0 {
		return true
	}
	return l.BudgetMax != nil && *l.BudgetMax > 0
}
