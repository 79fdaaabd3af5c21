package domain

import (
	"time"

	"github.com/google/uuid"
)

// Site visit statuses.
const (
	VisitScheduled = "scheduled"
	VisitCompleted = "completed"
	VisitNoShow    = "no_show"
	VisitCancelled = "cancelled"
)

// Interest levels recorded as visit feedback.
const (
	InterestHigh          = "high"
	InterestMedium        = "medium"
	InterestLow           = "low"
	InterestNotInterested = "not_interested"
)

var knownInterestLevels = map[string]struct{}{
	InterestHigh:          {},
	InterestMedium:        {},
	InterestLow:           {},
	InterestNotInterested: {},
}

// IsKnownInterestLevel reports whether level is a recognized feedback value.
func IsKnownInterestLevel(level string) bool {
	_, ok := knownInterestLevels[level]
	return ok
}

// SiteVisit is one entry of a lead's visit history. A lead normally has at
// most one visit in scheduled state, but the model tolerates multiple
// historical entries.
type SiteVisit struct {
	ID                  uuid.UUID
	LeadID              uuid.UUID
	PropertyID          *uuid.UUID
	PropertyName        string
	ScheduledDate       time.Time
	ScheduledTime       string
	Status              string
	CompletedDate       *time.Time
	CancelledDate       *time.Time
	Feedback            string
	InterestLevel       string
	NextAction          string
	RelationshipManager *uuid.UUID
	CreatedBy           *uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CurrentVisit derives the "current visit" pointer from a visit list: the
// most recently created visit still in scheduled state, else the most
// recently created visit of any state, else nil. Computed, never dual-stored.
func CurrentVisit(visits []SiteVisit) *SiteVisit {
	var current *SiteVisit
	var latest *SiteVisit
	for i := range visits {
		v := &visits[i]
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
		if v.Status == VisitScheduled {
			if current == nil || v.CreatedAt.After(current.CreatedAt) {
				current = v
			}
		}
	}
	if current != nil {
		return current
	}
	return latest
}

// VisitStatusAdvancesLead reports whether scheduling a visit should advance
// the lead's pipeline status to site_visit_scheduled. Leads already further
// along than qualified keep their status.
func VisitStatusAdvancesLead(leadStatus string) bool {
	switch leadStatus {
	case StatusNew, StatusContacted, StatusQualified:
		return true
	}
	return false
}
