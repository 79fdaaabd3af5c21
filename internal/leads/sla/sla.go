// Package sla tracks first-contact timing against per-lead thresholds.
package sla

import (
	"time"

	"estatedesk_backend/internal/leads/domain"
)

// DefaultFirstContactSLA applies when a lead carries no explicit threshold.
const DefaultFirstContactSLA = time.Hour

// Update carries the SLA fields to persist after a communication is logged.
type Update struct {
	FirstContactAt *time.Time
	ResponseTime   *time.Duration
	Status         string
	LastContactAt  time.Time
	// FirstContact is true when this communication resolved the
	// first-contact clock.
	FirstContact bool
}

// Apply evaluates a logged communication against the lead's first-contact
// clock. Note-typed communications are internal annotations, not customer
// contact: they return nil and leave all SLA state untouched.
//
// The first-contact transition is one-shot: once FirstContactAt is set it is
// never recomputed; later contacts only move LastContactAt.
func Apply(lead *domain.Lead, commType string, now time.Time) *Update {
	if commType == domain.CommTypeNote {
		return nil
	}

	upd := &Update{
		Status:        lead.SLAStatus,
		LastContactAt: now,
	}

	if lead.FirstContactAt == nil {
		responseTime := now.Sub(lead.CreatedAt)
		status := domain.SLAMet
		if responseTime > Threshold(lead) {
			status = domain.SLABreached
		}
		upd.FirstContactAt = &now
		upd.ResponseTime = &responseTime
		upd.Status = status
		upd.FirstContact = true
	}

	return upd
}

// Threshold returns the lead's configured first-contact threshold, falling
// back to the default.
func Threshold(lead *domain.Lead) time.Duration {
	if lead.FirstContactSLA > 0 {
		return lead.FirstContactSLA
	}
	return DefaultFirstContactSLA
}

// Overdue reports whether an uncontacted lead has outlived its threshold.
// Read-side only; the persisted status stays pending until first contact.
func Overdue(lead *domain.Lead, now time.Time) bool {
	return lead.FirstContactAt == nil && now.Sub(lead.CreatedAt) > Threshold(lead)
}
