package domain

import "strings"

// NormalizePriority maps freeform or legacy priority values to the canonical
// set. Canonical values pass through unchanged so normalization is idempotent
// and an explicitly chosen Cold/Not_interested survives renormalization.
// Low-value intake signals (low, cold, not_interested) deliberately normalize
// to Warm: intake data is never allowed to park a lead in a dead-end priority.
func NormalizePriority(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if IsKnownPriority(trimmed) {
		return trimmed
	}
	switch strings.ToLower(trimmed) {
	case "high", "urgent", "hot":
		return PriorityHot
	default:
		// medium, low, cold, not_interested, unknown, empty
		return PriorityWarm
	}
}

// NormalizeSource maps platform aliases to the canonical source enum.
// Empty input means an untagged web inquiry; unrecognized values collapse
// to other.
func NormalizeSource(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		return SourceWebsite
	case "fb", "facebook", "instagram", "google", "social":
		return SourceSocialMedia
	case "call":
		return SourcePhone
	case "personal":
		return SourceWalkIn
	}
	if IsKnownSource(value) {
		return value
	}
	return SourceOther
}

// NormalizeStatus lowercases and maps known aliases onto the canonical
// status enum, falling back to new for anything unrecognized.
func NormalizeStatus(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if IsKnownStatus(value) {
		return value
	}
	switch value {
	case "site visit", "site-visit", "visit scheduled":
		return StatusSiteVisitScheduled
	}
	return StatusNew
}
