package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func visitAt(status string, createdAt time.Time) SiteVisit {
	return SiteVisit{
		ID:        uuid.New(),
		Status:    status,
		CreatedAt: createdAt,
	}
}

func TestCurrentVisitPrefersScheduled(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	scheduled := visitAt(VisitScheduled, base)
	completed := visitAt(VisitCompleted, base.Add(time.Hour))

	got := CurrentVisit([]SiteVisit{completed, scheduled})
	if got == nil || got.ID != scheduled.ID {
		t.Fatalf("expected the scheduled visit to be current even when a later completed visit exists")
	}
}

func TestCurrentVisitFallsBackToLatest(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := visitAt(VisitCancelled, base)
	newer := visitAt(VisitCompleted, base.Add(2*time.Hour))

	got := CurrentVisit([]SiteVisit{older, newer})
	if got == nil || got.ID != newer.ID {
		t.Fatalf("expected latest visit when none is scheduled")
	}
}

func TestCurrentVisitEmpty(t *testing.T) {
	if got := CurrentVisit(nil); got != nil {
		t.Fatalf("expected nil current visit for empty history, got %v", got.ID)
	}
}

func TestVisitStatusAdvancesLead(t *testing.T) {
	advancing := []string{StatusNew, StatusContacted, StatusQualified}
	for _, status := range advancing {
		if !VisitStatusAdvancesLead(status) {
			t.Errorf("scheduling a visit from %q should advance the lead", status)
		}
	}
	frozen := []string{StatusSiteVisitScheduled, StatusNegotiation, StatusBooked, StatusJunk}
	for _, status := range frozen {
		if VisitStatusAdvancesLead(status) {
			t.Errorf("scheduling a visit from %q must not rewind the lead", status)
		}
	}
}

func TestEntryPermissionDefaults(t *testing.T) {
	perms := DefaultEntryPermissions()
	for _, role := range []string{RoleAgencyAdmin, RoleAgent, RoleStaff} {
		if !perms.Allows(role, ActionView) || !perms.Allows(role, ActionEdit) {
			t.Errorf("role %q should default to view/edit allowed", role)
		}
		if perms.Allows(role, ActionDelete) {
			t.Errorf("role %q should default to delete denied", role)
		}
	}

	// A role absent from the map gets the default flags.
	empty := EntryPermissions{}
	if !empty.Allows(RoleAgent, ActionEdit) {
		t.Error("missing role entry should fall back to edit allowed")
	}
	if empty.Allows(RoleAgent, ActionDelete) {
		t.Error("missing role entry should fall back to delete denied")
	}
}

func TestTaskTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{TaskPending, TaskInProgress, true},
		{TaskPending, TaskCompleted, true},
		{TaskInProgress, TaskCompleted, true},
		{TaskInProgress, TaskCancelled, true},
		{TaskCompleted, TaskPending, false},
		{TaskCancelled, TaskInProgress, false},
	}
	for _, tc := range cases {
		if got := CanTransitionTask(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionTask(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
