package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/access"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/scoring"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/apperr"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestUpdateRenormalizesLegacyStoredValues(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{
		AgencyID: agencyID,
		Name:     "Legacy Row",
		Phone:    "+917000000001",
		Priority: "high",
		Source:   "fb",
	})

	_, err := env.svc.Update(context.Background(), adminActor(agencyID), lead.ID, transport.UpdateLeadRequest{})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if stored := env.repo.leads[lead.ID]; stored.Source != domain.SourceSocialMedia {
		t.Fatalf("expected legacy source converged to %s, got %s", domain.SourceSocialMedia, stored.Source)
	}

	var sawPriority bool
	for _, entry := range env.repo.activity[lead.ID] {
		if entry.Field == "priority" && entry.OldValue == "high" && entry.NewValue == domain.PriorityHot {
			sawPriority = true
		}
	}
	if !sawPriority {
		t.Fatal("expected an audit entry for the priority renormalization")
	}
}

func TestUpdateFollowsRescoreRecommendation(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Edit Me", Phone: "+917000000002", Priority: domain.PriorityHot, Score: 90})
	env.scorer.result = scoring.Result{Score: 40, Priority: domain.PriorityWarm}

	resp, err := env.svc.Update(context.Background(), adminActor(agencyID), lead.ID, transport.UpdateLeadRequest{
		Message: strPtr("Now just browsing."),
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if env.scorer.calls != 1 {
		t.Fatalf("every edit should re-score once, got %d calls", env.scorer.calls)
	}
	if resp.Score != 40 || resp.Priority != domain.PriorityWarm {
		t.Fatalf("expected response to carry the re-score, got score=%d priority=%s", resp.Score, resp.Priority)
	}
	if stored := env.repo.leads[lead.ID]; stored.Priority != domain.PriorityWarm {
		t.Fatalf("expected stored priority to follow the recommendation, got %s", stored.Priority)
	}
}

func TestUpdateCallerPrioritySurvivesRescore(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Edit Me", Phone: "+917000000003", Priority: domain.PriorityWarm})
	env.scorer.result = scoring.Result{Score: 80, Priority: domain.PriorityHot}

	resp, err := env.svc.Update(context.Background(), adminActor(agencyID), lead.ID, transport.UpdateLeadRequest{
		Priority: strPtr(domain.PriorityCold),
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if resp.Priority != domain.PriorityCold {
		t.Fatalf("caller-supplied priority should survive the re-score, got %s", resp.Priority)
	}
	if stored := env.repo.leads[lead.ID]; stored.Priority != domain.PriorityCold {
		t.Fatalf("expected stored priority %s, got %s", domain.PriorityCold, stored.Priority)
	}
	if stored := env.repo.leads[lead.ID]; stored.Score != 80 {
		t.Fatalf("the score itself should still refresh, got %d", stored.Score)
	}
}

func TestUpdateNormalizesContactEdits(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Contact", Phone: "+917000000004"})

	_, err := env.svc.Update(context.Background(), adminActor(agencyID), lead.ID, transport.UpdateLeadRequest{
		Phone: strPtr("98123 45678"),
		Email: strPtr(" NEW.Addr@Example.COM "),
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	stored := env.repo.leads[lead.ID]
	if stored.Phone != "+919812345678" {
		t.Fatalf("expected E.164 phone, got %s", stored.Phone)
	}
	if stored.Email != "new.addr@example.com" {
		t.Fatalf("expected lowercased email, got %s", stored.Email)
	}
}

func TestUpdateClearsBudgetWithExplicitNull(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Budget", Phone: "+917000000005", BudgetMin: floatPtr(100_000)})

	_, err := env.svc.Update(context.Background(), adminActor(agencyID), lead.ID, transport.UpdateLeadRequest{
		BudgetMin: transport.OptionalFloat{Set: true},
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if stored := env.repo.leads[lead.ID]; stored.BudgetMin != nil {
		t.Fatalf("explicit null should clear the budget, got %v", *stored.BudgetMin)
	}
}

func TestUpdateSkipsAuditForUnchangedFields(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Same Name", Phone: "+917000000006", Priority: domain.PriorityWarm, Source: domain.SourceWebsite})

	_, err := env.svc.Update(context.Background(), adminActor(agencyID), lead.ID, transport.UpdateLeadRequest{
		Name: strPtr("Same Name"),
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if entries := env.repo.activity[lead.ID]; len(entries) != 0 {
		t.Fatalf("a no-change edit should write no audit entries, got %v", entries)
	}
}

func TestUpdateStatusStampsConvertedAtOnce(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	actor := adminActor(agencyID)
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Buyer", Phone: "+917000000007", Status: domain.StatusNegotiation})

	first, err := env.svc.UpdateStatus(context.Background(), actor, lead.ID, transport.UpdateLeadStatusRequest{Status: domain.StatusBooked})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if first.ConvertedAt == nil {
		t.Fatal("booking should stamp convertedAt")
	}
	stamp := *env.repo.leads[lead.ID].ConvertedAt

	// Leave and re-enter booked: the original conversion time must survive.
	if _, err := env.svc.UpdateStatus(context.Background(), actor, lead.ID, transport.UpdateLeadStatusRequest{Status: domain.StatusNegotiation}); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if _, err := env.svc.UpdateStatus(context.Background(), actor, lead.ID, transport.UpdateLeadStatusRequest{Status: domain.StatusBooked}); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if got := *env.repo.leads[lead.ID].ConvertedAt; !got.Equal(stamp) {
		t.Fatalf("convertedAt must stamp once, was %v now %v", stamp, got)
	}
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Idle", Phone: "+917000000008", Status: domain.StatusContacted})

	resp, err := env.svc.UpdateStatus(context.Background(), adminActor(agencyID), lead.ID, transport.UpdateLeadStatusRequest{Status: domain.StatusContacted})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if resp.Status != domain.StatusContacted {
		t.Fatalf("unexpected status %s", resp.Status)
	}
	if len(env.repo.activity[lead.ID]) != 0 {
		t.Fatal("a same-status update should write no audit entry")
	}
	if env.bus.has("lead.status.changed") {
		t.Fatal("a same-status update should publish no event")
	}
}

func TestUpdateStatusBookingAmountBreaksNoOp(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Closer", Phone: "+917000000009", Status: domain.StatusBooked})

	_, err := env.svc.UpdateStatus(context.Background(), adminActor(agencyID), lead.ID, transport.UpdateLeadStatusRequest{
		Status:        domain.StatusBooked,
		BookingAmount: floatPtr(2_500_000),
	})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	stored := env.repo.leads[lead.ID]
	if stored.BookingAmount == nil || *stored.BookingAmount != 2_500_000 {
		t.Fatalf("expected booking amount recorded, got %v", stored.BookingAmount)
	}
}

func TestUpdateStatusNormalizesAndPublishes(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Mover", Phone: "+917000000010", Status: domain.StatusQualified})

	resp, err := env.svc.UpdateStatus(context.Background(), adminActor(agencyID), lead.ID, transport.UpdateLeadStatusRequest{Status: "Visit Scheduled"})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if resp.Status != domain.StatusSiteVisitScheduled {
		t.Fatalf("expected normalized status, got %s", resp.Status)
	}
	if !env.bus.has("lead.status.changed") {
		t.Fatal("expected a status-changed event")
	}
}

func TestAutoStagePromotesHighInterestVisit(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Visitor", Phone: "+917000000011", Status: domain.StatusSiteVisitCompleted})
	completed := time.Now().Add(-24 * time.Hour)
	env.repo.visits[lead.ID] = []domain.SiteVisit{{
		ID:            uuid.New(),
		LeadID:        lead.ID,
		Status:        domain.VisitCompleted,
		CompletedDate: &completed,
		InterestLevel: domain.InterestHigh,
		ScheduledDate: completed,
		CreatedAt:     completed,
	}}

	resp, err := env.svc.AutoStage(context.Background(), adminActor(agencyID), lead.ID)
	if err != nil {
		t.Fatalf("AutoStage returned error: %v", err)
	}
	if resp.Status != domain.StatusNegotiation {
		t.Fatalf("expected promotion to %s, got %s", domain.StatusNegotiation, resp.Status)
	}

	for _, event := range env.bus.events {
		if changed, ok := event.(events.LeadStatusChanged); ok {
			if !changed.Automatic {
				t.Fatal("auto-stage transitions must be flagged automatic")
			}
			return
		}
	}
	t.Fatal("expected a status-changed event")
}

func TestAutoStageLowInterestVisitStays(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Lukewarm", Phone: "+917000000012", Status: domain.StatusSiteVisitCompleted})
	completed := time.Now().Add(-24 * time.Hour)
	env.repo.visits[lead.ID] = []domain.SiteVisit{{
		ID:            uuid.New(),
		LeadID:        lead.ID,
		Status:        domain.VisitCompleted,
		CompletedDate: &completed,
		InterestLevel: domain.InterestLow,
		ScheduledDate: completed,
		CreatedAt:     completed,
	}}

	resp, err := env.svc.AutoStage(context.Background(), adminActor(agencyID), lead.ID)
	if err != nil {
		t.Fatalf("AutoStage returned error: %v", err)
	}
	if resp.Status != domain.StatusSiteVisitCompleted {
		t.Fatalf("low interest must not promote, got %s", resp.Status)
	}
}

func TestAutoStageBookingAmountPromotesToBooked(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{
		AgencyID:      agencyID,
		Name:          "Negotiator",
		Phone:         "+917000000013",
		Status:        domain.StatusNegotiation,
		BookingAmount: floatPtr(1_500_000),
	})

	resp, err := env.svc.AutoStage(context.Background(), adminActor(agencyID), lead.ID)
	if err != nil {
		t.Fatalf("AutoStage returned error: %v", err)
	}
	if resp.Status != domain.StatusBooked {
		t.Fatalf("expected promotion to booked, got %s", resp.Status)
	}
	if env.repo.leads[lead.ID].ConvertedAt == nil {
		t.Fatal("auto-staged booking should stamp convertedAt")
	}
}

func TestAutoStageSustainedEngagementQualifies(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{
		AgencyID:  agencyID,
		Name:      "Engaged",
		Phone:     "+917000000014",
		Status:    domain.StatusContacted,
		BudgetMin: floatPtr(500_000),
	})
	for i := 0; i < 3; i++ {
		env.repo.comms[lead.ID] = append(env.repo.comms[lead.ID], domain.Communication{ID: uuid.New(), LeadID: lead.ID, Type: domain.CommTypeCall})
	}

	resp, err := env.svc.AutoStage(context.Background(), adminActor(agencyID), lead.ID)
	if err != nil {
		t.Fatalf("AutoStage returned error: %v", err)
	}
	if resp.Status != domain.StatusQualified {
		t.Fatalf("expected qualification, got %s", resp.Status)
	}
}

func TestAutoStageInsufficientEngagementStays(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{
		AgencyID:  agencyID,
		Name:      "Quiet",
		Phone:     "+917000000015",
		Status:    domain.StatusContacted,
		BudgetMin: floatPtr(500_000),
	})
	env.repo.comms[lead.ID] = []domain.Communication{{ID: uuid.New(), LeadID: lead.ID, Type: domain.CommTypeCall}}

	resp, err := env.svc.AutoStage(context.Background(), adminActor(agencyID), lead.ID)
	if err != nil {
		t.Fatalf("AutoStage returned error: %v", err)
	}
	if resp.Status != domain.StatusContacted {
		t.Fatalf("two touchpoints must not qualify, got %s", resp.Status)
	}
}

func TestAutoStageMarksOverdueVisitNoShow(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "No Show", Phone: "+917000000016", Status: domain.StatusSiteVisitScheduled})
	visitID := uuid.New()
	env.repo.visits[lead.ID] = []domain.SiteVisit{{
		ID:            visitID,
		LeadID:        lead.ID,
		Status:        domain.VisitScheduled,
		ScheduledDate: time.Now().Add(-72 * time.Hour),
		CreatedAt:     time.Now().Add(-96 * time.Hour),
	}}

	resp, err := env.svc.AutoStage(context.Background(), adminActor(agencyID), lead.ID)
	if err != nil {
		t.Fatalf("AutoStage returned error: %v", err)
	}
	if resp.Status != domain.StatusSiteVisitScheduled {
		t.Fatalf("the lead status must stay put, got %s", resp.Status)
	}
	if got := env.repo.visits[lead.ID][0].Status; got != domain.VisitNoShow {
		t.Fatalf("expected the overdue visit marked %s, got %s", domain.VisitNoShow, got)
	}
}

func TestAutoStageUnmatchedStatusUnchanged(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Fresh", Phone: "+917000000017", Status: domain.StatusNew})

	resp, err := env.svc.AutoStage(context.Background(), adminActor(agencyID), lead.ID)
	if err != nil {
		t.Fatalf("AutoStage returned error: %v", err)
	}
	if resp.Status != domain.StatusNew {
		t.Fatalf("nothing should fire for a fresh lead, got %s", resp.Status)
	}
	if len(env.bus.names()) != 0 {
		t.Fatalf("expected no events, got %v", env.bus.names())
	}
}

func TestRescoreManualForcesPriority(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Stale Score", Phone: "+917000000018", Score: 90, Priority: domain.PriorityHot})
	env.scorer.result = scoring.Result{Score: 55, Priority: domain.PriorityWarm}

	resp, err := env.svc.Rescore(context.Background(), adminActor(agencyID), lead.ID)
	if err != nil {
		t.Fatalf("Rescore returned error: %v", err)
	}
	if resp.Score != 55 || resp.Priority != domain.PriorityWarm {
		t.Fatalf("expected forced recommendation, got score=%d priority=%s", resp.Score, resp.Priority)
	}
	if !env.bus.has("lead.rescored") {
		t.Fatal("expected a rescored event for the score change")
	}

	actions := env.repo.actions(lead.ID)
	if len(actions) != 1 || actions[0] != domain.ActivityRescored {
		t.Fatalf("expected a rescored audit entry, got %v", actions)
	}
}

func TestRescoreManualSurfacesScorerFailure(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Unlucky", Phone: "+917000000019"})
	env.scorer.err = errors.New("score state unavailable")

	if _, err := env.svc.Rescore(context.Background(), adminActor(agencyID), lead.ID); err == nil {
		t.Fatal("a manual re-score must surface scorer failures")
	}
}

func TestMergeRejectsSelfMerge(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Solo", Phone: "+917000000020"})

	_, err := env.svc.Merge(context.Background(), adminActor(agencyID), lead.ID, transport.MergeLeadsRequest{MergedLeadID: lead.ID})
	expectKind(t, err, apperr.KindValidation)
}

func TestMergeBackfillsAndAbsorbsDuplicate(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	primary := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Primary", Phone: "+917000000021"})
	duplicate := env.repo.seed(domain.Lead{
		AgencyID: agencyID,
		Name:     "Duplicate",
		Phone:    "+917000000022",
		Email:    "shared@example.com",
		Timeline: domain.TimelineImmediate,
	})
	env.repo.notes[duplicate.ID] = []domain.Note{{ID: uuid.New(), LeadID: duplicate.ID, Body: "spoke on the phone"}}

	resp, err := env.svc.Merge(context.Background(), adminActor(agencyID), primary.ID, transport.MergeLeadsRequest{MergedLeadID: duplicate.ID})
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	if resp.Email != "shared@example.com" {
		t.Fatalf("expected email backfilled from the duplicate, got %q", resp.Email)
	}
	if !env.repo.deleted[duplicate.ID] {
		t.Fatal("the duplicate should be removed after merging")
	}
	if len(env.repo.notes[primary.ID]) != 1 {
		t.Fatalf("expected the duplicate's notes moved over, got %d", len(env.repo.notes[primary.ID]))
	}
	if env.scorer.calls != 1 {
		t.Fatal("merging should force a re-score of the combined record")
	}
	if !env.bus.has("lead.merged") {
		t.Fatal("expected a merged event")
	}
}

func TestDeleteDeniedByRoleTable(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Protected", Phone: "+917000000023"})

	err := env.svc.Delete(context.Background(), adminActor(agencyID), lead.ID)
	expectKind(t, err, apperr.KindForbidden)
	if env.repo.deleted[lead.ID] {
		t.Fatal("the lead must survive a denied delete")
	}
}

func TestDeleteAllowedForSuperAdmin(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Doomed", Phone: "+917000000024"})
	super := access.Actor{UserID: uuid.New(), Role: domain.RoleSuperAdmin}

	if err := env.svc.Delete(context.Background(), super, lead.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !env.repo.deleted[lead.ID] {
		t.Fatal("expected the lead soft-deleted")
	}
	if !env.bus.has("lead.deleted") {
		t.Fatal("expected a deleted event")
	}
}

func TestDeleteAllowedByEntryPermissionGrant(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{
		AgencyID: agencyID,
		Name:     "Grantable",
		Phone:    "+917000000025",
		EntryPermissions: domain.EntryPermissions{
			domain.RoleAgencyAdmin: {View: true, Edit: true, Delete: true},
		},
	})

	if err := env.svc.Delete(context.Background(), adminActor(agencyID), lead.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !env.repo.deleted[lead.ID] {
		t.Fatal("expected the per-record grant to allow the delete")
	}
}

func TestBulkDeleteSkipsIneligibleIDs(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	a := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "A", Phone: "+917000000026"})
	b := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "B", Phone: "+917000000027"})
	foreign := env.repo.seed(domain.Lead{AgencyID: uuid.New(), Name: "Foreign", Phone: "+917000000028"})
	super := access.Actor{UserID: uuid.New(), AgencyID: &agencyID, Role: domain.RoleSuperAdmin}

	resp, err := env.svc.BulkDelete(context.Background(), super, transport.BulkDeleteRequest{
		IDs: []uuid.UUID{a.ID, b.ID, foreign.ID, uuid.New()},
	})
	if err != nil {
		t.Fatalf("BulkDelete returned error: %v", err)
	}
	if resp.Deleted != 2 {
		t.Fatalf("expected 2 deletions within the agency, got %d", resp.Deleted)
	}
	if env.repo.deleted[foreign.ID] {
		t.Fatal("a foreign-agency lead must never be touched")
	}
}

func TestBulkDeleteAllIneligibleIsNotFound(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Kept", Phone: "+917000000029"})

	// Role-table delete is denied for agency admins.
	_, err := env.svc.BulkDelete(context.Background(), adminActor(agencyID), transport.BulkDeleteRequest{IDs: []uuid.UUID{lead.ID}})
	expectKind(t, err, apperr.KindNotFound)
}
