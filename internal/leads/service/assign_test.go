package service

import (
	"context"
	"testing"

	"estatedesk_backend/internal/events"
	"estatedesk_backend/internal/leads/assignment"
	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/internal/leads/transport"
	"estatedesk_backend/platform/apperr"

	"github.com/google/uuid"
)

func TestAssignSetsAgentAndPublishes(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	agent := env.directory.addAgent(agencyID, "Meera", "north")
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Unclaimed", Phone: "+918000000001"})

	resp, err := env.svc.Assign(context.Background(), adminActor(agencyID), lead.ID, transport.AssignLeadRequest{
		AgentID: transport.OptionalUUID{Value: &agent.ID, Set: true},
	})
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if resp.AssignedTo == nil || *resp.AssignedTo != agent.ID {
		t.Fatalf("expected assignment to %s, got %v", agent.ID, resp.AssignedTo)
	}
	if resp.Team != "north" {
		t.Fatalf("expected the agent's team to propagate, got %q", resp.Team)
	}

	for _, event := range env.bus.events {
		if assigned, ok := event.(events.LeadAssigned); ok {
			if assigned.Method != "manual" {
				t.Fatalf("expected manual method, got %s", assigned.Method)
			}
			if assigned.PreviousAgentID != nil {
				t.Fatalf("no previous agent expected, got %v", assigned.PreviousAgentID)
			}
			return
		}
	}
	t.Fatal("expected an assigned event")
}

func TestAssignNullClearsAssignment(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	agentID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Claimed", Phone: "+918000000002", AssignedTo: &agentID})

	resp, err := env.svc.Assign(context.Background(), adminActor(agencyID), lead.ID, transport.AssignLeadRequest{
		AgentID: transport.OptionalUUID{Set: true},
	})
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if resp.AssignedTo != nil {
		t.Fatalf("expected cleared assignment, got %v", resp.AssignedTo)
	}

	actions := env.repo.actions(lead.ID)
	if len(actions) != 1 || actions[0] != domain.ActivityUnassigned {
		t.Fatalf("expected an unassigned audit entry, got %v", actions)
	}
	if env.bus.has(eventAssigned) {
		t.Fatal("clearing must not publish an assigned event")
	}
}

func TestAssignRejectsUnknownAgent(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Unclaimed", Phone: "+918000000003"})
	ghost := uuid.New()

	_, err := env.svc.Assign(context.Background(), adminActor(agencyID), lead.ID, transport.AssignLeadRequest{
		AgentID: transport.OptionalUUID{Value: &ghost, Set: true},
	})
	expectKind(t, err, apperr.KindValidation)
}

func TestAssignKeepsExistingTeam(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	agent := env.directory.addAgent(agencyID, "Meera", "north")
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Labelled", Phone: "+918000000004", Team: "west"})

	resp, err := env.svc.Assign(context.Background(), adminActor(agencyID), lead.ID, transport.AssignLeadRequest{
		AgentID: transport.OptionalUUID{Value: &agent.ID, Set: true},
	})
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if resp.Team != "west" {
		t.Fatalf("an existing team label must not be overwritten, got %q", resp.Team)
	}
}

func TestAssignSameAgentWritesNoAudit(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	agent := env.directory.addAgent(agencyID, "Meera", "")
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Stable", Phone: "+918000000005", AssignedTo: &agent.ID})

	_, err := env.svc.Assign(context.Background(), adminActor(agencyID), lead.ID, transport.AssignLeadRequest{
		AgentID: transport.OptionalUUID{Value: &agent.ID, Set: true},
	})
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if actions := env.repo.actions(lead.ID); len(actions) != 0 {
		t.Fatalf("re-assigning the same agent should write no audit entry, got %v", actions)
	}
	if env.bus.has(eventAssigned) {
		t.Fatal("re-assigning the same agent should publish no event")
	}
}

func TestAutoAssignUsesRequestedMethod(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	agent := env.directory.addAgent(agencyID, "Engine Pick", "")
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Routed", Phone: "+918000000006"})
	env.assigner.selection = &assignment.Selection{
		Agent:  assignment.Agent{ID: agent.ID, Name: agent.Name},
		Method: domain.AssignWorkload,
	}

	resp, err := env.svc.AutoAssign(context.Background(), adminActor(agencyID), lead.ID, transport.AutoAssignRequest{Method: domain.AssignWorkload})
	if err != nil {
		t.Fatalf("AutoAssign returned error: %v", err)
	}
	if env.assigner.lastMethod != domain.AssignWorkload {
		t.Fatalf("expected requested method forwarded, got %q", env.assigner.lastMethod)
	}
	if resp.AssignedTo == nil || *resp.AssignedTo != agent.ID {
		t.Fatalf("expected assignment to %s, got %v", agent.ID, resp.AssignedTo)
	}
}

func TestAutoAssignFallsBackToAgencyMethodThenRoundRobin(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	agent := env.directory.addAgent(agencyID, "Engine Pick", "")
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Routed", Phone: "+918000000007"})
	env.assigner.selection = &assignment.Selection{
		Agent:  assignment.Agent{ID: agent.ID, Name: agent.Name},
		Method: domain.AssignSmart,
	}
	env.directory.settings = AgencySettings{AssignmentMethod: domain.AssignSmart}

	if _, err := env.svc.AutoAssign(context.Background(), adminActor(agencyID), lead.ID, transport.AutoAssignRequest{}); err != nil {
		t.Fatalf("AutoAssign returned error: %v", err)
	}
	if env.assigner.lastMethod != domain.AssignSmart {
		t.Fatalf("expected the agency's configured method, got %q", env.assigner.lastMethod)
	}

	// Without a configured method the engine defaults to round-robin.
	env.directory.settings = AgencySettings{}
	if _, err := env.svc.AutoAssign(context.Background(), adminActor(agencyID), lead.ID, transport.AutoAssignRequest{}); err != nil {
		t.Fatalf("AutoAssign returned error: %v", err)
	}
	if env.assigner.lastMethod != domain.AssignRoundRobin {
		t.Fatalf("expected round-robin fallback, got %q", env.assigner.lastMethod)
	}
}

func TestAutoAssignNoCandidateLeavesLeadUnchanged(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Unroutable", Phone: "+918000000008"})
	env.assigner.selection = nil

	resp, err := env.svc.AutoAssign(context.Background(), adminActor(agencyID), lead.ID, transport.AutoAssignRequest{})
	if err != nil {
		t.Fatalf("no eligible agent is not an error: %v", err)
	}
	if resp.AssignedTo != nil {
		t.Fatalf("expected lead left unassigned, got %v", resp.AssignedTo)
	}
	if env.bus.has(eventAssigned) {
		t.Fatal("no event when nobody was assigned")
	}
}

func TestAutoAssignRevalidatesSelectionAtCommit(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Routed", Phone: "+918000000009"})
	// The engine picked an agent the directory no longer knows.
	env.assigner.selection = &assignment.Selection{
		Agent:  assignment.Agent{ID: uuid.New(), Name: "Ghost"},
		Method: domain.AssignRoundRobin,
	}

	_, err := env.svc.AutoAssign(context.Background(), adminActor(agencyID), lead.ID, transport.AutoAssignRequest{})
	expectKind(t, err, apperr.KindValidation)
	if stored := env.repo.leads[lead.ID]; stored.AssignedTo != nil {
		t.Fatal("a failed revalidation must not assign")
	}
}

func TestAutoAssignCarriesPreviousAgentInEvent(t *testing.T) {
	env := newTestEnv()
	agencyID := uuid.New()
	previous := uuid.New()
	agent := env.directory.addAgent(agencyID, "Next Up", "")
	lead := env.repo.seed(domain.Lead{AgencyID: agencyID, Name: "Handover", Phone: "+918000000010", AssignedTo: &previous})
	env.assigner.selection = &assignment.Selection{
		Agent:  assignment.Agent{ID: agent.ID, Name: agent.Name},
		Method: domain.AssignRoundRobin,
	}

	if _, err := env.svc.AutoAssign(context.Background(), adminActor(agencyID), lead.ID, transport.AutoAssignRequest{}); err != nil {
		t.Fatalf("AutoAssign returned error: %v", err)
	}

	for _, event := range env.bus.events {
		if assigned, ok := event.(events.LeadAssigned); ok {
			if assigned.PreviousAgentID == nil || *assigned.PreviousAgentID != previous {
				t.Fatalf("expected previous agent %s in the event, got %v", previous, assigned.PreviousAgentID)
			}
			return
		}
	}
	t.Fatal("expected an assigned event")
}
