// Package assignment selects an agent for a lead using one of several
// interchangeable strategies. Every strategy operates only over the agency's
// active agents and yields no agent (rather than an error) when nobody is
// eligible; callers leave the lead unassigned in that case.
package assignment

import (
	"context"
	"fmt"
	"strings"

	"estatedesk_backend/internal/leads/domain"
	"estatedesk_backend/platform/apperr"
	"estatedesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Agent is the directory view the engine selects from.
type Agent struct {
	ID   uuid.UUID
	Name string
	// Team propagates to the lead on assignment unless the lead carries an
	// explicit team label of its own.
	Team string
	// Locations holds the agent's declared service areas or specialties,
	// matched against a lead's preferred locations.
	Locations []string
}

// AgentDirectory lists assignable agents.
type AgentDirectory interface {
	// FindActiveAgents returns the agency's active agents ordered by account
	// creation time, oldest first. Rotation and tie-breaking depend on this
	// order being stable.
	FindActiveAgents(ctx context.Context, agencyID uuid.UUID) ([]Agent, error)
}

// WorkloadReader counts each agent's open pipeline.
type WorkloadReader interface {
	// CountActiveLeads returns, per agent, how many of the agency's leads in
	// an active status are assigned to that agent. Agents with no leads may
	// be absent from the map.
	CountActiveLeads(ctx context.Context, agencyID uuid.UUID, agentIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// RotationStore persists the per-agency round-robin cursor.
type RotationStore interface {
	// NextRotation atomically advances the agency's rotation cursor and
	// returns its new position, starting from zero for a fresh agency.
	NextRotation(ctx context.Context, agencyID uuid.UUID) (int64, error)
}

// PropertyReader resolves project-based routing.
type PropertyReader interface {
	// AssignedAgents returns the agent ids explicitly attached to a property.
	AssignedAgents(ctx context.Context, propertyID uuid.UUID) ([]uuid.UUID, error)
}

// Selection is a successful assignment outcome: the chosen agent and the
// strategy that actually produced it. Under smart (or source) routing the
// method reflects the sub-strategy that matched, not the configured one.
type Selection struct {
	Agent  Agent
	Method string
}

// Engine dispatches assignment requests to the configured strategy.
type Engine struct {
	directory  AgentDirectory
	workloads  WorkloadReader
	rotation   RotationStore
	properties PropertyReader
	log        *logger.Logger
}

// New creates an assignment engine.
func New(directory AgentDirectory, workloads WorkloadReader, rotation RotationStore, properties PropertyReader, log *logger.Logger) *Engine {
	return &Engine{
		directory:  directory,
		workloads:  workloads,
		rotation:   rotation,
		properties: properties,
		log:        log,
	}
}

// Assign picks an agent for the lead using the given strategy. A nil selection
// with a nil error means no eligible agent exists and the lead should stay
// unassigned. The caller must re-validate the chosen agent at commit time; the
// account could have been deactivated or moved between selection and save.
func (e *Engine) Assign(ctx context.Context, agencyID uuid.UUID, method string, lead *domain.Lead) (*Selection, error) {
	agents, err := e.directory.FindActiveAgents(ctx, agencyID)
	if err != nil {
		return nil, fmt.Errorf("load active agents: %w", err)
	}
	if len(agents) == 0 {
		e.log.Debug("no active agents for assignment", "agency_id", agencyID.String(), "method", method)
		return nil, nil
	}

	switch method {
	case domain.AssignRoundRobin:
		return e.roundRobin(ctx, agencyID, agents)
	case domain.AssignWorkload:
		return e.workload(ctx, agencyID, agents)
	case domain.AssignLocation:
		return e.location(ctx, agencyID, agents, lead)
	case domain.AssignProject:
		return e.project(ctx, agencyID, agents, lead)
	case domain.AssignSource:
		return e.bySource(ctx, agencyID, agents, lead)
	case domain.AssignSmart:
		return e.smart(ctx, agencyID, agents, lead)
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown assignment method %q", method))
	}
}

// roundRobin cycles through agents in creation order using the persisted
// per-agency cursor. The cursor is a plain counter, so the cycle stays exact
// under concurrent assignment and adapts when the agent set grows or shrinks.
func (e *Engine) roundRobin(ctx context.Context, agencyID uuid.UUID, agents []Agent) (*Selection, error) {
	cursor, err := e.rotation.NextRotation(ctx, agencyID)
	if err != nil {
		return nil, fmt.Errorf("advance rotation cursor: %w", err)
	}
	agent := agents[int(cursor%int64(len(agents)))]
	return &Selection{Agent: agent, Method: domain.AssignRoundRobin}, nil
}

func (e *Engine) workload(ctx context.Context, agencyID uuid.UUID, agents []Agent) (*Selection, error) {
	agent, err := e.leastLoaded(ctx, agencyID, agents)
	if err != nil {
		return nil, err
	}
	return &Selection{Agent: agent, Method: domain.AssignWorkload}, nil
}

// location keeps agents whose declared locations overlap the lead's preferred
// locations, then balances by workload among the matches. No overlap yields
// no agent so the caller can fall back.
func (e *Engine) location(ctx context.Context, agencyID uuid.UUID, agents []Agent, lead *domain.Lead) (*Selection, error) {
	if lead == nil || len(lead.PreferredLocations) == 0 {
		return nil, nil
	}
	var matched []Agent
	for _, a := range agents {
		if locationsOverlap(a.Locations, lead.PreferredLocations) {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	agent, err := e.leastLoaded(ctx, agencyID, matched)
	if err != nil {
		return nil, err
	}
	return &Selection{Agent: agent, Method: domain.AssignLocation}, nil
}

// project restricts selection to the agents explicitly attached to the lead's
// property, then balances by workload. Property assignments can reference
// deactivated or transferred accounts, so the set is intersected with the
// agency's active agents first.
func (e *Engine) project(ctx context.Context, agencyID uuid.UUID, agents []Agent, lead *domain.Lead) (*Selection, error) {
	if lead == nil || lead.PropertyID == nil {
		return nil, nil
	}
	assigned, err := e.properties.AssignedAgents(ctx, *lead.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("load property agents: %w", err)
	}
	if len(assigned) == 0 {
		return nil, nil
	}
	eligible := intersect(agents, assigned)
	if len(eligible) == 0 {
		return nil, nil
	}
	agent, err := e.leastLoaded(ctx, agencyID, eligible)
	if err != nil {
		return nil, err
	}
	return &Selection{Agent: agent, Method: domain.AssignProject}, nil
}

// bySource routes by lead source. Source-specific targeting rules are not
// implemented; the strategy currently balances by workload, which also keeps
// the selection reported as workload-based.
func (e *Engine) bySource(ctx context.Context, agencyID uuid.UUID, agents []Agent, _ *domain.Lead) (*Selection, error) {
	return e.workload(ctx, agencyID, agents)
}

// smart tries project, location, and source routing in order and returns the
// first match, falling back to workload balancing. Round-robin never
// participates in smart assignment.
func (e *Engine) smart(ctx context.Context, agencyID uuid.UUID, agents []Agent, lead *domain.Lead) (*Selection, error) {
	if sel, err := e.project(ctx, agencyID, agents, lead); err != nil || sel != nil {
		return sel, err
	}
	if sel, err := e.location(ctx, agencyID, agents, lead); err != nil || sel != nil {
		return sel, err
	}
	if sel, err := e.bySource(ctx, agencyID, agents, lead); err != nil || sel != nil {
		return sel, err
	}
	return e.workload(ctx, agencyID, agents)
}

// leastLoaded picks the agent with the fewest active-status leads. Ties go to
// the earliest entry in the candidate slice, which follows agent creation
// order.
func (e *Engine) leastLoaded(ctx context.Context, agencyID uuid.UUID, agents []Agent) (Agent, error) {
	ids := make([]uuid.UUID, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	counts, err := e.workloads.CountActiveLeads(ctx, agencyID, ids)
	if err != nil {
		return Agent{}, fmt.Errorf("count active leads: %w", err)
	}

	best := agents[0]
	bestCount := counts[best.ID]
	for _, a := range agents[1:] {
		if c := counts[a.ID]; c < bestCount {
			best, bestCount = a, c
		}
	}
	return best, nil
}

// locationsOverlap reports whether any declared agent location matches any
// preferred location. Matching is a case-insensitive substring test in either
// direction, so "Whitefield" matches an agent covering "whitefield, east
// bangalore".
func locationsOverlap(agentLocations, preferred []string) bool {
	for _, al := range agentLocations {
		a := strings.ToLower(strings.TrimSpace(al))
		if a == "" {
			continue
		}
		for _, pl := range preferred {
			p := strings.ToLower(strings.TrimSpace(pl))
			if p == "" {
				continue
			}
			if strings.Contains(a, p) || strings.Contains(p, a) {
				return true
			}
		}
	}
	return false
}

func intersect(agents []Agent, ids []uuid.UUID) []Agent {
	allowed := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	var out []Agent
	for _, a := range agents {
		if _, ok := allowed[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}
