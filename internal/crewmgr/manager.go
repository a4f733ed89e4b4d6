// Package crewmgr implements the Crew Manager (spec §4.6): crew creation
// from a declarative spec, starting/routing workflows, and the read-only
// status queries the dispatcher's tool handlers call directly.
package crewmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/evocrew/evocrew/internal/apperr"
	"github.com/evocrew/evocrew/internal/bus"
	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/store"
	"github.com/evocrew/evocrew/internal/workflow"
)

// Manager ties the Store, Bus, and Workflow Engine together behind the
// crew-facing operation surface.
type Manager struct {
	st  store.Store
	b   *bus.Bus
	eng *workflow.Engine
}

// New assembles a Manager.
func New(st store.Store, b *bus.Bus, eng *workflow.Engine) *Manager {
	return &Manager{st: st, b: b, eng: eng}
}

// CreateCrew validates spec, materializes new agents (existing ones are
// reattached by AgentId, not duplicated), and persists the crew (spec
// §4.6 create_crew).
func (m *Manager) CreateCrew(ctx context.Context, spec domain.CrewSpec) (*domain.Crew, error) {
	if spec.Name == "" {
		return nil, apperr.New(apperr.InvalidArgument, "crew name must not be empty")
	}
	if len(spec.Agents) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "crew must declare at least one agent")
	}
	if spec.AutonomyLevel < 0 || spec.AutonomyLevel > 1 {
		return nil, apperr.New(apperr.InvalidArgument, "autonomy_level must be in [0,1], got %v", spec.AutonomyLevel)
	}

	agentIDs := make([]domain.AgentID, 0, len(spec.Agents))
	for _, cfg := range spec.Agents {
		if cfg.ExistingAgentID != nil {
			if _, err := m.st.GetAgent(ctx, *cfg.ExistingAgentID); err != nil {
				return nil, apperr.New(apperr.InvalidArgument, "agent %s does not exist", *cfg.ExistingAgentID)
			}
			agentIDs = append(agentIDs, *cfg.ExistingAgentID)
			continue
		}

		agent := &domain.Agent{
			ID:          domain.NewAgentID(),
			Role:        cfg.Role,
			Goal:        cfg.Goal,
			Backstory:   cfg.Backstory,
			Personality: presetTraits(cfg.PersonalityPreset),
			CreatedAt:   time.Now(),
		}
		if err := m.st.PutAgent(ctx, agent); err != nil {
			return nil, fmt.Errorf("persist new agent: %w", err)
		}
		agentIDs = append(agentIDs, agent.ID)
	}

	crew := &domain.Crew{
		ID:            domain.NewCrewID(),
		Name:          spec.Name,
		AgentIDs:      agentIDs,
		Tasks:         spec.Tasks,
		AutonomyLevel: spec.AutonomyLevel,
		FormationDate: time.Now(),
		State:         domain.CrewIdle,
	}
	if err := m.st.PutCrew(ctx, crew); err != nil {
		return nil, fmt.Errorf("persist crew: %w", err)
	}
	return crew, nil
}

// StartCrew rejects a crew already bound to a non-terminal workflow, then
// launches a new one via the Workflow Engine (spec §4.6 start_crew).
func (m *Manager) StartCrew(ctx context.Context, crewID domain.CrewID, wfCtx map[string]any, allowEvolution bool) (*domain.Workflow, error) {
	crew, err := m.st.GetCrew(ctx, crewID)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "crew %s not found", crewID)
	}
	if crew.State == domain.CrewDisbanded {
		return nil, apperr.New(apperr.Conflict, "crew %s has been disbanded", crewID)
	}
	if crew.ActiveWorkflowID != nil {
		existing, err := m.st.GetWorkflow(ctx, *crew.ActiveWorkflowID)
		if err == nil && existing.State.IsNonTerminal() {
			return nil, apperr.New(apperr.Conflict, "crew %s already has an active workflow %s", crewID, existing.ID)
		}
	}

	agents, err := m.loadAgents(ctx, crew.AgentIDs)
	if err != nil {
		return nil, err
	}

	wf, err := m.eng.Start(ctx, crew, agents, wfCtx, allowEvolution)
	if err != nil {
		return nil, err
	}

	crew.State = domain.CrewRunning
	crew.ActiveWorkflowID = &wf.ID
	if err := m.st.PutCrew(ctx, crew); err != nil {
		return nil, fmt.Errorf("persist crew after start: %w", err)
	}
	return wf, nil
}

func (m *Manager) loadAgents(ctx context.Context, ids []domain.AgentID) ([]*domain.Agent, error) {
	agents := make([]*domain.Agent, 0, len(ids))
	for _, id := range ids {
		a, err := m.st.GetAgent(ctx, id)
		if err != nil {
			return nil, apperr.Wrap(apperr.Misconfigured, err, "crew references unresolved agent %s", id)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// AddInstruction persists the instruction and submits it to the Bus; a
// priority-5 instruction bypass-routes straight to Workflow cancellation
// (spec §4.3) instead of ever entering the crew's queue.
func (m *Manager) AddInstruction(ctx context.Context, crewID domain.CrewID, kind domain.InstructionKind, priority int, content string) (*domain.Instruction, error) {
	if len(content) > domain.MaxInstructionContentLen {
		return nil, apperr.New(apperr.InvalidArgument, "instruction content exceeds %d characters", domain.MaxInstructionContentLen)
	}
	if priority < 1 || priority > 5 {
		return nil, apperr.New(apperr.InvalidArgument, "priority must be in 1..5, got %d", priority)
	}

	instr := &domain.Instruction{
		ID:        domain.NewInstructionID(),
		CrewID:    crewID,
		Kind:      kind,
		Priority:  priority,
		Content:   content,
		Status:    domain.InstructionPending,
		CreatedAt: time.Now(),
	}
	if err := m.st.EnqueueInstruction(ctx, instr); err != nil {
		return nil, fmt.Errorf("persist instruction: %w", err)
	}
	m.b.Submit(instr)
	return instr, nil
}

// OnWorkflowState implements workflow.WorkflowNotifier: it mirrors a
// workflow's Debriefing-entry or terminal transition onto the owning
// crew's State and ActiveWorkflowID (spec §4.6), so get_crew_status stops
// reporting "running" forever after the workflow it was started with has
// already finished. A crewID whose ActiveWorkflowID no longer points at
// wfID is stale (superseded by a later start_crew) and is left alone.
func (m *Manager) OnWorkflowState(ctx context.Context, crewID domain.CrewID, wfID domain.WorkflowID, terminal bool) {
	crew, err := m.st.GetCrew(ctx, crewID)
	if err != nil {
		return
	}
	if crew.ActiveWorkflowID == nil || *crew.ActiveWorkflowID != wfID {
		return
	}
	if terminal {
		crew.State = domain.CrewIdle
		crew.ActiveWorkflowID = nil
	} else {
		crew.State = domain.CrewDebriefing
	}
	_ = m.st.PutCrew(ctx, crew)
}

// GetCrewStatus returns the crew and, if one is active, its workflow.
func (m *Manager) GetCrewStatus(ctx context.Context, crewID domain.CrewID) (*domain.Crew, *domain.Workflow, error) {
	crew, err := m.st.GetCrew(ctx, crewID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.NotFound, err, "crew %s not found", crewID)
	}
	if crew.ActiveWorkflowID == nil {
		return crew, nil, nil
	}
	wf, err := m.st.GetWorkflow(ctx, *crew.ActiveWorkflowID)
	if err != nil {
		return crew, nil, nil
	}
	return crew, wf, nil
}

// GetAgentReflection returns an agent's bounded reflection log.
func (m *Manager) GetAgentReflection(ctx context.Context, agentID domain.AgentID) (*domain.Agent, error) {
	agent, err := m.st.GetAgent(ctx, agentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "agent %s not found", agentID)
	}
	return agent, nil
}

// ListActiveCrews returns every crew with a non-terminal workflow.
func (m *Manager) ListActiveCrews(ctx context.Context) ([]*domain.Crew, error) {
	all, err := m.st.ListCrews(ctx)
	if err != nil {
		return nil, fmt.Errorf("list crews: %w", err)
	}
	var active []*domain.Crew
	for _, c := range all {
		if c.State == domain.CrewRunning || c.State == domain.CrewDebriefing {
			active = append(active, c)
		}
	}
	return active, nil
}

// DisbandCrew only succeeds from the idle state (spec §4.6 disband_crew).
func (m *Manager) DisbandCrew(ctx context.Context, crewID domain.CrewID) error {
	crew, err := m.st.GetCrew(ctx, crewID)
	if err != nil {
		return apperr.Wrap(apperr.NotFound, err, "crew %s not found", crewID)
	}
	if crew.State != domain.CrewIdle {
		return apperr.New(apperr.Conflict, "crew %s can only be disbanded from idle state, currently %s", crewID, crew.State)
	}
	crew.State = domain.CrewDisbanded
	if err := m.st.PutCrew(ctx, crew); err != nil {
		return fmt.Errorf("persist disbanded crew: %w", err)
	}
	return nil
}
