package crewmgr

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/evocrew/evocrew/internal/apperr"
	"github.com/evocrew/evocrew/internal/bus"
	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/runner"
	"github.com/evocrew/evocrew/internal/store"
	"github.com/evocrew/evocrew/internal/workflow"
)

func newTestManager(t *testing.T) (*Manager, *store.BoltStore) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	b := bus.New()
	r := &runner.SimulatedRunner{StepDelay: 0}
	cfg := workflow.DefaultConfig(2)
	cfg.PollInterval = 10 * time.Millisecond
	eng := workflow.New(st, b, r, cfg, nil, t.TempDir(), nil)
	return New(st, b, eng), st
}

func basicSpec() domain.CrewSpec {
	return domain.CrewSpec{
		Name: "launch-crew",
		Agents: []domain.AgentConfig{
			{Role: "researcher", Goal: "find facts", PersonalityPreset: "specialist"},
			{Role: "writer", Goal: "write it up", PersonalityPreset: "diplomat"},
		},
		AutonomyLevel: 0.5,
	}
}

func TestManager_CreateCrewMaterializesAgentsAndPersists(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(t)

	crew, err := m.CreateCrew(ctx, basicSpec())
	if err != nil {
		t.Fatalf("create crew: %v", err)
	}
	if len(crew.AgentIDs) != 2 {
		t.Fatalf("expected 2 materialized agents, got %d", len(crew.AgentIDs))
	}
	for _, id := range crew.AgentIDs {
		if _, err := st.GetAgent(ctx, id); err != nil {
			t.Fatalf("expected agent %s to be persisted: %v", id, err)
		}
	}
	if crew.State != domain.CrewIdle {
		t.Fatalf("expected a new crew to start idle, got %s", crew.State)
	}
}

func TestManager_CreateCrewReattachesExistingAgent(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(t)

	existing := &domain.Agent{ID: domain.NewAgentID(), Role: "veteran", CreatedAt: time.Now()}
	if err := st.PutAgent(ctx, existing); err != nil {
		t.Fatalf("put agent: %v", err)
	}

	spec := basicSpec()
	spec.Agents = append(spec.Agents, domain.AgentConfig{ExistingAgentID: &existing.ID})

	crew, err := m.CreateCrew(ctx, spec)
	if err != nil {
		t.Fatalf("create crew: %v", err)
	}
	if len(crew.AgentIDs) != 3 {
		t.Fatalf("expected 3 agents (2 new + 1 reattached), got %d", len(crew.AgentIDs))
	}

	all, err := st.ListAgents(ctx)
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected reattachment to avoid duplicating the existing agent, store has %d agents", len(all))
	}
}

func TestManager_CreateCrewRejectsEmptyAgentList(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	spec := basicSpec()
	spec.Agents = nil
	if _, err := m.CreateCrew(ctx, spec); apperr.CodeOf(err) != apperr.InvalidArgument {
		t.Fatalf("expected InvalidArgument for empty agent list, got %v", err)
	}
}

func TestManager_StartCrewRejectsSecondConcurrentWorkflow(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	crew, err := m.CreateCrew(ctx, basicSpec())
	if err != nil {
		t.Fatalf("create crew: %v", err)
	}

	if _, err := m.StartCrew(ctx, crew.ID, nil, false); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := m.StartCrew(ctx, crew.ID, nil, false); apperr.CodeOf(err) != apperr.Conflict {
		t.Fatalf("expected Conflict starting a crew with an active workflow, got %v", err)
	}
}

func TestManager_AddInstructionPersistsAndSubmitsToBus(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(t)

	crew, err := m.CreateCrew(ctx, basicSpec())
	if err != nil {
		t.Fatalf("create crew: %v", err)
	}

	instr, err := m.AddInstruction(ctx, crew.ID, domain.InstructionGuidance, 3, "focus on accuracy")
	if err != nil {
		t.Fatalf("add instruction: %v", err)
	}

	stored, err := st.GetInstruction(ctx, instr.ID)
	if err != nil {
		t.Fatalf("expected instruction to be persisted: %v", err)
	}
	if stored.Status != domain.InstructionPending {
		t.Fatalf("expected newly enqueued instruction to be pending, got %s", stored.Status)
	}

	drained := m.b.DrainFor(crew.ID)
	if len(drained) != 1 || drained[0].ID != instr.ID {
		t.Fatalf("expected the instruction to also reach the in-memory bus")
	}
}

func TestManager_DisbandCrewOnlyFromIdle(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	crew, err := m.CreateCrew(ctx, basicSpec())
	if err != nil {
		t.Fatalf("create crew: %v", err)
	}
	if _, err := m.StartCrew(ctx, crew.ID, nil, false); err != nil {
		t.Fatalf("start crew: %v", err)
	}
	if err := m.DisbandCrew(ctx, crew.ID); apperr.CodeOf(err) != apperr.Conflict {
		t.Fatalf("expected Conflict disbanding a running crew, got %v", err)
	}

	idleCrew, err := m.CreateCrew(ctx, basicSpec())
	if err != nil {
		t.Fatalf("create second crew: %v", err)
	}
	if err := m.DisbandCrew(ctx, idleCrew.ID); err != nil {
		t.Fatalf("expected disbanding an idle crew to succeed: %v", err)
	}
}

func TestManager_ListActiveCrewsOnlyReturnsRunning(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	idle, err := m.CreateCrew(ctx, basicSpec())
	if err != nil {
		t.Fatalf("create idle crew: %v", err)
	}
	running, err := m.CreateCrew(ctx, basicSpec())
	if err != nil {
		t.Fatalf("create running crew: %v", err)
	}
	if _, err := m.StartCrew(ctx, running.ID, nil, false); err != nil {
		t.Fatalf("start crew: %v", err)
	}

	active, err := m.ListActiveCrews(ctx)
	if err != nil {
		t.Fatalf("list active crews: %v", err)
	}
	if len(active) != 1 || active[0].ID != running.ID {
		t.Fatalf("expected only the running crew to be active, got %+v (idle=%s)", active, idle.ID)
	}
}
