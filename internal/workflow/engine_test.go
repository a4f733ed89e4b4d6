package workflow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/evocrew/evocrew/internal/bus"
	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/runner"
	"github.com/evocrew/evocrew/internal/store"
)

func newTestStore(t *testing.T) *store.BoltStore {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedCrew(t *testing.T, ctx context.Context, st *store.BoltStore) (*domain.Crew, []*domain.Agent) {
	t.Helper()
	a1 := &domain.Agent{ID: domain.NewAgentID(), Role: "researcher", Personality: map[string]float64{"curiosity": 0.5}}
	a2 := &domain.Agent{ID: domain.NewAgentID(), Role: "writer", Personality: map[string]float64{"precision": 0.5}}
	for _, a := range []*domain.Agent{a1, a2} {
		if err := st.PutAgent(ctx, a); err != nil {
			t.Fatalf("put agent: %v", err)
		}
	}
	crew := &domain.Crew{
		ID:       domain.NewCrewID(),
		Name:     "test-crew",
		AgentIDs: []domain.AgentID{a1.ID, a2.ID},
	}
	if err := st.PutCrew(ctx, crew); err != nil {
		t.Fatalf("put crew: %v", err)
	}
	return crew, []*domain.Agent{a1, a2}
}

func TestEngine_CompletesHappyPath(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := bus.New()
	r := &runner.SimulatedRunner{StepDelay: 0}
	cfg := DefaultConfig(2)
	cfg.PollInterval = 10 * time.Millisecond

	e := New(st, b, r, cfg, nil, t.TempDir(), nil)
	crew, agents := seedCrew(t, ctx, st)

	wf, err := e.Start(ctx, crew, agents, nil, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if wf.State != domain.WorkflowPreparing {
		t.Fatalf("expected Preparing immediately after Start, got %s", wf.State)
	}

	final := waitForTerminal(t, ctx, st, wf.ID)
	if final.State != domain.WorkflowCompleted {
		t.Fatalf("expected Completed, got %s (failure=%s)", final.State, final.FailureReason)
	}
	if final.Result == nil || len(final.Result.AgentOutcomes) != len(agents) {
		t.Fatalf("expected a CrewResult with all agent outcomes")
	}
}

func TestEngine_MisconfiguredCrewRejectsStart(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := bus.New()
	r := &runner.SimulatedRunner{StepDelay: 0}
	e := New(st, b, r, DefaultConfig(1), nil, t.TempDir(), nil)

	crew := &domain.Crew{ID: domain.NewCrewID(), AgentIDs: []domain.AgentID{domain.NewAgentID()}}
	_, err := e.Start(ctx, crew, nil, nil, false)
	if err == nil {
		t.Fatalf("expected Misconfigured error for unresolved agent reference")
	}
}

func TestEngine_EmergencyStopCancelsWorkflow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := bus.New()
	r := &runner.SimulatedRunner{StepDelay: 200 * time.Millisecond}
	cfg := DefaultConfig(2)
	cfg.PollInterval = 10 * time.Millisecond
	cfg.HardDeadline = time.Second

	e := New(st, b, r, cfg, nil, t.TempDir(), nil)
	crew, agents := seedCrew(t, ctx, st)

	wf, err := e.Start(ctx, crew, agents, nil, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	b.Submit(&domain.Instruction{
		ID:        domain.NewInstructionID(),
		CrewID:    crew.ID,
		Kind:      domain.InstructionEmergencyStop,
		Priority:  domain.EmergencyStopPriority,
		Content:   "stop now",
		Status:    domain.InstructionPending,
		CreatedAt: time.Now(),
	})

	final := waitForTerminal(t, ctx, st, wf.ID)
	if final.State != domain.WorkflowCancelled {
		t.Fatalf("expected Cancelled, got %s", final.State)
	}
	if final.CancellationReason != "emergency_stop" {
		t.Fatalf("expected cancellation reason emergency_stop, got %q", final.CancellationReason)
	}
	if !final.EmergencyStopSeen {
		t.Fatalf("expected EmergencyStopSeen to latch true")
	}
}

func waitForTerminal(t *testing.T, ctx context.Context, st store.Store, id domain.WorkflowID) *domain.Workflow {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		wf, err := st.GetWorkflow(ctx, id)
		if err == nil && wf.State.IsTerminal() {
			return wf
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("workflow %s did not reach a terminal state in time", id)
	return nil
}
