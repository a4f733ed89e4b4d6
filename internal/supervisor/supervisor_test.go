package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/evocrew/evocrew/internal/bus"
	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/evolution"
	"github.com/evocrew/evocrew/internal/runner"
	"github.com/evocrew/evocrew/internal/store"
	"github.com/evocrew/evocrew/internal/workflow"
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

func TestInstructionExpirer_ExpiresStalePendingButNeverEmergencyStop(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	crew := &domain.Crew{ID: domain.NewCrewID(), Name: "c"}
	if err := st.PutCrew(ctx, crew); err != nil {
		t.Fatalf("put crew: %v", err)
	}

	stale := &domain.Instruction{
		ID: domain.NewInstructionID(), CrewID: crew.ID, Kind: domain.InstructionGuidance,
		Priority: 3, Status: domain.InstructionPending, CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	fresh := &domain.Instruction{
		ID: domain.NewInstructionID(), CrewID: crew.ID, Kind: domain.InstructionGuidance,
		Priority: 3, Status: domain.InstructionPending, CreatedAt: time.Now(),
	}
	esc := &domain.Instruction{
		ID: domain.NewInstructionID(), CrewID: crew.ID, Kind: domain.InstructionEmergencyStop,
		Priority: domain.EmergencyStopPriority, Status: domain.InstructionPending, CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	for _, i := range []*domain.Instruction{stale, fresh, esc} {
		if err := st.EnqueueInstruction(ctx, i); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	cfg := DefaultConfig()
	cfg.InstructionTTL = time.Hour
	s := New(st, nil, nil, cfg, nil)
	s.runInstructionExpirer(ctx)

	got, _ := st.GetInstruction(ctx, stale.ID)
	if got.Status != domain.InstructionExpired {
		t.Fatalf("expected stale instruction to expire, got %s", got.Status)
	}
	got, _ = st.GetInstruction(ctx, fresh.ID)
	if got.Status != domain.InstructionPending {
		t.Fatalf("expected fresh instruction to remain pending, got %s", got.Status)
	}
	got, _ = st.GetInstruction(ctx, esc.ID)
	if got.Status != domain.InstructionPending {
		t.Fatalf("expected emergency_stop to never expire, got %s", got.Status)
	}
}

func TestWorkflowReaper_CancelsOverdueExecutingWorkflow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := bus.New()
	r := &runner.SimulatedRunner{StepDelay: time.Hour} // never finishes on its own
	wfCfg := workflow.DefaultConfig(2)
	wfCfg.PollInterval = 10 * time.Millisecond
	wfCfg.HardDeadline = time.Second
	eng := workflow.New(st, b, r, wfCfg, nil, t.TempDir(), nil)

	a := &domain.Agent{ID: domain.NewAgentID(), Role: "r"}
	if err := st.PutAgent(ctx, a); err != nil {
		t.Fatalf("put agent: %v", err)
	}
	crew := &domain.Crew{ID: domain.NewCrewID(), AgentIDs: []domain.AgentID{a.ID}}
	if err := st.PutCrew(ctx, crew); err != nil {
		t.Fatalf("put crew: %v", err)
	}

	wf, err := eng.Start(ctx, crew, []*domain.Agent{a}, nil, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let it reach Executing

	cfg := DefaultConfig()
	cfg.MaxWorkflowDuration = 0 // anything started before "now" counts as overdue
	s := New(st, eng, nil, cfg, nil)
	s.runWorkflowReaper(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetWorkflow(ctx, wf.ID)
		if err == nil && got.State.IsTerminal() {
			if got.State != domain.WorkflowCancelled {
				t.Fatalf("expected reaped workflow to end Cancelled, got %s", got.State)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("workflow %s was not reaped in time", wf.ID)
}

func TestHealthProbe_ReportsStoreReachable(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	s := New(st, nil, nil, DefaultConfig(), nil)

	s.runHealthProbe(ctx)

	ok, checked, _ := s.Health().Snapshot()
	if !ok {
		t.Fatalf("expected store to be reported reachable")
	}
	if checked.IsZero() {
		t.Fatalf("expected lastChecked to be set")
	}
}

func TestSupervisor_StartStopJoinsAllLoops(t *testing.T) {
	st := newTestStore(t)
	evo := evolution.New(st, time.Hour, nil)
	cfg := DefaultConfig()
	cfg.HealthProbeInterval = 10 * time.Millisecond
	cfg.EvolutionSweepInterval = time.Hour
	cfg.InstructionExpireInterval = time.Hour
	cfg.WorkflowReapInterval = time.Hour

	s := New(st, nil, evo, cfg, nil)
	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	if ok, _, _ := s.Health().Snapshot(); !ok {
		t.Fatalf("expected at least one health probe tick to have run before Stop")
	}
}
