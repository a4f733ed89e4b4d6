package evolution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
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

func TestDetect_LowSuccessRateFires(t *testing.T) {
	agent := &domain.Agent{CreatedAt: time.Now()}
	for i := 0; i < RollingWindow; i++ {
		agent.Experience.RecordOutcome(i < 4, 0.5) // 4/10 success < 0.6
	}
	c, fired := Detect(agent, time.Now())
	if !fired || c.Trigger != domain.TriggerLowSuccessRate {
		t.Fatalf("expected low_success_rate trigger, got %+v fired=%v", c, fired)
	}
}

func TestDetect_ConsecutiveFailuresFires(t *testing.T) {
	agent := &domain.Agent{CreatedAt: time.Now()}
	agent.Experience.RecordOutcome(true, 0.9)
	for i := 0; i < ConsecutiveFailureThreshold; i++ {
		agent.Experience.RecordOutcome(false, 0.1)
	}
	c, fired := Detect(agent, time.Now())
	if !fired || c.Trigger != domain.TriggerConsecutiveFailures {
		t.Fatalf("expected consecutive_failures trigger, got %+v fired=%v", c, fired)
	}
}

func TestDetect_NoTriggerWhenHealthy(t *testing.T) {
	agent := &domain.Agent{CreatedAt: time.Now()}
	agent.Experience.RecordOutcome(true, 0.9)
	if _, fired := Detect(agent, time.Now()); fired {
		t.Fatalf("expected no trigger for a healthy agent")
	}
}

func TestEngine_EvolveAppliesStrategyAndPersistsEvent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	agent := &domain.Agent{
		ID:          domain.NewAgentID(),
		Goal:        "help the team",
		Personality: map[string]float64{"curiosity": 0.9, "patience": 0.2, "rigor": 0.4},
		CreatedAt:   time.Now(),
	}
	if err := st.PutAgent(ctx, agent); err != nil {
		t.Fatalf("put agent: %v", err)
	}

	e := New(st, time.Hour, nil)
	candidate := ExplicitCandidate(agent.ID, "manual test trigger")

	event, err := e.Evolve(ctx, candidate)
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if event.Cycle != 1 {
		t.Fatalf("expected first evolution to be cycle 1, got %d", event.Cycle)
	}

	updated, err := st.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if updated.EvolutionCycles != 1 {
		t.Fatalf("expected EvolutionCycles=1, got %d", updated.EvolutionCycles)
	}
	if updated.LastEvolvedAt == nil {
		t.Fatalf("expected LastEvolvedAt to be set")
	}

	events, err := st.ListEvolutionEvents(ctx, agent.ID, time.Time{})
	if err != nil || len(events) != 1 {
		t.Fatalf("expected exactly one evolution event, got %d (err=%v)", len(events), err)
	}
}

func TestEngine_CooldownRejectsSecondSweepTrigger(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	agent := &domain.Agent{
		ID:          domain.NewAgentID(),
		Personality: map[string]float64{"curiosity": 0.9},
		CreatedAt:   time.Now(),
	}
	for i := 0; i < RollingWindow; i++ {
		agent.Experience.RecordOutcome(false, 0.1)
	}
	if err := st.PutAgent(ctx, agent); err != nil {
		t.Fatalf("put agent: %v", err)
	}

	e := New(st, time.Hour, nil)
	candidate, fired := Detect(agent, time.Now())
	if !fired {
		t.Fatalf("expected a trigger to fire")
	}
	if _, err := e.Evolve(ctx, candidate); err != nil {
		t.Fatalf("first evolve: %v", err)
	}

	// Re-detect against the freshly-evolved agent (now cooling down).
	updated, err := st.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	_, err = e.Evolve(ctx, Candidate{AgentID: updated.ID, Trigger: domain.TriggerConsecutiveFailures, Reason: "still failing"})
	if err == nil {
		t.Fatalf("expected cooldown to reject a second non-explicit evolution")
	}
}

func TestEngine_ExplicitBypassesCooldown(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	agent := &domain.Agent{ID: domain.NewAgentID(), Personality: map[string]float64{"curiosity": 0.5}, CreatedAt: time.Now()}
	if err := st.PutAgent(ctx, agent); err != nil {
		t.Fatalf("put agent: %v", err)
	}

	e := New(st, time.Hour, nil)
	if _, err := e.Evolve(ctx, ExplicitCandidate(agent.ID, "first")); err != nil {
		t.Fatalf("first evolve: %v", err)
	}
	if _, err := e.Evolve(ctx, ExplicitCandidate(agent.ID, "second, forced")); err != nil {
		t.Fatalf("expected explicit trigger to bypass cooldown, got: %v", err)
	}
}
