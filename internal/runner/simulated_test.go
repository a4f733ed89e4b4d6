package runner

import (
	"context"
	"testing"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
)

func TestSimulatedRunner_DeterministicAcrossRuns(t *testing.T) {
	r := &SimulatedRunner{StepDelay: 0}
	crew := &domain.Crew{ID: domain.CrewID("crew-1")}
	agents := []*domain.Agent{{ID: domain.AgentID("agent-1")}, {ID: domain.AgentID("agent-2")}}

	first, err := r.Kickoff(context.Background(), crew, agents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Kickoff(context.Background(), crew, agents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, agent := range agents {
		a, b := first.AgentOutcomes[agent.ID], second.AgentOutcomes[agent.ID]
		if a.Success != b.Success || a.Quality != b.Quality {
			t.Errorf("expected deterministic outcome for %s, got %+v then %+v", agent.ID, a, b)
		}
	}
}

func TestSimulatedRunner_RespectsCancellation(t *testing.T) {
	r := &SimulatedRunner{StepDelay: 50 * time.Millisecond}
	crew := &domain.Crew{ID: domain.CrewID("crew-1")}
	agents := []*domain.Agent{{ID: domain.AgentID("agent-1")}, {ID: domain.AgentID("agent-2")}, {ID: domain.AgentID("agent-3")}}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	result, err := r.Kickoff(ctx, crew, agents)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if len(result.AgentOutcomes) >= len(agents) {
		t.Errorf("expected cancellation to cut the run short, got all %d outcomes", len(result.AgentOutcomes))
	}
}
