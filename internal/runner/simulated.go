package runner

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
)

// SimulatedRunner is the default CrewRunner: no LLM is wired, so it
// fabricates a deterministic CrewResult from the crew/agent identities
// instead of actually driving any agents. It exists because the shipped
// system needs *some* runner to exercise the Workflow SM, Evolution
// Engine, and dispatcher end to end. evocrewd always wires it; no config
// setting selects a different runner.
type SimulatedRunner struct {
	// StepDelay is how long Kickoff "works" per task before producing a
	// result, checked against ctx cancellation between steps. Tests set
	// this to 0.
	StepDelay time.Duration
}

// NewSimulatedRunner builds a runner with a realistic default per-task
// delay; callers running under test typically override StepDelay to 0.
func NewSimulatedRunner() *SimulatedRunner {
	return &SimulatedRunner{StepDelay: 200 * time.Millisecond}
}

// Kickoff fabricates an outcome per agent from a stable hash of the
// crew+agent id, so the same crew composition always simulates the same
// way (useful for tests asserting on evolution triggers). Each task's
// "work" is interruptible at StepDelay granularity so cooperative
// cancellation from the Workflow SM actually takes effect mid-run instead
// of only between Kickoff calls.
func (r *SimulatedRunner) Kickoff(ctx context.Context, crew *domain.Crew, agents []*domain.Agent) (*domain.CrewResult, error) {
	outcomes := make(map[domain.AgentID]domain.AgentOutcome, len(agents))

	for i, agent := range agents {
		select {
		case <-ctx.Done():
			return &domain.CrewResult{
				Output:        fmt.Sprintf("crew %s cancelled after %d/%d agents", crew.ID, i, len(agents)),
				AgentOutcomes: outcomes,
			}, ctx.Err()
		case <-time.After(r.StepDelay):
		}

		success, quality := simulateOutcome(crew.ID, agent.ID)
		note := "completed assigned task"
		if !success {
			note = "failed to meet expected output"
		}
		outcomes[agent.ID] = domain.AgentOutcome{Success: success, Quality: quality, Note: note}
	}

	return &domain.CrewResult{
		Output:        fmt.Sprintf("crew %s completed with %d agents", crew.ID, len(agents)),
		AgentOutcomes: outcomes,
		Artifacts:     nil,
	}, nil
}

// simulateOutcome derives a stable pseudo-random (success, quality) pair
// from crewID+agentID via FNV-1a, so re-running the same simulated crew
// always produces the same result.
func simulateOutcome(crewID domain.CrewID, agentID domain.AgentID) (bool, float64) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(crewID) + "/" + string(agentID)))
	n := h.Sum32()

	quality := float64(n%1000) / 1000.0
	success := n%10 < 7 // ~70% simulated success rate
	return success, quality
}
