package evolution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/evocrew/evocrew/internal/apperr"
	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/keylock"
	"github.com/evocrew/evocrew/internal/store"
)

// Engine applies evolution candidates to agents, one agent at a time
// serialized by keylock, writing the mutated Agent and its EvolutionEvent
// in a single Store transaction (spec §4.5).
type Engine struct {
	st       store.Store
	locks    *keylock.Keyed
	cooldown time.Duration
	log      *slog.Logger
}

// New assembles an Evolution Engine with the given cooldown (use
// DefaultCooldown unless config overrides it).
func New(st store.Store, cooldown time.Duration, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Engine{st: st, locks: keylock.New(), cooldown: cooldown, log: log}
}

// Evolve applies candidate to its agent if the cooldown allows it,
// returning the resulting EvolutionEvent. Concurrent calls for the same
// AgentID serialize on the per-agent keylock so two trigger sources (the
// sweep and an explicit tool call) can never race each other's mutation.
func (e *Engine) Evolve(ctx context.Context, candidate Candidate) (*domain.EvolutionEvent, error) {
	var event *domain.EvolutionEvent
	err := e.locks.With(string(candidate.AgentID), func() error {
		agent, err := e.st.GetAgent(ctx, candidate.AgentID)
		if err != nil {
			return apperr.Wrap(apperr.NotFound, err, "agent %s not found", candidate.AgentID)
		}

		now := time.Now()
		if !CooldownOK(agent, candidate.Trigger, e.cooldown, now) {
			return apperr.New(apperr.Conflict, "agent %s is within its evolution cooldown", candidate.AgentID)
		}

		kind := SelectStrategy(agent, candidate.Trigger)
		previous := domain.CloneTraits(agent.Personality)
		newTraits := Apply(kind, agent)

		if kind == domain.EvolutionRoleSpecialization {
			agent.Goal = narrowGoal(agent.Goal, dominantTrait(previous))
		}

		agent.Personality = newTraits
		agent.EvolutionCycles++
		agent.LastEvolvedAt = &now

		event = &domain.EvolutionEvent{
			ID:             fmt.Sprintf("%s-%d", candidate.AgentID, agent.EvolutionCycles),
			AgentID:        candidate.AgentID,
			Cycle:          agent.EvolutionCycles,
			PreviousTraits: previous,
			NewTraits:      domain.CloneTraits(newTraits),
			Kind:           kind,
			Reason:         candidate.Reason,
			CreatedAt:      now,
		}

		if err := e.st.EvolveAgent(ctx, agent, event); err != nil {
			return fmt.Errorf("evolve agent %s: %w", candidate.AgentID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Sweep evaluates every agent's sweep-driven triggers and evolves those
// outside cooldown, used by the Supervisor's hourly evolution sweep (spec
// §4.7). Errors for individual agents are logged, not returned, so one
// failing agent never blocks the rest of the sweep.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	agents, err := e.st.ListAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list agents for evolution sweep: %w", err)
	}

	now := time.Now()
	evolved := 0
	for _, agent := range agents {
		candidate, fired := Detect(agent, now)
		if !fired {
			continue
		}
		if !CooldownOK(agent, candidate.Trigger, e.cooldown, now) {
			continue
		}
		if _, err := e.Evolve(ctx, candidate); err != nil {
			e.log.Warn("evolution sweep candidate rejected", "agent", agent.ID, "trigger", candidate.Trigger, "error", err)
			continue
		}
		evolved++
	}
	return evolved, nil
}

func dominantTrait(traits map[string]float64) string {
	ranked := sortedTraits(traits)
	if len(ranked) == 0 {
		return "its strength"
	}
	return ranked[0].name
}

// narrowGoal folds the dominant trait into the agent's goal text. A goal
// already narrowed by a prior specialization has its marker replaced
// rather than appended again, so repeated RoleSpecialization cycles don't
// stack suffixes onto the same goal.
func narrowGoal(goal, trait string) string {
	const marker = " (specializing in "
	if idx := strings.Index(goal, marker); idx >= 0 {
		goal = goal[:idx]
	}
	suffix := fmt.Sprintf("%s%s)", marker, trait)
	if goal == "" {
		return "Focus on" + suffix
	}
	return goal + suffix
}
