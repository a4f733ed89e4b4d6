package evolution

import (
	"sort"

	"github.com/evocrew/evocrew/internal/domain"
)

// collaborativeTrait is the personality axis CollaborativeAdaptation
// targets. If an agent has no such trait yet, it is created at 0 before
// the strategy's delta is applied.
const collaborativeTrait = "collaboration"

// SelectStrategy picks a strategy deterministically from the trigger that
// fired (spec §4.5 "pick one deterministically from trigger context"):
// consecutive failures and sustained low performance are the more severe
// signals and escalate to RadicalTransformation once an agent has already
// been evolved several times without recovering; otherwise each trigger
// maps to the strategy that addresses it most directly.
func SelectStrategy(agent *domain.Agent, trigger domain.EvolutionTrigger) domain.EvolutionKind {
	switch trigger {
	case domain.TriggerConsecutiveFailures:
		if agent.EvolutionCycles >= 2 {
			return domain.EvolutionRadicalTransformation
		}
		return domain.EvolutionRoleSpecialization
	case domain.TriggerLowSuccessRate:
		if agent.EvolutionCycles >= 2 {
			return domain.EvolutionRadicalTransformation
		}
		return domain.EvolutionPersonalityDrift
	case domain.TriggerSelfAssessment:
		return domain.EvolutionCollaborativeAdaptation
	case domain.TriggerStale:
		return domain.EvolutionPersonalityDrift
	case domain.TriggerExplicit:
		return domain.EvolutionPersonalityDrift
	default:
		return domain.EvolutionPersonalityDrift
	}
}

// Apply computes the new trait map for kind, leaving agent.Personality
// untouched (callers snapshot PreviousTraits from it before swapping in
// the result).
func Apply(kind domain.EvolutionKind, agent *domain.Agent) map[string]float64 {
	switch kind {
	case domain.EvolutionPersonalityDrift:
		return applyPersonalityDrift(agent)
	case domain.EvolutionRoleSpecialization:
		return applyRoleSpecialization(agent)
	case domain.EvolutionCollaborativeAdaptation:
		return applyCollaborativeAdaptation(agent)
	case domain.EvolutionRadicalTransformation:
		return applyRadicalTransformation(agent)
	default:
		return domain.CloneTraits(agent.Personality)
	}
}

type traitValue struct {
	name  string
	value float64
}

func sortedTraits(traits map[string]float64) []traitValue {
	out := make([]traitValue, 0, len(traits))
	for k, v := range traits {
		out = append(out, traitValue{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].value != out[j].value {
			return out[i].value > out[j].value
		}
		return out[i].name < out[j].name // stable tiebreak for determinism
	})
	return out
}

// applyPersonalityDrift nudges up to 3 traits by at most ±0.1, biased
// toward the traits already strongest in an agent with positive average
// quality (a proxy for "correlated with recent positive outcomes" absent
// per-trait outcome attribution) and negatively for an underperforming one.
func applyPersonalityDrift(agent *domain.Agent) map[string]float64 {
	traits := domain.CloneTraits(agent.Personality)
	ranked := sortedTraits(traits)

	n := len(ranked)
	if n > 3 {
		n = 3
	}

	sign := 1.0
	if agent.Experience.AvgQuality < 0.5 {
		sign = -1.0
	}

	for i := 0; i < n; i++ {
		delta := sign * 0.1 * (1.0 - float64(i)*0.25)
		name := ranked[i].name
		traits[name] = domain.ClampTrait(traits[name] + delta)
	}
	return traits
}

// applyRoleSpecialization bumps the dominant trait by +0.1 and the two
// weakest by -0.05 each; Goal narrowing is applied by the caller (the
// Engine), which has access to a human-readable trait name to fold into
// the goal text.
func applyRoleSpecialization(agent *domain.Agent) map[string]float64 {
	traits := domain.CloneTraits(agent.Personality)
	ranked := sortedTraits(traits)
	if len(ranked) == 0 {
		return traits
	}

	dominant := ranked[0].name
	traits[dominant] = domain.ClampTrait(traits[dominant] + 0.1)

	weakest := ranked[len(ranked)-1:]
	if len(ranked) >= 2 {
		weakest = ranked[len(ranked)-2:]
	}
	for _, t := range weakest {
		if t.name == dominant {
			continue
		}
		traits[t.name] = domain.ClampTrait(traits[t.name] - 0.05)
	}
	return traits
}

func applyCollaborativeAdaptation(agent *domain.Agent) map[string]float64 {
	traits := domain.CloneTraits(agent.Personality)
	traits[collaborativeTrait] = domain.ClampTrait(traits[collaborativeTrait] + 0.15)
	return traits
}

// applyRadicalTransformation replaces personality with a neutral template,
// keeping 30% of each prior trait's value (a weighted blend, not a coin
// flip, so the result stays deterministic).
func applyRadicalTransformation(agent *domain.Agent) map[string]float64 {
	const keepFraction = 0.3
	template := neutralTemplate(agent.Personality)

	out := make(map[string]float64, len(template))
	for name, templateValue := range template {
		prior := agent.Personality[name]
		out[name] = domain.ClampTrait(templateValue*(1-keepFraction) + prior*keepFraction)
	}
	return out
}

// neutralTemplate resets every existing trait to 0.5 — a deliberately
// characterless baseline reserved for agents that have failed to recover
// through the gentler strategies.
func neutralTemplate(existing map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(existing))
	for name := range existing {
		out[name] = 0.5
	}
	return out
}
