package domain

import "time"

// EvolutionKind is the strategy that produced an EvolutionEvent (spec §4.5).
type EvolutionKind string

const (
	EvolutionPersonalityDrift        EvolutionKind = "personality_drift"
	EvolutionRoleSpecialization       EvolutionKind = "role_specialization"
	EvolutionCollaborativeAdaptation EvolutionKind = "collaborative_adaptation"
	EvolutionRadicalTransformation    EvolutionKind = "radical_transformation"
)

// EvolutionEvent is an append-only journal entry for one agent mutation.
// previous_traits equals Agent.Personality immediately before the event, and
// (AgentID, Cycle) is unique — both invariants are enforced by the Evolution
// Engine writing Agent+EvolutionEvent in a single Store transaction while
// holding that agent's keylock.
type EvolutionEvent struct {
	ID              string
	AgentID         AgentID
	Cycle           int
	PreviousTraits  map[string]float64
	NewTraits       map[string]float64
	Kind            EvolutionKind
	Reason          string
	CreatedAt       time.Time
}

// EvolutionTrigger identifies why an evolution candidate fired, used to pick
// a strategy deterministically (spec §4.5 "pick one deterministically from
// trigger context").
type EvolutionTrigger string

const (
	TriggerLowSuccessRate       EvolutionTrigger = "low_success_rate"
	TriggerConsecutiveFailures EvolutionTrigger = "consecutive_failures"
	TriggerStale               EvolutionTrigger = "stale"
	TriggerSelfAssessment       EvolutionTrigger = "self_assessment"
	TriggerExplicit             EvolutionTrigger = "explicit"
)
