// Package evolution implements the Evolution Engine (spec §4.5): trigger
// detection, strategy selection, and the transactional agent mutation
// that writes the new personality plus its audit event.
package evolution

import (
	"fmt"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
)

// RollingWindow is the sample size the low-success-rate trigger inspects.
const RollingWindow = 10

// LowSuccessThreshold is the rolling success rate below which the trigger
// fires.
const LowSuccessThreshold = 0.6

// ConsecutiveFailureThreshold is how many failures in a row fire the
// trigger.
const ConsecutiveFailureThreshold = 3

// StaleAge is how long since an agent's last evolution (or creation, if
// never evolved) before the staleness trigger becomes eligible.
const StaleAge = 4 * 7 * 24 * time.Hour

// DefaultCooldown is the minimum spacing between two evolutions of the
// same agent, unless explicitly forced (spec §4.5).
const DefaultCooldown = 6 * time.Hour

// Candidate is one agent flagged for a possible evolution.
type Candidate struct {
	AgentID domain.AgentID
	Trigger domain.EvolutionTrigger
	Reason  string
}

// Detect evaluates the first three sweep-driven triggers in priority
// order (spec §4.5's list, minus self_assessment and explicit, which have
// their own producers). It reports the first one that fires — the
// strategy selection step below only needs to know which single trigger
// won, not all of them.
func Detect(agent *domain.Agent, now time.Time) (Candidate, bool) {
	if rate, enough := agent.Experience.RollingSuccessRate(RollingWindow); enough && rate < LowSuccessThreshold {
		return Candidate{
			AgentID: agent.ID,
			Trigger: domain.TriggerLowSuccessRate,
			Reason:  fmt.Sprintf("rolling success rate %.2f over last %d tasks", rate, RollingWindow),
		}, true
	}

	if agent.Experience.ConsecutiveFailures >= ConsecutiveFailureThreshold {
		return Candidate{
			AgentID: agent.ID,
			Trigger: domain.TriggerConsecutiveFailures,
			Reason:  fmt.Sprintf("%d consecutive failures", agent.Experience.ConsecutiveFailures),
		}, true
	}

	baseline := agent.CreatedAt
	if agent.LastEvolvedAt != nil {
		baseline = *agent.LastEvolvedAt
	}
	if agent.Experience.TasksCompleted >= 1 && now.Sub(baseline) > StaleAge {
		return Candidate{
			AgentID: agent.ID,
			Trigger: domain.TriggerStale,
			Reason:  fmt.Sprintf("no evolution in %s", now.Sub(baseline).Round(time.Hour)),
		}, true
	}

	return Candidate{}, false
}

// SelfAssessmentCandidate builds the candidate for an agent named by
// crew_self_assessment as the imbalance gap (spec's "crew self-assessment
// flagged imbalance naming this agent" trigger).
func SelfAssessmentCandidate(agentID domain.AgentID, reason string) Candidate {
	return Candidate{AgentID: agentID, Trigger: domain.TriggerSelfAssessment, Reason: reason}
}

// ExplicitCandidate builds the candidate for trigger_agent_evolution,
// which bypasses the cooldown check entirely (spec "unless manually
// forced").
func ExplicitCandidate(agentID domain.AgentID, reason string) Candidate {
	if reason == "" {
		reason = "explicit user trigger"
	}
	return Candidate{AgentID: agentID, Trigger: domain.TriggerExplicit, Reason: reason}
}

// CooldownOK reports whether agent is outside its minimum evolution
// interval, or the trigger is explicit (which always bypasses cooldown).
func CooldownOK(agent *domain.Agent, trigger domain.EvolutionTrigger, cooldown time.Duration, now time.Time) bool {
	if trigger == domain.TriggerExplicit {
		return true
	}
	if agent.LastEvolvedAt == nil {
		return true
	}
	return now.Sub(*agent.LastEvolvedAt) >= cooldown
}
