package domain

import "time"

// Agent is a single persona within a Crew. Its personality traits are
// mutated only by the Evolution Engine or during a workflow's debrief
// phase; experience counters accumulate across every workflow the agent
// participates in, even across crew disbandment, since memory is preserved
// independently under AgentID for cross-session reuse.
type Agent struct {
	ID    AgentID
	Role  string
	Goal  string
	Backstory string

	// Personality maps trait name to a value in [0,1]. Mutations clamp to
	// this range; evolution never deletes a trait.
	Personality map[string]float64

	Experience Experience

	EvolutionCycles int
	CreatedAt       time.Time
	LastEvolvedAt   *time.Time

	// Reflections is a bounded, ordered log of short self-assessments the
	// agent accumulates across debriefs, newest last.
	Reflections []Reflection
}

// Experience tracks an agent's rolling task outcomes, the inputs to the
// Evolution Engine's triggers (spec §4.5).
type Experience struct {
	TasksCompleted     int
	Successes          int
	Failures           int
	ConsecutiveFailures int
	AvgQuality         float64

	// Recent holds a bounded rolling window of per-task success booleans,
	// newest last, used to compute the rolling success rate trigger.
	Recent []bool
}

// MaxReflections bounds Agent.Reflections (spec §5 "max stored reflections
// per agent").
const MaxReflections = 50

// MaxRecentOutcomes bounds Experience.Recent; it keeps more history than
// the 10-task window the rolling success rate trigger inspects (spec §4.5:
// "window of >= 10 tasks").
const MaxRecentOutcomes = 50

// Reflection is one bounded entry in an agent's self-assessment log.
type Reflection struct {
	CreatedAt time.Time
	Text      string
	WorkflowID WorkflowID
}

// ClampTrait clamps a trait value into [0,1].
func ClampTrait(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RollingSuccessRate returns the fraction of true entries in Recent, and
// whether there are enough samples (>= window) to evaluate the trigger.
func (e Experience) RollingSuccessRate(window int) (rate float64, enough bool) {
	if len(e.Recent) < window {
		return 0, false
	}
	start := len(e.Recent) - window
	successes := 0
	for _, ok := range e.Recent[start:] {
		if ok {
			successes++
		}
	}
	return float64(successes) / float64(window), true
}

// RecordOutcome appends a task outcome, bounding Recent and updating the
// consecutive-failure counter used by the "3 consecutive failures" trigger.
func (e *Experience) RecordOutcome(success bool, quality float64) {
	e.TasksCompleted++
	if success {
		e.Successes++
		e.ConsecutiveFailures = 0
	} else {
		e.Failures++
		e.ConsecutiveFailures++
	}
	if e.TasksCompleted == 1 {
		e.AvgQuality = quality
	} else {
		e.AvgQuality += (quality - e.AvgQuality) / float64(e.TasksCompleted)
	}
	e.Recent = append(e.Recent, success)
	if len(e.Recent) > MaxRecentOutcomes {
		e.Recent = e.Recent[len(e.Recent)-MaxRecentOutcomes:]
	}
}

// AddReflection appends a bounded reflection entry, dropping the oldest
// when MaxReflections is exceeded.
func (a *Agent) AddReflection(r Reflection) {
	a.Reflections = append(a.Reflections, r)
	if len(a.Reflections) > MaxReflections {
		a.Reflections = a.Reflections[len(a.Reflections)-MaxReflections:]
	}
}

// CloneTraits returns a deep copy of Personality, used whenever an
// EvolutionEvent needs an immutable snapshot of "previous_traits".
func CloneTraits(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
