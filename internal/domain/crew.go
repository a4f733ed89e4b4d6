package domain

import "time"

// CrewState is the lifecycle of a Crew, independent of its current
// Workflow's own state machine (spec §3's Crew.state column).
type CrewState string

const (
	CrewIdle       CrewState = "idle"
	CrewRunning    CrewState = "running"
	CrewDebriefing CrewState = "debriefing"
	CrewDisbanded  CrewState = "disbanded"
)

// Crew is a named collection of agents plus a task list, executed together.
type Crew struct {
	ID            CrewID
	Name          string
	AgentIDs      []AgentID
	Tasks         []CrewTask
	AutonomyLevel float64 // in [0,1]
	FormationDate time.Time
	State         CrewState

	// ActiveWorkflowID is set while a Workflow is in a non-terminal state
	// for this crew; the invariant "at most one non-terminal Workflow per
	// Crew" is enforced by the Crew Manager checking this field under the
	// Store's per-entity atomicity.
	ActiveWorkflowID *WorkflowID
}

// CrewTask is one task description within a crew's task list.
type CrewTask struct {
	Description    string
	ExpectedOutput string
	AssignedAgent  *AgentID
}

// AgentConfig describes one agent within a create_evolving_crew call: either
// a brand-new agent (ExistingAgentID nil) or a reattachment of an existing
// agent by id.
type AgentConfig struct {
	ExistingAgentID  *AgentID
	Role             string
	Goal             string
	Backstory        string
	PersonalityPreset string
}

// CrewSpec is the declarative input to Crew Manager's create_crew.
type CrewSpec struct {
	Name          string
	Agents        []AgentConfig
	Tasks         []CrewTask
	AutonomyLevel float64
}
