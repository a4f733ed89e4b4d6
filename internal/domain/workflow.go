package domain

import "time"

// WorkflowState is one node of the state machine in spec §4.4.
type WorkflowState string

const (
	WorkflowCreated     WorkflowState = "Created"
	WorkflowPreparing   WorkflowState = "Preparing"
	WorkflowExecuting   WorkflowState = "Executing"
	WorkflowDebriefing  WorkflowState = "Debriefing"
	WorkflowCancelling  WorkflowState = "Cancelling"
	WorkflowCompleted   WorkflowState = "Completed"
	WorkflowCancelled   WorkflowState = "Cancelled"
	WorkflowFailed      WorkflowState = "Failed"
)

// IsTerminal reports whether no further transition is possible.
func (s WorkflowState) IsTerminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowCancelled, WorkflowFailed:
		return true
	}
	return false
}

// IsNonTerminal is the complement, matching spec §3's invariant wording
// ("at most one non-terminal Workflow per Crew" covers Preparing, Executing,
// Debriefing, Cancelling).
func (s WorkflowState) IsNonTerminal() bool { return !s.IsTerminal() }

// CrewResult is the opaque result the external CrewRunner hands back from
// Kickoff. The orchestration kernel never inspects its internals beyond what
// Debriefing needs (per-agent outcomes), so it is modeled as a bag of
// per-agent outcomes plus free-form output, not a rigid schema.
type CrewResult struct {
	Output       string
	AgentOutcomes map[AgentID]AgentOutcome
	Artifacts    []Artifact
}

// AgentOutcome is what Debriefing folds into Agent.Experience.
type AgentOutcome struct {
	Success bool
	Quality float64 // 0..1
	Note    string
}

// Artifact is one deliverable the runner produced, to be written under the
// data root's deliverables/ directory via secure file I/O (spec §6.3).
type Artifact struct {
	Filename string
	Content  []byte
}

// Workflow is one execution instance of a Crew.
type Workflow struct {
	ID        WorkflowID
	CrewID    CrewID
	State     WorkflowState
	StartedAt time.Time
	EndedAt   *time.Time

	// Context is the free-form input passed to start_crew.
	Context map[string]any

	// AllowEvolution mirrors the start_crew argument; Debriefing only
	// notifies the Evolution Engine when this is true.
	AllowEvolution bool

	Result             *CrewResult
	CancellationReason string

	// FailureReason carries the original runner error (sanitized) when
	// State == Failed.
	FailureReason string

	// AppliedInstructions records, in delivery order, the instructions the
	// intake loop has applied — used for the priority-ordering testable
	// property and for debrief enforcement of constraint/pivot kinds.
	AppliedInstructions []InstructionID

	// EmergencyStopSeen latches after the first emergency_stop so later
	// ones are no-ops (spec §4.4 "At most one emergency_stop is honored").
	EmergencyStopSeen bool
}
