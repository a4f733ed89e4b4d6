// Package domain holds the entity types of the orchestration kernel:
// agents, crews, workflows, instructions, evolution events, api keys, and
// audit records. Entities only ever reference each other by id — traversal
// goes through the Store, never through pointers — so the arena of objects
// stays acyclic even though the conceptual graph (Crew -> Agent -> Workflow
// -> Instruction) is not.
package domain

import "github.com/google/uuid"

// AgentID, CrewID, WorkflowID and InstructionID are opaque, server-minted
// identifiers. They are plain strings on the wire but distinct types in Go
// so a CrewID can never be passed where an AgentID is expected.
type (
	AgentID       string
	CrewID        string
	WorkflowID    string
	InstructionID string
	ApiKeyID      string
)

func NewAgentID() AgentID             { return AgentID(uuid.NewString()) }
func NewCrewID() CrewID               { return CrewID(uuid.NewString()) }
func NewWorkflowID() WorkflowID       { return WorkflowID(uuid.NewString()) }
func NewInstructionID() InstructionID { return InstructionID(uuid.NewString()) }
func NewApiKeyID() ApiKeyID           { return ApiKeyID(uuid.NewString()) }
