// Package store provides durable state for agents, crews, workflows,
// instructions, evolution events, audit records, and api keys (spec §4.1).
//
// Writes to an individual entity are atomic; cross-entity updates (the
// evolution path's agent-mutation-plus-event-append) go through
// EvolveAgent, a single Store transaction. A Watch signal on instruction inserts lets
// the Workflow SM avoid polling the Instruction Bus.
package store

import (
	"context"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
)

// Store is the persistence interface every other component depends on.
// BoltStore is the reference implementation; the interface itself only
// requires atomic per-entity writes and the EvolveAgent cross-entity
// transaction, so a future SQL-backed implementation can satisfy it too.
type Store interface {
	PutAgent(ctx context.Context, a *domain.Agent) error
	GetAgent(ctx context.Context, id domain.AgentID) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]*domain.Agent, error)

	PutCrew(ctx context.Context, c *domain.Crew) error
	GetCrew(ctx context.Context, id domain.CrewID) (*domain.Crew, error)
	ListCrews(ctx context.Context) ([]*domain.Crew, error)
	DeleteCrew(ctx context.Context, id domain.CrewID) error

	AppendEvolutionEvent(ctx context.Context, e *domain.EvolutionEvent) error
	ListEvolutionEvents(ctx context.Context, agentID domain.AgentID, since time.Time) ([]*domain.EvolutionEvent, error)

	PutWorkflow(ctx context.Context, w *domain.Workflow) error
	GetWorkflow(ctx context.Context, id domain.WorkflowID) (*domain.Workflow, error)
	ListActiveWorkflows(ctx context.Context) ([]*domain.Workflow, error)

	EnqueueInstruction(ctx context.Context, i *domain.Instruction) error
	UpdateInstructionStatus(ctx context.Context, id domain.InstructionID, status domain.InstructionStatus, processErr string) error
	GetInstruction(ctx context.Context, id domain.InstructionID) (*domain.Instruction, error)
	ListInstructions(ctx context.Context, crewID domain.CrewID, status domain.InstructionStatus) ([]*domain.Instruction, error)

	AppendAudit(ctx context.Context, r *domain.AuditRecord) error

	GetApiKeyByHash(ctx context.Context, hash [32]byte) (*domain.ApiKey, error)
	PutApiKey(ctx context.Context, k *domain.ApiKey) error
	ListApiKeys(ctx context.Context) ([]*domain.ApiKey, error)

	// EvolveAgent atomically writes the mutated agent and appends the
	// event in one transaction, enforcing the invariant that
	// EvolutionEvent.PreviousTraits equals Agent.Personality immediately
	// before the write.
	EvolveAgent(ctx context.Context, a *domain.Agent, e *domain.EvolutionEvent) error

	// Watch returns a channel that is closed (and replaced) whenever an
	// instruction is enqueued for crewID, letting the Workflow SM's intake
	// loop wake on submission instead of only on its poll tick.
	Watch(crewID domain.CrewID) <-chan struct{}

	Close() error
}

// ErrNotFound is returned by Get* when an entity does not exist. Callers in
// higher layers translate it to apperr.NotFound.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "entity not found" }
