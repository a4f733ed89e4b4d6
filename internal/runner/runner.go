// Package runner defines the CrewRunner boundary: the opaque component
// that actually drives agents (LLM calls, tool-use loop). The Workflow
// state machine only ever sees this interface — concrete implementations
// of "run a crew of LLM agents" are explicitly out of scope (spec's
// Non-goals: "the LLM agent framework itself").
package runner

import (
	"context"

	"github.com/evocrew/evocrew/internal/domain"
)

// CrewRunner exposes the one blocking operation the Workflow SM's
// Executing state calls on a worker-pool slot. Kickoff must respect ctx
// cancellation as its cooperative-cancellation signal: once ctx is done,
// Kickoff should return promptly with whatever partial CrewResult it has,
// or an error if cancellation arrived before useful work was produced.
type CrewRunner interface {
	Kickoff(ctx context.Context, crew *domain.Crew, agents []*domain.Agent) (*domain.CrewResult, error)
}
