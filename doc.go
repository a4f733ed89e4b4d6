// Package evocrew provides a crew-of-agents orchestration kernel exposed
// over MCP (Model Context Protocol).
//
// evocrew manages crews of agents whose personality traits evolve over
// time based on task outcomes. Callers drive crews entirely through MCP
// tool calls: create a crew, kick off a workflow, steer it mid-run with
// dynamic instructions, and let the crew's own self-assessment trigger
// agent evolution when warranted.
//
// # Quick Start
//
// Install evocrewd:
//
//	go install github.com/evocrew/evocrew/cmd/evocrewd@latest
//
// Start the server over stdio (the default transport for local/subprocess
// callers):
//
//	evocrewd serve --config evocrew.yaml
//
// Or over HTTP, for networked callers:
//
//	evocrewd serve --transport http --host 0.0.0.0 --port 8080
//
// # Architecture
//
//	MCP caller → Transport (stdio/http) → Security Gate → Tool Dispatcher
//	           → Crew Manager / Workflow SM / Evolution Engine → Store
//
// Every tool call passes through the Security Gate's six-step pipeline
// (authenticate, authorize, rate-limit, validate, sanitize, audit) before
// it reaches a handler. The Supervisor runs four background loops
// (evolution sweep, instruction expiry, workflow reaping, health probe)
// independent of any in-flight request.
//
// # License
//
// AGPL-3.0 - See LICENSE.md for details.
package evocrew
