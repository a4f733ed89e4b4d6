// Package dispatch implements the Tool Dispatcher (spec §4.8): a static
// tool-name-to-handler registry, each handler declaring its required
// permission, argument schema, whether it mutates state, and its own
// response formatting.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/evocrew/evocrew/internal/apperr"
	"github.com/evocrew/evocrew/internal/crewmgr"
	"github.com/evocrew/evocrew/internal/evolution"
	"github.com/evocrew/evocrew/internal/security"
	"github.com/evocrew/evocrew/internal/store"
	"github.com/evocrew/evocrew/internal/supervisor"
)

// ConfigProvider is the narrow surface get_server_config/reload_config
// need; main.go supplies the concrete *config.Config-backed
// implementation so this package does not depend on internal/config.
type ConfigProvider interface {
	Snapshot() map[string]any
	Reload() error
}

// HandlerFunc implements one tool's behavior against the already
// authenticated, validated, and sanitized arguments.
type HandlerFunc func(ctx context.Context, d *Dispatcher, auth *security.AuthContext, args map[string]any) (map[string]any, error)

// ToolHandler is one entry in the static registry (spec §4.8).
type ToolHandler struct {
	Name       string
	Permission string // the tool name itself; ApiKey permission globs match against this
	Schema     *security.Schema
	Mutates    bool
	Fn         HandlerFunc
}

// Dispatcher wires the Security Gate to the static tool registry and the
// components handlers call into.
type Dispatcher struct {
	gate *security.Gate
	mgr  *crewmgr.Manager
	evo  *evolution.Engine
	sup  *supervisor.Supervisor
	st   store.Store
	cfg  ConfigProvider
	log  *slog.Logger

	events   *eventRing
	started  time.Time
	registry map[string]*ToolHandler
}

// New assembles a Dispatcher and builds its static registry. The Security
// Gate is wired afterward via SetGate, since Gate itself needs a
// SchemaLookup bound to this Dispatcher's registry (a two-step
// construction to break the cycle, same shape main.go uses for every other
// collaborator pair that references each other).
func New(mgr *crewmgr.Manager, evo *evolution.Engine, sup *supervisor.Supervisor, st store.Store, cfg ConfigProvider, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		mgr:     mgr,
		evo:     evo,
		sup:     sup,
		st:      st,
		cfg:     cfg,
		log:     log,
		events:  newEventRing(),
		started: time.Now(),
	}
	d.registry = buildRegistry()
	return d
}

// SetGate wires the Security Gate once it has been constructed with
// d.SchemaFor as its SchemaLookup.
func (d *Dispatcher) SetGate(gate *security.Gate) { d.gate = gate }

// SchemaFor implements security.SchemaLookup against the static registry.
func (d *Dispatcher) SchemaFor(tool string) (security.Schema, bool) {
	h, ok := d.registry[tool]
	if !ok || h.Schema == nil {
		return security.Schema{}, false
	}
	return *h.Schema, true
}

// recordEvent appends to the live-event ring buffer; handlers call this for
// lifecycle-relevant actions (crew started, instruction added, evolution
// applied) so get_live_events has something to report.
func (d *Dispatcher) recordEvent(kind, crewID, detail string) {
	d.events.append(kind, crewID, detail)
}

// Dispatch runs one JSON-RPC tool call end to end: Security Gate, then the
// matching handler. tool names absent from the registry are rejected as
// InvalidArgument before even reaching Authenticate, since there is no
// schema or permission to check against.
func (d *Dispatcher) Dispatch(ctx context.Context, presentedKey, tool string, args map[string]any) (map[string]any, error) {
	start := time.Now()
	h, ok := d.registry[tool]
	if !ok {
		return nil, apperr.New(apperr.InvalidArgument, "unknown tool %q", tool)
	}
	if args == nil {
		args = make(map[string]any)
	}

	result, err := d.gate.Handle(ctx, presentedKey, tool, args, h.Mutates)
	if err != nil {
		return nil, err
	}

	out, handlerErr := h.Fn(ctx, d, result.Auth, result.Args)

	outcome := "completed"
	if handlerErr != nil {
		outcome = string(apperr.CodeOf(handlerErr))
	}
	d.gate.RecordCompletion(ctx, result.Auth.ClientID, tool, result.Args, outcome, time.Since(start))

	return out, handlerErr
}

// Tools lists every registered tool name, for introspection and for
// get_server_config's reporting of the active tool surface.
func (d *Dispatcher) Tools() []string {
	names := make([]string, 0, len(d.registry))
	for name := range d.registry {
		names = append(names, name)
	}
	return names
}
