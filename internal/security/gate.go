package security

import (
	"context"
	"time"

	"github.com/evocrew/evocrew/internal/security/ratelimit"
	"github.com/evocrew/evocrew/internal/store"
)

// SchemaLookup resolves a tool name to its argument Schema. The dispatch
// registry owns the actual tool→schema table; Gate only needs to look one
// up, so it depends on this narrow function type instead of the registry
// package (which in turn depends on Gate).
type SchemaLookup func(tool string) (Schema, bool)

// Gate is the single entry point every tool call passes through: spec
// §4.2's six-step pipeline (authenticate, authorize, rate-limit, validate,
// sanitize, audit), wired from the sub-packages each step is grounded on.
type Gate struct {
	store    store.Store
	perms    *PermissionCache
	limiter  *ratelimit.Limiter
	schemaOf SchemaLookup
	audit    *AuditLog
}

// NewGate assembles a Gate from its collaborators. schemaOf may be nil,
// in which case Validate is skipped (useful for tools with no arguments).
func NewGate(st store.Store, limiter *ratelimit.Limiter, schemaOf SchemaLookup, audit *AuditLog) *Gate {
	return &Gate{
		store:    st,
		perms:    NewPermissionCache(),
		limiter:  limiter,
		schemaOf: schemaOf,
		audit:    audit,
	}
}

// Result is what a successful Handle call returns: the authenticated
// client plus its now-validated-and-sanitized arguments.
type Result struct {
	Auth *AuthContext
	Args map[string]any
}

// Handle runs the full pipeline for one tool call. mutates controls the
// rate limiter's read-only shortcut (spec §4.8 "whether it mutates state
// (used for read-only shortcut on rate limiter)"): read-only tools still
// authenticate and authorize but do not consume a client's hourly/burst
// quota. On any rejection it records the outcome to the audit log (still
// keyed by client ID and tool name, even when authentication itself failed
// and clientID is empty) and returns the rejecting error, which callers
// map to a JSON-RPC error response via apperr.
func (g *Gate) Handle(ctx context.Context, presentedKey, tool string, args map[string]any, mutates bool) (*Result, error) {
	start := time.Now()
	clientID := ""

	record := func(label string) {
		if g.audit != nil {
			g.audit.Record(ctx, clientID, tool, args, label, time.Since(start))
		}
	}

	auth, err := Authenticate(ctx, g.store, presentedKey)
	if err != nil {
		record("unauthenticated")
		return nil, err
	}
	clientID = auth.ClientID

	if err := g.perms.Authorize(tool, auth.Permissions); err != nil {
		record("forbidden")
		return nil, err
	}

	if mutates && g.limiter != nil {
		check := g.limiter.Allow(clientID)
		if !check.Allowed {
			record("rate_limited")
			return nil, errRateLimited("%s", check.Reason)
		}
	}

	if g.schemaOf != nil {
		if schema, ok := g.schemaOf(tool); ok {
			if err := Validate(schema, args); err != nil {
				record("invalid_argument")
				return nil, err
			}
		}
	}

	Sanitize(args)

	record("allowed")
	return &Result{Auth: auth, Args: args}, nil
}

// RecordCompletion writes the second audit record spec §4.2 step 6 and §5
// require: one before dispatch (written by Handle's "allowed" record above)
// and one after the handler actually completes, so a handler that fails
// after the gate passes (NotFound, Misconfigured, Internal, ...) is audited
// under its real outcome rather than "allowed", and latency covers handler
// execution, not just the gate pipeline.
func (g *Gate) RecordCompletion(ctx context.Context, clientID, tool string, args map[string]any, outcome string, latency time.Duration) {
	if g.audit != nil {
		g.audit.Record(ctx, clientID, tool, args, outcome, latency)
	}
}
