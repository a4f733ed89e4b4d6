// Package transport exposes the Dispatcher over the two surfaces spec §4.9
// names: a stdio MCP server for local/subprocess callers, and a streamable
// HTTP MCP server for networked ones. Both are built on mark3labs/mcp-go's
// server subpackage, the teacher's only direct MCP dependency — the
// teacher uses mcp-go purely as a client connecting out to external tool
// servers (pkg/tool/mcptoolset), so hosting an MCP server here runs the
// same library the other direction, not a new one.
package transport

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/evocrew/evocrew/internal/apperr"
	"github.com/evocrew/evocrew/internal/dispatch"
)

// credentialKey carries the presented API key through an MCP request's
// context. stdio sessions have exactly one caller per process, so the key
// is fixed at server construction; HTTP sessions get theirs from the
// Authorization header per request (see http.go).
type credentialKey struct{}

// WithCredential attaches the presented API key to ctx.
func WithCredential(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, credentialKey{}, key)
}

func credentialFrom(ctx context.Context) string {
	key, _ := ctx.Value(credentialKey{}).(string)
	return key
}

// toolDescriptions names each tool's one-line summary shown in tools/list.
// Kept here rather than on ToolHandler because it is presentation text for
// the MCP surface specifically, not part of the Security Gate's schema.
var toolDescriptions = map[string]string{
	"create_evolving_crew":       "Create a new crew of agents with personality traits that evolve over time.",
	"run_autonomous_crew":        "Kick off a crew's workflow against the given task context.",
	"get_crew_status":            "Report a crew's current state and its active workflow, if any.",
	"list_active_crews":          "List every crew currently running or debriefing.",
	"crew_self_assessment":       "Have a crew evaluate its own agents' recent performance and evolve the weakest one if warranted.",
	"add_dynamic_instruction":    "Queue a steering instruction for a running crew.",
	"list_dynamic_instructions":  "List a crew's queued and delivered instructions.",
	"get_instruction_status":     "Report one instruction's delivery status.",
	"trigger_agent_evolution":    "Force an agent's personality to evolve now, bypassing the cooldown; evolution_type is recorded as the reason and does not pick the strategy.",
	"get_agent_reflection":       "Report an agent's recorded reflections and experience metrics.",
	"create_agent_from_template": "Mint a standalone agent from a personality preset, outside of crew creation.",
	"get_agent_details":          "Report an agent's full configuration and state.",
	"get_live_events":            "Report the most recent lifecycle events across all crews.",
	"get_evolution_summary":      "Summarize evolution activity across agents over a recent time window.",
	"health_check":                "Report server and store health.",
	"get_server_config":          "Report the active server configuration and tool surface.",
	"reload_config":              "Reload server configuration from disk.",
}

// NewMCPServer builds an mcp-go server.MCPServer advertising every tool in
// d's registry, each call routed back through d.Dispatch with the schema
// the Security Gate already enforces — mcp-go's own JSON-RPC framing and
// tool listing sits in front of, not instead of, the Gate pipeline.
func NewMCPServer(d *dispatch.Dispatcher, name, version string, log *slog.Logger) *server.MCPServer {
	if log == nil {
		log = slog.Default()
	}
	s := server.NewMCPServer(name, version)

	for _, toolName := range d.Tools() {
		schema, _ := d.SchemaFor(toolName)
		desc := toolDescriptions[toolName]
		opts := schemaToMCPOptions(desc, &schema)
		tool := mcp.NewTool(toolName, opts...)

		boundTool := toolName
		s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleToolCall(ctx, d, boundTool, req, log)
		})
	}

	return s
}

func handleToolCall(ctx context.Context, d *dispatch.Dispatcher, toolName string, req mcp.CallToolRequest, log *slog.Logger) (*mcp.CallToolResult, error) {
	key := credentialFrom(ctx)

	args := req.GetArguments()
	if args == nil {
		args = make(map[string]any)
	}

	result, err := d.Dispatch(ctx, key, toolName, args)
	if err != nil {
		msg := formatToolError(err)
		log.Warn("tool call failed", "tool", toolName, "error", err, "reply", msg)
		return mcp.NewToolResultError(msg), nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func formatToolError(err error) string {
	if ae, ok := apperr.As(err); ok {
		return fmt.Sprintf("%s: %s", ae.Code, ae.Message)
	}
	var id [8]byte
	_, _ = rand.Read(id[:])
	return (&apperr.Error{Code: apperr.Internal, Message: "internal error", CorrelationID: fmt.Sprintf("%x", id)}).Error()
}

// ServeStdio runs the MCP server over stdin/stdout, blocking until the
// client disconnects or ctx is cancelled. key is the single credential
// used for every call in this process — stdio deployments run one
// trusted local caller per process, so there is no per-request identity
// to multiplex (spec §4.9 "stdio: ... single local caller").
func ServeStdio(ctx context.Context, s *server.MCPServer, key string) error {
	stdioServer := server.NewStdioServer(s)
	stdioServer.SetContextFunc(func(ctx context.Context) context.Context {
		return WithCredential(ctx, key)
	})
	return stdioServer.Listen(ctx, nil, nil)
}
