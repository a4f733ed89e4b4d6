package transport

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/evocrew/evocrew/internal/security"
)

// schemaToMCPOptions converts one tool's security.Schema into mcp-go's tool
// option builders, so the Security Gate's own validation schema is also
// what the MCP client sees advertised in tools/list — one source of truth
// instead of a second hand-maintained JSON schema per tool.
func schemaToMCPOptions(description string, schema *security.Schema) []mcp.ToolOption {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	if schema == nil {
		return opts
	}

	for _, f := range schema.Fields {
		fieldOpts := fieldPropertyOptions(f)
		switch f.Type {
		case security.TypeString:
			opts = append(opts, mcp.WithString(f.Name, fieldOpts...))
		case security.TypeNumber:
			opts = append(opts, mcp.WithNumber(f.Name, fieldOpts...))
		case security.TypeBool:
			opts = append(opts, mcp.WithBoolean(f.Name, fieldOpts...))
		case security.TypeArray:
			opts = append(opts, mcp.WithArray(f.Name, fieldOpts...))
		case security.TypeObject:
			opts = append(opts, mcp.WithObject(f.Name, fieldOpts...))
		}
	}
	return opts
}

func fieldPropertyOptions(f security.Field) []mcp.PropertyOption {
	var opts []mcp.PropertyOption
	if f.Required {
		opts = append(opts, mcp.Required())
	}
	return opts
}
