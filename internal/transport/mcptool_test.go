package transport

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evocrew/evocrew/internal/security"
)

func TestSchemaToMCPOptions_NilSchemaKeepsDescriptionOnly(t *testing.T) {
	opts := schemaToMCPOptions("does a thing", nil)
	require.Len(t, opts, 1)

	tool := mcp.NewTool("do_thing", opts...)
	assert.Equal(t, "does a thing", tool.Description)
}

func TestSchemaToMCPOptions_BuildsOnePropertyPerField(t *testing.T) {
	schema := &security.Schema{
		Fields: []security.Field{
			{Name: "crew_id", Type: security.TypeString, Required: true},
			{Name: "priority", Type: security.TypeNumber},
			{Name: "force", Type: security.TypeBool},
			{Name: "tags", Type: security.TypeArray},
		},
	}

	opts := schemaToMCPOptions("steer a crew", schema)
	tool := mcp.NewTool("add_dynamic_instruction", opts...)

	_, hasCrewID := tool.InputSchema.Properties["crew_id"]
	_, hasPriority := tool.InputSchema.Properties["priority"]
	_, hasForce := tool.InputSchema.Properties["force"]
	_, hasTags := tool.InputSchema.Properties["tags"]
	assert.True(t, hasCrewID)
	assert.True(t, hasPriority)
	assert.True(t, hasForce)
	assert.True(t, hasTags)
	assert.Contains(t, tool.InputSchema.Required, "crew_id")
	assert.NotContains(t, tool.InputSchema.Required, "priority")
}
