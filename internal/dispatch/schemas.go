package dispatch

import "github.com/evocrew/evocrew/internal/security"

var agentConfigSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "existing_agent_id", Type: security.TypeString},
		{Name: "role", Type: security.TypeString, FreeText: true},
		{Name: "goal", Type: security.TypeString, FreeText: true},
		{Name: "backstory", Type: security.TypeString, FreeText: true, MaxLen: 5000},
		{Name: "personality_preset", Type: security.TypeString},
	},
}

var crewTaskSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "description", Type: security.TypeString, Required: true, FreeText: true},
		{Name: "expected_output", Type: security.TypeString, FreeText: true},
		{Name: "assigned_agent", Type: security.TypeString},
	},
}

var createEvolvingCrewSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "crew_name", Type: security.TypeString, Required: true, MaxLen: 200},
		{Name: "agents_config", Type: security.TypeArray, Required: true, MaxItems: 50, Elem: agentConfigSchema},
		{Name: "tasks", Type: security.TypeArray, MaxItems: 200, Elem: crewTaskSchema},
		{Name: "autonomy_level", Type: security.TypeNumber, Required: true},
	},
}

var runAutonomousCrewSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "crew_id", Type: security.TypeString, Required: true},
		{Name: "context", Type: security.TypeObject},
		{Name: "allow_evolution", Type: security.TypeBool},
	},
}

var crewIDOnlySchema = &security.Schema{
	Fields: []security.Field{
		{Name: "crew_id", Type: security.TypeString, Required: true},
	},
}

var agentIDOnlySchema = &security.Schema{
	Fields: []security.Field{
		{Name: "agent_id", Type: security.TypeString, Required: true},
	},
}

var addDynamicInstructionSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "crew_id", Type: security.TypeString, Required: true},
		{Name: "instruction", Type: security.TypeString, Required: true, FreeText: true},
		{Name: "instruction_type", Type: security.TypeString, Required: true},
		{Name: "priority", Type: security.TypeNumber, Required: true},
	},
}

var listDynamicInstructionsSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "crew_id", Type: security.TypeString, Required: true},
		{Name: "status", Type: security.TypeString},
	},
}

var getInstructionStatusSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "instruction_id", Type: security.TypeString, Required: true},
	},
}

var triggerAgentEvolutionSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "agent_id", Type: security.TypeString, Required: true},
		{Name: "evolution_type", Type: security.TypeString},
	},
}

var createAgentFromTemplateSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "role", Type: security.TypeString, Required: true, FreeText: true},
		{Name: "goal", Type: security.TypeString, FreeText: true},
		{Name: "backstory", Type: security.TypeString, FreeText: true, MaxLen: 5000},
		{Name: "personality_preset", Type: security.TypeString},
	},
}

var getLiveEventsSchema = &security.Schema{
	Fields: []security.Field{
		{Name: "limit", Type: security.TypeNumber},
	},
}

var getEvolutionSummarySchema = &security.Schema{
	Fields: []security.Field{
		{Name: "since_hours", Type: security.TypeNumber},
	},
}
