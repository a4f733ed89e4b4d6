package dispatch

import (
	"context"
	"time"

	"github.com/evocrew/evocrew/internal/apperr"
	"github.com/evocrew/evocrew/internal/crewmgr"
	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/evolution"
	"github.com/evocrew/evocrew/internal/security"
)

// presetTraits mirrors crewmgr's unexported preset lookup: the dispatcher
// needs it for create_agent_from_template, which mints a standalone agent
// outside of crew creation, so it reads the same exported table directly
// rather than duplicating the trait values.
func presetTraits(name string) map[string]float64 {
	p, ok := crewmgr.Presets[name]
	if !ok {
		p = crewmgr.Presets["balanced"]
	}
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func buildRegistry() map[string]*ToolHandler {
	handlers := []*ToolHandler{
		{Name: "create_evolving_crew", Permission: "create_evolving_crew", Schema: createEvolvingCrewSchema, Mutates: true, Fn: handleCreateEvolvingCrew},
		{Name: "run_autonomous_crew", Permission: "run_autonomous_crew", Schema: runAutonomousCrewSchema, Mutates: true, Fn: handleRunAutonomousCrew},
		{Name: "get_crew_status", Permission: "get_crew_status", Schema: crewIDOnlySchema, Mutates: false, Fn: handleGetCrewStatus},
		{Name: "list_active_crews", Permission: "list_active_crews", Schema: nil, Mutates: false, Fn: handleListActiveCrews},
		{Name: "crew_self_assessment", Permission: "crew_self_assessment", Schema: crewIDOnlySchema, Mutates: true, Fn: handleCrewSelfAssessment},
		{Name: "add_dynamic_instruction", Permission: "add_dynamic_instruction", Schema: addDynamicInstructionSchema, Mutates: true, Fn: handleAddDynamicInstruction},
		{Name: "list_dynamic_instructions", Permission: "list_dynamic_instructions", Schema: listDynamicInstructionsSchema, Mutates: false, Fn: handleListDynamicInstructions},
		{Name: "get_instruction_status", Permission: "get_instruction_status", Schema: getInstructionStatusSchema, Mutates: false, Fn: handleGetInstructionStatus},
		{Name: "trigger_agent_evolution", Permission: "trigger_agent_evolution", Schema: triggerAgentEvolutionSchema, Mutates: true, Fn: handleTriggerAgentEvolution},
		{Name: "get_agent_reflection", Permission: "get_agent_reflection", Schema: agentIDOnlySchema, Mutates: false, Fn: handleGetAgentReflection},
		{Name: "create_agent_from_template", Permission: "create_agent_from_template", Schema: createAgentFromTemplateSchema, Mutates: true, Fn: handleCreateAgentFromTemplate},
		{Name: "get_agent_details", Permission: "get_agent_details", Schema: agentIDOnlySchema, Mutates: false, Fn: handleGetAgentDetails},
		{Name: "get_live_events", Permission: "get_live_events", Schema: getLiveEventsSchema, Mutates: false, Fn: handleGetLiveEvents},
		{Name: "get_evolution_summary", Permission: "get_evolution_summary", Schema: getEvolutionSummarySchema, Mutates: false, Fn: handleGetEvolutionSummary},
		{Name: "health_check", Permission: "health_check", Schema: nil, Mutates: false, Fn: handleHealthCheck},
		{Name: "get_server_config", Permission: "get_server_config", Schema: nil, Mutates: false, Fn: handleGetServerConfig},
		{Name: "reload_config", Permission: "reload_config", Schema: nil, Mutates: true, Fn: handleReloadConfig},
	}

	registry := make(map[string]*ToolHandler, len(handlers))
	for _, h := range handlers {
		registry[h.Name] = h
	}
	return registry
}

func handleCreateEvolvingCrew(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	spec := domain.CrewSpec{
		Name:          argString(args, "crew_name"),
		AutonomyLevel: argFloat(args, "autonomy_level", 0),
	}
	for _, raw := range argArray(args, "agents_config") {
		cfg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ac := domain.AgentConfig{
			Role:              argString(cfg, "role"),
			Goal:              argString(cfg, "goal"),
			Backstory:         argString(cfg, "backstory"),
			PersonalityPreset: argString(cfg, "personality_preset"),
		}
		if id := argStringPtr(cfg, "existing_agent_id"); id != nil {
			aid := domain.AgentID(*id)
			ac.ExistingAgentID = &aid
		}
		spec.Agents = append(spec.Agents, ac)
	}
	for _, raw := range argArray(args, "tasks") {
		t, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		task := domain.CrewTask{
			Description:    argString(t, "description"),
			ExpectedOutput: argString(t, "expected_output"),
		}
		if id := argStringPtr(t, "assigned_agent"); id != nil {
			aid := domain.AgentID(*id)
			task.AssignedAgent = &aid
		}
		spec.Tasks = append(spec.Tasks, task)
	}

	crew, err := d.mgr.CreateCrew(ctx, spec)
	if err != nil {
		return nil, err
	}

	agentIDs := make([]string, len(crew.AgentIDs))
	for i, id := range crew.AgentIDs {
		agentIDs[i] = string(id)
	}
	d.recordEvent("crew_created", string(crew.ID), crew.Name)
	return map[string]any{"crew_id": string(crew.ID), "agent_ids": agentIDs}, nil
}

func handleRunAutonomousCrew(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	crewID, err := requireString(args, "crew_id")
	if err != nil {
		return nil, err
	}
	wf, err := d.mgr.StartCrew(ctx, domain.CrewID(crewID), argObject(args, "context"), argBool(args, "allow_evolution", false))
	if err != nil {
		return nil, err
	}
	d.recordEvent("workflow_started", crewID, string(wf.ID))
	return map[string]any{"workflow_id": string(wf.ID), "state": string(wf.State)}, nil
}

func handleGetCrewStatus(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	crewID, err := requireString(args, "crew_id")
	if err != nil {
		return nil, err
	}
	crew, wf, err := d.mgr.GetCrewStatus(ctx, domain.CrewID(crewID))
	if err != nil {
		return nil, err
	}

	agents := make([]map[string]any, 0, len(crew.AgentIDs))
	for _, id := range crew.AgentIDs {
		agents = append(agents, map[string]any{"agent_id": string(id)})
	}

	out := map[string]any{
		"crew_id": string(crew.ID),
		"state":   string(crew.State),
		"agents":  agents,
	}
	if wf != nil {
		out["workflow"] = map[string]any{
			"workflow_id": string(wf.ID),
			"state":       string(wf.State),
		}
	}
	return out, nil
}

func handleListActiveCrews(ctx context.Context, d *Dispatcher, _ *security.AuthContext, _ map[string]any) (map[string]any, error) {
	crews, err := d.mgr.ListActiveCrews(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(crews))
	totalAgents := 0
	for _, c := range crews {
		out = append(out, map[string]any{"crew_id": string(c.ID), "name": c.Name, "state": string(c.State)})
		totalAgents += len(c.AgentIDs)
	}
	return map[string]any{"crews": out, "active_crews": len(out), "total_agents": totalAgents}, nil
}

// handleCrewSelfAssessment heuristically flags the crew member with the
// lowest rolling success rate as the "gap" and feeds it to the Evolution
// Engine's self_assessment trigger (SPEC_FULL.md §4 "the trigger needed a
// producer; this tool is that producer").
func handleCrewSelfAssessment(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	crewID, err := requireString(args, "crew_id")
	if err != nil {
		return nil, err
	}
	crew, _, err := d.mgr.GetCrewStatus(ctx, domain.CrewID(crewID))
	if err != nil {
		return nil, err
	}

	var strengths, gaps, recommendations []string
	var worstAgent domain.AgentID
	worstRate := 2.0 // above the [0,1] range, so any real rate replaces it

	for _, id := range crew.AgentIDs {
		agent, err := d.st.GetAgent(ctx, id)
		if err != nil {
			continue
		}
		rate, enough := agent.Experience.RollingSuccessRate(evolution.RollingWindow)
		if !enough {
			continue
		}
		if rate >= evolution.LowSuccessThreshold {
			strengths = append(strengths, string(id))
		} else {
			gaps = append(gaps, string(id))
			recommendations = append(recommendations, "consider evolving agent "+string(id))
		}
		if rate < worstRate {
			worstRate = rate
			worstAgent = id
		}
	}

	if worstAgent != "" && worstRate < evolution.LowSuccessThreshold {
		if _, err := d.evo.Evolve(ctx, evolution.SelfAssessmentCandidate(worstAgent, "crew self-assessment flagged imbalance")); err == nil {
			d.recordEvent("evolution_applied", crewID, "self_assessment: "+string(worstAgent))
		}
	}

	return map[string]any{"strengths": strengths, "gaps": gaps, "recommendations": recommendations}, nil
}

func handleAddDynamicInstruction(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	crewID, err := requireString(args, "crew_id")
	if err != nil {
		return nil, err
	}
	content, err := requireString(args, "instruction")
	if err != nil {
		return nil, err
	}
	kind := domain.InstructionKind(argString(args, "instruction_type"))
	priority := int(argFloat(args, "priority", 1))

	instr, err := d.mgr.AddInstruction(ctx, domain.CrewID(crewID), kind, priority, content)
	if err != nil {
		return nil, err
	}
	d.recordEvent("instruction_added", crewID, string(instr.ID))
	return map[string]any{"instruction_id": string(instr.ID), "status": string(instr.Status)}, nil
}

func handleListDynamicInstructions(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	crewID, err := requireString(args, "crew_id")
	if err != nil {
		return nil, err
	}
	status := domain.InstructionStatus(argString(args, "status"))

	instrs, err := d.st.ListInstructions(ctx, domain.CrewID(crewID), status)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(instrs))
	for _, i := range instrs {
		out = append(out, map[string]any{
			"id": string(i.ID), "kind": string(i.Kind), "priority": i.Priority,
			"status": string(i.Status), "content": i.Content,
		})
	}
	return map[string]any{"instructions": out}, nil
}

func handleGetInstructionStatus(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	id, err := requireString(args, "instruction_id")
	if err != nil {
		return nil, err
	}
	instr, err := d.st.GetInstruction(ctx, domain.InstructionID(id))
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "instruction %s not found", id)
	}
	out := map[string]any{"id": string(instr.ID), "status": string(instr.Status)}
	if instr.ProcessedAt != nil {
		out["processed_at"] = instr.ProcessedAt.Format(time.RFC3339)
	}
	if instr.Error != "" {
		out["error"] = instr.Error
	}
	return out, nil
}

func handleTriggerAgentEvolution(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	agentID, err := requireString(args, "agent_id")
	if err != nil {
		return nil, err
	}
	reason := argString(args, "evolution_type")

	event, err := d.evo.Evolve(ctx, evolution.ExplicitCandidate(domain.AgentID(agentID), reason))
	if err != nil {
		return nil, err
	}
	d.recordEvent("evolution_applied", "", agentID)
	return map[string]any{
		"agent_id":        agentID,
		"cycle":           event.Cycle,
		"previous_traits": event.PreviousTraits,
		"new_traits":      event.NewTraits,
	}, nil
}

func handleGetAgentReflection(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	agentID, err := requireString(args, "agent_id")
	if err != nil {
		return nil, err
	}
	agent, err := d.mgr.GetAgentReflection(ctx, domain.AgentID(agentID))
	if err != nil {
		return nil, err
	}

	reflections := make([]map[string]any, 0, len(agent.Reflections))
	for _, r := range agent.Reflections {
		reflections = append(reflections, map[string]any{
			"created_at":  r.CreatedAt.Format(time.RFC3339),
			"text":        r.Text,
			"workflow_id": string(r.WorkflowID),
		})
	}
	metrics := map[string]any{
		"tasks_completed":      agent.Experience.TasksCompleted,
		"successes":            agent.Experience.Successes,
		"failures":             agent.Experience.Failures,
		"consecutive_failures": agent.Experience.ConsecutiveFailures,
		"avg_quality":          agent.Experience.AvgQuality,
	}
	return map[string]any{"reflections": reflections, "metrics": metrics}, nil
}

func handleCreateAgentFromTemplate(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	role, err := requireString(args, "role")
	if err != nil {
		return nil, err
	}
	agent := &domain.Agent{
		ID:          domain.NewAgentID(),
		Role:        role,
		Goal:        argString(args, "goal"),
		Backstory:   argString(args, "backstory"),
		Personality: presetTraits(argString(args, "personality_preset")),
		CreatedAt:   time.Now(),
	}
	if err := d.st.PutAgent(ctx, agent); err != nil {
		return nil, err
	}
	return map[string]any{"agent_id": string(agent.ID)}, nil
}

func handleGetAgentDetails(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	agentID, err := requireString(args, "agent_id")
	if err != nil {
		return nil, err
	}
	agent, err := d.st.GetAgent(ctx, domain.AgentID(agentID))
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "agent %s not found", agentID)
	}
	return map[string]any{
		"agent_id":         string(agent.ID),
		"role":             agent.Role,
		"goal":             agent.Goal,
		"backstory":        agent.Backstory,
		"personality":      agent.Personality,
		"evolution_cycles": agent.EvolutionCycles,
	}, nil
}

func handleGetLiveEvents(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	limit := int(argFloat(args, "limit", 50))
	events := d.events.recent(limit)
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"time": e.Time.Format(time.RFC3339), "kind": e.Kind, "crew_id": e.CrewID, "detail": e.Detail,
		})
	}
	return map[string]any{"events": out}, nil
}

func handleGetEvolutionSummary(ctx context.Context, d *Dispatcher, _ *security.AuthContext, args map[string]any) (map[string]any, error) {
	sinceHours := argFloat(args, "since_hours", 24)
	since := time.Now().Add(-time.Duration(sinceHours * float64(time.Hour)))

	agents, err := d.st.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	byKind := make(map[string]int)
	byAgent := make(map[string]int)
	total := 0
	for _, a := range agents {
		events, err := d.st.ListEvolutionEvents(ctx, a.ID, since)
		if err != nil {
			continue
		}
		for _, e := range events {
			byKind[string(e.Kind)]++
			byAgent[string(a.ID)]++
			total++
		}
	}
	return map[string]any{"total": total, "by_kind": byKind, "by_agent": byAgent}, nil
}

func handleHealthCheck(ctx context.Context, d *Dispatcher, _ *security.AuthContext, _ map[string]any) (map[string]any, error) {
	components := map[string]any{}
	status := "healthy"
	if d.sup != nil {
		ok, lastChecked, detail := d.sup.Health().Snapshot()
		components["store"] = map[string]any{"ok": ok, "detail": detail, "checked_at": lastChecked.Format(time.RFC3339)}
		if !ok {
			status = "unhealthy"
		}
	}
	return map[string]any{
		"status":     status,
		"components": components,
		"uptime":     time.Since(d.started).String(),
	}, nil
}

func handleGetServerConfig(ctx context.Context, d *Dispatcher, _ *security.AuthContext, _ map[string]any) (map[string]any, error) {
	if d.cfg == nil {
		return map[string]any{"tools": d.Tools()}, nil
	}
	snap := d.cfg.Snapshot()
	snap["tools"] = d.Tools()
	return snap, nil
}

// handleReloadConfig is Forbidden-gated in practice: only an admin key's
// permission glob would include this tool name, since it re-applies
// data-root-relative config without a process restart (SPEC_FULL.md §4).
func handleReloadConfig(ctx context.Context, d *Dispatcher, _ *security.AuthContext, _ map[string]any) (map[string]any, error) {
	if d.cfg == nil {
		return nil, apperr.New(apperr.Unavailable, "no config provider wired")
	}
	if err := d.cfg.Reload(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "config reload failed")
	}
	return map[string]any{"reloaded": true}, nil
}
