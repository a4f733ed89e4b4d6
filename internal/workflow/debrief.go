package workflow

import (
	"context"
	"path/filepath"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/security"
)

// debrief implements the Debriefing state (spec §4.4): fold each agent's
// outcome into its Experience counters, write any deliverable artifacts
// under the data root via the secure file-I/O guard, notify the Evolution
// Engine if the workflow opted in, then seal the workflow as Completed.
func (e *Engine) debrief(ctx context.Context, wf *domain.Workflow, result *domain.CrewResult) {
	wf.State = domain.WorkflowDebriefing
	wf.Result = result
	if err := e.st.PutWorkflow(ctx, wf); err != nil {
		e.log.Error("persist workflow debriefing", "workflow", wf.ID, "error", err)
	}
	e.notifyWorkflowState(ctx, wf, false)

	var touchedAgents []domain.AgentID
	if result != nil {
		for agentID, outcome := range result.AgentOutcomes {
			e.foldExperience(ctx, wf, agentID, outcome)
			touchedAgents = append(touchedAgents, agentID)
		}
		e.writeArtifacts(wf, result.Artifacts)
	}

	if wf.AllowEvolution && e.onDebrief != nil && len(touchedAgents) > 0 {
		e.onDebrief(ctx, touchedAgents)
	}

	now := time.Now()
	wf.State = domain.WorkflowCompleted
	wf.EndedAt = &now
	if err := e.st.PutWorkflow(ctx, wf); err != nil {
		e.log.Error("persist completed workflow", "workflow", wf.ID, "error", err)
	}
	e.notifyWorkflowState(ctx, wf, true)
}

func (e *Engine) foldExperience(ctx context.Context, wf *domain.Workflow, agentID domain.AgentID, outcome domain.AgentOutcome) {
	agent, err := e.st.GetAgent(ctx, agentID)
	if err != nil {
		e.log.Error("load agent for debrief", "agent", agentID, "workflow", wf.ID, "error", err)
		return
	}

	agent.Experience.RecordOutcome(outcome.Success, outcome.Quality)
	agent.AddReflection(domain.Reflection{
		CreatedAt:  time.Now(),
		Text:       outcome.Note,
		WorkflowID: wf.ID,
	})

	if err := e.st.PutAgent(ctx, agent); err != nil {
		e.log.Error("persist agent after debrief", "agent", agentID, "workflow", wf.ID, "error", err)
	}
}

func (e *Engine) writeArtifacts(wf *domain.Workflow, artifacts []domain.Artifact) {
	if e.dataRoot == "" {
		return
	}
	deliverablesDir := filepath.Join(e.dataRoot, "deliverables", string(wf.ID))
	for _, a := range artifacts {
		path, err := security.ResolveDeliverablePath(deliverablesDir, a.Filename)
		if err != nil {
			e.log.Warn("reject deliverable path", "workflow", wf.ID, "filename", a.Filename, "error", err)
			continue
		}
		if err := security.WriteDeliverable(path, a.Content); err != nil {
			e.log.Error("write deliverable", "workflow", wf.ID, "filename", a.Filename, "error", err)
		}
	}
}
