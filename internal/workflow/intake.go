package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
)

// runIntake is the Executing state's instruction intake loop: drain
// pending instructions in priority-desc/submit-time-asc order and apply
// each one's side effect (spec §4.4). It wakes on whichever comes first
// of the Config.PollInterval ticker (the literal "polls every 2 seconds"
// behavior) or the Store's per-crew Watch signal fired by
// EnqueueInstruction, so a submission is usually applied well before the
// next poll tick instead of waiting out the full interval. It is the sole
// writer of wf.AppliedInstructions and wf.Context for the duration of
// Executing.
func (e *Engine) runIntake(ctx context.Context, wf *domain.Workflow, crew *domain.Crew) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Watch's channel is closed-and-replaced on every notify, so a
		// fresh one must be fetched each iteration to keep listening.
		watch := e.st.Watch(crew.ID)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drainAndApply(ctx, wf, crew)
		case <-watch:
			e.drainAndApply(ctx, wf, crew)
		}
	}
}

func (e *Engine) drainAndApply(ctx context.Context, wf *domain.Workflow, crew *domain.Crew) {
	pending := e.b.DrainFor(crew.ID)
	if len(pending) == 0 {
		return
	}

	changed := false
	for _, instr := range pending {
		e.applyInstruction(ctx, wf, instr)
		changed = true
	}
	if changed {
		if err := e.st.PutWorkflow(ctx, wf); err != nil {
			e.log.Error("persist workflow after instruction intake", "workflow", wf.ID, "error", err)
		}
	}
}

// applyInstruction handles one instruction's side effect per spec §4.4.
// emergency_stop is handled entirely by the Bus→Engine callback wired in
// Start; by the time it reaches here (DrainFor never returns it — Submit
// bypass-routes emergency_stop around the queue) there is nothing left to
// do, so this function only ever sees the other six kinds.
func (e *Engine) applyInstruction(ctx context.Context, wf *domain.Workflow, instr *domain.Instruction) {
	note := fmt.Sprintf("[%s] %s", instr.Kind, instr.Content)
	if wf.Context == nil {
		wf.Context = make(map[string]any)
	}

	switch instr.Kind {
	case domain.InstructionConstraint, domain.InstructionPivot:
		// Flagged for stricter enforcement at debrief: kept in a
		// dedicated bucket so Debriefing can treat them differently from
		// ordinary guidance.
		key := fmt.Sprintf("enforced_instruction_%s", instr.ID)
		wf.Context[key] = note
	default:
		key := fmt.Sprintf("instruction_%s", instr.ID)
		wf.Context[key] = note
	}

	wf.AppliedInstructions = append(wf.AppliedInstructions, instr.ID)

	if err := e.st.UpdateInstructionStatus(ctx, instr.ID, domain.InstructionApplied, ""); err != nil {
		e.log.Error("mark instruction applied", "instruction", instr.ID, "error", err)
	}
}
