package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evocrew/evocrew/internal/apperr"
	"github.com/evocrew/evocrew/internal/domain"
)

type kickoffResult struct {
	result *domain.CrewResult
	err    error
}

// run drives one Workflow from Preparing through to a terminal state. It
// is the only goroutine that mutates wf between the Executing persist and
// the terminal persist — the intake loop, which also touches wf, is
// joined before run touches it again, so there is no concurrent write.
func (e *Engine) run(runCtx context.Context, wf *domain.Workflow, crew *domain.Crew, agents []*domain.Agent) {
	defer e.forget(wf.ID)
	defer e.b.OnEmergencyStop(crew.ID, nil)

	if err := e.pool.Acquire(runCtx, 1); err != nil {
		e.transitionCancelled(context.Background(), wf, "cancelled before worker admission")
		return
	}
	defer e.pool.Release(1)

	wf.State = domain.WorkflowExecuting
	if err := e.st.PutWorkflow(runCtx, wf); err != nil {
		e.log.Error("persist workflow executing", "workflow", wf.ID, "error", err)
	}

	intakeCtx, stopIntake := context.WithCancel(context.Background())
	intakeDone := make(chan struct{})
	go func() {
		defer close(intakeDone)
		e.runIntake(intakeCtx, wf, crew)
	}()

	result, kickoffErr := e.runKickoff(runCtx, wf, crew, agents)

	stopIntake()
	<-intakeDone

	persistCtx := context.Background()

	if kickoffErr != nil && (errors.Is(kickoffErr, context.Canceled) || apperr.CodeOf(kickoffErr) == apperr.Cancelled || runCtx.Err() != nil) {
		reason, escSeen := "cancelled", false
		if rt, ok := e.lookup(wf.ID); ok {
			reason, escSeen = rt.snapshot()
			if reason == "" {
				reason = "cancelled"
			}
		}
		wf.EmergencyStopSeen = escSeen
		// The hard-deadline fallback (runKickoff, below) forced this
		// cancellation regardless of whatever reason was latched earlier:
		// the runner never honored cancellation at all, so report that
		// literal failure mode rather than the reason that asked for it.
		if ae, ok := apperr.As(kickoffErr); ok && ae.Message == "hard-deadline" {
			reason = "hard-deadline"
		}
		e.transitionCancelled(persistCtx, wf, reason)
		return
	}

	if kickoffErr != nil {
		e.transitionFailed(persistCtx, wf, kickoffErr)
		return
	}

	e.debrief(persistCtx, wf, result)
}

// runKickoff calls CrewRunner.Kickoff, enforcing the hard-deadline
// fallback: if runCtx is cancelled and Kickoff does not return within
// Config.HardDeadline, the workflow is forced to Cancelled anyway (spec
// §4.4 "the Workflow SM never swallows an emergency_stop").
func (e *Engine) runKickoff(runCtx context.Context, wf *domain.Workflow, crew *domain.Crew, agents []*domain.Agent) (*domain.CrewResult, error) {
	resultCh := make(chan kickoffResult, 1)
	go func() {
		res, err := e.runner.Kickoff(runCtx, crew, agents)
		resultCh <- kickoffResult{res, err}
	}()

	select {
	case r := <-resultCh:
		return r.result, r.err
	case <-runCtx.Done():
		select {
		case r := <-resultCh:
			return r.result, r.err
		case <-time.After(e.cfg.HardDeadline):
			e.log.Warn("runner ignored cancellation past hard deadline", "workflow", wf.ID)
			return nil, apperr.New(apperr.Cancelled, "hard-deadline")
		}
	}
}

func (e *Engine) transitionCancelled(ctx context.Context, wf *domain.Workflow, reason string) {
	now := time.Now()
	wf.State = domain.WorkflowCancelled
	wf.EndedAt = &now
	wf.CancellationReason = reason
	if err := e.st.PutWorkflow(ctx, wf); err != nil {
		e.log.Error("persist cancelled workflow", "workflow", wf.ID, "error", err)
	}
	e.notifyWorkflowState(ctx, wf, true)
}

func (e *Engine) transitionFailed(ctx context.Context, wf *domain.Workflow, cause error) {
	now := time.Now()
	wf.State = domain.WorkflowFailed
	wf.EndedAt = &now
	wf.FailureReason = sanitizeFailureReason(cause)
	if err := e.st.PutWorkflow(ctx, wf); err != nil {
		e.log.Error("persist failed workflow", "workflow", wf.ID, "error", err)
	}
	e.notifyWorkflowState(ctx, wf, true)
}

// sanitizeFailureReason keeps the error message, not a stack or internal
// type, in the durable record — the audit trail should say what went
// wrong without leaking implementation detail.
func sanitizeFailureReason(err error) string {
	return fmt.Sprintf("%v", err)
}
