// Package workflow implements the Workflow state machine (spec §4.4):
// Created → Preparing → Executing → Debriefing → Completed, with
// Cancelling/Cancelled and Failed branches. One Engine drives every
// workflow in the process; each running workflow gets its own goroutine
// pair (Kickoff worker + instruction intake loop), the same "request task
// suspends at checkpoints" shape the teacher's task package uses for A2A
// tasks (pkg/task.Task), generalized to crew lifecycles.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/evocrew/evocrew/internal/apperr"
	"github.com/evocrew/evocrew/internal/bus"
	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/runner"
	"github.com/evocrew/evocrew/internal/store"
)

// EvolutionNotifier is called at Debriefing once experience counters are
// folded in, so the Evolution Engine can evaluate its triggers. Kept as a
// narrow function type to avoid an import cycle with internal/evolution.
type EvolutionNotifier func(ctx context.Context, agentIDs []domain.AgentID)

// WorkflowNotifier is called whenever a workflow enters Debriefing and
// again once it reaches a terminal state (Completed/Cancelled/Failed), so
// the Crew Manager can mirror the transition onto Crew.State and
// ActiveWorkflowID (spec §4.6) instead of leaving them pinned at Running
// for the crew's whole lifetime. Kept as a narrow function type to avoid
// an import cycle with internal/crewmgr, which already depends on this
// package.
type WorkflowNotifier func(ctx context.Context, crewID domain.CrewID, wfID domain.WorkflowID, terminal bool)

// Config holds the tunables spec §4.4/§5 name with defaults.
type Config struct {
	PollInterval   time.Duration // instruction intake loop cadence (default 2s)
	HardDeadline   time.Duration // forced Cancelled if Kickoff ignores cancellation (default 30s)
	WorkerPoolSize int64         // bounded Kickoff concurrency (config default = GOMAXPROCS; at least 1)
}

// DefaultConfig matches spec §4.4's literal defaults.
func DefaultConfig(poolSize int64) Config {
	if poolSize < 1 {
		poolSize = 1
	}
	return Config{PollInterval: 2 * time.Second, HardDeadline: 30 * time.Second, WorkerPoolSize: poolSize}
}

// Engine owns the worker pool and the in-memory runtime state (cancel
// funcs) for every non-terminal workflow it is driving.
type Engine struct {
	st       store.Store
	b        *bus.Bus
	runner   runner.CrewRunner
	cfg      Config
	log      *slog.Logger
	dataRoot string

	pool *semaphore.Weighted

	onDebrief       EvolutionNotifier
	onWorkflowState WorkflowNotifier

	mu       sync.Mutex
	runtimes map[domain.WorkflowID]*runtime
}

// runtime is the in-memory counterpart to a non-terminal Workflow: the
// Store holds the durable record, runtime holds what only makes sense
// while a goroutine is actually driving it (the cancellation func and the
// emergency_stop latch, since "at most one emergency_stop is honored"
// spec §4.4 is a runtime race between the bus callback and the intake
// loop, not a durable fact until the workflow reaches a terminal state).
type runtime struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	reason  string
	escSeen bool
}

func (rt *runtime) markCancel(reason string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.reason == "" {
		rt.reason = reason
	}
}

func (rt *runtime) snapshot() (reason string, escSeen bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.reason, rt.escSeen
}

// New assembles an Engine. dataRoot is where Debriefing writes deliverable
// artifacts (spec §6.3), resolved through internal/security's path guard.
func New(st store.Store, b *bus.Bus, r runner.CrewRunner, cfg Config, log *slog.Logger, dataRoot string, onDebrief EvolutionNotifier) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		st:        st,
		b:         b,
		runner:    r,
		cfg:       cfg,
		log:       log,
		dataRoot:  dataRoot,
		pool:      semaphore.NewWeighted(cfg.WorkerPoolSize),
		onDebrief: onDebrief,
		runtimes:  make(map[domain.WorkflowID]*runtime),
	}
}

// SetOnWorkflowState wires the Crew Manager's state-mirroring callback
// after both it and the Engine exist. crewmgr.New takes the already-built
// Engine, so this is set afterward, the same two-phase shape dispatch.New
// and SetGate use to break their own constructor cycle.
func (e *Engine) SetOnWorkflowState(fn WorkflowNotifier) { e.onWorkflowState = fn }

// notifyWorkflowState reports wf's Debriefing-entry or terminal transition
// to the registered WorkflowNotifier, if any.
func (e *Engine) notifyWorkflowState(ctx context.Context, wf *domain.Workflow, terminal bool) {
	if e.onWorkflowState != nil {
		e.onWorkflowState(ctx, wf.CrewID, wf.ID, terminal)
	}
}

// Start validates and persists a new Workflow in the Preparing state, then
// launches its execution asynchronously and returns immediately — spec
// §4.6 "the manager does not block the request; start_crew returns
// immediately after transitioning the Workflow to Preparing".
func (e *Engine) Start(ctx context.Context, crew *domain.Crew, agents []*domain.Agent, wfCtx map[string]any, allowEvolution bool) (*domain.Workflow, error) {
	if err := validatePreparation(crew, agents); err != nil {
		return nil, err
	}

	wf := &domain.Workflow{
		ID:             domain.NewWorkflowID(),
		CrewID:         crew.ID,
		State:          domain.WorkflowPreparing,
		StartedAt:      time.Now(),
		Context:        wfCtx,
		AllowEvolution: allowEvolution,
	}
	if err := e.st.PutWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("persist workflow: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.runtimes[wf.ID] = &runtime{cancel: cancel}
	e.mu.Unlock()

	e.b.OnEmergencyStop(crew.ID, func(instr *domain.Instruction) {
		e.handleEmergencyStop(wf.ID, instr)
	})

	// run() owns a private copy from here on: wf is handed back to the
	// caller and must never be mutated again on this goroutine, since the
	// caller has no synchronization with the background run.
	internalWF := *wf
	go e.run(runCtx, &internalWF, crew, agents)

	return wf, nil
}

// validatePreparation implements the Preparing state's resolution check:
// every agent referenced by crew.AgentIDs must be present in agents, and
// every task's AssignedAgent (if set) must reference a crew agent.
func validatePreparation(crew *domain.Crew, agents []*domain.Agent) error {
	byID := make(map[domain.AgentID]bool, len(agents))
	for _, a := range agents {
		byID[a.ID] = true
	}
	for _, id := range crew.AgentIDs {
		if !byID[id] {
			return apperr.New(apperr.Misconfigured, "crew %s references unresolved agent %s", crew.ID, id)
		}
	}
	for i, task := range crew.Tasks {
		if task.AssignedAgent != nil && !byID[*task.AssignedAgent] {
			return apperr.New(apperr.Misconfigured, "crew %s task %d assigned to unresolved agent %s", crew.ID, i, *task.AssignedAgent)
		}
	}
	return nil
}

// Cancel triggers cancellation of wfID with the given reason (used by the
// Workflow reaper's "max_workflow_duration exceeded" path).
func (e *Engine) Cancel(wfID domain.WorkflowID, reason string) {
	rt, ok := e.lookup(wfID)
	if !ok {
		return
	}
	rt.markCancel(reason)
	rt.cancel()
}

// handleEmergencyStop is the Bus.OnEmergencyStop callback: at most one
// emergency_stop is honored per workflow (spec §4.4); later ones land
// here too but rt.escSeen makes them no-ops. Either way the instruction's
// Store record is marked applied — it reached the workflow and was acted
// on (or explicitly ignored as redundant), so it must never be left
// pending.
func (e *Engine) handleEmergencyStop(wfID domain.WorkflowID, instr *domain.Instruction) {
	rt, ok := e.lookup(wfID)
	if !ok {
		return
	}
	rt.mu.Lock()
	if rt.escSeen {
		rt.mu.Unlock()
		e.markInstructionApplied(instr)
		return
	}
	rt.escSeen = true
	if rt.reason == "" {
		rt.reason = "emergency_stop"
	}
	rt.mu.Unlock()
	rt.cancel()
	e.markInstructionApplied(instr)
}

// markInstructionApplied persists the terminal applied status for an
// emergency_stop instruction, which the Bus hands the Engine directly
// instead of routing it through the intake loop that does this for every
// other instruction kind (see applyInstruction).
func (e *Engine) markInstructionApplied(instr *domain.Instruction) {
	if instr == nil {
		return
	}
	if err := e.st.UpdateInstructionStatus(context.Background(), instr.ID, domain.InstructionApplied, ""); err != nil {
		e.log.Error("mark emergency_stop instruction applied", "instruction", instr.ID, "error", err)
	}
}

func (e *Engine) lookup(wfID domain.WorkflowID) (*runtime, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, ok := e.runtimes[wfID]
	return rt, ok
}

func (e *Engine) forget(wfID domain.WorkflowID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.runtimes, wfID)
}
