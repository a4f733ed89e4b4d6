// Package supervisor runs the orchestration kernel's background ticking
// loops (spec §4.7): evolution sweeps, instruction expiry, stale-workflow
// reaping, and a health probe. Each loop owns its own time.Ticker and
// context.CancelFunc and is joined on shutdown via sync.WaitGroup — the
// same shape the teacher's config.Loader uses for its single reload loop
// in pkg/server/server.go, generalized here from one loop to four named
// ones.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/evolution"
	"github.com/evocrew/evocrew/internal/store"
	"github.com/evocrew/evocrew/internal/workflow"
)

// Config holds the four loops' tunables, with spec §4.7's literal defaults.
type Config struct {
	EvolutionSweepInterval   time.Duration // default 1h
	InstructionExpireInterval time.Duration // default 60s
	InstructionTTL           time.Duration // default 1h, never applies to priority 5
	WorkflowReapInterval     time.Duration // default 30s
	MaxWorkflowDuration      time.Duration // default 1h
	HealthProbeInterval      time.Duration // default 30s
}

// DefaultConfig matches spec §4.7's defaults verbatim.
func DefaultConfig() Config {
	return Config{
		EvolutionSweepInterval:    time.Hour,
		InstructionExpireInterval: 60 * time.Second,
		InstructionTTL:            time.Hour,
		WorkflowReapInterval:      30 * time.Second,
		MaxWorkflowDuration:       time.Hour,
		HealthProbeInterval:       30 * time.Second,
	}
}

// Health is the snapshot HealthProbe maintains; health_check and the
// HTTP /health route read it directly rather than re-probing on every call.
type Health struct {
	mu          sync.RWMutex
	storeOK     bool
	lastChecked time.Time
	detail      string
}

func (h *Health) set(ok bool, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.storeOK = ok
	h.lastChecked = time.Now()
	h.detail = detail
}

// Snapshot returns the most recently probed health state.
func (h *Health) Snapshot() (ok bool, lastChecked time.Time, detail string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.storeOK, h.lastChecked, h.detail
}

// Supervisor owns the four named loops. Each is independently named so
// logs and metrics can attribute failures to a specific loop.
type Supervisor struct {
	st  store.Store
	eng *workflow.Engine
	evo *evolution.Engine
	cfg Config
	log *slog.Logger

	health *Health

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a Supervisor. It does not start any loop until Start is
// called, so construction and wiring can happen before the process begins
// taking requests.
func New(st store.Store, eng *workflow.Engine, evo *evolution.Engine, cfg Config, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{st: st, eng: eng, evo: evo, cfg: cfg, log: log, health: &Health{}}
}

// Health exposes the live health snapshot for health_check and /health.
func (s *Supervisor) Health() *Health { return s.health }

// Start launches all four loops. Each loop is idempotent and safe to
// resume after a restart: it re-derives its work set from the Store on
// every tick rather than keeping in-memory state across ticks.
func (s *Supervisor) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	loops := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"EvolutionSweep", s.cfg.EvolutionSweepInterval, s.runEvolutionSweep},
		{"InstructionExpirer", s.cfg.InstructionExpireInterval, s.runInstructionExpirer},
		{"WorkflowReaper", s.cfg.WorkflowReapInterval, s.runWorkflowReaper},
		{"HealthProbe", s.cfg.HealthProbeInterval, s.runHealthProbe},
	}

	for _, l := range loops {
		s.wg.Add(1)
		go s.tick(loopCtx, l.name, l.interval, l.run)
	}
}

// Stop cancels every loop and blocks until each has drained.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Supervisor) tick(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

func (s *Supervisor) runEvolutionSweep(ctx context.Context) {
	n, err := s.evo.Sweep(ctx)
	if err != nil {
		s.log.Error("evolution sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("evolution sweep evolved agents", "count", n)
	}
}

// runInstructionExpirer moves stale pending instructions to expired.
// Priority-5 (emergency_stop) instructions never expire (spec §4.3, §4.7).
func (s *Supervisor) runInstructionExpirer(ctx context.Context) {
	crews, err := s.st.ListCrews(ctx)
	if err != nil {
		s.log.Error("instruction expirer: list crews", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.cfg.InstructionTTL)
	expired := 0
	for _, crew := range crews {
		pending, err := s.st.ListInstructions(ctx, crew.ID, domain.InstructionPending)
		if err != nil {
			s.log.Error("instruction expirer: list instructions", "crew", crew.ID, "error", err)
			continue
		}
		for _, instr := range pending {
			if instr.Priority == domain.EmergencyStopPriority {
				continue
			}
			if instr.CreatedAt.After(cutoff) {
				continue
			}
			if err := s.st.UpdateInstructionStatus(ctx, instr.ID, domain.InstructionExpired, ""); err != nil {
				s.log.Error("instruction expirer: update status", "instruction", instr.ID, "error", err)
				continue
			}
			expired++
		}
	}
	if expired > 0 {
		s.log.Info("instruction expirer moved stale instructions to expired", "count", expired)
	}
}

// runWorkflowReaper force-cancels workflows stuck in Executing past
// MaxWorkflowDuration by calling Engine.Cancel directly with the reason
// "max_workflow_duration_exceeded"; no emergency_stop instruction is
// created or submitted to the bus.
func (s *Supervisor) runWorkflowReaper(ctx context.Context) {
	active, err := s.st.ListActiveWorkflows(ctx)
	if err != nil {
		s.log.Error("workflow reaper: list active workflows", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.cfg.MaxWorkflowDuration)
	for _, wf := range active {
		if wf.State != domain.WorkflowExecuting {
			continue
		}
		if wf.StartedAt.After(cutoff) {
			continue
		}
		s.log.Warn("workflow exceeded max duration, reaping", "workflow", wf.ID, "started_at", wf.StartedAt)
		s.eng.Cancel(wf.ID, "max_workflow_duration_exceeded")
	}
}

// runHealthProbe confirms the Store is reachable and records a summary;
// worker-pool health is implied by the Engine accepting Start calls, which
// the probe itself cannot safely exercise without side effects, so it is
// reported as healthy whenever the Store check passes.
func (s *Supervisor) runHealthProbe(ctx context.Context) {
	_, err := s.st.ListAgents(ctx)
	if err != nil {
		s.health.set(false, err.Error())
		s.log.Error("health probe: store unreachable", "error", err)
		return
	}
	s.health.set(true, "store reachable")
}
