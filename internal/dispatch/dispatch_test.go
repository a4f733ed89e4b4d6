package dispatch

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evocrew/evocrew/internal/bus"
	"github.com/evocrew/evocrew/internal/crewmgr"
	"github.com/evocrew/evocrew/internal/evolution"
	"github.com/evocrew/evocrew/internal/runner"
	"github.com/evocrew/evocrew/internal/security"
	"github.com/evocrew/evocrew/internal/security/ratelimit"
	"github.com/evocrew/evocrew/internal/store"
	"github.com/evocrew/evocrew/internal/supervisor"
	"github.com/evocrew/evocrew/internal/workflow"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	var plaintext string
	if err := security.BootstrapAdminKey(ctx, st, func(msg string) {
		parts := strings.Split(msg, ": ")
		plaintext = parts[len(parts)-1]
	}); err != nil {
		t.Fatalf("bootstrap admin key: %v", err)
	}

	b := bus.New()
	r := &runner.SimulatedRunner{StepDelay: 0}
	wfCfg := workflow.DefaultConfig(2)
	wfCfg.PollInterval = 10 * time.Millisecond
	eng := workflow.New(st, b, r, wfCfg, nil, t.TempDir(), nil)
	mgr := crewmgr.New(st, b, eng)
	evo := evolution.New(st, time.Hour, nil)
	sup := supervisor.New(st, eng, evo, supervisor.DefaultConfig(), nil)

	limiter := ratelimit.New(ratelimit.DefaultConfig(), ratelimit.NewMemoryStore())
	d := New(mgr, evo, sup, st, nil, nil)
	d.SetGate(security.NewGate(st, limiter, d.SchemaFor, nil))

	return d, plaintext
}

func TestDispatch_UnknownToolRejected(t *testing.T) {
	d, key := newTestDispatcher(t)
	if _, err := d.Dispatch(context.Background(), key, "not_a_real_tool", nil); err == nil {
		t.Fatalf("expected an error for an unknown tool")
	}
}

func TestDispatch_CreateAndRunCrewEndToEnd(t *testing.T) {
	d, key := newTestDispatcher(t)
	ctx := context.Background()

	createArgs := map[string]any{
		"crew_name": "dispatch-test-crew",
		"agents_config": []any{
			map[string]any{"role": "researcher", "goal": "find facts", "personality_preset": "specialist"},
		},
		"autonomy_level": 0.5,
	}
	result, err := d.Dispatch(ctx, key, "create_evolving_crew", createArgs)
	if err != nil {
		t.Fatalf("create_evolving_crew: %v", err)
	}
	crewID, _ := result["crew_id"].(string)
	if crewID == "" {
		t.Fatalf("expected a crew_id in the result, got %+v", result)
	}

	runResult, err := d.Dispatch(ctx, key, "run_autonomous_crew", map[string]any{"crew_id": crewID})
	if err != nil {
		t.Fatalf("run_autonomous_crew: %v", err)
	}
	if runResult["workflow_id"] == "" {
		t.Fatalf("expected a workflow_id, got %+v", runResult)
	}

	statusResult, err := d.Dispatch(ctx, key, "get_crew_status", map[string]any{"crew_id": crewID})
	if err != nil {
		t.Fatalf("get_crew_status: %v", err)
	}
	if statusResult["crew_id"] != crewID {
		t.Fatalf("expected status for %s, got %+v", crewID, statusResult)
	}
}

func TestDispatch_HealthCheckReportsStatus(t *testing.T) {
	d, key := newTestDispatcher(t)
	result, err := d.Dispatch(context.Background(), key, "health_check", nil)
	if err != nil {
		t.Fatalf("health_check: %v", err)
	}
	if result["status"] == nil {
		t.Fatalf("expected a status field, got %+v", result)
	}
}

func TestDispatch_WrongCredentialUnauthenticated(t *testing.T) {
	d, _ := newTestDispatcher(t)
	if _, err := d.Dispatch(context.Background(), "not-a-real-key", "health_check", nil); err == nil {
		t.Fatalf("expected an Unauthenticated error for a bad credential")
	}
}
