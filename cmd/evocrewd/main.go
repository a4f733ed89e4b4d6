// Command evocrewd runs the evocrew orchestration kernel: a kong-based CLI
// with serve/version/validate subcommands, same shape as the teacher's
// cmd/hector, wiring Store, Security Gate, Instruction Bus, Workflow
// engine, Evolution engine, Crew Manager, Supervisor, Tool Dispatcher, and
// a stdio or HTTP MCP transport.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/evocrew/evocrew"
	"github.com/evocrew/evocrew/internal/bus"
	"github.com/evocrew/evocrew/internal/config"
	"github.com/evocrew/evocrew/internal/crewmgr"
	"github.com/evocrew/evocrew/internal/dispatch"
	"github.com/evocrew/evocrew/internal/domain"
	"github.com/evocrew/evocrew/internal/evolution"
	"github.com/evocrew/evocrew/internal/logging"
	"github.com/evocrew/evocrew/internal/runner"
	"github.com/evocrew/evocrew/internal/security"
	"github.com/evocrew/evocrew/internal/security/ratelimit"
	"github.com/evocrew/evocrew/internal/store"
	"github.com/evocrew/evocrew/internal/supervisor"
	"github.com/evocrew/evocrew/internal/transport"
	"github.com/evocrew/evocrew/internal/workflow"
)

// exit codes per spec §6.4.
const (
	exitOK               = 0
	exitFatalInit        = 1
	exitInvalidConfig    = 2
	exitStoreUnreachable = 3
)

// CLI is evocrewd's kong command tree.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Run the orchestration server."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file and exit."`

	Config string `short:"c" help:"Path to config file." type:"path"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(evocrew.GetVersion().String())
	return nil
}

type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	_, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	fmt.Println("configuration valid")
	return nil
}

// ServeCmd starts the server. Flags override config-file/env values per
// spec §6.4's priority order (CLI flag > env var > config file > default).
type ServeCmd struct {
	Host      string `help:"Listen host (http transport only)."`
	Port      int    `help:"Listen port (http transport only)."`
	Transport string `help:"Transport: stdio or http."`
	DataRoot  string `name:"data-root" help:"Directory for the bbolt store file." type:"path"`

	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)."`
	LogFile   string `name:"log-file" help:"Log file path (empty = stderr)."`
	LogFormat string `name:"log-format" help:"Log format (simple, verbose)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInvalidConfig)
	}
	c.applyOverrides(cfg)

	log, closeLog, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatalInit)
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		log.Error("failed to create data root", "error", err)
		os.Exit(exitFatalInit)
	}

	st, err := store.Open(filepath.Join(cfg.DataRoot, "evocrew.db"))
	if err != nil {
		log.Error("store unreachable", "error", err)
		os.Exit(exitStoreUnreachable)
	}
	defer st.Close()

	if err := reconcileCrashedWorkflows(ctx, st, log); err != nil {
		log.Error("reconcile crashed workflows", "error", err)
	}

	adminKey, err := bootstrapAdmin(ctx, st, cfg, log)
	if err != nil {
		log.Error("failed to bootstrap admin key", "error", err)
		os.Exit(exitFatalInit)
	}

	b := bus.New()
	r := runner.NewSimulatedRunner()
	wfCfg := workflow.DefaultConfig(cfg.WorkerPoolSize)
	evo := evolution.New(st, cfg.Evolution.Cooldown, log)
	eng := workflow.New(st, b, r, wfCfg, log, cfg.DataRoot, nil)

	mgr := crewmgr.New(st, b, eng)
	eng.SetOnWorkflowState(mgr.OnWorkflowState)
	supCfg := supervisor.Config{
		EvolutionSweepInterval:    cfg.Scheduler.EvolutionSweepInterval,
		InstructionExpireInterval: cfg.Scheduler.InstructionExpireInterval,
		InstructionTTL:            cfg.Scheduler.InstructionTTL,
		WorkflowReapInterval:      cfg.Scheduler.WorkflowReapInterval,
		MaxWorkflowDuration:       cfg.Scheduler.MaxWorkflowDuration,
		HealthProbeInterval:       cfg.Scheduler.HealthProbeInterval,
	}
	sup := supervisor.New(st, eng, evo, supCfg, log)
	sup.Start(ctx)
	defer sup.Stop()

	provider := config.NewProvider(cli.Config, cfg)

	limiter := ratelimit.New(ratelimit.Config{
		HourlyLimit:   cfg.RateLimit.HourlyLimit,
		BurstLimit:    cfg.RateLimit.BurstLimit,
		BlockDuration: cfg.RateLimit.BlockDuration,
	}, ratelimit.NewMemoryStore())

	audit := security.NewAuditLog(security.DefaultAuditConfig(filepath.Join(cfg.DataRoot, "audit.log")), st)

	d := dispatch.New(mgr, evo, sup, st, provider, log)
	d.SetGate(security.NewGate(st, limiter, d.SchemaFor, audit))

	switch cfg.Transport {
	case "stdio":
		return runStdio(ctx, d, adminKey, log)
	case "http":
		return runHTTP(ctx, cfg, d, sup, log)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func (c *ServeCmd) applyOverrides(cfg *config.Config) {
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.Transport != "" {
		cfg.Transport = c.Transport
	}
	if c.DataRoot != "" {
		cfg.DataRoot = c.DataRoot
	}
	if c.LogLevel != "" {
		cfg.Logger.Level = c.LogLevel
	}
	if c.LogFile != "" {
		cfg.Logger.File = c.LogFile
	}
	if c.LogFormat != "" {
		cfg.Logger.Format = c.LogFormat
	}
}

func buildLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	output := os.Stderr
	closeFn := func() {}
	if cfg.Logger.File != "" {
		f, err := logging.OpenLogFile(cfg.Logger.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		output = f
		closeFn = func() { _ = f.Close() }
	}
	level := logging.ParseLevel(cfg.Logger.Level)
	return logging.New(level, output, cfg.Logger.Format), closeFn, nil
}

// reconcileCrashedWorkflows runs once at boot, before the server starts
// accepting calls (spec §8 scenario 6): any workflow still Executing has
// no goroutine driving it anymore, since the process that owned it is
// gone, so it can never reach a terminal state on its own. Force it to
// Failed with the literal reason "process-restart" and free the owning
// crew back to idle, mirroring what workflow.Engine's WorkflowNotifier
// does for a live workflow's terminal transition.
func reconcileCrashedWorkflows(ctx context.Context, st store.Store, log *slog.Logger) error {
	active, err := st.ListActiveWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("list active workflows: %w", err)
	}

	for _, wf := range active {
		if wf.State != domain.WorkflowExecuting {
			continue
		}

		now := time.Now()
		wf.State = domain.WorkflowFailed
		wf.EndedAt = &now
		wf.FailureReason = "process-restart"
		if err := st.PutWorkflow(ctx, wf); err != nil {
			log.Error("reconcile: persist failed workflow", "workflow", wf.ID, "error", err)
			continue
		}
		log.Warn("reconciled stale workflow after restart", "workflow", wf.ID, "crew", wf.CrewID)

		crew, err := st.GetCrew(ctx, wf.CrewID)
		if err != nil {
			continue
		}
		if crew.ActiveWorkflowID != nil && *crew.ActiveWorkflowID == wf.ID {
			crew.State = domain.CrewIdle
			crew.ActiveWorkflowID = nil
			if err := st.PutCrew(ctx, crew); err != nil {
				log.Error("reconcile: persist crew", "crew", crew.ID, "error", err)
			}
		}
	}
	return nil
}

// bootstrapAdmin mints (or adopts a config-pinned) admin API key on first
// boot and returns the plaintext for the stdio transport to use as its
// single session credential. For the http transport the returned value is
// only ever logged once; every later caller authenticates with its own key.
func bootstrapAdmin(ctx context.Context, st store.Store, cfg *config.Config, log *slog.Logger) (string, error) {
	var printed string
	print := func(msg string) {
		printed = msg
		log.Warn(msg)
	}
	if cfg.AdminBootstrapKey != "" {
		if err := security.BootstrapAdminKeyWithValue(ctx, st, cfg.AdminBootstrapKey, print); err != nil {
			return "", err
		}
		return cfg.AdminBootstrapKey, nil
	}
	if err := security.BootstrapAdminKey(ctx, st, print); err != nil {
		return "", err
	}
	_ = printed
	return printed, nil
}

func runStdio(ctx context.Context, d *dispatch.Dispatcher, adminKey string, log *slog.Logger) error {
	mcpServer := transport.NewMCPServer(d, "evocrewd", "dev", log)
	log.Info("serving MCP over stdio")
	return transport.ServeStdio(ctx, mcpServer, adminKey)
}

func runHTTP(ctx context.Context, cfg *config.Config, d *dispatch.Dispatcher, sup *supervisor.Supervisor, log *slog.Logger) error {
	mcpServer := transport.NewMCPServer(d, "evocrewd", "dev", log)
	httpServer := transport.NewHTTPServer(transport.HTTPConfig{
		Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}, mcpServer, d, sup, log)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Stop(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("evocrewd"),
		kong.Description("evocrew orchestration kernel: MCP tools over crews of evolving agents."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatalInit)
	}
	os.Exit(exitOK)
}
