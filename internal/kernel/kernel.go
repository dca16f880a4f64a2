// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package kernel wires every subsystem together behind init/run/
// shutdown, matching the source kernel's own three-call lifecycle: one
// reactor tick at a time, reaping dead agents and processing pending
// restarts on every iteration, until a shutdown signal flips the
// running flag.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clove-kernel/clove/internal/audit"
	"github.com/clove-kernel/clove/internal/clock"
	"github.com/clove-kernel/clove/internal/cloveconfig"
	"github.com/clove-kernel/clove/internal/dispatcher"
	"github.com/clove-kernel/clove/internal/eventbus"
	"github.com/clove-kernel/clove/internal/execlog"
	"github.com/clove-kernel/clove/internal/httpfetch"
	"github.com/clove-kernel/clove/internal/idgen"
	"github.com/clove-kernel/clove/internal/ipcserver"
	"github.com/clove-kernel/clove/internal/kv"
	"github.com/clove-kernel/clove/internal/llmproc"
	"github.com/clove-kernel/clove/internal/mailbox"
	"github.com/clove-kernel/clove/internal/metrics"
	"github.com/clove-kernel/clove/internal/reactor"
	"github.com/clove-kernel/clove/internal/supervisor"
	"github.com/clove-kernel/clove/internal/tunnel"
	"github.com/clove-kernel/clove/internal/wire"
	"github.com/clove-kernel/clove/internal/world"
)

// pollTimeoutMS matches the source kernel's 100ms reactor tick.
const pollTimeoutMS = 100

// Config gathers everything the kernel needs to start. It is filled
// from CLI flags overlaid onto cloveconfig.Settings, plus the
// environment-resolved LLM credentials.
type Config struct {
	SocketPath     string
	CgroupRoot     string
	WorldMountRoot string

	AuditMaxEntries int

	LLMCommand []string
	LLMAPIKey  string
	LLMModel   string

	Logger *slog.Logger
	Clock  clock.Clock
}

// FromSettings builds a Config from a resolved Settings file and the
// process's LLM environment. The restart-backoff and execution-log
// bound fields of Settings are not carried over here or read anywhere
// else: spawned agents take supervisor.DefaultConfig's restart values,
// and recordings take RECORD_START's max_entries or execlog's default.
func FromSettings(s cloveconfig.Settings, env cloveconfig.LLMEnv, logger *slog.Logger) Config {
	return Config{
		SocketPath:      s.SocketPath,
		CgroupRoot:      s.CgroupRoot,
		WorldMountRoot:  s.WorldMountRoot,
		AuditMaxEntries: s.AuditMaxEntries,
		LLMCommand:      []string{"python3", "-m", "clove.llm_helper"},
		LLMAPIKey:       env.APIKey,
		LLMModel:        env.Model,
		Logger:          logger,
	}
}

// Kernel owns every live subsystem. All fields are touched only from
// the goroutine that calls Run.
type Kernel struct {
	cfg    Config
	logger *slog.Logger
	clk    clock.Clock

	reactor      *reactor.Reactor
	shutdownPipe *reactor.ShutdownPipe
	ipc          *ipcserver.Server

	ids        *idgen.Generator
	supervisor *supervisor.Supervisor
	mailbox    *mailbox.Box
	kv         *kv.Store
	events     *eventbus.Bus
	auditLog   *audit.Log
	recorder   *execlog.Recorder
	player     *execlog.Player

	llm  *llmproc.Client
	http *httpfetch.Fetcher
	metr *metrics.Router
	wrld *world.Manager
	tun  *tunnel.Manager

	dispatcher *dispatcher.Dispatcher

	running bool
}

// New allocates a Kernel. Call Init before Run.
func New(cfg Config) *Kernel {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Kernel{cfg: cfg, logger: cfg.Logger, clk: cfg.Clock}
}

// sink adapts the event bus and audit log into the single EventSink
// the supervisor expects.
type sink struct {
	events *eventbus.Bus
	audit  *audit.Log
}

func (s sink) EmitLifecycle(eventType string, data map[string]any, sourceID uint32) {
	s.events.Emit(eventbus.EventType(eventType), data, sourceID)
}

func (s sink) AuditLifecycle(eventType string, agentID uint32, agentName string, success bool, details map[string]any) {
	s.audit.LogLifecycle(eventType, agentID, agentName, success, details)
}

// Init constructs every subsystem, opens the listening socket, and
// installs the signal-triggered shutdown path. Mirrors the source
// kernel's init(): reactor, socket server, signal handlers, in that
// order.
func (k *Kernel) Init() error {
	r, err := reactor.New(k.logger)
	if err != nil {
		return fmt.Errorf("kernel: reactor init: %w", err)
	}
	k.reactor = r

	k.ids = idgen.New()
	k.events = eventbus.New(k.clk)

	auditCfg := audit.DefaultConfig()
	if k.cfg.AuditMaxEntries > 0 {
		auditCfg.MaxEntries = k.cfg.AuditMaxEntries
	}
	k.auditLog = audit.New(auditCfg, k.clk)

	k.supervisor = supervisor.New(k.ids, k.cfg.CgroupRoot, sink{events: k.events, audit: k.auditLog}, k.clk, k.logger)
	k.mailbox = mailbox.New(k.clk)
	k.kv = kv.New(k.clk)
	k.recorder = execlog.NewRecorder(k.clk)
	k.player = execlog.NewPlayer()

	k.llm, err = llmproc.New(llmproc.Config{
		Command: k.cfg.LLMCommand,
		Model:   k.cfg.LLMModel,
		Logger:  k.logger,
	}, []byte(k.cfg.LLMAPIKey))
	if err != nil {
		return fmt.Errorf("kernel: llm client init: %w", err)
	}
	k.http = httpfetch.New(httpfetch.Config{})
	k.metr = metrics.New(k.supervisor)
	worldMountRoot := k.cfg.WorldMountRoot
	if worldMountRoot == "" {
		worldMountRoot = "/tmp/clove-worlds"
	}
	k.wrld = world.NewManager(worldMountRoot, k.clk)
	k.tun = tunnel.NewManager(k.events, k.clk, k.logger)

	k.dispatcher = dispatcher.New(k.logger)
	k.dispatcher.Supervisor = k.supervisor
	k.dispatcher.Mailbox = k.mailbox
	k.dispatcher.KV = k.kv
	k.dispatcher.Events = k.events
	k.dispatcher.Audit = k.auditLog
	k.dispatcher.Recorder = k.recorder
	k.dispatcher.Player = k.player
	k.dispatcher.LLM = k.llm
	k.dispatcher.HTTP = k.http
	k.dispatcher.Metrics = k.metr
	k.dispatcher.World = k.wrld
	k.dispatcher.Tunnel = k.tun

	k.ipc = ipcserver.New(k.cfg.SocketPath, k.reactor, k.ids, k.dispatch, k.logger)
	k.ipc.OnConnect(k.dispatcher.RegisterAgent)
	k.ipc.OnDisconnect(k.dispatcher.UnregisterAgent)
	if err := k.ipc.Listen(); err != nil {
		return fmt.Errorf("kernel: ipc listen: %w", err)
	}

	sp, err := reactor.NewShutdownPipe()
	if err != nil {
		return fmt.Errorf("kernel: shutdown pipe: %w", err)
	}
	k.shutdownPipe = sp
	if err := sp.Register(k.reactor, k.Shutdown); err != nil {
		return fmt.Errorf("kernel: registering shutdown pipe: %w", err)
	}

	k.logger.Info("kernel initialized",
		"socket_path", k.cfg.SocketPath,
		"cgroup_root", k.cfg.CgroupRoot,
		"world_mount_root", worldMountRoot,
		"llm_configured", k.llm.IsConfigured(),
	)
	return nil
}

// dispatch adapts the dispatcher's Dispatch method to the ipcserver.Handler shape.
func (k *Kernel) dispatch(ctx context.Context, frame wire.Frame) wire.Frame {
	return k.dispatcher.Dispatch(ctx, frame)
}

// Run drives the reactor loop until Shutdown is called. Every
// iteration polls for at most pollTimeoutMS, then reaps dead agents
// and advances any pending restarts, matching the source kernel's
// run() body exactly.
func (k *Kernel) Run(ctx context.Context) error {
	k.running = true
	k.logger.Info("clove kernel running", "socket_path", k.cfg.SocketPath)

	for k.running {
		if _, err := k.reactor.Poll(pollTimeoutMS); err != nil {
			return fmt.Errorf("kernel: reactor poll: %w", err)
		}
		k.supervisor.ReapAgents(ctx)
		k.supervisor.ProcessPendingRestarts(ctx)
	}

	k.logger.Info("kernel shutting down")
	k.supervisor.StopAll(5 * time.Second)
	if err := k.ipc.Close(); err != nil {
		k.logger.Warn("closing ipc server", "err", err)
	}
	k.logger.Info("kernel stopped")
	return nil
}

// Shutdown requests a graceful stop; the next reactor tick will exit
// the Run loop. Safe to call from the shutdown pipe's signal callback.
func (k *Kernel) Shutdown() {
	k.running = false
}

// Close releases resources that Run never reached because Init failed
// partway through, or because the process is exiting without ever
// calling Run.
func (k *Kernel) Close() error {
	if k.llm != nil {
		k.llm.Close()
	}
	if k.shutdownPipe != nil {
		k.shutdownPipe.Close()
	}
	if k.reactor != nil {
		return k.reactor.Close()
	}
	return nil
}

// SocketPath reports the path the kernel is (or will be) listening on.
func (k *Kernel) SocketPath() string { return k.cfg.SocketPath }
