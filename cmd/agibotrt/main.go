// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Command agibotrt is the C11 run glue: it assembles the shared
// registries, backends, and executors from the four-layer configuration
// engine (C8), drives the lifecycle orchestrator (C9) from PreInit
// through Shutdown, and translates the §6.1 CLI flags into orchestrator
// calls. Flag parsing uses github.com/spf13/cobra and
// github.com/spf13/pflag, grounded on tab-fuku/go.mod.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/backend/grpcbackend"
	"github.com/agibot-rt/agibotrt/internal/backend/httpbackend"
	"github.com/agibot-rt/agibotrt/internal/backend/local"
	"github.com/agibot-rt/agibotrt/internal/backend/monitortap"
	"github.com/agibot-rt/agibotrt/internal/backend/mqttbackend"
	"github.com/agibot-rt/agibotrt/internal/backend/natsbackend"
	"github.com/agibot-rt/agibotrt/internal/backend/shmbackend"
	"github.com/agibot-rt/agibotrt/internal/backend/tcpbackend"
	"github.com/agibot-rt/agibotrt/internal/backend/udpbackend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/config"
	"github.com/agibot-rt/agibotrt/internal/lifecycle"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/modulectx"
	"github.com/agibot-rt/agibotrt/internal/resource"
	"github.com/agibot-rt/agibotrt/internal/rpc"
	"github.com/agibot-rt/agibotrt/internal/task"
	"github.com/agibot-rt/agibotrt/internal/typeconv"
)

// flags mirrors spec.md §6.1 exactly: every default below matches the
// table there.
type flags struct {
	cfgFilePath          string
	processName          string
	deploymentFilePath   string
	noDumpCfgFile        bool
	dumpOnly             bool
	patchCfgFilePath     string
	registerSignal       bool
	ignorePredefinedCfg  bool
	shutdownAfterSeconds int
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is main's testable body: it returns the process exit code rather
// than calling os.Exit directly, per spec.md §6.1 ("Exit code 0 on clean
// run; -1 on caught exception during Initialize/Start").
func run(args []string) int {
	var f flags
	code := 0

	cmd := &cobra.Command{
		Use:           "agibotrt",
		Short:         "agibotrt runtime core run glue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			c, err := runWithFlags(cmd.Context(), f)
			code = c
			return err
		},
	}
	cmd.Flags().StringVar(&f.cfgFilePath, "cfg_file_path", "", "Path to user YAML, merged after code defaults")
	cmd.Flags().StringVar(&f.processName, "process_name", "", "Overrides process identity; $EM_APP_NAME wins over it")
	cmd.Flags().StringVar(&f.deploymentFilePath, "deployment_file_path", "../config/deployment/deployment.yaml", "Topology file")
	cmd.Flags().BoolVar(&f.noDumpCfgFile, "no_dump_cfg_file", false, "Suppress writing .dump")
	cmd.Flags().BoolVar(&f.dumpOnly, "dump_only", false, "Write .dump then exit(0)")
	cmd.Flags().StringVar(&f.patchCfgFilePath, "patch_cfg_file_path", "", "Comma-separated YAML patches, applied after --cfg_file_path")
	cmd.Flags().BoolVar(&f.registerSignal, "register_signal", true, "Install SIGINT/SIGTERM -> graceful shutdown")
	cmd.Flags().BoolVar(&f.ignorePredefinedCfg, "ignore_predefined_cfg", false, "Skip code-defined config layer")
	cmd.Flags().IntVar(&f.shutdownAfterSeconds, "shutdown_after_seconds", 0, "If >0, schedules Shutdown() after N seconds")

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		logging.Error().Err(err).Msg("agibotrt: fatal error")
		if code == 0 {
			code = -1
		}
	}
	return code
}

// runWithFlags resolves the process name, loads the merged configuration,
// handles --dump_only/--no_dump_cfg_file, assembles the runtime's shared
// state, and drives the orchestrator through Run and Shutdown.
func runWithFlags(ctx context.Context, f flags) (int, error) {
	logging.Init(logging.DefaultConfig())

	processName := f.processName
	if v := os.Getenv("EM_APP_NAME"); v != "" {
		processName = v
	}

	cfg, merged, err := config.Load(config.LoadOptions{
		CfgFilePath:         f.cfgFilePath,
		PatchCfgFilePaths:   []string{f.patchCfgFilePath},
		IgnorePredefinedCfg: f.ignorePredefinedCfg,
	})
	if err != nil {
		return -1, fmt.Errorf("load configuration: %w", err)
	}
	if processName != "" {
		cfg.ProcessName = processName
	}

	// The merged configuration is assembled entirely in memory (no scratch
	// file ever hits disk the way the original's patch tooling used one),
	// so the only file this writes is the user-facing ".dump" artifact
	// itself, which persists after exit — there is nothing left over to
	// clean up.
	if !f.noDumpCfgFile {
		dumpPath := config.DumpPath(f.cfgFilePath)
		if err := os.WriteFile(dumpPath, merged, 0o644); err != nil {
			return -1, fmt.Errorf("write config dump: %w", err)
		}
	}
	if f.dumpOnly {
		return 0, nil
	}

	runCtx := ctx
	var stopSignals context.CancelFunc
	if f.registerSignal {
		runCtx, stopSignals = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stopSignals()
	}

	types := typeconv.NewRegistry()
	channels := channel.NewRegistry()
	rpcs := rpc.NewRegistry()

	executors := buildExecutors(cfg)
	backends, err := buildBackends(cfg, channels, rpcs)
	if err != nil {
		return -1, fmt.Errorf("build backends: %w", err)
	}

	res := resource.NewManager()
	newCtx := func(name string, contextID uint64) *modulectx.Context {
		return modulectx.New(name, res, types, channels, rpcs, executors, backends)
	}

	orch := lifecycle.New(res, newCtx)
	for _, b := range backends {
		orch.RegisterBackend(b)
	}

	if f.shutdownAfterSeconds > 0 {
		timer := time.AfterFunc(time.Duration(f.shutdownAfterSeconds)*time.Second, func() {
			_ = orch.Shutdown(context.Background())
		})
		defer timer.Stop()
	}

	runErr := orch.Run(runCtx, lifecycle.ModuleConfigs{})
	if runErr != nil {
		return -1, fmt.Errorf("orchestrator run failed: %w", runErr)
	}

	if f.registerSignal {
		<-runCtx.Done()
	}

	if err := orch.Shutdown(context.Background()); err != nil {
		return -1, fmt.Errorf("orchestrator shutdown failed: %w", err)
	}
	return 0, nil
}

// buildExecutors constructs one task.Executor per cfg.Executor.Executors
// entry, keyed by name, the set module contexts look up via InitExecutor.
func buildExecutors(cfg *config.Config) map[string]task.Executor {
	executors := make(map[string]task.Executor, len(cfg.Executor.Executors))
	for _, e := range cfg.Executor.Executors {
		switch e.Type {
		case "thread_pool":
			n := e.ThreadNum
			if n <= 0 {
				n = 1
			}
			executors[e.Name] = task.NewThreadPool(e.Name, n, 256)
		case "strand":
			executors[e.Name] = task.NewStrand(e.Name)
		case "time_wheel":
			tick := time.Duration(e.TimeoutAlarmIntervalMs) * time.Millisecond
			if tick <= 0 {
				tick = 10 * time.Millisecond
			}
			executors[e.Name] = task.NewTimeWheel(e.Name, tick)
		default: // "single_thread" and anything unrecognized
			executors[e.Name] = task.NewSingleThread(e.Name, 256)
		}
	}
	return executors
}

// buildBackends constructs, initializes, and binds one backend.Backend per
// cfg.Channel.Backends entry, keyed by name (== Type, matching spec.md's
// one-instance-per-type assumption for the channel registry's backend
// set).
func buildBackends(cfg *config.Config, channels *channel.Registry, rpcs *rpc.Registry) (map[string]backend.Backend, error) {
	backends := make(map[string]backend.Backend, len(cfg.Channel.Backends))
	for _, b := range cfg.Channel.Backends {
		impl, err := newBackendByType(b.Type)
		if err != nil {
			return nil, err
		}
		impl.SetChannelRegistry(channels)
		impl.SetRpcRegistry(rpcs)
		if err := impl.Initialize(b.Options); err != nil {
			return nil, fmt.Errorf("initialize backend %s: %w", b.Type, err)
		}
		backends[impl.Name()] = impl
	}

	for _, t := range cfg.Channel.PubTopicsOptions {
		if err := channels.AddPublishRule(t.TopicName, t.EnableBackends); err != nil {
			return nil, fmt.Errorf("pub_topics_options %s: %w", t.TopicName, err)
		}
	}
	for _, t := range cfg.Channel.SubTopicsOptions {
		if err := channels.AddSubscribeRule(t.TopicName, t.EnableBackends); err != nil {
			return nil, fmt.Errorf("sub_topics_options %s: %w", t.TopicName, err)
		}
	}
	for _, m := range cfg.Rpc.ClientsOptions {
		if err := rpcs.AddClientRule(m.FuncName, m.EnableBackends); err != nil {
			return nil, fmt.Errorf("rpc clients_options %s: %w", m.FuncName, err)
		}
	}
	for _, m := range cfg.Rpc.ServersOptions {
		if err := rpcs.AddServerRule(m.FuncName, m.EnableBackends); err != nil {
			return nil, fmt.Errorf("rpc servers_options %s: %w", m.FuncName, err)
		}
	}

	return backends, nil
}

func newBackendByType(t string) (backend.Backend, error) {
	switch t {
	case "local":
		return local.New(), nil
	case "mqtt":
		return mqttbackend.New(), nil
	case "nats":
		return natsbackend.New(), nil
	case "grpc":
		return grpcbackend.New(), nil
	case "http":
		return httpbackend.New(), nil
	case "tcp":
		return tcpbackend.New(), nil
	case "udp":
		return udpbackend.New(), nil
	case "shm":
		return shmbackend.New(), nil
	case "monitor":
		return monitortap.New(), nil
	default:
		return nil, fmt.Errorf("unknown channel backend type %q", t)
	}
}
