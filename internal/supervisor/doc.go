// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

/*
Package supervisor provides the process-supervision half of the lifecycle
orchestrator (spec component C9) using suture v4.

The runtime core drives a phased state machine (see internal/lifecycle) but
the goroutines that actually carry out the Start phase — the wire backends
and the per-module contexts — are supervised here so that a crash in one
does not take the process down. The core layer is open to executor
services through AddCoreService; internal/lifecycle adds none.

# Overview

The supervisor tree organizes services into three layers for failure isolation:

	RootSupervisor ("agibotrt")
	├── CoreSupervisor ("core-layer")
	│   └── services added via AddCoreService (none by internal/lifecycle)
	├── BackendSupervisor ("backend-layer")
	│   └── one service per configured wire backend (local, mqtt, nats, grpc, http, tcp, udp, shm, monitor)
	└── ModuleSupervisor ("module-layer")
	    └── one service per user module context

This hierarchy ensures that:
  - A crash in one backend doesn't affect another backend's traffic
  - Module crashes don't impact the backend layer
  - Each layer can restart independently

# Key Features

Automatic Restart:
  - Crashed services are automatically restarted
  - A fixed FailureBackoff pause, once FailureThreshold is crossed, prevents restart storms
  - Configurable failure thresholds and decay rates

Graceful Shutdown:
  - Canceling the serve context makes each service run its own Shutdown/OnShutdown; internal/lifecycle cancels it during its Shutdown phase
  - Configurable shutdown timeout per service
  - UnstoppedServiceReport for debugging hangs

Structured Logging:
  - Integration with slog for structured events
  - Logs service starts, stops, failures, and restarts
  - Event hooks via sutureslog adapter

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    log.Fatal(err)
	}

	tree.AddBackendService(backendSvc) // a suture.Service wrapping one wire backend
	tree.AddModuleService(moduleSvc)   // a suture.Service wrapping one module context

	if err := tree.Serve(ctx); err != nil {
	    log.Printf("supervisor stopped: %v", err)
	}

# Configuration

The TreeConfig controls restart behavior; defaults match suture's
production-ready defaults (FailureThreshold 5, FailureDecay 30s,
FailureBackoff 15s, ShutdownTimeout 10s).

# Service Interface

All services must implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: service stopped cleanly, will not be restarted
  - Return error: service crashed, will be restarted
  - Context canceled: shutdown requested, return promptly

# See Also

  - github.com/thejerf/suture/v4: underlying library
  - internal/lifecycle: phase state machine driving this tree
*/
package supervisor
