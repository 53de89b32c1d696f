// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes the restart policy every supervisor in the tree
// shares. Zero-valued fields are replaced by DefaultTreeConfig's values
// in NewSupervisorTree, so a caller only needs to set what it wants to
// override.
type TreeConfig struct {
	// FailureThreshold is how many failures, decayed per FailureDecay,
	// a supervisor tolerates before it starts backing off restarts.
	FailureThreshold float64
	// FailureDecay is the half-life, in seconds, of the failure count.
	FailureDecay float64
	// FailureBackoff is how long a supervisor waits once FailureThreshold
	// is crossed before it resumes restarting its children.
	FailureBackoff time.Duration
	// ShutdownTimeout bounds how long Serve waits for children to exit
	// once its context is canceled.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's own package defaults (see
// suture.Spec's doc comment), so a tree built with these values restarts
// failing services the same way an unconfigured suture.Supervisor would.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5.0
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = 30.0
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

func (c TreeConfig) spec() suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree is the three-layer suture tree internal/lifecycle runs
// every supervised goroutine under, once orchestration moves past the
// Init boundary: backend holds one service per configured wire backend
// and module holds one service per running module context. core takes
// whatever AddCoreService is given; internal/lifecycle adds nothing to
// it, and the executors in internal/task run outside the tree. A panic or repeated failure in one
// backend's Start loop is contained to the backend layer and never takes
// down a module's context or another backend's traffic.
type SupervisorTree struct {
	root    *suture.Supervisor
	core    *suture.Supervisor
	backend *suture.Supervisor
	module  *suture.Supervisor
	logger  *slog.Logger
	config  TreeConfig
}

// NewSupervisorTree builds the root supervisor and its three layers,
// routing suture's internal events through logger via sutureslog so a
// restart/backoff decision shows up in the same structured log stream as
// everything else the runtime emits.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()

	// sutureslog's exported constructor is (&Handler{Logger: ...}).MustHook,
	// not a package-level EventHook function.
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	rootSpec := config.spec()
	rootSpec.EventHook = hook
	layerSpec := config.spec()

	root := suture.New("agibotrt", rootSpec)
	core := suture.New("core-layer", layerSpec)
	backend := suture.New("backend-layer", layerSpec)
	module := suture.New("module-layer", layerSpec)

	root.Add(core)
	root.Add(backend)
	root.Add(module)

	return &SupervisorTree{
		root:    root,
		core:    core,
		backend: backend,
		module:  module,
		logger:  logger,
		config:  config,
	}, nil
}

// Root returns the root supervisor, for callers that need suture's own
// API beyond what this type exposes (e.g. a direct UnstoppedServiceReport
// on a sub-supervisor).
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddCoreService adds svc to the core layer. Nothing in internal/lifecycle
// calls it.
func (t *SupervisorTree) AddCoreService(svc suture.Service) suture.ServiceToken {
	return t.core.Add(svc)
}

// AddBackendService adds svc to the backend layer. internal/lifecycle
// calls this once per registered backend during startSupervisorTree,
// wrapping each backend.Backend in a newBackendService adapter.
func (t *SupervisorTree) AddBackendService(svc suture.Service) suture.ServiceToken {
	return t.backend.Add(svc)
}

// AddModuleService adds svc to the module layer. internal/lifecycle
// calls this once per started module during startModules, wrapping each
// module.Module/modulectx.Context pair in a newModuleService adapter.
func (t *SupervisorTree) AddModuleService(svc suture.Service) suture.ServiceToken {
	return t.module.Add(svc)
}

// RemoveModuleService stops and removes a single module-layer service
// without tearing down the rest of the tree.
func (t *SupervisorTree) RemoveModuleService(token suture.ServiceToken) error {
	return t.module.Remove(token)
}

// Remove stops and removes a service by its token through the root
// supervisor. Only tokens of services added to the root directly are
// accepted; a token from AddCoreService, AddBackendService or
// AddModuleService belongs to a layer supervisor and is rejected by
// suture.
func (t *SupervisorTree) Remove(token suture.ServiceToken) error {
	return t.root.Remove(token)
}

// RemoveAndWait behaves like Remove (with the same root-only token
// limit) but blocks until the service has fully stopped or timeout
// elapses.
func (t *SupervisorTree) RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error {
	return t.root.RemoveAndWait(token, timeout)
}

// Serve runs the tree in the foreground until ctx is canceled or a
// non-restartable failure propagates to the root.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree on its own goroutine and returns a
// channel that receives its terminal error (nil on clean shutdown).
// internal/lifecycle.startSupervisorTree uses this so Run can keep
// driving the lifecycle fsm's remaining phases while the tree serves.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services still running after a Serve
// call's context was canceled and ShutdownTimeout elapsed — diagnostic
// output for a stuck backend or module that ignored its Shutdown/
// OnShutdown deadline.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
