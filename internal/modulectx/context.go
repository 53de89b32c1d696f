// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package modulectx implements the C4 module context: the operator
// surface (pub/sub/cli/srv/exe/log/check/raise/InitExecutor) every user
// module receives. Generic Init* operations are package-level functions
// (InitPublisher, InitSubscriber, InitClient, InitServer) rather than
// generic methods, since Go methods cannot introduce their own type
// parameters; the receiver (*Context) plays the role of the spec's
// pub()/sub()/cli()/srv() façades.
package modulectx

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/resource"
	"github.com/agibot-rt/agibotrt/internal/rpc"
	"github.com/agibot-rt/agibotrt/internal/task"
	"github.com/agibot-rt/agibotrt/internal/typeconv"
)

// Phase tracks where the owning module sits in the lifecycle orchestrator
// (C9). Init* operations are legal only in Configuring/Initializing;
// Publish/Call are legal only from Started onward.
type Phase int

const (
	PhaseUnconfigured Phase = iota
	PhaseConfiguring
	PhaseInitializing
	PhaseInitialized
	PhaseStarted
	PhaseShuttingDown
)

// Context is the per-module operator surface bound to the runtime's shared
// registries and backend set. One Context exists per module instance.
type Context struct {
	moduleName string

	mu     sync.RWMutex
	phase  Phase
	ok     atomic.Bool
	logger *logging.EventLogger

	resources *resource.Manager
	types     *typeconv.Registry
	channels  *channel.Registry
	rpcs      *rpc.Registry
	executors map[string]task.Executor
	backends  map[string]backend.Backend
}

// New returns a Context bound to the given shared runtime state. Shared
// state (registries, backends, executors) is built once per process and
// handed to every module's Context.
func New(moduleName string, resources *resource.Manager, types *typeconv.Registry, channels *channel.Registry, rpcs *rpc.Registry, executors map[string]task.Executor, backends map[string]backend.Backend) *Context {
	return &Context{
		moduleName: moduleName,
		phase:      PhaseUnconfigured,
		logger:     logging.NewEventLoggerWithLogger(logging.WithComponent(moduleName)),
		resources:  resources,
		types:      types,
		channels:   channels,
		rpcs:       rpcs,
		executors:  executors,
		backends:   backends,
	}
}

// Name returns the owning module's name.
func (c *Context) Name() string { return c.moduleName }

// SetPhase advances the context's lifecycle phase, called by the
// orchestrator (C9) at each phase transition it drives this module
// through.
func (c *Context) SetPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = p
	if p == PhaseStarted {
		c.ok.Store(true)
	}
	if p == PhaseShuttingDown {
		c.ok.Store(false)
	}
}

func (c *Context) phaseSnapshot() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Ok reports whether Publish/Call are currently legal: true from
// PhaseStarted onward until Shutdown begins. User loops poll this the same
// way they would poll an AsyncScope.
func (c *Context) Ok() bool {
	return c.ok.Load()
}

func (c *Context) requireInitPhase(op string) error {
	p := c.phaseSnapshot()
	if p != PhaseConfiguring && p != PhaseInitializing {
		return fmt.Errorf("modulectx: %s: %s is only legal between OnConfigure and the end of OnInitialize (current phase %d)", c.moduleName, op, p)
	}
	return nil
}

func (c *Context) requireRunning(op string) error {
	if !c.Ok() {
		return fmt.Errorf("modulectx: %s: %s is only legal from OnStart until shutdown begins", c.moduleName, op)
	}
	return nil
}

// Log returns the module's structured event logger, the ctx::log()
// operator.
func (c *Context) Log() *logging.EventLogger {
	return c.logger
}

// Check logs a warning if cond is false and returns cond unchanged, the
// ctx::check() conditional-logging operator; callers chain .ErrorThrow()
// semantics explicitly by checking the returned bool themselves, since Go
// has no implicit throw.
func (c *Context) Check(cond bool, msg string, fields ...interface{}) bool {
	if !cond {
		event := c.logger.WithFields(fieldPairs(fields))
		event.Warn(msg)
	}
	return cond
}

// Raise logs msg at error level with the caller's source location
// attached and returns an error the caller should propagate/panic with,
// the ctx::raise() operator.
func (c *Context) Raise(msg string, fields ...interface{}) error {
	_, file, line, _ := runtime.Caller(1)
	loc := fmt.Sprintf("%s:%d", file, line)
	withLoc := append(append([]interface{}{}, fields...), "location", loc)
	c.logger.WithFields(fieldPairs(withLoc)).Error(msg)
	return fmt.Errorf("%s (%s)", msg, loc)
}

func fieldPairs(fields []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		m[key] = fields[i+1]
	}
	return m
}

// ExecutorHandle is the bound descriptor InitExecutor returns: a resource
// reference to a named executor plus its thread-safety predicate.
type ExecutorHandle struct {
	Descriptor resource.Descriptor
	executor   task.Executor
}

// ThreadSafe reports whether the executor accepts concurrent Post calls
// without external synchronization.
func (h ExecutorHandle) ThreadSafe() bool { return h.executor.ThreadSafe() }

// InitExecutor looks up a configured executor by name. A missing executor
// is fatal: the caller's module Init should treat the returned error as a
// reason to abort (OnInitialize returning false).
func (c *Context) InitExecutor(name string) (ExecutorHandle, error) {
	if err := c.requireInitPhase("InitExecutor"); err != nil {
		return ExecutorHandle{}, err
	}
	e, ok := c.executors[name]
	if !ok {
		return ExecutorHandle{}, c.Raise("missing executor", "name", name)
	}
	d := resource.New(resource.KindExecutor, name)
	d = c.resources.Bind(d, c.resources.NewContextID())
	return ExecutorHandle{Descriptor: d, executor: e}, nil
}

// Exe returns the scoped on-executor façade for res, the ctx::exe(res)
// operator: Post/Inline run work on the named executor, and SubscribeOn
// (defined alongside Channel) rebinds a subscriber callback to run there
// instead of on the delivering backend thread. There is no executor
// variant for RPC handlers; ServeInline always runs a handler on the
// delivering backend goroutine.
func (c *Context) Exe(res ExecutorHandle) *ExecutorFacade {
	return &ExecutorFacade{executor: res.executor}
}

// ExecutorFacade is the value ctx::exe(res) returns.
type ExecutorFacade struct {
	executor task.Executor
}

// Post schedules fn to run asynchronously on the bound executor.
func (f *ExecutorFacade) Post(fn func(ctx context.Context)) {
	f.executor.Post(fn)
}

// Inline runs fn synchronously on the calling goroutine with the
// executor's ThreadContext installed.
func (f *ExecutorFacade) Inline(ctx context.Context, fn func(ctx context.Context)) {
	f.executor.Inline(ctx, fn)
}
