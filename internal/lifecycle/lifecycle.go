// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package lifecycle implements the C9 orchestrator: the phased state
// machine (PreInit -> Init* -> PostInit -> PreStart -> Start* -> PostStart
// -> PreShutdown -> Shutdown* -> PostShutdown) driving every module and
// backend through startup and teardown. A github.com/looplab/fsm state
// machine enforces the named top-level phase transitions and fires
// registered hooks at each boundary, grounded on
// tab-fuku/internal/app/ui/services/state.go; the ordered sub-phase
// categories within Init/Start/Shutdown are a plain ordered loop rather
// than additional fsm states, since fsm models discrete named states well
// but the category list is a fixed, always-fully-walked sequence with no
// independent transitions of its own.
//
// Once the orchestrator reaches Start, backend and module goroutines run
// under a github.com/thejerf/suture/v4 supervisor tree
// (internal/supervisor.SupervisorTree) rather than being driven by direct
// calls: each is wrapped as a suture.Service the way
// internal/supervisor/services/nats_service.go wraps NATSComponentsRunner,
// so a backend or module crash is isolated and retried by suture's backoff
// policy instead of taking the whole process down.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/thejerf/suture/v4"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/module"
	"github.com/agibot-rt/agibotrt/internal/modulectx"
	"github.com/agibot-rt/agibotrt/internal/resource"
	"github.com/agibot-rt/agibotrt/internal/supervisor"
)

// ContextFactory builds the per-module operator surface handed to
// OnInitialize, once the module's resources have been bound to
// contextID. The caller (cmd/agibotrt) supplies this, since building a
// *modulectx.Context requires the shared registries and backend set
// assembled outside the orchestrator.
type ContextFactory func(moduleName string, contextID uint64) *modulectx.Context

// Phase names the top-level states the orchestrator's fsm moves through.
const (
	PhasePreInit      = "preinit"
	PhaseInit         = "init"
	PhasePostInit     = "postinit"
	PhasePreStart     = "prestart"
	PhaseStart        = "start"
	PhasePostStart    = "poststart"
	PhasePreShutdown  = "preshutdown"
	PhaseShutdown     = "shutdown"
	PhasePostShutdown = "postshutdown"
)

const advance = "advance"

// Category is one of the eleven named sub-systems driven, in order, within
// the Init/Start/Shutdown phases (reverse order for Shutdown).
type Category string

const (
	CategoryConfigurator Category = "Configurator"
	CategoryPlugin       Category = "Plugin"
	CategoryMainThread   Category = "MainThread"
	CategoryGuardThread  Category = "GuardThread"
	CategoryExecutor     Category = "Executor"
	CategoryLog          Category = "Log"
	CategoryAllocator    Category = "Allocator"
	CategoryRpc          Category = "Rpc"
	CategoryChannel      Category = "Channel"
	CategoryParameter    Category = "Parameter"
	CategoryModules      Category = "Modules"
)

// categoryOrder is the Init/Start order; Shutdown walks it in reverse.
var categoryOrder = []Category{
	CategoryConfigurator, CategoryPlugin, CategoryMainThread, CategoryGuardThread,
	CategoryExecutor, CategoryLog, CategoryAllocator, CategoryRpc, CategoryChannel,
	CategoryParameter, CategoryModules,
}

// Hook runs at a phase boundary or within a named category. A non-nil
// error aborts startup and triggers a reverse-walk teardown through the
// phases already entered.
type Hook func(ctx context.Context) error

type hookKey struct {
	phase    string
	category Category
}

// Orchestrator drives modules and backends through the lifecycle phases.
// Hooks are registered in advance (during process wiring, before Run is
// called) and fire in registration order at their phase/category.
type Orchestrator struct {
	fsm    *fsm.FSM
	log    *logging.EventLogger
	res    *resource.Manager
	newCtx ContextFactory

	hooks map[hookKey][]Hook

	modules        []module.Module
	moduleContexts map[string]*modulectx.Context
	backends       []backend.Backend

	tree           *supervisor.SupervisorTree
	treeCancel     context.CancelFunc
	treeDone       <-chan error
	backendsInTree bool
	moduleTokens   map[string]suture.ServiceToken
}

// New returns an orchestrator in PhasePreInit, bound to res for
// per-module resource binding during the Modules category of Init.
func New(res *resource.Manager, newCtx ContextFactory) *Orchestrator {
	tree, _ := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	o := &Orchestrator{
		res:            res,
		newCtx:         newCtx,
		log:            logging.NewEventLoggerWithLogger(logging.WithComponent("lifecycle")),
		hooks:          make(map[hookKey][]Hook),
		moduleContexts: make(map[string]*modulectx.Context),
		tree:           tree,
		moduleTokens:   make(map[string]suture.ServiceToken),
	}
	o.fsm = fsm.NewFSM(PhasePreInit, fsm.Events{
		{Name: advance, Src: []string{PhasePreInit}, Dst: PhaseInit},
		{Name: advance, Src: []string{PhaseInit}, Dst: PhasePostInit},
		{Name: advance, Src: []string{PhasePostInit}, Dst: PhasePreStart},
		{Name: advance, Src: []string{PhasePreStart}, Dst: PhaseStart},
		{Name: advance, Src: []string{PhaseStart}, Dst: PhasePostStart},
		{Name: advance, Src: []string{PhasePostStart}, Dst: PhasePreShutdown},
		{Name: advance, Src: []string{PhasePreShutdown}, Dst: PhaseShutdown},
		{Name: advance, Src: []string{PhaseShutdown}, Dst: PhasePostShutdown},
	}, fsm.Callbacks{})
	return o
}

// RegisterBoundaryHook registers h to run at one of the six boundary
// phases (PreInit, PostInit, PreStart, PostStart, PreShutdown,
// PostShutdown), which have no sub-phase categories.
func (o *Orchestrator) RegisterBoundaryHook(phase string, h Hook) {
	k := hookKey{phase: phase}
	o.hooks[k] = append(o.hooks[k], h)
}

// RegisterCategoryHook registers h to run during category, within the
// Init, Start, or Shutdown phase.
func (o *Orchestrator) RegisterCategoryHook(phase string, category Category, h Hook) {
	k := hookKey{phase: phase, category: category}
	o.hooks[k] = append(o.hooks[k], h)
}

// RegisterModule adds m to the module-driving sequence run during Init's
// Modules category.
func (o *Orchestrator) RegisterModule(m module.Module) {
	o.modules = append(o.modules, m)
}

// RegisterBackend adds b to the backend set that Run starts under the
// supervisor tree on entering Start, and that teardown shuts down.
func (o *Orchestrator) RegisterBackend(b backend.Backend) {
	o.backends = append(o.backends, b)
}

// Current reports the orchestrator's current top-level phase.
func (o *Orchestrator) Current() string { return o.fsm.Current() }

// configs maps module name to its slice of the merged configuration,
// supplied by the caller (cmd/agibotrt) before Run.
type ModuleConfigs map[string]map[string]interface{}

// reverseCategories returns categoryOrder reversed, the order Shutdown
// walks its sub-phases in.
func reverseCategories() []Category {
	out := make([]Category, len(categoryOrder))
	for i, c := range categoryOrder {
		out[len(categoryOrder)-1-i] = c
	}
	return out
}

// Run drives the orchestrator from PreInit through PostStart. A hook
// error at any point aborts the remaining forward phases and performs a
// reverse-walk teardown through every phase already entered, matching
// spec.md §7's Configuration/Misuse propagation. Run returns the error
// that triggered teardown, or nil on a clean reach of PostStart.
func (o *Orchestrator) Run(ctx context.Context, cfgs ModuleConfigs) error {
	if err := o.enterBoundary(ctx, PhasePreInit); err != nil {
		return err
	}
	if err := o.advanceTo(ctx, PhaseInit); err != nil {
		return o.teardown(ctx, err)
	}
	if err := o.runCategories(ctx, PhaseInit, categoryOrder, cfgs); err != nil {
		return o.teardown(ctx, err)
	}
	if err := o.advanceTo(ctx, PhasePostInit); err != nil {
		return o.teardown(ctx, err)
	}
	if err := o.enterBoundary(ctx, PhasePostInit); err != nil {
		return o.teardown(ctx, err)
	}

	if err := o.advanceTo(ctx, PhasePreStart); err != nil {
		return o.teardown(ctx, err)
	}
	if err := o.enterBoundary(ctx, PhasePreStart); err != nil {
		return o.teardown(ctx, err)
	}
	if err := o.advanceTo(ctx, PhaseStart); err != nil {
		return o.teardown(ctx, err)
	}
	o.startSupervisorTree()
	if err := o.runCategories(ctx, PhaseStart, categoryOrder, cfgs); err != nil {
		return o.teardown(ctx, err)
	}
	if err := o.advanceTo(ctx, PhasePostStart); err != nil {
		return o.teardown(ctx, err)
	}
	if err := o.enterBoundary(ctx, PhasePostStart); err != nil {
		return o.teardown(ctx, err)
	}
	return nil
}

// Shutdown drives the orchestrator from wherever Run left it through
// PostShutdown, walking categories in reverse order. Safe to call even if
// Run never reached PostStart.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.teardown(ctx, nil)
}

func (o *Orchestrator) advanceTo(ctx context.Context, target string) error {
	if o.fsm.Current() == target {
		return nil
	}
	if err := o.fsm.Event(ctx, advance); err != nil {
		return fmt.Errorf("lifecycle: advance to %s: %w", target, err)
	}
	return nil
}

func (o *Orchestrator) enterBoundary(ctx context.Context, phase string) error {
	for _, h := range o.hooks[hookKey{phase: phase}] {
		if err := h(ctx); err != nil {
			return fmt.Errorf("lifecycle: %s hook: %w", phase, err)
		}
	}
	return nil
}

func (o *Orchestrator) runCategories(ctx context.Context, phase string, order []Category, cfgs ModuleConfigs) error {
	for _, cat := range order {
		for _, h := range o.hooks[hookKey{phase: phase, category: cat}] {
			if err := h(ctx); err != nil {
				return fmt.Errorf("lifecycle: %s/%s hook: %w", phase, cat, err)
			}
		}
		if phase == PhaseInit && cat == CategoryModules {
			if err := o.driveModules(ctx, cfgs); err != nil {
				return err
			}
		}
		if phase == PhaseStart && cat == CategoryModules {
			if err := o.startModules(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// driveModules runs the spec's module-driving sequence: OnConfigure,
// then bind every declared resource, then OnInitialize. OnInitialize
// returning false aborts the process exactly as a hook error would.
func (o *Orchestrator) driveModules(ctx context.Context, cfgs ModuleConfigs) error {
	for _, m := range o.modules {
		info := m.Info()
		if err := m.OnConfigure(cfgs[info.Name]); err != nil {
			return fmt.Errorf("lifecycle: module %s OnConfigure: %w", info.Name, err)
		}
		contextID := o.res.NewContextID()
		for _, d := range m.DeclaredResources() {
			o.res.Bind(d, contextID)
		}
		mctx := o.newCtx(info.Name, contextID)
		mctx.SetPhase(modulectx.PhaseInitializing)
		if !m.OnInitialize(mctx) {
			return fmt.Errorf("lifecycle: module %s OnInitialize returned false", info.Name)
		}
		mctx.SetPhase(modulectx.PhaseInitialized)
		o.moduleContexts[info.Name] = mctx
	}
	return nil
}

// startSupervisorTree brings up the module-layer supervisor and adds every
// registered backend as a backend-layer service, running each backend's
// Start under suture's supervision for the remainder of the process.
// Idempotent: a second call (e.g. Run invoked twice) is a no-op.
func (o *Orchestrator) startSupervisorTree() {
	if o.treeCancel != nil {
		return
	}
	treeCtx, cancel := context.WithCancel(context.Background())
	o.treeCancel = cancel
	for _, b := range o.backends {
		o.tree.AddBackendService(newBackendService(b))
	}
	o.backendsInTree = true
	o.treeDone = o.tree.ServeBackground(treeCtx)
}

// stopSupervisorTree cancels the supervisor tree's serve context, which
// causes every backendService/moduleService to run its Shutdown/OnShutdown
// and return, then waits (bounded by serviceShutdownTimeout plus one
// second) for the tree to report it has fully stopped.
func (o *Orchestrator) stopSupervisorTree() {
	if o.treeCancel == nil {
		return
	}
	o.treeCancel()
	select {
	case err := <-o.treeDone:
		if err != nil {
			o.log.Error("lifecycle: supervisor tree stopped with error", "error", err.Error())
		}
	case <-time.After(serviceShutdownTimeout + time.Second):
		o.log.Error("lifecycle: supervisor tree did not stop within timeout")
	}
}

// startModules runs during the Start phase's Modules category: each
// module's context is bound and wrapped as a suture.Service added to the
// supervisor tree's module layer, which calls OnStart immediately.
func (o *Orchestrator) startModules(ctx context.Context) error {
	for _, m := range o.modules {
		info := m.Info()
		mctx, ok := o.moduleContexts[info.Name]
		if !ok {
			continue
		}
		token := o.tree.AddModuleService(newModuleService(m, mctx))
		o.moduleTokens[info.Name] = token
	}
	return nil
}

// teardown runs the PreShutdown hooks, the Shutdown category hooks in
// reverse category order, module OnShutdown (in reverse registration
// order) and backend Shutdown for anything not on the supervisor tree,
// then drives the fsm to PostShutdown and runs its hooks. cause is
// returned unchanged; hook and shutdown failures during teardown are
// logged, not returned.
func (o *Orchestrator) teardown(ctx context.Context, cause error) error {
	// Teardown may be entered from any phase (an early hook failure skips
	// straight past the forward-only advance transitions), so the fsm
	// state is forced directly rather than driven by further advance
	// events.
	o.fsm.SetState(PhasePreShutdown)
	if err := o.enterBoundary(ctx, PhasePreShutdown); err != nil {
		o.log.Error("lifecycle: PreShutdown hook failed during teardown", "error", err.Error())
	}
	o.fsm.SetState(PhaseShutdown)

	// Canceling the tree's serve context runs every backendService's and
	// moduleService's own Shutdown/OnShutdown call before this returns, so
	// anything added to the tree is already torn down by the time the
	// category loop below runs; only modules/backends that never made it
	// onto the tree (a failure before Start was reached) need the direct
	// calls that follow.
	o.stopSupervisorTree()

	for _, cat := range reverseCategories() {
		for _, h := range o.hooks[hookKey{phase: PhaseShutdown, category: cat}] {
			if err := h(ctx); err != nil {
				o.log.Error("lifecycle: shutdown hook failed", "category", string(cat), "error", err.Error())
			}
		}
		if cat == CategoryModules {
			for i := len(o.modules) - 1; i >= 0; i-- {
				m := o.modules[i]
				info := m.Info()
				if _, onTree := o.moduleTokens[info.Name]; onTree {
					continue
				}
				if mctx, ok := o.moduleContexts[info.Name]; ok {
					mctx.SetPhase(modulectx.PhaseShuttingDown)
				}
				if err := m.OnShutdown(ctx); err != nil {
					o.log.Error("lifecycle: module shutdown failed", "module", info.Name, "error", err.Error())
				}
			}
		}
	}
	if !o.backendsInTree {
		for i := len(o.backends) - 1; i >= 0; i-- {
			b := o.backends[i]
			if err := b.Shutdown(ctx); err != nil {
				o.log.Error("lifecycle: backend shutdown failed", "backend", b.Name(), "error", err.Error())
			}
		}
	}
	o.fsm.SetState(PhasePostShutdown)
	if err := o.enterBoundary(ctx, PhasePostShutdown); err != nil {
		o.log.Error("lifecycle: PostShutdown hook failed during teardown", "error", err.Error())
	}
	if cause != nil {
		return cause
	}
	return nil
}
