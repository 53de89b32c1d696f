// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package module implements the C10 module base: the spec's deep
// Module->ModuleBase->NamedModule inheritance collapses to one interface
// (Info, OnConfigure, DeclaredResources, OnInitialize, OnStart,
// OnShutdown),
// and the naming wrapper becomes a decorator instead of a subclass.
package module

import (
	"context"

	"github.com/agibot-rt/agibotrt/internal/modulectx"
	"github.com/agibot-rt/agibotrt/internal/resource"
)

// Info identifies a module to the lifecycle orchestrator and to the
// "module.pkgs[*].path" / "module.modules[*].name" config keys.
type Info struct {
	Name string
	Pkg  string
}

// Module is the contract every user module implements. OnConfigure and
// OnInitialize run once, during the orchestrator's Init phase, in that
// order; OnStart/OnShutdown run once each, at Start and Shutdown.
type Module interface {
	Info() Info
	// OnConfigure receives this module's slice of the merged
	// configuration and declares the resources (channels, rpc
	// clients/servers, executors) it intends to use. Returning a non-nil
	// error aborts startup.
	OnConfigure(cfg map[string]interface{}) error
	// DeclaredResources returns the resources OnConfigure declared, in
	// declaration order, so the orchestrator can bind them before
	// OnInitialize runs.
	DeclaredResources() []resource.Descriptor
	// OnInitialize runs after every declared resource has been bound.
	// Returning false aborts the process, matching spec.md's
	// OnInitialize()-returning-false contract.
	OnInitialize(ctx *modulectx.Context) bool
	// OnStart runs once the module's resources are Live.
	OnStart(ctx context.Context) error
	// OnShutdown runs during the orchestrator's reverse-order Shutdown
	// walk. It must be safe to call even if OnStart was never reached.
	OnShutdown(ctx context.Context) error
}

// Base provides the one-time "has configure already run?" guard so the
// same module code path works whether Configure is driven externally
// (via Run) or implicitly (Configure-on-Init when used stand-alone).
// Embed Base and override the On* methods that need real behavior; the
// defaults are no-ops so a minimal module needs only Info and
// OnInitialize.
type Base struct {
	info       Info
	configured bool
	declared   []resource.Descriptor
}

// NewBase returns a Base identifying itself with info.
func NewBase(info Info) Base {
	return Base{info: info}
}

func (b *Base) Info() Info { return b.info }

// Configured reports whether OnConfigure has already run for this
// module, letting an embedder's overridden OnConfigure guard against
// running its declaration logic twice.
func (b *Base) Configured() bool { return b.configured }

// MarkConfigured records that configuration has run and stores the
// resources the embedder declared, for DeclaredResources to return.
// Embedders call this at the end of their own OnConfigure override.
func (b *Base) MarkConfigured(declared []resource.Descriptor) {
	b.configured = true
	b.declared = declared
}

func (b *Base) OnConfigure(cfg map[string]interface{}) error { return nil }

func (b *Base) DeclaredResources() []resource.Descriptor { return b.declared }

func (b *Base) OnInitialize(ctx *modulectx.Context) bool { return true }

func (b *Base) OnStart(ctx context.Context) error { return nil }

func (b *Base) OnShutdown(ctx context.Context) error { return nil }

// Named decorates an existing Module, overriding the name the
// orchestrator and config lookups see without subclassing it — the Go
// analogue of the source's NamedModule wrapper.
type Named struct {
	Module
	name string
}

// WithName returns m decorated to report name from Info().Name.
func WithName(m Module, name string) Named {
	return Named{Module: m, name: name}
}

func (n Named) Info() Info {
	info := n.Module.Info()
	info.Name = n.name
	return info
}
