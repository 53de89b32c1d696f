// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/module"
	"github.com/agibot-rt/agibotrt/internal/modulectx"
	"github.com/agibot-rt/agibotrt/internal/resource"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// fakeModule records its lifecycle calls on signaling channels so tests
// can wait on the supervisor tree actually driving it.
type fakeModule struct {
	name      string
	started   chan struct{}
	shutdown  chan struct{}
	onceStart sync.Once
	onceStop  sync.Once
}

func newFakeModule(name string) *fakeModule {
	return &fakeModule{name: name, started: make(chan struct{}), shutdown: make(chan struct{})}
}

func (m *fakeModule) Info() module.Info                           { return module.Info{Name: m.name} }
func (m *fakeModule) OnConfigure(cfg map[string]interface{}) error { return nil }
func (m *fakeModule) DeclaredResources() []resource.Descriptor    { return nil }
func (m *fakeModule) OnInitialize(ctx *modulectx.Context) bool    { return true }
func (m *fakeModule) OnStart(ctx context.Context) error {
	m.onceStart.Do(func() { close(m.started) })
	return nil
}
func (m *fakeModule) OnShutdown(ctx context.Context) error {
	m.onceStop.Do(func() { close(m.shutdown) })
	return nil
}

var _ module.Module = (*fakeModule)(nil)

// fakeBackend records Start/Shutdown on signaling channels.
type fakeBackend struct {
	sm       *backend.StateMachine
	started  chan struct{}
	shutdown chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sm:       backend.NewStateMachine("fake"),
		started:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

func (b *fakeBackend) Name() string                                  { return "fake" }
func (b *fakeBackend) SetChannelRegistry(r *channel.Registry)        {}
func (b *fakeBackend) SetRpcRegistry(r *rpc.Registry)                {}
func (b *fakeBackend) Initialize(opts map[string]interface{}) error  { return b.sm.Transition(backend.PhaseInit) }
func (b *fakeBackend) Start(ctx context.Context) error {
	close(b.started)
	return b.sm.Transition(backend.PhaseStarted)
}
func (b *fakeBackend) RegisterPublishType(topic, typeName string) error { return nil }
func (b *fakeBackend) Subscribe(topic string, fn backend.DeliverFunc) error { return nil }
func (b *fakeBackend) RegisterServiceFunc(method rpc.MethodName) error { return nil }
func (b *fakeBackend) RegisterClientFunc(method rpc.MethodName) error  { return nil }
func (b *fakeBackend) Publish(ctx context.Context, msg backend.Message) error { return nil }
func (b *fakeBackend) Invoke(rctx *rpc.Context, method rpc.MethodName, payload []byte, cb backend.InvokeCallback) error {
	return fmt.Errorf("fakeBackend: invoke not supported")
}
func (b *fakeBackend) BindHandler(method rpc.MethodName, fn func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)) {
}
func (b *fakeBackend) Shutdown(ctx context.Context) error {
	close(b.shutdown)
	return b.sm.Transition(backend.PhaseShutdown)
}

var _ backend.Backend = (*fakeBackend)(nil)

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestRunDrivesBackendAndModuleThroughSupervisorTree(t *testing.T) {
	res := resource.NewManager()
	newCtx := func(name string, contextID uint64) *modulectx.Context {
		return modulectx.New(name, res, nil, nil, nil, nil, nil)
	}
	o := New(res, newCtx)

	fb := newFakeBackend()
	o.RegisterBackend(fb)

	fm := newFakeModule("m1")
	o.RegisterModule(fm)

	if err := o.Run(context.Background(), ModuleConfigs{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	waitClosed(t, fb.started, "backend start")
	waitClosed(t, fm.started, "module start")

	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	waitClosed(t, fb.shutdown, "backend shutdown")
	waitClosed(t, fm.shutdown, "module shutdown")
}

func TestShutdownBeforeStartIsSafe(t *testing.T) {
	res := resource.NewManager()
	newCtx := func(name string, contextID uint64) *modulectx.Context {
		return modulectx.New(name, res, nil, nil, nil, nil, nil)
	}
	o := New(res, newCtx)

	fb := newFakeBackend()
	o.RegisterBackend(fb)

	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	waitClosed(t, fb.shutdown, "backend shutdown")
}
