// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package local implements the in-process "local" backend: publish
// fans messages out to subscriber callbacks directly, with no
// serialization round-trip or network hop inside the backend.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// Backend is the in-process transport: Publish calls every registered
// subscriber callback for the topic directly on the publishing goroutine,
// and Invoke calls the registered server handler directly.
type Backend struct {
	sm *backend.StateMachine

	mu          sync.RWMutex
	subscribers map[string][]backend.DeliverFunc
	handlers    map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)

	channels *channel.Registry
	rpcs     *rpc.Registry
	log      *logging.EventLogger
}

// New returns an uninitialized local backend.
func New() *Backend {
	return &Backend{
		sm:          backend.NewStateMachine("local"),
		subscribers: make(map[string][]backend.DeliverFunc),
		handlers:    make(map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)),
		log:         logging.NewEventLogger(),
	}
}

func (b *Backend) Name() string { return "local" }

func (b *Backend) Initialize(opts map[string]interface{}) error {
	return b.sm.Transition(backend.PhaseInit)
}

func (b *Backend) SetChannelRegistry(r *channel.Registry) { b.channels = r }
func (b *Backend) SetRpcRegistry(r *rpc.Registry)         { b.rpcs = r }

func (b *Backend) Start(ctx context.Context) error {
	return b.sm.Transition(backend.PhaseStarted)
}

func (b *Backend) RegisterPublishType(topic, typeName string) error {
	return b.sm.Require(backend.PhaseInit)
}

func (b *Backend) Subscribe(topic string, fn backend.DeliverFunc) error {
	if err := b.sm.Require(backend.PhaseInit); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], fn)
	return nil
}

func (b *Backend) RegisterServiceFunc(method rpc.MethodName) error {
	return b.sm.Require(backend.PhaseInit)
}

func (b *Backend) RegisterClientFunc(method rpc.MethodName) error {
	return b.sm.Require(backend.PhaseInit)
}

// Publish calls every subscriber callback registered for msg.Topic
// synchronously on the caller's goroutine.
func (b *Backend) Publish(ctx context.Context, msg backend.Message) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	b.mu.RLock()
	subs := append([]backend.DeliverFunc(nil), b.subscribers[msg.Topic]...)
	b.mu.RUnlock()

	b.log.LogPublish(ctx, msg.Topic, b.Name())
	for _, fn := range subs {
		fn(ctx, msg)
	}
	return nil
}

// Invoke looks up the server handler bound to method (via BindHandler) and
// invokes it directly, calling cb exactly once with the result.
func (b *Backend) Invoke(ctx *rpc.Context, method rpc.MethodName, payload []byte, cb backend.InvokeCallback) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	b.mu.RLock()
	fn, ok := b.handlers[method]
	b.mu.RUnlock()
	if !ok {
		cb(rpc.Result{Status: rpc.Unavailable, Message: fmt.Sprintf("no local handler for %s", method)}, nil)
		return nil
	}
	result, resp := fn(ctx, payload)
	cb(result, resp)
	return nil
}

// BindHandler wires a raw method handler the modulectx's RPC dispatch path
// installs, separate from RegisterServiceFunc's declaration-only bookkeeping.
func (b *Backend) BindHandler(method rpc.MethodName, fn func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[method] = fn
}

func (b *Backend) Shutdown(ctx context.Context) error {
	return b.sm.Transition(backend.PhaseShutdown)
}
