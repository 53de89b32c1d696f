// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package backend defines the C7 wire backend contract every transport
// (local, mqtt, nats, grpc, http, tcp, udp, shm, monitor) implements, plus
// the shared PreInit -> Init -> Start -> Shutdown state machine every
// concrete backend embeds rather than reimplements.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// Message is the envelope a backend's Publish and delivery callbacks
// exchange: a topic, wire-encoded payload, and the wire type name the
// typeconv registry produced it under.
type Message struct {
	Topic    string
	TypeName string
	Payload  []byte
}

// DeliverFunc is invoked once per inbound message on a subscribed topic.
type DeliverFunc func(ctx context.Context, msg Message)

// InvokeCallback is invoked at most once with the reply to an RPC call
// issued through Invoke.
type InvokeCallback func(result rpc.Result, payload []byte)

// Backend is the contract every wire transport implements. Concrete
// backends should embed StateMachine and call its transition methods
// from their own Initialize/Start/Shutdown so the PreInit -> Init ->
// Start -> Shutdown ordering is enforced uniformly.
type Backend interface {
	// Name returns a unique, non-empty backend identifier.
	Name() string
	// Initialize validates opts and acquires any resources the backend
	// needs before it can be started. Legal only from PreInit.
	Initialize(opts map[string]interface{}) error
	// SetChannelRegistry snapshots the registry pointer; it stays valid
	// through PreShutdown.
	SetChannelRegistry(r *channel.Registry)
	// SetRpcRegistry snapshots the registry pointer; it stays valid
	// through PreShutdown.
	SetRpcRegistry(r *rpc.Registry)
	// Start begins accepting traffic. No Publish/Subscribe delivery is
	// legal before Start returns.
	Start(ctx context.Context) error
	// RegisterPublishType declares that topic will be published with
	// messages of the named wire type.
	RegisterPublishType(topic, typeName string) error
	// Subscribe registers fn to be invoked for every inbound message on
	// topic.
	Subscribe(topic string, fn DeliverFunc) error
	// RegisterServiceFunc declares that method is served by this backend.
	RegisterServiceFunc(method rpc.MethodName) error
	// RegisterClientFunc declares that method may be invoked through this
	// backend.
	RegisterClientFunc(method rpc.MethodName) error
	// Publish best-effort sends msg. Per-backend retry/QoS policy is
	// opaque to the caller; a failure here is a Transport error (dropped,
	// logged at warn), never fatal.
	Publish(ctx context.Context, msg Message) error
	// Invoke issues an RPC and arranges for cb to be called at most once
	// with the reply; when Invoke itself returns an error, cb may not be
	// called at all.
	Invoke(ctx *rpc.Context, method rpc.MethodName, payload []byte, cb InvokeCallback) error
	// Shutdown is idempotent and unblocks any in-flight receives.
	Shutdown(ctx context.Context) error
}

// Phase is a backend's position in the PreInit -> Init -> Start ->
// Shutdown state machine.
type Phase int

const (
	PhasePreInit Phase = iota
	PhaseInit
	PhaseStarted
	PhaseShutdown
)

func (p Phase) String() string {
	switch p {
	case PhasePreInit:
		return "PreInit"
	case PhaseInit:
		return "Init"
	case PhaseStarted:
		return "Started"
	case PhaseShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// StateMachine enforces the backend lifecycle ordering. Concrete backends
// embed it and call Transition at the start of each lifecycle method.
type StateMachine struct {
	mu    sync.Mutex
	phase Phase
	name  string
}

// NewStateMachine returns a StateMachine in PhasePreInit for the named
// backend, used only in error messages.
func NewStateMachine(name string) *StateMachine {
	return &StateMachine{name: name}
}

// Phase returns the current phase.
func (s *StateMachine) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Transition moves the state machine to target, failing if target does not
// immediately follow the current phase (Shutdown is reachable from any
// phase, since it must be safe to call even if Start was never reached).
func (s *StateMachine) Transition(target Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target == PhaseShutdown {
		s.phase = PhaseShutdown
		return nil
	}
	if target != s.phase+1 {
		return fmt.Errorf("backend %s: illegal transition from %s to %s", s.name, s.phase, target)
	}
	s.phase = target
	return nil
}

// Require fails unless the state machine is currently in phase.
func (s *StateMachine) Require(phase Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phase {
		return fmt.Errorf("backend %s: operation requires phase %s, currently %s", s.name, phase, s.phase)
	}
	return nil
}

// RequireAtLeast fails unless the state machine has reached at least phase.
func (s *StateMachine) RequireAtLeast(phase Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase < phase {
		return fmt.Errorf("backend %s: operation requires phase >= %s, currently %s", s.name, phase, s.phase)
	}
	return nil
}
