// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package monitortap implements the monitor channel backend: a
// registry-tap that observes every publish routed through it for
// statistics, rather than a transport. Publish is intentionally a
// no-op — resolved per spec.md's open question on the monitor channel's
// empty Publish — so binding a topic to monitortap never delivers it
// anywhere; it only counts it.
package monitortap

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/metrics"
	"github.com/agibot-rt/agibotrt/internal/monitorplugin"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// Stats is a point-in-time snapshot of one topic's tap counters.
type Stats struct {
	Topic          string
	PublishCount   uint64
	LastPayloadLen int
}

// Backend is the monitor-tap backend. It never dials a peer and never
// transports a payload; Publish only updates per-topic counters and
// Invoke is always unavailable.
type Backend struct {
	sm *backend.StateMachine

	mu     sync.Mutex
	counts map[string]*uint64
	last   map[string]int
	hz     monitorplugin.TopicHzCalculator

	channels *channel.Registry
	rpcs     *rpc.Registry
	log      *logging.EventLogger
}

// New returns an uninitialized monitor-tap backend with its own
// SlidingWindow TopicHzCalculator; call SetHzCalculator between
// Initialize and Start to
// use a different one (e.g. one shared across several monitortap
// instances, or a process-wide monitor plugin proxy).
func New() *Backend {
	return &Backend{
		sm:     backend.NewStateMachine("monitor"),
		counts: make(map[string]*uint64),
		last:   make(map[string]int),
		hz:     monitorplugin.NewSlidingWindow(),
		log:    logging.NewEventLogger(),
	}
}

// SetHzCalculator replaces the backend's TopicHzCalculator. Legal only
// in PhaseInit, i.e. after Initialize and before Start.
func (b *Backend) SetHzCalculator(hz monitorplugin.TopicHzCalculator) error {
	if err := b.sm.Require(backend.PhaseInit); err != nil {
		return err
	}
	b.hz = hz
	return nil
}

// HzSnapshot returns the current per-topic rate statistics from the
// backend's TopicHzCalculator.
func (b *Backend) HzSnapshot() monitorplugin.HzInfoMap {
	if b.hz == nil {
		return nil
	}
	return b.hz.CalculateAll()
}

func (b *Backend) Name() string { return "monitor" }

func (b *Backend) SetChannelRegistry(r *channel.Registry) { b.channels = r }
func (b *Backend) SetRpcRegistry(r *rpc.Registry)         { b.rpcs = r }

// Initialize takes no options; the tap has nothing to configure or dial.
func (b *Backend) Initialize(opts map[string]interface{}) error {
	return b.sm.Transition(backend.PhaseInit)
}

// Start has no traffic to begin accepting; the tap only ever reacts to
// Publish calls routed to it by the channel registry.
func (b *Backend) Start(ctx context.Context) error {
	return b.sm.Transition(backend.PhaseStarted)
}

// RegisterPublishType registers topic for tapping. Any topic whose channel
// rule includes the "monitor" backend starts accumulating counters from
// the first Publish onward.
func (b *Backend) RegisterPublishType(topic, typeName string) error {
	if err := b.sm.Require(backend.PhaseInit); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.counts[topic]; !ok {
		var zero uint64
		b.counts[topic] = &zero
	}
	return nil
}

// Subscribe is a no-op: the tap never delivers, so it never accepts
// subscribers of its own. A caller binding a subscription to "monitor"
// gets a channel that is registered but never fires.
func (b *Backend) Subscribe(topic string, fn backend.DeliverFunc) error {
	return b.sm.Require(backend.PhaseInit)
}

func (b *Backend) RegisterServiceFunc(method rpc.MethodName) error {
	return fmt.Errorf("monitortap: rpc not supported")
}

func (b *Backend) RegisterClientFunc(method rpc.MethodName) error {
	return fmt.Errorf("monitortap: rpc not supported")
}

// Publish records msg's arrival and returns nil without transporting it
// anywhere, per spec.md's resolution of the monitor channel's empty
// Publish as a pure registry-tap.
func (b *Backend) Publish(ctx context.Context, msg backend.Message) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	b.mu.Lock()
	counter, ok := b.counts[msg.Topic]
	if !ok {
		var zero uint64
		counter = &zero
		b.counts[msg.Topic] = counter
	}
	b.last[msg.Topic] = len(msg.Payload)
	b.mu.Unlock()

	atomic.AddUint64(counter, 1)
	metrics.ChannelMessagesPublished.WithLabelValues(b.Name(), msg.Topic).Inc()
	if b.hz != nil {
		b.hz.FeedTopic(monitorplugin.TopicInfo{TopicName: msg.Topic, MsgType: msg.TypeName})
	}
	return nil
}

// Invoke always fails: the tap observes publishes only, it has no RPC
// surface to dial.
func (b *Backend) Invoke(rctx *rpc.Context, method rpc.MethodName, payload []byte, cb backend.InvokeCallback) error {
	return fmt.Errorf("monitortap: invoke %s: not supported", method)
}

// BindHandler is never called for this backend; it exists only to satisfy
// the local-binder shape other callers of backend.Backend assume.
func (b *Backend) BindHandler(method rpc.MethodName, fn func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)) {
}

// Snapshot returns the current per-topic publish counters, sorted by no
// particular order, for a monitoring module (e.g. a TopicHz calculator)
// to read.
func (b *Backend) Snapshot() []Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Stats, 0, len(b.counts))
	for topic, counter := range b.counts {
		out = append(out, Stats{
			Topic:          topic,
			PublishCount:   atomic.LoadUint64(counter),
			LastPayloadLen: b.last[topic],
		})
	}
	return out
}

// Shutdown is idempotent and has no resources to release.
func (b *Backend) Shutdown(ctx context.Context) error {
	return b.sm.Transition(backend.PhaseShutdown)
}
