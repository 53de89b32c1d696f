// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package filter implements the publish/deliver middleware chain every
// channel and RPC event passes through. It generalizes the Watermill
// router's Ack/Nack-retry middleware chain into "rewrite-or-drop" filter
// semantics: a filter may annotate or rewrite an Envelope's payload, or
// drop it outright, but must be pure with respect to message content
// otherwise (no network calls, no blocking).
package filter

import (
	"context"

	"github.com/agibot-rt/agibotrt/internal/logging"
)

// Envelope is the unit a filter chain observes: a topic or method path,
// the wire-encoded payload, and a metadata bag threaded from the channel
// or RPC registry.
type Envelope struct {
	Topic    string
	Payload  []byte
	Metadata map[string]string
}

// Func is a single filter step. Returning ok=false drops the envelope; the
// chain runner logs the drop at warn and does not invoke subsequent
// filters or the backend.
type Func func(env Envelope) (Envelope, bool)

// Chain is an ordered list of filters applied in registration order.
type Chain struct {
	name    string
	filters []Func
	log     *logging.EventLogger
}

// NewChain returns an empty chain identified by name, used only for log
// messages when a filter drops an envelope.
func NewChain(name string) *Chain {
	return &Chain{name: name, log: logging.NewEventLogger()}
}

// Use appends a filter to the end of the chain.
func (c *Chain) Use(f Func) {
	c.filters = append(c.filters, f)
}

// Run passes env through every filter in order. It returns the
// (possibly rewritten) envelope and true if every filter passed it
// through; it returns false as soon as a filter drops it, after logging
// the drop.
func (c *Chain) Run(env Envelope) (Envelope, bool) {
	for _, f := range c.filters {
		next, ok := f(env)
		if !ok {
			c.log.LogFilterDrop(context.Background(), env.Topic, c.name)
			return Envelope{}, false
		}
		env = next
	}
	return env, true
}
