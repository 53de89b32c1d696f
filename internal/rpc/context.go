// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package rpc

import (
	"context"
	"time"
)

// Context carries a call's deadline, serialization hint, and a free-form
// metadata bag across a single RPC invocation. A client must not reuse a
// Context across calls: NewContext always mints a fresh deadline timer.
// Server handlers receive a *Context but must treat it as read-only.
type Context struct {
	ctx           context.Context
	cancel        context.CancelFunc
	serialization Serialization
	metadata      map[string]string
}

// NewContext derives an RPC Context from parent with the given timeout and
// serialization hint. A zero timeout means no deadline.
func NewContext(parent context.Context, serialization Serialization, timeout time.Duration) *Context {
	c := &Context{serialization: serialization, metadata: make(map[string]string)}
	if timeout > 0 {
		c.ctx, c.cancel = context.WithTimeout(parent, timeout)
	} else {
		c.ctx, c.cancel = context.WithCancel(parent)
	}
	return c
}

// Done returns the channel that closes when the call's deadline elapses or
// its context is cancelled, mirroring context.Context.Done.
func (c *Context) Done() <-chan struct{} { return c.ctx.Done() }

// Err reports the reason the context ended, if it has.
func (c *Context) Err() error { return c.ctx.Err() }

// Deadline reports the call's deadline, if one was set.
func (c *Context) Deadline() (time.Time, bool) { return c.ctx.Deadline() }

// Serialization reports the method's wire serialization hint.
func (c *Context) Serialization() Serialization { return c.serialization }

// Metadata returns the value stored under key in the free-form metadata
// bag. A server handler
// must not mutate the returned map; use SetMetadata on the client side
// before the call is issued.
func (c *Context) Metadata(key string) (string, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// SetMetadata attaches a metadata entry, legal only before the call is
// issued (client side).
func (c *Context) SetMetadata(key, value string) {
	c.metadata[key] = value
}

// Release cancels the Context's internal deadline timer. Callers must call
// Release once the call completes (successfully or not) to avoid leaking
// the timer; Call() in the module context does this on every return path.
func (c *Context) Release() {
	c.cancel()
}

// Underlying returns the context.Context backing this Context, for passing
// to backend Invoke implementations.
func (c *Context) Underlying() context.Context {
	return c.ctx
}
