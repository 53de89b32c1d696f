// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package modulectx

import (
	"context"
	"fmt"
	"reflect"

	"github.com/agibot-rt/agibotrt/internal/resource"
	"github.com/agibot-rt/agibotrt/internal/rpc"
	"github.com/agibot-rt/agibotrt/internal/task"
)

// Client is a bound RPC client handle for request type Q and reply type
// P, returned by InitClient (the cli() Init<Q,P> operator).
type Client[Q, P any] struct {
	Descriptor  resource.Descriptor
	Method      rpc.MethodName
	backendName string
	ctx         *Context
}

// InitClient binds name as a client method, resolving its backend from
// the RPC registry's client rules. A missing rule or backend is fatal.
func InitClient[Q, P any](c *Context, name string) (*Client[Q, P], error) {
	if err := c.requireInitPhase("cli.Init"); err != nil {
		return nil, err
	}
	method, err := rpc.ParseMethodName(name)
	if err != nil {
		return nil, fmt.Errorf("modulectx: %w", err)
	}
	backends, ok := c.rpcs.BackendsForClient(method)
	if !ok || len(backends) == 0 {
		return nil, c.Raise("no client backend rule matches method", "method", method.String())
	}
	be, ok := c.backends[backends[0]]
	if !ok {
		return nil, c.Raise("client rule names unknown backend", "method", method.String(), "backend", backends[0])
	}
	if err := be.RegisterClientFunc(method); err != nil {
		return nil, fmt.Errorf("modulectx: register client func %s: %w", method, err)
	}
	d := resource.New(resource.KindClient, name)
	d = c.resources.Bind(d, c.resources.NewContextID())
	return &Client[Q, P]{Descriptor: d, Method: method, backendName: backends[0], ctx: c}, nil
}

// Call issues an RPC through the client's bound backend and returns a
// Task that resolves once the backend's InvokeCallback fires (at most
// once), converting req/reply through the type-adaptation registry. rctx
// must not be reused across calls; Call releases its deadline timer on
// every return path.
func Call[Q, P any](c *Client[Q, P], rctx *rpc.Context, req Q, resp *P) *task.Task[rpc.Status] {
	return task.Go(rctx.Underlying(), func(ctx context.Context) (rpc.Status, error) {
		defer rctx.Release()

		if err := c.ctx.requireRunning("Call"); err != nil {
			return rpc.Unavailable, err
		}
		be, ok := c.ctx.backends[c.backendName]
		if !ok {
			return rpc.Unavailable, fmt.Errorf("modulectx: backend %s not found for %s", c.backendName, c.Method)
		}
		data, _, err := c.ctx.types.ToWireBytes(req)
		if err != nil {
			return rpc.Internal, err
		}

		results := make(chan rpc.Result, 1)
		var replyBytes []byte
		invokeErr := be.Invoke(rctx, c.Method, data, func(result rpc.Result, payload []byte) {
			replyBytes = payload
			results <- result
		})
		if invokeErr != nil {
			return rpc.Internal, invokeErr
		}

		select {
		case result := <-results:
			if result.Ok() && resp != nil && replyBytes != nil {
				t := reflect.TypeOf(*resp)
				val, convErr := c.ctx.types.FromWireBytes(replyBytes, t, resp)
				if convErr != nil {
					return rpc.Internal, convErr
				}
				if typed, ok := val.(P); ok {
					*resp = typed
				}
			}
			return result.Status, nil
		case <-ctx.Done():
			return rpc.Cancelled, ctx.Err()
		}
	})
}

// Server is a bound RPC server handle for request type Q and reply type
// P, returned by InitServer (the srv() InitFunc<Q,P> operator).
type Server[Q, P any] struct {
	Descriptor resource.Descriptor
	Method     rpc.MethodName
	backends   []string
	ctx        *Context
}

// InitServer binds name as a served method, resolving its backend set
// from the RPC registry's server rules.
func InitServer[Q, P any](c *Context, name string) (*Server[Q, P], error) {
	if err := c.requireInitPhase("srv.Init"); err != nil {
		return nil, err
	}
	method, err := rpc.ParseMethodName(name)
	if err != nil {
		return nil, fmt.Errorf("modulectx: %w", err)
	}
	backends, ok := c.rpcs.BackendsForServer(method)
	if !ok || len(backends) == 0 {
		return nil, c.Raise("no server backend rule matches method", "method", method.String())
	}
	for _, bn := range backends {
		be, ok := c.backends[bn]
		if !ok {
			return nil, c.Raise("server rule names unknown backend", "method", method.String(), "backend", bn)
		}
		if err := be.RegisterServiceFunc(method); err != nil {
			return nil, fmt.Errorf("modulectx: register service func %s: %w", method, err)
		}
	}
	d := resource.New(resource.KindServer, name)
	d = c.resources.Bind(d, c.resources.NewContextID())
	return &Server[Q, P]{Descriptor: d, Method: method, backends: backends, ctx: c}, nil
}

// localBinder is implemented by every backend in this module; each one
// dispatches incoming invocations of a bound method to the handler.
type localBinder interface {
	BindHandler(method rpc.MethodName, fn func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte))
}

// ServeInline registers handler to run on whichever goroutine the
// backend delivers the invocation on, with no executor re-posting — the
// srv() ServeInline operator. handler is the normalized synchronous
// variant Status(Q, *P); the coroutine and void-returning variants in
// spec.md reduce to this one at the call site.
func ServeInline[Q, P any](srv *Server[Q, P], handler func(ctx *rpc.Context, req Q, resp *P) rpc.Status) error {
	dispatch := func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte) {
		var req Q
		val, err := srv.ctx.types.FromWireBytes(payload, reflect.TypeOf(req), &req)
		if err != nil {
			return rpc.Result{Status: rpc.InvalidArg, Message: err.Error()}, nil
		}
		typed, ok := val.(Q)
		if !ok {
			return rpc.Result{Status: rpc.InvalidArg, Message: "unexpected decoded request type"}, nil
		}
		var resp P
		status := handler(ctx, typed, &resp)
		if status != rpc.OK {
			return rpc.Result{Status: status}, nil
		}
		data, _, err := srv.ctx.types.ToWireBytes(resp)
		if err != nil {
			return rpc.Result{Status: rpc.Internal, Message: err.Error()}, nil
		}
		return rpc.Result{Status: rpc.OK}, data
	}

	for _, bn := range srv.backends {
		be, ok := srv.ctx.backends[bn]
		if !ok {
			continue
		}
		if binder, ok := be.(localBinder); ok {
			binder.BindHandler(srv.Method, dispatch)
		}
	}
	return nil
}
