// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package rpc

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/agibot-rt/agibotrt/internal/task"
)

// ServiceFunc is the handler type every registered variant normalizes to:
// the coroutine form Task[Result](ctx, req, resp). req/resp are the user's
// Q/P values passed through as interface{}; the generic Register* helpers
// below recover the concrete types via closures captured at registration.
type ServiceFunc func(ctx *Context, req, resp interface{}) *task.Task[Result]

// clientRule is one entry of the ordered, first-match client backend
// selection list, mirroring the channel registry's publish rule list.
type clientRule struct {
	pattern  *regexp.Regexp
	backends []string
}

// Registry indexes server handlers by method name and holds the ordered
// client/server backend-selection rule lists. It is the value a backend
// receives via SetRpcRegistry and must treat as read-only from Start
// onward.
type Registry struct {
	mu       sync.RWMutex
	handlers map[MethodName]ServiceFunc
	clients  []clientRule
	servers  []clientRule
}

// NewRegistry returns an empty RPC registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[MethodName]ServiceFunc)}
}

// AddClientRule appends a client backend-selection rule. Rules are tried
// in append order; the first whose pattern matches the method path wins.
func (r *Registry) AddClientRule(pattern string, backends []string) error {
	re, err := compileRule(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, clientRule{pattern: re, backends: backends})
	return nil
}

// AddServerRule appends a server backend-selection rule, with the same
// first-match semantics as AddClientRule.
func (r *Registry) AddServerRule(pattern string, backends []string) error {
	re, err := compileRule(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = append(r.servers, clientRule{pattern: re, backends: backends})
	return nil
}

func compileRule(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("rpc: invalid backend rule pattern %q: %w", pattern, err)
	}
	return re, nil
}

// BackendsForClient returns the backend set the first matching client rule
// names for method, or (nil, false) if no rule matches.
func (r *Registry) BackendsForClient(method MethodName) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return firstMatch(r.clients, method.Path)
}

// BackendsForServer returns the backend set the first matching server rule
// names for method, or (nil, false) if no rule matches.
func (r *Registry) BackendsForServer(method MethodName) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return firstMatch(r.servers, method.Path)
}

func firstMatch(rules []clientRule, path string) ([]string, bool) {
	for _, rule := range rules {
		if rule.pattern.MatchString(path) {
			return rule.backends, true
		}
	}
	return nil, false
}

// RegisterHandler binds a normalized handler to method. Re-registering the
// same method name is a Misuse error: the registry routes each method to
// exactly one handler.
func (r *Registry) RegisterHandler(method MethodName, fn ServiceFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[method]; exists {
		return fmt.Errorf("rpc: method %s already has a registered handler", method)
	}
	r.handlers[method] = fn
	return nil
}

// Lookup returns the handler registered for method, or (nil, false).
func (r *Registry) Lookup(method MethodName) (ServiceFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[method]
	return fn, ok
}

// RegisterSync normalizes the "synchronous, no context" handler variant
// Status(Q, *P) into a ServiceFunc.
func RegisterSync[Q, P any](r *Registry, method MethodName, fn func(req Q, resp *P) Status) error {
	return r.RegisterHandler(method, func(ctx *Context, req, resp interface{}) *task.Task[Result] {
		return task.Go(ctx.Underlying(), func(_ context.Context) (Result, error) {
			status := fn(req.(Q), resp.(*P))
			return Result{Status: status}, nil
		})
	})
}

// RegisterSyncCtx normalizes the "synchronous with context" handler
// variant Status(*Context, Q, *P) into a ServiceFunc.
func RegisterSyncCtx[Q, P any](r *Registry, method MethodName, fn func(ctx *Context, req Q, resp *P) Status) error {
	return r.RegisterHandler(method, func(ctx *Context, req, resp interface{}) *task.Task[Result] {
		return task.Go(ctx.Underlying(), func(_ context.Context) (Result, error) {
			return Result{Status: fn(ctx, req.(Q), resp.(*P))}, nil
		})
	})
}

// RegisterTask normalizes the coroutine handler variant
// Task[Status](*Context, Q, *P) — the form every other variant reduces to.
func RegisterTask[Q, P any](r *Registry, method MethodName, fn func(ctx *Context, req Q, resp *P) *task.Task[Status]) error {
	return r.RegisterHandler(method, func(ctx *Context, req, resp interface{}) *task.Task[Result] {
		inner := fn(ctx, req.(Q), resp.(*P))
		return task.Go(ctx.Underlying(), func(innerCtx context.Context) (Result, error) {
			status, err := inner.Await(innerCtx)
			if err != nil {
				return Result{Status: Cancelled}, err
			}
			return Result{Status: status}, nil
		})
	})
}

// RegisterVoid normalizes a void-returning handler (implicitly OK) into a
// ServiceFunc.
func RegisterVoid[Q, P any](r *Registry, method MethodName, fn func(req Q, resp *P)) error {
	return RegisterSync[Q, P](r, method, func(req Q, resp *P) Status {
		fn(req, resp)
		return OK
	})
}
