// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package task implements the C3 coroutine + executor core: a
// single-threaded-cooperative-per-task model with multi-task concurrency
// via named executors. A C++ coroutine's suspension points (co_await on
// sleep, channel/RPC call, mutex lock) become ordinary goroutine blocking
// operations; the piece that needs explicit plumbing is ThreadContext,
// which in the original is a thread-local restored on coroutine resume.
// Go has no thread-locals, so ThreadContext travels explicitly as
// context.Context values — the idiomatic Go analogue — rather than being
// captured/restored at suspension points.
package task

import (
	"context"
	"errors"
)

// ErrCancelled reports that a task stopped because its scope was
// cancelled. Nothing in this package returns it: Await yields the task's
// own error, or ctx.Err() when the awaiting ctx ends first.
var ErrCancelled = errors.New("task: cancelled")

type ctxKey int

const (
	ctxKeyThreadContext ctxKey = iota
)

// ThreadContext is the ambient state the spec's coroutine suspension
// points restore on resume: the owning module context's identity, the
// executor the task is currently running on, and the active RPC
// deadline/context if any. It travels as a context.Context value rather
// than a thread-local.
type ThreadContext struct {
	ModuleName      string
	CurrentExecutor string
	ActiveRPCCtx    context.Context
}

// WithThreadContext attaches tc to ctx, the Go equivalent of installing a
// thread-local before running task code on a given goroutine.
func WithThreadContext(ctx context.Context, tc ThreadContext) context.Context {
	return context.WithValue(ctx, ctxKeyThreadContext, tc)
}

// FromContext recovers the ThreadContext installed by WithThreadContext,
// the ambient accessor backing ctx::log, ctx::exe(), and the active RPC
// deadline.
func FromContext(ctx context.Context) (ThreadContext, bool) {
	tc, ok := ctx.Value(ctxKeyThreadContext).(ThreadContext)
	return tc, ok
}

// Task is a single-shot, awaitable unit of work carrying cancellation
// token semantics inherited from its parent AsyncScope. T is the result
// type; a Task[struct{}] models a void coroutine.
type Task[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Go starts fn on a new goroutine and returns a Task that becomes ready
// when fn returns. fn receives ctx carrying the caller's ThreadContext (if
// any was installed) so ambient accessors behave identically regardless of
// which goroutine the task happens to run on.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.result, t.err = fn(ctx)
	}()
	return t
}

// Await blocks until the task completes or ctx is cancelled first, in
// which case it returns the zero value and ctx.Err(). This is the Go
// rendering of co_await: the calling goroutine parks at this call.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done reports whether the task has completed, for non-blocking polling.
func (t *Task[T]) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
