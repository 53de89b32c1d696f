// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package task

import (
	"context"
	"sync"
)

// AsyncScope is a structured-concurrency boundary: every task spawned
// through it is cancelled when the scope is cancelled, and Wait does not
// return until all spawned tasks have observed that cancellation and
// exited. It is the Go rendering of the any{} / cancellation-token
// construct used to await the first of several concurrent suspension
// points while leaving the remainder running under the parent's control.
type AsyncScope struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAsyncScope derives a cancellable scope from parent. Cancelling the
// returned scope (via Cancel, or parent's own cancellation) propagates to
// every task spawned with Spawn.
func NewAsyncScope(parent context.Context) *AsyncScope {
	ctx, cancel := context.WithCancel(parent)
	return &AsyncScope{ctx: ctx, cancel: cancel}
}

// Context returns the scope's context; tasks spawned outside of Spawn
// (e.g. blocking channel receives) should still select on its Done()
// channel to honor cancellation promptly.
func (s *AsyncScope) Context() context.Context {
	return s.ctx
}

// Ok reports whether the scope is still open — the Go analogue of the
// spec's ok() poll used inside long-running loops to decide whether to
// keep iterating.
func (s *AsyncScope) Ok() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

// Spawn starts fn under the scope: its context is the scope's context, and
// Wait/Complete will not return until fn has run to completion. The
// returned Task observes fn's result independent of scope cancellation —
// callers that only care about cancellation use Ok()/Context().Done()
// instead of awaiting the task.
func Spawn[T any](s *AsyncScope, fn func(ctx context.Context) (T, error)) *Task[T] {
	s.wg.Add(1)
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		t.result, t.err = fn(s.ctx)
	}()
	return t
}

// Cancel cancels every task spawned under the scope. Safe to call more
// than once or concurrently with Wait.
func (s *AsyncScope) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

// Wait blocks until every task spawned under the scope has returned,
// regardless of whether the scope was cancelled. Callers that want a
// bounded wait should cancel a parent context instead of calling Wait
// directly from a deadline path.
func (s *AsyncScope) Wait() {
	s.wg.Wait()
}

// Complete cancels the scope and waits for every spawned task to drain,
// the combined teardown sequence a module's OnShutdown hook runs for each
// AsyncScope it owns.
func (s *AsyncScope) Complete() {
	s.Cancel()
	s.Wait()
}

// Any awaits the first of several tasks to complete and returns its index
// and result, leaving the rest running under the scope — the Go rendering
// of the spec's any{} combinator. Callers that want the losers cancelled
// too should share a cancellable context across the task functions and
// cancel it once Any returns.
func Any[T any](ctx context.Context, tasks ...*Task[T]) (int, T, error) {
	type outcome struct {
		idx int
		val T
		err error
	}
	results := make(chan outcome, len(tasks))
	for i, t := range tasks {
		i, t := i, t
		go func() {
			v, err := t.Await(ctx)
			results <- outcome{idx: i, val: v, err: err}
		}()
	}
	select {
	case o := <-results:
		return o.idx, o.val, o.err
	case <-ctx.Done():
		var zero T
		return -1, zero, ctx.Err()
	}
}
