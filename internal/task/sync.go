// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package task

import "sync"

// Mutex is the stdlib sync.Mutex used directly: the coroutine-aware mutex
// the original runtime exposes has no distinct behavior to add in Go,
// where goroutine blocking on a mutex already yields the OS thread rather
// than spinning.
type Mutex = sync.Mutex

// ConditionVariable is the stdlib sync.Cond used directly, for the same
// reason as Mutex: Go's goroutine scheduler already parks the blocked
// goroutine, so there is nothing left for a runtime-specific wrapper to
// add over sync.Cond bound to a Locker.
type ConditionVariable = sync.Cond

// NewConditionVariable returns a ConditionVariable bound to l.
func NewConditionVariable(l sync.Locker) *ConditionVariable {
	return sync.NewCond(l)
}

// IndexedVariant is a tagged union over N possible result types. Index
// names which arm produced Value; callers switch on Index before
// type-asserting Value. Any does not build one: it returns the winning
// index and a value of its single type parameter T.
type IndexedVariant struct {
	Index int
	Value interface{}
}
