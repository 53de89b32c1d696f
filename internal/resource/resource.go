// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package resource implements the C1 resource descriptors: opaque handles
// bound exactly once, during Init, by the owning registry. Descriptors
// carry no behavior; every runtime operation dispatches through the
// module context that bound them.
package resource

import "errors"

// ErrUnbound is returned when a runtime operation is attempted on a
// Descriptor that has not yet been bound.
var ErrUnbound = errors.New("resource: descriptor is unbound")

// Kind identifies what a Descriptor names: a channel, an RPC client/server,
// or an executor.
type Kind int

const (
	KindChannel Kind = iota
	KindClient
	KindServer
	KindExecutor
)

func (k Kind) String() string {
	switch k {
	case KindChannel:
		return "channel"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	case KindExecutor:
		return "executor"
	default:
		return "unknown"
	}
}

// Descriptor is a named resource handle. Its zero value is unbound: Index
// and ContextID are both zero and IsBound reports false. Binding is
// performed exactly once by the resource manager during Init and is
// irreversible — there is deliberately no Unbind.
type Descriptor struct {
	kind      Kind
	name      string
	index     int
	contextID uint64
	bound     bool
}

// New constructs an unbound descriptor for the given kind and name.
func New(kind Kind, name string) Descriptor {
	return Descriptor{kind: kind, name: name}
}

// Kind reports what this descriptor names.
func (d Descriptor) Kind() Kind { return d.kind }

// Name returns the descriptor's declared name, regardless of binding state.
func (d Descriptor) Name() string { return d.name }

// IsBound reports whether the resource manager has bound this descriptor.
func (d Descriptor) IsBound() bool { return d.bound }

// Index returns the binding index assigned by the resource manager.
// Only meaningful when IsBound is true.
func (d Descriptor) Index() int { return d.index }

// ContextID returns the owning module context's id assigned at bind time.
// Only meaningful when IsBound is true.
func (d Descriptor) ContextID() uint64 { return d.contextID }

// Bind irreversibly assigns the index and owning context id to an unbound
// descriptor. It is the resource manager's sole mutator and must be called
// at most once per descriptor.
func (d Descriptor) Bind(index int, contextID uint64) Descriptor {
	d.index = index
	d.contextID = contextID
	d.bound = true
	return d
}

// Require returns ErrUnbound if d has not been bound, so callers can fail
// fast before dispatching a runtime operation through it.
func Require(d Descriptor) error {
	if !d.IsBound() {
		return ErrUnbound
	}
	return nil
}

// Manager assigns binding indices and owns the monotonically increasing
// context id space used by module contexts during Init.
type Manager struct {
	nextIndex     map[Kind]int
	nextContextID uint64
}

// NewManager returns a resource manager with fresh binding counters.
func NewManager() *Manager {
	return &Manager{nextIndex: make(map[Kind]int)}
}

// Bind assigns the next free index for d's kind and the given context id,
// returning the bound descriptor. Binding is irreversible; calling Bind
// twice on descriptors of the same kind always yields distinct indices.
func (m *Manager) Bind(d Descriptor, contextID uint64) Descriptor {
	idx := m.nextIndex[d.kind]
	m.nextIndex[d.kind] = idx + 1
	return d.Bind(idx, contextID)
}

// NewContextID returns the next context id for a module context being
// constructed during Init.
func (m *Manager) NewContextID() uint64 {
	m.nextContextID++
	return m.nextContextID
}
