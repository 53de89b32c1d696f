// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package typeconv

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jointState struct {
	Name     string
	Position float64
}

type jointStateWire struct {
	Name     string  `json:"name"`
	Position float64 `json:"position"`
}

func TestRegisterDirectRoundTrips(t *testing.T) {
	r := NewRegistry()
	RegisterDirect[jointStateWire](r, NewJSONCodec("pb:/joint_state"))

	in := jointStateWire{Name: "hip", Position: 1.5}
	data, typeName, err := r.ToWireBytes(in)
	require.NoError(t, err)
	assert.Equal(t, "pb:/joint_state", typeName)

	var out jointStateWire
	got, err := r.FromWireBytes(data, reflect.TypeOf(jointStateWire{}), &out)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestRegisterConvertedRoundTrips(t *testing.T) {
	r := NewRegistry()
	RegisterConverted[jointState, jointStateWire](r,
		func(t jointState) (jointStateWire, error) {
			return jointStateWire{Name: t.Name, Position: t.Position}, nil
		},
		func(w jointStateWire) (jointState, error) {
			return jointState{Name: w.Name, Position: w.Position}, nil
		},
		NewJSONCodec("pb:/joint_state"),
	)

	in := jointState{Name: "knee", Position: 0.3}
	data, _, err := r.ToWireBytes(in)
	require.NoError(t, err)

	var wire jointStateWire
	got, err := r.FromWireBytes(data, reflect.TypeOf(jointState{}), &wire)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestMissingConverterFails(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.ToWireBytes(jointState{Name: "ankle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no converter registered")
}
