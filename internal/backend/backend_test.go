// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	s := NewStateMachine("test")
	assert.Equal(t, PhasePreInit, s.Phase())
	require.NoError(t, s.Transition(PhaseInit))
	require.NoError(t, s.Transition(PhaseStarted))
	require.NoError(t, s.Transition(PhaseShutdown))
	assert.Equal(t, PhaseShutdown, s.Phase())
}

func TestStateMachineRejectsOutOfOrderTransition(t *testing.T) {
	s := NewStateMachine("test")
	err := s.Transition(PhaseStarted)
	require.Error(t, err)
	assert.Equal(t, PhasePreInit, s.Phase())
}

func TestStateMachineShutdownReachableFromAnyPhase(t *testing.T) {
	s := NewStateMachine("test")
	require.NoError(t, s.Transition(PhaseShutdown))
	assert.Equal(t, PhaseShutdown, s.Phase())
}

func TestRequireRejectsWrongPhase(t *testing.T) {
	s := NewStateMachine("test")
	err := s.Require(PhaseStarted)
	require.Error(t, err)
}

func TestRequireAtLeastAcceptsLaterPhase(t *testing.T) {
	s := NewStateMachine("test")
	require.NoError(t, s.Transition(PhaseInit))
	require.NoError(t, s.Transition(PhaseStarted))
	assert.NoError(t, s.RequireAtLeast(PhaseInit))
}
