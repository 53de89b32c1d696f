// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainRunsFiltersInOrder(t *testing.T) {
	c := NewChain("test")
	c.Use(func(env Envelope) (Envelope, bool) {
		env.Metadata["a"] = "1"
		return env, true
	})
	c.Use(func(env Envelope) (Envelope, bool) {
		env.Metadata["b"] = "2"
		return env, true
	})

	out, ok := c.Run(Envelope{Topic: "t", Metadata: map[string]string{}})
	require.True(t, ok)
	assert.Equal(t, "1", out.Metadata["a"])
	assert.Equal(t, "2", out.Metadata["b"])
}

func TestChainStopsAtFirstDrop(t *testing.T) {
	c := NewChain("test")
	var secondRan bool
	c.Use(func(env Envelope) (Envelope, bool) {
		return env, false
	})
	c.Use(func(env Envelope) (Envelope, bool) {
		secondRan = true
		return env, true
	})

	_, ok := c.Run(Envelope{Topic: "t"})
	assert.False(t, ok)
	assert.False(t, secondRan)
}

func TestEmptyChainPassesThrough(t *testing.T) {
	c := NewChain("empty")
	env := Envelope{Topic: "t", Payload: []byte("x")}
	out, ok := c.Run(env)
	require.True(t, ok)
	assert.Equal(t, env, out)
}
