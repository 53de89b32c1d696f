// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package local

import (
	"context"
	"testing"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedBackend(t *testing.T) *Backend {
	t.Helper()
	b := New()
	require.NoError(t, b.Initialize(nil))
	require.NoError(t, b.Start(context.Background()))
	return b
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	require.NoError(t, b.Initialize(nil))
	var a, c []byte
	require.NoError(t, b.Subscribe("/odom", func(ctx context.Context, msg backend.Message) { a = msg.Payload }))
	require.NoError(t, b.Subscribe("/odom", func(ctx context.Context, msg backend.Message) { c = msg.Payload }))
	require.NoError(t, b.Start(context.Background()))

	require.NoError(t, b.Publish(context.Background(), backend.Message{Topic: "/odom", Payload: []byte("x")}))
	assert.Equal(t, []byte("x"), a)
	assert.Equal(t, []byte("x"), c)
}

func TestPublishBeforeStartFails(t *testing.T) {
	b := New()
	require.NoError(t, b.Initialize(nil))
	err := b.Publish(context.Background(), backend.Message{Topic: "/odom"})
	require.Error(t, err)
}

func TestInvokeWithNoHandlerReturnsUnavailable(t *testing.T) {
	b := startedBackend(t)
	method, _ := rpc.ParseMethodName("pb:/missing")
	var got rpc.Result
	err := b.Invoke(rpc.NewContext(context.Background(), rpc.SerializationPB, 0), method, nil, func(r rpc.Result, payload []byte) {
		got = r
	})
	require.NoError(t, err)
	assert.Equal(t, rpc.Unavailable, got.Status)
}

func TestInvokeDispatchesBoundHandler(t *testing.T) {
	b := startedBackend(t)
	method, _ := rpc.ParseMethodName("pb:/echo")
	b.BindHandler(method, func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte) {
		return rpc.Result{Status: rpc.OK}, payload
	})

	var got []byte
	var status rpc.Status
	err := b.Invoke(rpc.NewContext(context.Background(), rpc.SerializationPB, 0), method, []byte("ping"), func(r rpc.Result, payload []byte) {
		status = r.Status
		got = payload
	})
	require.NoError(t, err)
	assert.Equal(t, rpc.OK, status)
	assert.Equal(t, []byte("ping"), got)
}

func TestShutdownIsIdempotent(t *testing.T) {
	b := startedBackend(t)
	require.NoError(t, b.Shutdown(context.Background()))
	require.NoError(t, b.Shutdown(context.Background()))
}
