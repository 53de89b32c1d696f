// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package modulectx

import (
	"context"
	"testing"
	"time"

	"github.com/agibot-rt/agibotrt/internal/backend"
	locbackend "github.com/agibot-rt/agibotrt/internal/backend/local"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/resource"
	"github.com/agibot-rt/agibotrt/internal/rpc"
	"github.com/agibot-rt/agibotrt/internal/task"
	"github.com/agibot-rt/agibotrt/internal/typeconv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jointState struct {
	Name     string
	Position float64
}

func newTestContext(t *testing.T) (*Context, *locbackend.Backend) {
	t.Helper()
	lb := locbackend.New()
	require.NoError(t, lb.Initialize(nil))

	types := typeconv.NewRegistry()
	typeconv.RegisterDirect[jointState](types, typeconv.NewJSONCodec("pb:/joint_state"))

	channels := channel.NewRegistry()
	require.NoError(t, channels.AddPublishRule(`^/.*$`, []string{"local"}))
	require.NoError(t, channels.AddSubscribeRule(`^/.*$`, []string{"local"}))

	rpcs := rpc.NewRegistry()
	require.NoError(t, rpcs.AddClientRule(`^/.*$`, []string{"local"}))
	require.NoError(t, rpcs.AddServerRule(`^/.*$`, []string{"local"}))

	resources := resource.NewManager()
	executors := map[string]task.Executor{"main": task.NewSingleThread("main", 0)}
	backends := map[string]backend.Backend{"local": lb}

	c := New("test_module", resources, types, channels, rpcs, executors, backends)
	c.SetPhase(PhaseConfiguring)
	return c, lb
}

func TestInitOutsideConfigurePhaseFails(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetPhase(PhaseStarted)
	_, err := InitPublisher[jointState](c, "/joint_state")
	require.Error(t, err)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	c, lb := newTestContext(t)

	pubCh, err := InitPublisher[jointState](c, "/joint_state")
	require.NoError(t, err)
	subCh, err := InitSubscriber[jointState](c, "/joint_state")
	require.NoError(t, err)

	received := make(chan jointState, 1)
	require.NoError(t, SubscribeInline(subCh, func(ctx context.Context, msg jointState) {
		received <- msg
	}))

	require.NoError(t, lb.Start(context.Background()))
	c.SetPhase(PhaseStarted)
	require.NoError(t, Publish(context.Background(), pubCh, jointState{Name: "hip", Position: 1.5}))

	select {
	case msg := <-received:
		assert.Equal(t, "hip", msg.Name)
		assert.Equal(t, 1.5, msg.Position)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestPublishBeforeStartedFails(t *testing.T) {
	c, _ := newTestContext(t)
	pubCh, err := InitPublisher[jointState](c, "/joint_state")
	require.NoError(t, err)
	err = Publish(context.Background(), pubCh, jointState{Name: "hip"})
	require.Error(t, err)
}

func TestCallServeInlineRoundTrip(t *testing.T) {
	c, lb := newTestContext(t)

	srv, err := InitServer[jointState, jointState](c, "pb:/echo")
	require.NoError(t, err)
	require.NoError(t, ServeInline(srv, func(ctx *rpc.Context, req jointState, resp *jointState) rpc.Status {
		*resp = req
		return rpc.OK
	}))

	client, err := InitClient[jointState, jointState](c, "pb:/echo")
	require.NoError(t, err)

	require.NoError(t, lb.Start(context.Background()))
	c.SetPhase(PhaseStarted)
	rctx := rpc.NewContext(context.Background(), rpc.SerializationPB, time.Second)
	var resp jointState
	status, err := Call(client, rctx, jointState{Name: "knee", Position: 0.3}, &resp).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rpc.OK, status)
	assert.Equal(t, "knee", resp.Name)
	assert.Equal(t, 0.3, resp.Position)
}

func TestInitExecutorMissingIsFatal(t *testing.T) {
	c, _ := newTestContext(t)
	_, err := c.InitExecutor("does_not_exist")
	require.Error(t, err)
}

func TestInitExecutorReturnsThreadSafeHandle(t *testing.T) {
	c, _ := newTestContext(t)
	h, err := c.InitExecutor("main")
	require.NoError(t, err)
	assert.True(t, h.ThreadSafe())
}

func TestCheckLogsButReturnsCondition(t *testing.T) {
	c, _ := newTestContext(t)
	assert.True(t, c.Check(true, "should not warn"))
	assert.False(t, c.Check(false, "expected failure path"))
}

func TestOkTracksLifecyclePhase(t *testing.T) {
	c, _ := newTestContext(t)
	assert.False(t, c.Ok())
	c.SetPhase(PhaseStarted)
	assert.True(t, c.Ok())
	c.SetPhase(PhaseShuttingDown)
	assert.False(t, c.Ok())
}
