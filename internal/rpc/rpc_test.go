// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/agibot-rt/agibotrt/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addReq struct{ A, B int }
type addResp struct{ Sum int }

func TestParseMethodNameNormalizesLeadingSlash(t *testing.T) {
	m, err := ParseMethodName("pb:arm/move")
	require.NoError(t, err)
	assert.Equal(t, SerializationPB, m.Serialization)
	assert.Equal(t, "/arm/move", m.Path)
	assert.Equal(t, "pb:/arm/move", m.String())
}

func TestParseMethodNameRejectsUnknownSerialization(t *testing.T) {
	_, err := ParseMethodName("soap:/arm/move")
	require.Error(t, err)
}

func TestParseMethodNameRejectsMissingPrefix(t *testing.T) {
	_, err := ParseMethodName("/arm/move")
	require.Error(t, err)
}

func TestCrossSerializationNamesDoNotAlias(t *testing.T) {
	r := NewRegistry()
	pb, _ := ParseMethodName("pb:/move")
	ros2, _ := ParseMethodName("ros2:/move")

	require.NoError(t, RegisterVoid[addReq, addResp](r, pb, func(req addReq, resp *addResp) {
		resp.Sum = req.A + req.B
	}))
	require.NoError(t, RegisterVoid[addReq, addResp](r, ros2, func(req addReq, resp *addResp) {
		resp.Sum = -1
	}))

	pbHandler, ok := r.Lookup(pb)
	require.True(t, ok)
	ros2Handler, ok := r.Lookup(ros2)
	require.True(t, ok)
	assert.NotNil(t, pbHandler)
	assert.NotNil(t, ros2Handler)
}

func TestRegisterHandlerRejectsDuplicateMethod(t *testing.T) {
	r := NewRegistry()
	m, _ := ParseMethodName("pb:/dup")
	require.NoError(t, RegisterVoid[addReq, addResp](r, m, func(req addReq, resp *addResp) {}))
	err := RegisterVoid[addReq, addResp](r, m, func(req addReq, resp *addResp) {})
	require.Error(t, err)
}

func TestRegisterSyncDispatchesAndReturnsOK(t *testing.T) {
	r := NewRegistry()
	m, _ := ParseMethodName("pb:/add")
	require.NoError(t, RegisterSync[addReq, addResp](r, m, func(req addReq, resp *addResp) Status {
		resp.Sum = req.A + req.B
		return OK
	}))

	handler, ok := r.Lookup(m)
	require.True(t, ok)

	ctx := NewContext(context.Background(), SerializationPB, time.Second)
	defer ctx.Release()
	resp := &addResp{}
	result, err := handler(ctx, addReq{A: 2, B: 3}, resp).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OK, result.Status)
	assert.Equal(t, 5, resp.Sum)
}

func TestRegisterTaskPropagatesStatus(t *testing.T) {
	r := NewRegistry()
	m, _ := ParseMethodName("pb:/slow_add")
	require.NoError(t, RegisterTask[addReq, addResp](r, m, func(ctx *Context, req addReq, resp *addResp) *task.Task[Status] {
		return task.Go(ctx.Underlying(), func(c context.Context) (Status, error) {
			resp.Sum = req.A + req.B
			return OK, nil
		})
	}))

	handler, ok := r.Lookup(m)
	require.True(t, ok)

	ctx := NewContext(context.Background(), SerializationPB, time.Second)
	defer ctx.Release()
	resp := &addResp{}
	result, err := handler(ctx, addReq{A: 10, B: 20}, resp).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OK, result.Status)
	assert.Equal(t, 30, resp.Sum)
}

func TestBackendsForClientFirstMatchWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddClientRule(`^/arm/.*$`, []string{"grpcbackend"}))
	require.NoError(t, r.AddClientRule(`^/.*$`, []string{"local"}))

	m, _ := ParseMethodName("pb:/arm/move")
	backends, ok := r.BackendsForClient(m)
	require.True(t, ok)
	assert.Equal(t, []string{"grpcbackend"}, backends)

	other, _ := ParseMethodName("pb:/gripper/open")
	backends, ok = r.BackendsForClient(other)
	require.True(t, ok)
	assert.Equal(t, []string{"local"}, backends)
}

func TestBackendsForClientNoMatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddClientRule(`^/arm/.*$`, []string{"grpcbackend"}))
	m, _ := ParseMethodName("pb:/gripper/open")
	_, ok := r.BackendsForClient(m)
	assert.False(t, ok)
}

func TestContextReleaseCancelsDeadline(t *testing.T) {
	ctx := NewContext(context.Background(), SerializationPB, 10*time.Millisecond)
	select {
	case <-ctx.Done():
		t.Fatal("context done before deadline")
	default:
	}
	ctx.Release()
	<-ctx.Done()
	assert.Error(t, ctx.Err())
}

func TestContextMetadataRoundTrip(t *testing.T) {
	ctx := NewContext(context.Background(), SerializationPB, time.Second)
	defer ctx.Release()
	ctx.SetMetadata("trace_id", "abc123")
	v, ok := ctx.Metadata("trace_id")
	require.True(t, ok)
	assert.Equal(t, "abc123", v)
}

func TestResultErrorFormatting(t *testing.T) {
	r := Result{Status: Unavailable, Code: 14, Message: "connection refused"}
	assert.Contains(t, r.Error(), "Unavailable")
	assert.Contains(t, r.Error(), "connection refused")
	assert.False(t, r.Ok())
	assert.True(t, Result{Status: OK}.Ok())
}
