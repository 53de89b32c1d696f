// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package monitortap

import (
	"context"
	"testing"
	"time"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

func initTap(t *testing.T) *Backend {
	t.Helper()
	b := New()
	if err := b.Initialize(nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

func startTap(t *testing.T) *Backend {
	t.Helper()
	b := initTap(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return b
}

func TestPublishIsTapOnly(t *testing.T) {
	b := initTap(t)
	if err := b.RegisterPublishType("odom", "pb.Odometry"); err != nil {
		t.Fatalf("RegisterPublishType: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := b.Publish(context.Background(), backend.Message{Topic: "odom", Payload: []byte("xyz")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(context.Background(), backend.Message{Topic: "odom", Payload: []byte("abcd")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	snap := b.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 tapped topic, got %d", len(snap))
	}
	if snap[0].Topic != "odom" || snap[0].PublishCount != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap[0])
	}
	if snap[0].LastPayloadLen != 4 {
		t.Fatalf("expected last payload length 4, got %d", snap[0].LastPayloadLen)
	}
}

func TestPublishWithoutRegisterStillTaps(t *testing.T) {
	b := startTap(t)
	if err := b.Publish(context.Background(), backend.Message{Topic: "ad_hoc", Payload: []byte("x")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	snap := b.Snapshot()
	if len(snap) != 1 || snap[0].PublishCount != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestInvokeUnsupported(t *testing.T) {
	b := startTap(t)
	method, err := rpc.ParseMethodName("pb:/svc/echo")
	if err != nil {
		t.Fatalf("ParseMethodName: %v", err)
	}
	rctx := rpc.NewContext(context.Background(), method.Serialization, time.Second)
	defer rctx.Release()
	if err := b.Invoke(rctx, method, nil, func(rpc.Result, []byte) {}); err == nil {
		t.Fatal("expected Invoke to fail on monitortap")
	}
}

func TestPublishFeedsHzCalculator(t *testing.T) {
	b := startTap(t)
	if err := b.Publish(context.Background(), backend.Message{Topic: "odom", TypeName: "pb.Odometry", Payload: []byte("x")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(context.Background(), backend.Message{Topic: "odom", TypeName: "pb.Odometry", Payload: []byte("xy")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	snap := b.HzSnapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 tracked topic in hz snapshot, got %d", len(snap))
	}
}

func TestRegisterServiceFuncUnsupported(t *testing.T) {
	b := startTap(t)
	method, err := rpc.ParseMethodName("pb:/svc/echo")
	if err != nil {
		t.Fatalf("ParseMethodName: %v", err)
	}
	if err := b.RegisterServiceFunc(method); err == nil {
		t.Fatal("expected RegisterServiceFunc to fail on monitortap")
	}
}
