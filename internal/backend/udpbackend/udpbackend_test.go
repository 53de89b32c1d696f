// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package udpbackend

import (
	"context"
	"testing"
	"time"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

func initPair(t *testing.T) (server, client *Backend) {
	t.Helper()
	server = New()
	if err := server.Initialize(map[string]interface{}{"listen_addr": "127.0.0.1:0"}); err != nil {
		t.Fatalf("server Initialize: %v", err)
	}

	client = New()
	if err := client.Initialize(map[string]interface{}{
		"listen_addr": "127.0.0.1:0",
		"peer_addr":   server.conn.LocalAddr().String(),
	}); err != nil {
		t.Fatalf("client Initialize: %v", err)
	}
	return server, client
}

func startPair(t *testing.T) (server, client *Backend) {
	t.Helper()
	server, client = initPair(t)
	startInitializedPair(t, server, client)
	return server, client
}

func startInitializedPair(t *testing.T, server, client *Backend) {
	t.Helper()
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("client Start: %v", err)
	}

	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
		_ = client.Shutdown(context.Background())
	})
	time.Sleep(20 * time.Millisecond)
}

func TestPublishDeliver(t *testing.T) {
	server, client := initPair(t)

	received := make(chan backend.Message, 1)
	if err := server.Subscribe("telemetry", func(ctx context.Context, msg backend.Message) {
		received <- msg
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	startInitializedPair(t, server, client)

	if err := client.Publish(context.Background(), backend.Message{Topic: "telemetry", Payload: []byte("hello")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Topic != "telemetry" || string(msg.Payload) != "hello" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestInvoke(t *testing.T) {
	server, client := startPair(t)

	method, err := rpc.ParseMethodName("pb:/svc/echo")
	if err != nil {
		t.Fatalf("ParseMethodName: %v", err)
	}
	server.BindHandler(method, func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte) {
		return rpc.Result{Status: rpc.OK}, payload
	})

	rctx := rpc.NewContext(context.Background(), method.Serialization, 2*time.Second)
	defer rctx.Release()

	result := make(chan rpc.Result, 1)
	reply := make(chan []byte, 1)
	if err := client.Invoke(rctx, method, []byte("ping"), func(r rpc.Result, payload []byte) {
		result <- r
		reply <- payload
	}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	select {
	case r := <-result:
		if !r.Ok() {
			t.Fatalf("result not ok: %+v", r)
		}
		if string(<-reply) != "ping" {
			t.Fatal("unexpected reply payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invoke reply")
	}
}
