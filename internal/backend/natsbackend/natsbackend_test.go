// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package natsbackend

import (
	"context"
	"testing"
	"time"

	"github.com/agibot-rt/agibotrt/internal/backend"
)

func TestEmbeddedServerPublishSubscribeRoundTrip(t *testing.T) {
	b := New()
	err := b.Initialize(map[string]interface{}{
		"embedded_server":    true,
		"embedded_store_dir": t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })

	received := make(chan backend.Message, 1)
	if err := b.Subscribe("demo.topic", func(ctx context.Context, msg backend.Message) {
		received <- msg
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := b.Publish(context.Background(), backend.Message{
		Topic:    "demo.topic",
		TypeName: "demo.Payload",
		Payload:  []byte("hello"),
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Payload) != "hello" {
			t.Fatalf("unexpected payload: %q", msg.Payload)
		}
		if msg.TypeName != "demo.Payload" {
			t.Fatalf("unexpected type name: %q", msg.TypeName)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivered message")
	}
}

func TestDecodeOptionsDefaultsToExternalURL(t *testing.T) {
	opts := decodeOptions(nil)
	if opts.EmbeddedServer {
		t.Fatal("expected embedded server disabled by default")
	}
	if opts.URL == "" {
		t.Fatal("expected a default external URL")
	}
}

func TestDecodeOptionsEmbeddedServer(t *testing.T) {
	opts := decodeOptions(map[string]interface{}{
		"embedded_server":    true,
		"embedded_store_dir": "/tmp/agibotrt-nats-test",
	})
	if !opts.EmbeddedServer {
		t.Fatal("expected embedded server enabled")
	}
	if opts.EmbeddedStoreDir != "/tmp/agibotrt-nats-test" {
		t.Fatalf("unexpected store dir: %q", opts.EmbeddedStoreDir)
	}
}
