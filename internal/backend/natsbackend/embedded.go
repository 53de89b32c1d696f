// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package natsbackend

import (
	"context"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// embeddedServer wraps a nats-server instance run in-process, so a
// deployment with no external NATS broker can still select the nats
// backend: Options.EmbeddedServer starts one on Initialize and URL is
// ignored in favor of the embedded server's own client URL.
type embeddedServer struct {
	server    *natsserver.Server
	clientURL string
}

func newEmbeddedServer(storeDir string) (*embeddedServer, error) {
	opts := &natsserver.Options{
		ServerName: "agibotrt-embedded",
		Host:       "127.0.0.1",
		Port:       -1, // ephemeral port
		JetStream:  false,
		StoreDir:   storeDir,
		NoLog:      true,
		MaxPayload: 8 * 1024 * 1024,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("natsbackend: create embedded server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("natsbackend: embedded server not ready within timeout")
	}

	return &embeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

func (s *embeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.server.WaitForShutdown()
		return nil
	}
}
