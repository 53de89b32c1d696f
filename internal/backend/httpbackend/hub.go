// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package httpbackend

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/metrics"
)

// hub owns every connected WebSocket client and fans topic envelopes out
// to all of them; it also routes an inbound client envelope to that
// topic's local DeliverFunc subscribers, same as a publish arriving over
// any other wire backend.
type hub struct {
	backend *Backend

	register   chan *wsClient
	unregister chan *wsClient
	inbound    chan envelope

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	done chan struct{}
}

func newHub(b *Backend) *hub {
	return &hub{
		backend:    b,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		inbound:    make(chan envelope, 256),
		clients:    make(map[*wsClient]struct{}),
		done:       make(chan struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			metrics.WSConnections.Inc()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			metrics.WSConnections.Dec()
		case env := <-h.inbound:
			h.deliver(env)
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *hub) deliver(env envelope) {
	h.backend.mu.RLock()
	fns := append([]backend.DeliverFunc(nil), h.backend.deliver[env.Topic]...)
	h.backend.mu.RUnlock()
	metrics.WSMessagesReceived.WithLabelValues(env.Topic).Inc()
	for _, fn := range fns {
		fn(context.Background(), backend.Message{Topic: env.Topic, Payload: env.Payload})
	}
}

// broadcast sends raw (an already-JSON-encoded envelope) to every
// connected client, dropping it for a client whose send buffer is full
// rather than blocking the whole hub on a slow reader.
func (h *hub) broadcast(topic string, raw []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			metrics.WSErrors.WithLabelValues("send_buffer_full").Inc()
		}
	}
}

func (h *hub) close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// wsClient is one connected WebSocket peer.
type wsClient struct {
	id   string
	ip   string
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

const (
	pongWait   = 60 * time.Second
	maxMsgSize = 1 << 20
)

// readPump decodes inbound envelopes and hands them to the hub until the
// connection closes; it owns the only reader of conn so pong handling and
// message reads never race.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("unexpected_close").Inc()
			}
			return
		}
		if limiter := c.hub.backend.wsLimiter; limiter != nil && !limiter.Allow(c.ip) {
			metrics.WSErrors.WithLabelValues("rate_limited").Inc()
			continue
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			metrics.WSErrors.WithLabelValues("invalid_envelope").Inc()
			continue
		}
		select {
		case c.hub.inbound <- env:
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains send and keeps the connection alive with periodic
// pings; it owns the only writer of conn.
func (c *wsClient) writePump(writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				metrics.WSErrors.WithLabelValues("write_failed").Inc()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
