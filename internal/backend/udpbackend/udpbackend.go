// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package udpbackend implements a raw UDP transport: like tcpbackend, no
// corpus library targets bare datagram sockets, so this is built
// directly on stdlib net. Each datagram is self-contained: a
// length-prefixed JSON header followed by the payload, which runs to the
// end of the datagram, since there is no stream to frame across packet
// boundaries.
package udpbackend

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// Options configures the udp backend.
type Options struct {
	ListenAddr  string `koanf:"listen_addr"`
	PeerAddr    string `koanf:"peer_addr"`
	MaxDatagram int    `koanf:"max_datagram"`
}

func defaultOptions() Options {
	return Options{MaxDatagram: 65507}
}

type frameKind string

const (
	framePublish  frameKind = "pub"
	frameRequest  frameKind = "req"
	frameResponse frameKind = "resp"
)

type frameHeader struct {
	Kind     frameKind `json:"kind"`
	Topic    string    `json:"topic,omitempty"`
	TypeName string    `json:"type_name,omitempty"`
	Method   string    `json:"method,omitempty"`
	CorrID   string    `json:"corr_id,omitempty"`
	Status   int       `json:"status,omitempty"`
}

// Backend is the raw UDP wire transport.
type Backend struct {
	sm   *backend.StateMachine
	opts Options

	conn   *net.UDPConn
	peer   *net.UDPAddr
	peerMu sync.RWMutex

	mu       sync.Mutex
	deliver  map[string][]backend.DeliverFunc
	pending  map[string]backend.InvokeCallback
	handlers map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)

	channels *channel.Registry
	rpcs     *rpc.Registry
	log      *logging.EventLogger
}

// New returns an uninitialized udp backend.
func New() *Backend {
	return &Backend{
		sm:       backend.NewStateMachine("udp"),
		deliver:  make(map[string][]backend.DeliverFunc),
		pending:  make(map[string]backend.InvokeCallback),
		handlers: make(map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)),
		log:      logging.NewEventLogger(),
	}
}

func (b *Backend) Name() string { return "udp" }

func (b *Backend) SetChannelRegistry(r *channel.Registry) { b.channels = r }
func (b *Backend) SetRpcRegistry(r *rpc.Registry)         { b.rpcs = r }

func decodeOptions(raw map[string]interface{}) Options {
	o := defaultOptions()
	if raw == nil {
		return o
	}
	if v, ok := raw["listen_addr"].(string); ok {
		o.ListenAddr = v
	}
	if v, ok := raw["peer_addr"].(string); ok {
		o.PeerAddr = v
	}
	return o
}

// Initialize binds the local UDP socket. ListenAddr may be empty for a
// client-only node, in which case the OS assigns an ephemeral port.
func (b *Backend) Initialize(opts map[string]interface{}) error {
	b.opts = decodeOptions(opts)
	laddr, err := net.ResolveUDPAddr("udp", b.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("udpbackend: resolve %s: %w", b.opts.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("udpbackend: listen %s: %w", b.opts.ListenAddr, err)
	}
	b.conn = conn
	if b.opts.PeerAddr != "" {
		peer, err := net.ResolveUDPAddr("udp", b.opts.PeerAddr)
		if err != nil {
			return fmt.Errorf("udpbackend: resolve peer %s: %w", b.opts.PeerAddr, err)
		}
		b.peer = peer
	}
	return b.sm.Transition(backend.PhaseInit)
}

// Start begins the receive loop.
func (b *Backend) Start(ctx context.Context) error {
	go b.recvLoop()
	return b.sm.Transition(backend.PhaseStarted)
}

func (b *Backend) recvLoop() {
	buf := make([]byte, b.opts.MaxDatagram)
	for {
		n, addr, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		hdr, payload, err := decodeDatagram(buf[:n])
		if err != nil {
			continue
		}
		b.learnPeer(addr)
		b.dispatch(addr, hdr, payload)
	}
}

// learnPeer remembers the sender as the reply destination when no static
// peer was configured, matching how a UDP server with no a-priori client
// address must discover it from the first datagram.
func (b *Backend) learnPeer(addr *net.UDPAddr) {
	b.peerMu.Lock()
	defer b.peerMu.Unlock()
	if b.peer == nil {
		b.peer = addr
	}
}

func (b *Backend) dispatch(from *net.UDPAddr, hdr frameHeader, payload []byte) {
	switch hdr.Kind {
	case framePublish:
		b.mu.Lock()
		fns := append([]backend.DeliverFunc(nil), b.deliver[hdr.Topic]...)
		b.mu.Unlock()
		for _, fn := range fns {
			fn(context.Background(), backend.Message{Topic: hdr.Topic, TypeName: hdr.TypeName, Payload: payload})
		}
	case frameResponse:
		b.mu.Lock()
		cb, ok := b.pending[hdr.CorrID]
		if ok {
			delete(b.pending, hdr.CorrID)
		}
		b.mu.Unlock()
		if ok {
			cb(rpc.Result{Status: rpc.Status(hdr.Status)}, payload)
		}
	case frameRequest:
		method, err := rpc.ParseMethodName(hdr.Method)
		if err != nil {
			return
		}
		b.mu.Lock()
		handler, ok := b.handlers[method]
		b.mu.Unlock()
		if !ok {
			return
		}
		rctx := rpc.NewContext(context.Background(), method.Serialization, 0)
		result, reply := handler(rctx, payload)
		rctx.Release()
		dg, err := encodeDatagram(frameHeader{Kind: frameResponse, CorrID: hdr.CorrID, Status: int(result.Status)}, reply)
		if err == nil {
			_, _ = b.conn.WriteToUDP(dg, from)
		}
	}
}

func (b *Backend) RegisterPublishType(topic, typeName string) error {
	return b.sm.Require(backend.PhaseInit)
}

func (b *Backend) RegisterServiceFunc(method rpc.MethodName) error {
	return b.sm.Require(backend.PhaseInit)
}

func (b *Backend) RegisterClientFunc(method rpc.MethodName) error {
	return b.sm.Require(backend.PhaseInit)
}

// Subscribe registers fn for topic.
func (b *Backend) Subscribe(topic string, fn backend.DeliverFunc) error {
	if err := b.sm.Require(backend.PhaseInit); err != nil {
		return err
	}
	b.mu.Lock()
	b.deliver[topic] = append(b.deliver[topic], fn)
	b.mu.Unlock()
	return nil
}

// Publish sends msg as a single best-effort datagram to the configured or
// learned peer.
func (b *Backend) Publish(ctx context.Context, msg backend.Message) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	peer := b.currentPeer()
	if peer == nil {
		return fmt.Errorf("udpbackend: publish %s: no peer address known", msg.Topic)
	}
	dg, err := encodeDatagram(frameHeader{Kind: framePublish, Topic: msg.Topic, TypeName: msg.TypeName}, msg.Payload)
	if err != nil {
		return fmt.Errorf("udpbackend: encode %s: %w", msg.Topic, err)
	}
	if _, err := b.conn.WriteToUDP(dg, peer); err != nil {
		return fmt.Errorf("udpbackend: publish %s: %w", msg.Topic, err)
	}
	b.log.LogPublish(ctx, msg.Topic, b.Name())
	return nil
}

func (b *Backend) currentPeer() *net.UDPAddr {
	b.peerMu.RLock()
	defer b.peerMu.RUnlock()
	return b.peer
}

// Invoke sends a request datagram and resolves cb from the matching
// response datagram or the context deadline, whichever comes first; UDP
// gives no delivery guarantee so a dropped request simply times out.
func (b *Backend) Invoke(rctx *rpc.Context, method rpc.MethodName, payload []byte, cb backend.InvokeCallback) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	peer := b.currentPeer()
	if peer == nil {
		return fmt.Errorf("udpbackend: invoke %s: no peer address known", method)
	}
	corr := uuid.NewString()
	b.mu.Lock()
	b.pending[corr] = cb
	b.mu.Unlock()

	dg, err := encodeDatagram(frameHeader{Kind: frameRequest, Method: method.String(), CorrID: corr}, payload)
	if err != nil {
		b.mu.Lock()
		delete(b.pending, corr)
		b.mu.Unlock()
		return fmt.Errorf("udpbackend: encode invoke %s: %w", method, err)
	}
	if _, err := b.conn.WriteToUDP(dg, peer); err != nil {
		b.mu.Lock()
		delete(b.pending, corr)
		b.mu.Unlock()
		return fmt.Errorf("udpbackend: invoke %s: %w", method, err)
	}

	go func() {
		<-rctx.Done()
		b.mu.Lock()
		_, stillPending := b.pending[corr]
		delete(b.pending, corr)
		b.mu.Unlock()
		if stillPending {
			cb(rpc.Result{Status: rpc.Timeout, Message: "udp rpc deadline exceeded"}, nil)
		}
	}()
	return nil
}

// BindHandler wires a modulectx-registered handler for method.
func (b *Backend) BindHandler(method rpc.MethodName, fn func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)) {
	b.mu.Lock()
	b.handlers[method] = fn
	b.mu.Unlock()
}

// Shutdown closes the socket, unblocking recvLoop.
func (b *Backend) Shutdown(ctx context.Context) error {
	if b.conn != nil {
		_ = b.conn.Close()
	}
	return b.sm.Transition(backend.PhaseShutdown)
}

func encodeDatagram(hdr frameHeader, payload []byte) ([]byte, error) {
	hdrBytes, err := json.Marshal(hdr)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4+len(hdrBytes)+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(hdrBytes)))
	copy(buf[4:], hdrBytes)
	copy(buf[4+len(hdrBytes):], payload)
	return buf, nil
}

func decodeDatagram(dg []byte) (frameHeader, []byte, error) {
	var hdr frameHeader
	if len(dg) < 4 {
		return hdr, nil, fmt.Errorf("udpbackend: datagram too short")
	}
	n := binary.BigEndian.Uint32(dg[:4])
	if int(4+n) > len(dg) {
		return hdr, nil, fmt.Errorf("udpbackend: truncated header")
	}
	if err := json.Unmarshal(dg[4:4+n], &hdr); err != nil {
		return hdr, nil, err
	}
	return hdr, dg[4+n:], nil
}
