// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package tcpbackend implements a raw TCP transport: no corpus library
// targets a bare stream-socket backend below HTTP/MQTT/NATS, so this
// backend is built directly on stdlib net, length-prefixed JSON framing
// carrying an opaque payload, the same framing style grpcbackend uses
// around its gRPC envelope but without the gRPC machinery.
package tcpbackend

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// Options configures the tcp backend. A backend that sets ListenAddr acts
// as a server accepting any number of peer connections; one that sets PeerAddr
// dials out. Setting both is legal for a symmetric mesh node.
type Options struct {
	ListenAddr  string        `koanf:"listen_addr"`
	PeerAddr    string        `koanf:"peer_addr"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

func defaultOptions() Options {
	return Options{DialTimeout: 5 * time.Second}
}

// frameKind discriminates the three message shapes multiplexed over the
// single TCP connection.
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

// Backend is the raw TCP wire transport.
type Backend struct {
	sm   *backend.StateMachine
	opts Options

	listener net.Listener

	mu       sync.Mutex
	conns    []net.Conn
	deliver  map[string][]backend.DeliverFunc
	pending  map[string]backend.InvokeCallback
	handlers map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)

	channels *channel.Registry
	rpcs     *rpc.Registry
	log      *logging.EventLogger
}

// New returns an uninitialized tcp backend.
func New() *Backend {
	return &Backend{
		sm:       backend.NewStateMachine("tcp"),
		deliver:  make(map[string][]backend.DeliverFunc),
		pending:  make(map[string]backend.InvokeCallback),
		handlers: make(map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)),
		log:      logging.NewEventLogger(),
	}
}

func (b *Backend) Name() string { return "tcp" }

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

// Initialize opens the listening socket, if configured; dialing out
// happens in Start so no traffic is accepted before PhaseStarted.
func (b *Backend) Initialize(opts map[string]interface{}) error {
	b.opts = decodeOptions(opts)
	if b.opts.ListenAddr != "" {
		ln, err := net.Listen("tcp", b.opts.ListenAddr)
		if err != nil {
			return fmt.Errorf("tcpbackend: listen %s: %w", b.opts.ListenAddr, err)
		}
		b.listener = ln
	}
	return b.sm.Transition(backend.PhaseInit)
}

// Start begins accepting inbound connections and dials the configured
// peer, if any.
func (b *Backend) Start(ctx context.Context) error {
	if b.listener != nil {
		go b.acceptLoop()
	}
	if b.opts.PeerAddr != "" {
		conn, err := net.DialTimeout("tcp", b.opts.PeerAddr, b.opts.DialTimeout)
		if err != nil {
			return fmt.Errorf("tcpbackend: dial %s: %w", b.opts.PeerAddr, err)
		}
		b.addConn(conn)
	}
	return b.sm.Transition(backend.PhaseStarted)
}

func (b *Backend) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		b.addConn(conn)
	}
}

func (b *Backend) addConn(conn net.Conn) {
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()
	go b.readLoop(conn)
}

func (b *Backend) readLoop(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		hdr, payload, err := readFrame(r)
		if err != nil {
			return
		}
		b.dispatch(hdr, payload)
	}
}

func (b *Backend) dispatch(hdr frameHeader, payload []byte) {
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
		conn := b.firstConn()
		b.mu.Unlock()
		if !ok || conn == nil {
			return
		}
		rctx := rpc.NewContext(context.Background(), method.Serialization, 0)
		result, reply := handler(rctx, payload)
		rctx.Release()
		_ = writeFrame(conn, frameHeader{Kind: frameResponse, CorrID: hdr.CorrID, Status: int(result.Status)}, reply)
	}
}

func (b *Backend) firstConn() net.Conn {
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[0]
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

// Subscribe registers fn for topic; delivery comes from any connected peer's
// publish frames.
func (b *Backend) Subscribe(topic string, fn backend.DeliverFunc) error {
	if err := b.sm.Require(backend.PhaseInit); err != nil {
		return err
	}
	b.mu.Lock()
	b.deliver[topic] = append(b.deliver[topic], fn)
	b.mu.Unlock()
	return nil
}

// Publish writes a publish frame to every connected peer.
func (b *Backend) Publish(ctx context.Context, msg backend.Message) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	hdr := frameHeader{Kind: framePublish, Topic: msg.Topic, TypeName: msg.TypeName}
	b.mu.Lock()
	conns := append([]net.Conn(nil), b.conns...)
	b.mu.Unlock()
	var firstErr error
	for _, conn := range conns {
		if err := writeFrame(conn, hdr, msg.Payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("tcpbackend: publish %s: %w", msg.Topic, firstErr)
	}
	b.log.LogPublish(ctx, msg.Topic, b.Name())
	return nil
}

// Invoke sends a request frame to the first connected peer and resolves
// cb from the matching response frame or the context deadline, whichever
// comes first.
func (b *Backend) Invoke(rctx *rpc.Context, method rpc.MethodName, payload []byte, cb backend.InvokeCallback) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	b.mu.Lock()
	conn := b.firstConn()
	b.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("tcpbackend: invoke %s: no connected peer", method)
	}
	corr := uuid.NewString()
	b.mu.Lock()
	b.pending[corr] = cb
	b.mu.Unlock()

	hdr := frameHeader{Kind: frameRequest, Method: method.String(), CorrID: corr}
	if err := writeFrame(conn, hdr, payload); err != nil {
		b.mu.Lock()
		delete(b.pending, corr)
		b.mu.Unlock()
		return fmt.Errorf("tcpbackend: invoke %s: %w", method, err)
	}

	go func() {
		<-rctx.Done()
		b.mu.Lock()
		_, stillPending := b.pending[corr]
		delete(b.pending, corr)
		b.mu.Unlock()
		if stillPending {
			cb(rpc.Result{Status: rpc.Timeout, Message: "tcp rpc deadline exceeded"}, nil)
		}
	}()
	return nil
}

// BindHandler wires a modulectx-registered handler for method; requests
// are served from the shared dispatch goroutine of each connection.
func (b *Backend) BindHandler(method rpc.MethodName, fn func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)) {
	b.mu.Lock()
	b.handlers[method] = fn
	b.mu.Unlock()
}

// Shutdown closes every connection and the listener.
func (b *Backend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	for _, conn := range b.conns {
		_ = conn.Close()
	}
	b.conns = nil
	b.mu.Unlock()
	if b.listener != nil {
		_ = b.listener.Close()
	}
	return b.sm.Transition(backend.PhaseShutdown)
}

// writeFrame writes a [4-byte header length][header JSON][payload] frame.
func writeFrame(w io.Writer, hdr frameHeader, payload []byte) error {
	hdrBytes, err := json.Marshal(hdr)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hdrBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(hdrBytes); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// readFrame reads one writeFrame-encoded frame.
func readFrame(r io.Reader) (frameHeader, []byte, error) {
	var hdr frameHeader
	hdrBytes, err := readChunk(r)
	if err != nil {
		return hdr, nil, err
	}
	if err := json.Unmarshal(hdrBytes, &hdr); err != nil {
		return hdr, nil, err
	}
	payload, err := readChunk(r)
	return hdr, payload, err
}

func readChunk(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
