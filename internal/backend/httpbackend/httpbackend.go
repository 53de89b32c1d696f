// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package httpbackend implements the HTTP/WebSocket wire backend: a chi
// router exposes one POST endpoint per bound RPC method plus a
// /v1/ws upgrade, and every connected WebSocket client is a channel
// subscriber — Publish fans a topic envelope out to every client, and an
// inbound client envelope is delivered to that topic's local
// subscribers, the same hub/client split internal/websocket used before
// it carried a single domain-typed Message instead of a generic topic.
package httpbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/metrics"
	"github.com/agibot-rt/agibotrt/internal/middleware"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// Options configures the http backend.
type Options struct {
	ListenAddr         string        `koanf:"listen_addr"`
	WSPath             string        `koanf:"ws_path"`
	WriteTimeout       time.Duration `koanf:"write_timeout"`
	PingInterval       time.Duration `koanf:"ping_interval"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs      int           `koanf:"rate_limit_requests"`
	RateLimitWindow    time.Duration `koanf:"rate_limit_window"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
}

func defaultOptions() Options {
	return Options{
		ListenAddr:         "127.0.0.1:8765",
		WSPath:             "/v1/ws",
		WriteTimeout:       10 * time.Second,
		PingInterval:       30 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		RateLimitReqs:      100,
		RateLimitWindow:    time.Second,
		CORSAllowedOrigins: []string{"*"},
	}
}

// envelope is the wire shape every WebSocket frame carries, in both
// directions: a topic name and an opaque, already wire-encoded payload.
type envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Backend is the HTTP + WebSocket wire transport.
type Backend struct {
	sm   *backend.StateMachine
	opts Options

	router   *chi.Mux
	server   *http.Server
	hub      *hub
	listener net.Listener
	// wsLimiter throttles inbound WebSocket envelopes per client IP (all
	// connections from one IP share a bucket); it
	// guards a long-lived duplex socket, a shape go-chi/httprate (built
	// for one-shot http.Handler requests) cannot reach, so it stays a
	// token-bucket limiter checked directly from each client's readPump.
	wsLimiter *middleware.RateLimiter
	perf      *middleware.PerformanceMonitor

	mu       sync.RWMutex
	deliver  map[string][]backend.DeliverFunc
	handlers map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)

	channels *channel.Registry
	rpcs     *rpc.Registry
	log      *logging.EventLogger
}

// New returns an uninitialized http backend.
func New() *Backend {
	return &Backend{
		sm:       backend.NewStateMachine("http"),
		deliver:  make(map[string][]backend.DeliverFunc),
		handlers: make(map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)),
		log:      logging.NewEventLogger(),
	}
}

func (b *Backend) Name() string { return "http" }

func (b *Backend) SetChannelRegistry(r *channel.Registry) { b.channels = r }
func (b *Backend) SetRpcRegistry(r *rpc.Registry)         { b.rpcs = r }

func decodeOptions(raw map[string]interface{}) Options {
	o := defaultOptions()
	if raw == nil {
		return o
	}
	if v, ok := raw["listen_addr"].(string); ok && v != "" {
		o.ListenAddr = v
	}
	if v, ok := raw["ws_path"].(string); ok && v != "" {
		o.WSPath = v
	}
	if v, ok := raw["rate_limit_requests"].(int); ok && v > 0 {
		o.RateLimitReqs = v
	}
	if v, ok := raw["cors_allowed_origins"].([]string); ok && len(v) > 0 {
		o.CORSAllowedOrigins = v
	}
	return o
}

// Initialize builds the chi router and WebSocket hub; the listener isn't
// opened until Start so no traffic is accepted before PhaseStarted.
func (b *Backend) Initialize(opts map[string]interface{}) error {
	b.opts = decodeOptions(opts)
	b.hub = newHub(b)
	b.wsLimiter = middleware.NewRateLimiter(b.opts.RateLimitReqs, b.opts.RateLimitWindow)
	b.perf = middleware.NewPerformanceMonitor(4096)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(adaptMiddleware(middleware.RequestID))
	r.Use(adaptMiddleware(middleware.PrometheusMetrics))
	r.Use(adaptMiddleware(middleware.Compression))
	r.Use(b.perf.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   b.opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(b.opts.RateLimitReqs, b.opts.RateLimitWindow))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get(b.opts.WSPath, b.hub.serveWS)
	r.Post("/v1/rpc/*", b.serveRPC)

	b.router = r
	b.server = &http.Server{Addr: b.opts.ListenAddr, Handler: r}

	return b.sm.Transition(backend.PhaseInit)
}

// Stats reports aggregated per-endpoint latency percentiles over the
// most recent 4096 requests (the PerformanceMonitor window), keyed by
// method+path.
func (b *Backend) Stats() []middleware.EndpointStats {
	return b.perf.GetStats()
}

// adaptMiddleware adapts a func(http.HandlerFunc) http.HandlerFunc
// middleware to chi's func(http.Handler) http.Handler convention.
func adaptMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Start opens the listener and begins serving in the background.
func (b *Backend) Start(ctx context.Context) error {
	go b.hub.run()
	ln, err := net.Listen("tcp", b.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("httpbackend: listen %s: %w", b.opts.ListenAddr, err)
	}
	b.listener = ln
	go func() {
		if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.log.Error("httpbackend: serve failed", "error", err.Error())
		}
	}()
	return b.sm.Transition(backend.PhaseStarted)
}

// Addr returns the listener's actual address, including the resolved
// port when ListenAddr requested an ephemeral one. Valid after Start.
func (b *Backend) Addr() string {
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
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

// Subscribe registers fn to receive every message a WebSocket client
// sends on topic. Messages sent through this backend's own Publish go
// only to WebSocket clients and are not delivered to fn.
func (b *Backend) Subscribe(topic string, fn backend.DeliverFunc) error {
	if err := b.sm.Require(backend.PhaseInit); err != nil {
		return err
	}
	b.mu.Lock()
	b.deliver[topic] = append(b.deliver[topic], fn)
	b.mu.Unlock()
	return nil
}

// Publish fans msg out to every connected WebSocket client.
func (b *Backend) Publish(ctx context.Context, msg backend.Message) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	env := envelope{Topic: msg.Topic, Payload: msg.Payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("httpbackend: encode envelope: %w", err)
	}
	b.hub.broadcast(msg.Topic, raw)
	b.log.LogPublish(ctx, msg.Topic, b.Name())
	metrics.WSMessagesSent.WithLabelValues(msg.Topic).Inc()
	return nil
}

// Invoke issues the RPC as an in-process call: the http backend has no
// outbound peer of its own, so Invoke only serves bound handlers
// reachable in-process. The handler runs on a new goroutine and cb is
// called from there; an unbound method calls cb synchronously with
// Unavailable.
func (b *Backend) Invoke(rctx *rpc.Context, method rpc.MethodName, payload []byte, cb backend.InvokeCallback) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	b.mu.RLock()
	handler, ok := b.handlers[method]
	b.mu.RUnlock()
	if !ok {
		cb(rpc.Result{Status: rpc.Unavailable, Message: "no handler bound for " + method.String()}, nil)
		return nil
	}
	go func() {
		result, reply := handler(rctx, payload)
		cb(result, reply)
	}()
	return nil
}

// BindHandler wires a modulectx-registered handler to method, served over
// POST /v1/rpc/{method} and through Invoke's in-process fallback.
func (b *Backend) BindHandler(method rpc.MethodName, fn func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)) {
	b.mu.Lock()
	b.handlers[method] = fn
	b.mu.Unlock()
}

func (b *Backend) serveRPC(w http.ResponseWriter, r *http.Request) {
	methodParam := chi.URLParam(r, "*")
	method, err := rpc.ParseMethodName(methodParam)
	if err != nil {
		http.Error(w, "invalid method name", http.StatusBadRequest)
		return
	}
	b.mu.RLock()
	handler, ok := b.handlers[method]
	b.mu.RUnlock()
	if !ok {
		http.Error(w, "method not served", http.StatusNotFound)
		return
	}
	payload, err := readAll(r)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	rctx := rpc.NewContext(r.Context(), method.Serialization, 0)
	defer rctx.Release()
	result, reply := handler(rctx, payload)
	if !result.Ok() {
		http.Error(w, result.Message, statusFor(result.Status))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(reply)
}

func statusFor(status rpc.Status) int {
	switch status {
	case rpc.Timeout:
		return http.StatusGatewayTimeout
	case rpc.Unavailable:
		return http.StatusServiceUnavailable
	case rpc.InvalidArg:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Shutdown stops accepting new connections and drains the hub.
func (b *Backend) Shutdown(ctx context.Context) error {
	if b.server != nil {
		sctx, cancel := context.WithTimeout(ctx, b.opts.ShutdownTimeout)
		defer cancel()
		_ = b.server.Shutdown(sctx)
	}
	if b.hub != nil {
		b.hub.close()
	}
	if b.wsLimiter != nil {
		b.wsLimiter.Close()
	}
	return b.sm.Transition(backend.PhaseShutdown)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WSErrors.WithLabelValues("upgrade_failed").Inc()
		return
	}
	client := &wsClient{
		id:   uuid.NewString(),
		ip:   remoteIP(r),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register <- client
	go client.writePump(h.backend.opts.WriteTimeout, h.backend.opts.PingInterval)
	go client.readPump()
}

func readAll(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(r.Body)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
