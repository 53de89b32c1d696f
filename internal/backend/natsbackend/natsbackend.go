// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package natsbackend implements the spec's Zenoh-equivalent wire backend:
// NATS pub/sub fronted by a Watermill publisher/subscriber pair, plus
// request-reply RPC over a raw nats.go connection. NATS's subject-based
// pub/sub and request-reply semantics are the closest corpus-available
// match to Zenoh's key-expression pub/sub + query model.
package natsbackend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// Options configures the nats backend, unmarshalled from
// channel.backends[*].options / rpc.backends[*].options.
type Options struct {
	URL            string        `koanf:"url"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// EmbeddedServer starts an in-process nats-server instead of dialing
	// URL, for single-process deployments with no external broker.
	EmbeddedServer   bool   `koanf:"embedded_server"`
	EmbeddedStoreDir string `koanf:"embedded_store_dir"`
}

func defaultOptions() Options {
	return Options{
		URL:            natsgo.DefaultURL,
		MaxReconnects:  10,
		ReconnectWait:  2 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Backend is the NATS wire transport: Publish/Subscribe go through a
// Watermill publisher/subscriber pair (so the filter/middleware story
// matches the rest of the pack); Invoke uses a plain NATS request-reply
// round trip, since RPC has no Watermill-native request/response notion.
type Backend struct {
	sm   *backend.StateMachine
	opts Options

	conn *natsgo.Conn
	pub  message.Publisher
	sub  message.Subscriber

	breaker  *gobreaker.CircuitBreaker[interface{}]
	embedded *embeddedServer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	servers map[rpc.MethodName]*natsgo.Subscription

	channels *channel.Registry
	rpcs     *rpc.Registry
	log      *logging.EventLogger
}

// New returns an uninitialized nats backend.
func New() *Backend {
	return &Backend{
		sm:      backend.NewStateMachine("nats"),
		cancels: make(map[string]context.CancelFunc),
		servers: make(map[rpc.MethodName]*natsgo.Subscription),
		log:     logging.NewEventLogger(),
	}
}

func (b *Backend) Name() string { return "nats" }

func (b *Backend) SetChannelRegistry(r *channel.Registry) { b.channels = r }
func (b *Backend) SetRpcRegistry(r *rpc.Registry)         { b.rpcs = r }

// Initialize parses opts and opens a NATS connection plus the Watermill
// publisher/subscriber pair backing Publish/Subscribe.
func (b *Backend) Initialize(opts map[string]interface{}) error {
	b.opts = decodeOptions(opts)

	url := b.opts.URL
	if b.opts.EmbeddedServer {
		es, err := newEmbeddedServer(b.opts.EmbeddedStoreDir)
		if err != nil {
			return err
		}
		b.embedded = es
		url = es.clientURL
		b.opts.URL = url
	}

	wmLogger := watermill.NewStdLogger(false, false)
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(b.opts.MaxReconnects),
		natsgo.ReconnectWait(b.opts.ReconnectWait),
	}

	conn, err := natsgo.Connect(url, natsOpts...)
	if err != nil {
		return fmt.Errorf("natsbackend: connect %s: %w", url, err)
	}
	b.conn = conn

	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmnats.NATSMarshaler{},
		JetStream:   wmnats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		return fmt.Errorf("natsbackend: create publisher: %w", err)
	}
	b.pub = pub

	sub, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL:         b.opts.URL,
		NatsOptions: natsOpts,
		Unmarshaler: &wmnats.NATSMarshaler{},
		JetStream:   wmnats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		return fmt.Errorf("natsbackend: create subscriber: %w", err)
	}
	b.sub = sub

	b.breaker = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "natsbackend",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return b.sm.Transition(backend.PhaseInit)
}

func decodeOptions(raw map[string]interface{}) Options {
	o := defaultOptions()
	if raw == nil {
		return o
	}
	if v, ok := raw["url"].(string); ok && v != "" {
		o.URL = v
	}
	if v, ok := raw["max_reconnects"].(int); ok {
		o.MaxReconnects = v
	}
	if v, ok := raw["embedded_server"].(bool); ok {
		o.EmbeddedServer = v
	}
	if v, ok := raw["embedded_store_dir"].(string); ok {
		o.EmbeddedStoreDir = v
	}
	return o
}

func (b *Backend) Start(ctx context.Context) error {
	return b.sm.Transition(backend.PhaseStarted)
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

// Subscribe starts a Watermill subscription goroutine for topic that
// decodes every delivered message's metadata (typeName) and payload and
// invokes fn, stopping when the backend shuts down.
func (b *Backend) Subscribe(topic string, fn backend.DeliverFunc) error {
	if err := b.sm.Require(backend.PhaseInit); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return fmt.Errorf("natsbackend: subscribe %s: %w", topic, err)
	}
	b.mu.Lock()
	b.cancels[topic] = cancel
	b.mu.Unlock()

	go func() {
		for m := range msgs {
			start := time.Now()
			fn(m.Context(), backend.Message{
				Topic:    topic,
				TypeName: m.Metadata.Get("type_name"),
				Payload:  m.Payload,
			})
			b.log.LogDeliver(m.Context(), topic, b.Name(), time.Since(start).Milliseconds())
			m.Ack()
		}
	}()
	return nil
}

// Publish wraps the Watermill publish call with the circuit breaker: a
// tripped breaker returns a Transport error without attempting the send.
func (b *Backend) Publish(ctx context.Context, msg backend.Message) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	wm := message.NewMessage(watermill.NewUUID(), msg.Payload)
	wm.Metadata.Set("type_name", msg.TypeName)
	wm.SetContext(ctx)

	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.pub.Publish(msg.Topic, wm)
	})
	if err != nil {
		return fmt.Errorf("natsbackend: publish %s: %w", msg.Topic, err)
	}
	b.log.LogPublish(ctx, msg.Topic, b.Name())
	return nil
}

// Invoke issues a plain NATS request-reply round trip (the nats.go
// connection's own timeout/cancellation, independent of the Watermill
// pub/sub path used for channels) and reports the outcome through cb
// exactly once.
func (b *Backend) Invoke(rctx *rpc.Context, method rpc.MethodName, payload []byte, cb backend.InvokeCallback) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	go func() {
		reply, err := b.conn.RequestWithContext(rctx.Underlying(), method.String(), payload)
		if err != nil {
			if err == natsgo.ErrTimeout || rctx.Err() != nil {
				cb(rpc.Result{Status: rpc.Timeout, Message: err.Error()}, nil)
				return
			}
			cb(rpc.Result{Status: rpc.Unavailable, Message: err.Error()}, nil)
			return
		}
		cb(rpc.Result{Status: rpc.OK}, reply.Data)
	}()
	return nil
}

// BindHandler subscribes to method's subject on the raw NATS connection and
// responds to every request with dispatch's reply, the nats analogue of the
// local backend's direct handler binding.
func (b *Backend) BindHandler(method rpc.MethodName, dispatch func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)) {
	subj := method.String()
	subscription, err := b.conn.Subscribe(subj, func(m *natsgo.Msg) {
		rctx := rpc.NewContext(context.Background(), method.Serialization, 0)
		defer rctx.Release()
		result, reply := dispatch(rctx, m.Data)
		if result.Ok() {
			_ = m.Respond(reply)
		} else {
			_ = m.Respond(nil)
		}
	})
	if err != nil {
		b.log.Error("natsbackend: bind handler failed", "method", subj, "error", err.Error())
		return
	}
	b.mu.Lock()
	b.servers[method] = subscription
	b.mu.Unlock()
}

// Shutdown drains every active subscription and closes the connection;
// idempotent and safe to call even if Start was never reached.
func (b *Backend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = make(map[string]context.CancelFunc)
	for _, sub := range b.servers {
		_ = sub.Unsubscribe()
	}
	b.servers = make(map[rpc.MethodName]*natsgo.Subscription)
	b.mu.Unlock()

	if b.pub != nil {
		_ = b.pub.Close()
	}
	if b.sub != nil {
		_ = b.sub.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
	if b.embedded != nil {
		_ = b.embedded.Shutdown(ctx)
	}
	return b.sm.Transition(backend.PhaseShutdown)
}
