// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package mqttbackend implements the MQTT wire backend on top of
// eclipse/paho.golang's MQTT5 client: channel pub/sub maps directly onto
// MQTT publish/subscribe, and RPC Invoke/serve uses MQTT5's
// ResponseTopic/CorrelationData request-reply properties since the
// protocol itself has no native call semantics.
package mqttbackend

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/channel"
	"github.com/agibot-rt/agibotrt/internal/logging"
	"github.com/agibot-rt/agibotrt/internal/rpc"
)

// Options configures the mqtt backend.
type Options struct {
	Broker         string        `koanf:"broker"`
	ClientID       string        `koanf:"client_id"`
	QoS            byte          `koanf:"qos"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

func defaultOptions() Options {
	return Options{
		Broker:         "tcp://127.0.0.1:1883",
		ClientID:       "agibotrt-" + uuid.NewString(),
		QoS:            1,
		ConnectTimeout: 5 * time.Second,
	}
}

// Backend is the MQTT wire transport.
type Backend struct {
	sm   *backend.StateMachine
	opts Options

	client   *paho.Client
	replyTop string

	mu       sync.Mutex
	deliver  map[string][]backend.DeliverFunc
	pending  map[string]backend.InvokeCallback
	handlers map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)

	channels *channel.Registry
	rpcs     *rpc.Registry
	log      *logging.EventLogger
}

// New returns an uninitialized mqtt backend.
func New() *Backend {
	return &Backend{
		sm:       backend.NewStateMachine("mqtt"),
		deliver:  make(map[string][]backend.DeliverFunc),
		pending:  make(map[string]backend.InvokeCallback),
		handlers: make(map[rpc.MethodName]func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)),
		log:      logging.NewEventLogger(),
	}
}

func (b *Backend) Name() string { return "mqtt" }

func (b *Backend) SetChannelRegistry(r *channel.Registry) { b.channels = r }
func (b *Backend) SetRpcRegistry(r *rpc.Registry)         { b.rpcs = r }

func decodeOptions(raw map[string]interface{}) Options {
	o := defaultOptions()
	if raw == nil {
		return o
	}
	if v, ok := raw["broker"].(string); ok && v != "" {
		o.Broker = v
	}
	if v, ok := raw["client_id"].(string); ok && v != "" {
		o.ClientID = v
	}
	return o
}

// Initialize dials the broker's TCP address and constructs (but does not
// yet MQTT-Connect) the paho client; the actual CONNECT happens in Start
// so no traffic is accepted before the backend reaches PhaseStarted.
func (b *Backend) Initialize(opts map[string]interface{}) error {
	b.opts = decodeOptions(opts)
	b.replyTop = "reply/" + b.opts.ClientID

	conn, err := net.DialTimeout("tcp", stripScheme(b.opts.Broker), b.opts.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("mqttbackend: dial %s: %w", b.opts.Broker, err)
	}

	b.client = paho.NewClient(paho.ClientConfig{
		Conn: conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			b.onPublish,
		},
	})

	return b.sm.Transition(backend.PhaseInit)
}

func stripScheme(addr string) string {
	for _, prefix := range []string{"tcp://", "ssl://", "mqtt://"} {
		if len(addr) > len(prefix) && addr[:len(prefix)] == prefix {
			return addr[len(prefix):]
		}
	}
	return addr
}

// Start issues the MQTT CONNECT, subscribes to this client's private
// reply topic for RPC responses, and subscribes every channel topic and
// served method topic registered during Init.
func (b *Backend) Start(ctx context.Context) error {
	_, err := b.client.Connect(ctx, &paho.Connect{
		ClientID:   b.opts.ClientID,
		KeepAlive:  30,
		CleanStart: true,
	})
	if err != nil {
		return fmt.Errorf("mqttbackend: connect: %w", err)
	}
	if _, err := b.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: b.replyTop, QoS: b.opts.QoS}},
	}); err != nil {
		return fmt.Errorf("mqttbackend: subscribe reply topic: %w", err)
	}
	b.mu.Lock()
	topics := make([]string, 0, len(b.deliver)+len(b.handlers))
	for topic := range b.deliver {
		topics = append(topics, topic)
	}
	for method := range b.handlers {
		topics = append(topics, method.String())
	}
	b.mu.Unlock()
	for _, topic := range topics {
		subs := []paho.SubscribeOptions{{Topic: topic, QoS: b.opts.QoS}}
		if _, err := b.client.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
			return fmt.Errorf("mqttbackend: subscribe %s: %w", topic, err)
		}
	}
	return b.sm.Transition(backend.PhaseStarted)
}

func (b *Backend) RegisterPublishType(topic, typeName string) error {
	return b.sm.Require(backend.PhaseInit)
}

// Subscribe registers fn to be invoked from the shared OnPublishReceived
// dispatcher; the MQTT SUBSCRIBE for topic is sent by Start.
func (b *Backend) Subscribe(topic string, fn backend.DeliverFunc) error {
	if err := b.sm.Require(backend.PhaseInit); err != nil {
		return err
	}
	b.mu.Lock()
	_, already := b.deliver[topic]
	b.deliver[topic] = append(b.deliver[topic], fn)
	b.mu.Unlock()
	if already {
		return nil
	}
	// Deferred: Start sends the MQTT SUBSCRIBE for every topic remembered
	// here; an already-started backend subscribes immediately.
	if b.sm.RequireAtLeast(backend.PhaseStarted) == nil {
		_, err := b.client.Subscribe(context.Background(), &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: b.opts.QoS}},
		})
		return err
	}
	return nil
}

func (b *Backend) RegisterServiceFunc(method rpc.MethodName) error {
	return b.sm.Require(backend.PhaseInit)
}

func (b *Backend) RegisterClientFunc(method rpc.MethodName) error {
	return b.sm.Require(backend.PhaseInit)
}

// onPublish is the single dispatcher every inbound PUBLISH passes
// through: RPC replies on the private reply topic resolve a pending
// Invoke; RPC requests on a served method topic run the bound handler;
// everything else is a channel delivery.
func (b *Backend) onPublish(pr paho.PublishReceived) (bool, error) {
	p := pr.Packet
	if p.Topic == b.replyTop {
		b.handleReply(p)
		return true, nil
	}

	method, err := rpc.ParseMethodName(p.Topic)
	if err == nil {
		b.mu.Lock()
		handler, ok := b.handlers[method]
		b.mu.Unlock()
		if ok {
			b.handleRequest(method, handler, p)
			return true, nil
		}
	}

	b.mu.Lock()
	fns := append([]backend.DeliverFunc(nil), b.deliver[p.Topic]...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(context.Background(), backend.Message{Topic: p.Topic, Payload: p.Payload})
	}
	return true, nil
}

func (b *Backend) handleReply(p *paho.Publish) {
	corr := correlationID(p)
	if corr == "" {
		return
	}
	b.mu.Lock()
	cb, ok := b.pending[corr]
	if ok {
		delete(b.pending, corr)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	cb(rpc.Result{Status: rpc.OK}, p.Payload)
}

func (b *Backend) handleRequest(method rpc.MethodName, handler func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte), p *paho.Publish) {
	respTopic := ""
	var corrData []byte
	if p.Properties != nil {
		if p.Properties.ResponseTopic != "" {
			respTopic = p.Properties.ResponseTopic
		}
		corrData = p.Properties.CorrelationData
	}
	rctx := rpc.NewContext(context.Background(), method.Serialization, 0)
	defer rctx.Release()
	result, reply := handler(rctx, p.Payload)
	if respTopic == "" || !result.Ok() {
		return
	}
	_, _ = b.client.Publish(context.Background(), &paho.Publish{
		Topic:   respTopic,
		QoS:     b.opts.QoS,
		Payload: reply,
		Properties: &paho.PublishProperties{
			CorrelationData: corrData,
		},
	})
}

func correlationID(p *paho.Publish) string {
	if p.Properties == nil || len(p.Properties.CorrelationData) == 0 {
		return ""
	}
	return string(p.Properties.CorrelationData)
}

// Publish sends msg as an MQTT PUBLISH at the configured QoS.
func (b *Backend) Publish(ctx context.Context, msg backend.Message) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	_, err := b.client.Publish(ctx, &paho.Publish{
		Topic:   msg.Topic,
		QoS:     b.opts.QoS,
		Payload: msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("mqttbackend: publish %s: %w", msg.Topic, err)
	}
	b.log.LogPublish(ctx, msg.Topic, b.Name())
	return nil
}

// Invoke publishes a request to method's topic carrying ResponseTopic and
// CorrelationData MQTT5 properties, resolving cb from the matching reply
// delivered on this client's private reply topic.
func (b *Backend) Invoke(rctx *rpc.Context, method rpc.MethodName, payload []byte, cb backend.InvokeCallback) error {
	if err := b.sm.RequireAtLeast(backend.PhaseStarted); err != nil {
		return err
	}
	corr := uuid.NewString()
	b.mu.Lock()
	b.pending[corr] = cb
	b.mu.Unlock()

	_, err := b.client.Publish(rctx.Underlying(), &paho.Publish{
		Topic:   method.String(),
		QoS:     b.opts.QoS,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ResponseTopic:   b.replyTop,
			CorrelationData: []byte(corr),
		},
	})
	if err != nil {
		b.mu.Lock()
		delete(b.pending, corr)
		b.mu.Unlock()
		return fmt.Errorf("mqttbackend: invoke %s: %w", method, err)
	}

	go func() {
		<-rctx.Done()
		b.mu.Lock()
		_, stillPending := b.pending[corr]
		delete(b.pending, corr)
		b.mu.Unlock()
		if stillPending {
			cb(rpc.Result{Status: rpc.Timeout, Message: "mqtt rpc deadline exceeded"}, nil)
		}
	}()
	return nil
}

// BindHandler wires a modulectx-registered handler to method's topic; the
// handler runs from the shared OnPublishReceived dispatcher goroutine.
func (b *Backend) BindHandler(method rpc.MethodName, fn func(ctx *rpc.Context, payload []byte) (rpc.Result, []byte)) {
	b.mu.Lock()
	b.handlers[method] = fn
	b.mu.Unlock()
	if b.sm.RequireAtLeast(backend.PhaseStarted) == nil {
		_, _ = b.client.Subscribe(context.Background(), &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: method.String(), QoS: b.opts.QoS}},
		})
	}
}

// Shutdown sends an MQTT DISCONNECT; idempotent at the backend state
// machine level even though paho's own Disconnect is not.
func (b *Backend) Shutdown(ctx context.Context) error {
	if b.sm.Phase() != backend.PhaseShutdown && b.client != nil {
		_ = b.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
	return b.sm.Transition(backend.PhaseShutdown)
}
