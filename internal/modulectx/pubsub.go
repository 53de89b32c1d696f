// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package modulectx

import (
	"context"
	"fmt"
	"reflect"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/resource"
)

// Channel is a bound publisher or subscriber handle for value type T,
// returned by InitPublisher/InitSubscriber (the pub()/sub() Init<T>
// operators).
type Channel[T any] struct {
	Descriptor resource.Descriptor
	Topic      string
	isPublish  bool
	ctx        *Context
}

// InitPublisher binds topic as a publisher of T, resolving its backend set
// from the channel registry's publish rules. A missing rule or backend
// is a fatal (Init-time) error. Whether T has a registered converter is
// not checked here; a missing one surfaces as an error from Publish.
func InitPublisher[T any](c *Context, topic string) (*Channel[T], error) {
	if err := c.requireInitPhase("pub.Init"); err != nil {
		return nil, err
	}
	backends, ok := c.channels.PublishBackends(topic)
	if !ok {
		return nil, c.Raise("no publish backend rule matches topic", "topic", topic)
	}
	var zero T
	typeName := reflect.TypeOf(zero).String()
	for _, name := range backends {
		be, ok := c.backends[name]
		if !ok {
			return nil, c.Raise("publish rule names unknown backend", "topic", topic, "backend", name)
		}
		if err := be.RegisterPublishType(topic, typeName); err != nil {
			return nil, fmt.Errorf("modulectx: register publish type for %s on %s: %w", topic, name, err)
		}
	}
	d := resource.New(resource.KindChannel, topic)
	d = c.resources.Bind(d, c.resources.NewContextID())
	return &Channel[T]{Descriptor: d, Topic: topic, isPublish: true, ctx: c}, nil
}

// InitSubscriber binds topic as a subscriber of T. The actual callback
// registration happens in SubscribeInline/SubscribeOn, mirroring the
// spec's split between Init<T> (bind) and SubscribeInline (attach).
func InitSubscriber[T any](c *Context, topic string) (*Channel[T], error) {
	if err := c.requireInitPhase("sub.Init"); err != nil {
		return nil, err
	}
	if _, ok := c.channels.SubscribeBackends(topic); !ok {
		return nil, c.Raise("no subscribe backend rule matches topic", "topic", topic)
	}
	d := resource.New(resource.KindChannel, topic)
	d = c.resources.Bind(d, c.resources.NewContextID())
	return &Channel[T]{Descriptor: d, Topic: topic, isPublish: false, ctx: c}, nil
}

// Publish converts msg to wire bytes and fans it out to every backend in
// the channel's matched publish set. Legal only from OnStart onward until
// the context's ok flag clears; a Transport failure on one backend does
// not prevent delivery attempts on the others.
func Publish[T any](ctx context.Context, ch *Channel[T], msg T) error {
	if !ch.isPublish {
		return fmt.Errorf("modulectx: %s is a subscriber channel, not a publisher", ch.Topic)
	}
	if err := ch.ctx.requireRunning("Publish"); err != nil {
		return err
	}
	data, typeName, err := ch.ctx.types.ToWireBytes(msg)
	if err != nil {
		ch.ctx.logger.LogTransportFailure(ctx, ch.Topic, "<convert>", err)
		return err
	}
	backends, _ := ch.ctx.channels.PublishBackends(ch.Topic)
	var firstErr error
	for _, name := range backends {
		be, ok := ch.ctx.backends[name]
		if !ok {
			continue
		}
		if err := be.Publish(ctx, backend.Message{Topic: ch.Topic, TypeName: typeName, Payload: data}); err != nil {
			ch.ctx.logger.LogTransportFailure(ctx, ch.Topic, name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	return firstErr
}

// SubscribeInline registers cb to run on whichever backend goroutine
// delivers the message, with no executor re-posting — the ctx::sub()
// SubscribeInline operator. Use SubscribeOn with the Exe façade to
// instead run cb on a named executor.
func SubscribeInline[T any](ch *Channel[T], cb func(ctx context.Context, msg T)) error {
	if ch.isPublish {
		return fmt.Errorf("modulectx: %s is a publisher channel, not a subscriber", ch.Topic)
	}
	backends, _ := ch.ctx.channels.SubscribeBackends(ch.Topic)
	deliver := decodingDeliverFunc(ch.ctx, cb)
	for _, name := range backends {
		be, ok := ch.ctx.backends[name]
		if !ok {
			continue
		}
		if err := be.Subscribe(ch.Topic, deliver); err != nil {
			return fmt.Errorf("modulectx: subscribe %s on %s: %w", ch.Topic, name, err)
		}
	}
	return nil
}

// SubscribeOn registers cb to run on f's bound executor instead of
// inline on the delivering backend thread, the ctx::exe(res).Subscribe()
// operator.
func SubscribeOn[T any](ch *Channel[T], f *ExecutorFacade, cb func(ctx context.Context, msg T)) error {
	if ch.isPublish {
		return fmt.Errorf("modulectx: %s is a publisher channel, not a subscriber", ch.Topic)
	}
	backends, _ := ch.ctx.channels.SubscribeBackends(ch.Topic)
	deliver := decodingDeliverFunc(ch.ctx, func(ctx context.Context, msg T) {
		f.Post(func(ctx context.Context) { cb(ctx, msg) })
	})
	for _, name := range backends {
		be, ok := ch.ctx.backends[name]
		if !ok {
			continue
		}
		if err := be.Subscribe(ch.Topic, deliver); err != nil {
			return fmt.Errorf("modulectx: subscribe %s on %s: %w", ch.Topic, name, err)
		}
	}
	return nil
}

func decodingDeliverFunc[T any](c *Context, cb func(ctx context.Context, msg T)) backend.DeliverFunc {
	var zero T
	t := reflect.TypeOf(zero)
	return func(ctx context.Context, raw backend.Message) {
		var out T
		val, err := c.types.FromWireBytes(raw.Payload, t, &out)
		if err != nil {
			c.logger.LogTransportFailure(ctx, raw.Topic, "<convert>", err)
			return
		}
		typed, ok := val.(T)
		if !ok {
			c.logger.LogTransportFailure(ctx, raw.Topic, "<convert>", fmt.Errorf("unexpected decoded type"))
			return
		}
		cb(ctx, typed)
	}
}
