// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package typeconv implements the C2 type adaptation layer. Every value
// type T published or subscribed through the runtime must resolve to a
// wire type W for which a serializer/deserializer and a type name are
// available.
//
// For "directly supported" categories — protobuf messages and the
// grpcbackend's ROS2-equivalent IDL types — W = T, registered with
// RegisterDirect and whatever Codec the caller passes; this package ships
// only JSONCodec and no protobuf codec. For
// arbitrary user types, the caller registers a Converter[T, W] pair
// binding T to a wire type W through an explicit trait registration
// (Register), mirroring the C++ Convert(const T&, W&) / For<T>::W pair.
package typeconv

import (
	"fmt"
	"reflect"
	"sync"
)

// Codec serializes/deserializes a wire type W to and from bytes, and names
// the wire type for RPC method-name prefixing and log messages.
type Codec interface {
	// TypeName is the wire type's registered name (e.g. "pb:my.pkg.Odom").
	TypeName() string
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, out interface{}) error
}

// Converter adapts a user value type T to/from a wire type W. Converters
// are pure functions; the runtime never assumes they are cheap and never
// calls them off the publishing/delivering goroutine's own path.
type Converter struct {
	// ToWire converts a T value into a fresh W value.
	ToWire func(t interface{}) (w interface{}, err error)
	// FromWire converts a W value into a fresh T value.
	FromWire func(w interface{}) (t interface{}, err error)
	// WireType is the reflect.Type of W, used to select the codec.
	WireType reflect.Type
}

// Registry binds user value types to their wire type and codec. A type
// used in a pub()/sub()/cli()/srv() call without a binding is caught
// neither at compile time nor at Init<T>: the lookup happens in
// ToWireBytes and FromWireBytes, so the first publish, delivery, call or
// served request of that type fails with an error.
type Registry struct {
	mu         sync.RWMutex
	converters map[reflect.Type]Converter
	codecs     map[reflect.Type]Codec
}

// NewRegistry returns an empty type-adaptation registry.
func NewRegistry() *Registry {
	return &Registry{
		converters: make(map[reflect.Type]Converter),
		codecs:     make(map[reflect.Type]Codec),
	}
}

// RegisterDirect marks T as directly wire-supported: T IS its own wire
// type W, using codec for (de)serialization. This is the path protobuf
// messages and ROS2-equivalent IDL types take.
func RegisterDirect[T any](r *Registry, codec Codec) {
	var zero T
	t := reflect.TypeOf(zero)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[t] = Converter{
		ToWire:   func(v interface{}) (interface{}, error) { return v, nil },
		FromWire: func(v interface{}) (interface{}, error) { return v, nil },
		WireType: t,
	}
	r.codecs[t] = codec
}

// RegisterConverted binds a user type T to wire type W via explicit
// conversion functions and a codec for W.
func RegisterConverted[T, W any](r *Registry, toWire func(T) (W, error), fromWire func(W) (T, error), codec Codec) {
	var zeroT T
	var zeroW W
	tType := reflect.TypeOf(zeroT)
	wType := reflect.TypeOf(zeroW)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[tType] = Converter{
		ToWire: func(v interface{}) (interface{}, error) {
			return toWire(v.(T))
		},
		FromWire: func(v interface{}) (interface{}, error) {
			return fromWire(v.(W))
		},
		WireType: wType,
	}
	r.codecs[wType] = codec
}

// converterFor looks up the registered converter for T, or returns an
// error naming T. It runs on every ToWireBytes/FromWireBytes call, so a
// missing converter surfaces at publish, delivery, call or serve time.
func (r *Registry) converterFor(t reflect.Type) (Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.converters[t]
	if !ok {
		return Converter{}, fmt.Errorf("typeconv: no converter registered for %s", t)
	}
	return c, nil
}

func (r *Registry) codecFor(w reflect.Type) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[w]
	if !ok {
		return nil, fmt.Errorf("typeconv: no codec registered for wire type %s", w)
	}
	return c, nil
}

// ToWireBytes converts a T value to wire bytes: T -> W (via the registered
// converter) then W -> bytes (via the registered codec). This is the
// publish-path operation; a serialization failure here means the specific
// publish is dropped and logged, not a module-wide failure.
func (r *Registry) ToWireBytes(v interface{}) ([]byte, string, error) {
	t := reflect.TypeOf(v)
	conv, err := r.converterFor(t)
	if err != nil {
		return nil, "", err
	}
	w, err := conv.ToWire(v)
	if err != nil {
		return nil, "", fmt.Errorf("typeconv: convert %s to wire: %w", t, err)
	}
	codec, err := r.codecFor(conv.WireType)
	if err != nil {
		return nil, "", err
	}
	data, err := codec.Marshal(w)
	if err != nil {
		return nil, "", fmt.Errorf("typeconv: marshal wire type %s: %w", conv.WireType, err)
	}
	return data, codec.TypeName(), nil
}

// FromWireBytes is the inverse: bytes -> W (via codec) -> T (via
// converter). A deserialization failure here means the delivery is
// dropped and the subscriber callback is never invoked.
func (r *Registry) FromWireBytes(data []byte, t reflect.Type, out interface{}) (interface{}, error) {
	conv, err := r.converterFor(t)
	if err != nil {
		return nil, err
	}
	codec, err := r.codecFor(conv.WireType)
	if err != nil {
		return nil, err
	}
	w := reflect.New(conv.WireType).Interface()
	if err := codec.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("typeconv: unmarshal wire type %s: %w", conv.WireType, err)
	}
	wireVal := reflect.ValueOf(w).Elem().Interface()
	tVal, err := conv.FromWire(wireVal)
	if err != nil {
		return nil, fmt.Errorf("typeconv: convert wire type to %s: %w", t, err)
	}
	return tVal, nil
}
