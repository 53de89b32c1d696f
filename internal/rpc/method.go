// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package rpc

import (
	"fmt"
	"strings"
)

// Serialization names the wire encoding a method name's prefix selects.
type Serialization string

const (
	// SerializationPB is the "pb:" prefix, protobuf-encoded payloads.
	SerializationPB Serialization = "pb"
	// SerializationROS2 is the "ros2:" prefix, ROS2-IDL-encoded payloads.
	SerializationROS2 Serialization = "ros2"
)

// MethodName is a parsed "<ser>:/<path>" method name. Two method names with
// the same path but different Serialization never alias: they are distinct
// registry entries.
type MethodName struct {
	Serialization Serialization
	Path          string
}

// String renders the method name back to its canonical "<ser>:/<path>" wire form.
func (m MethodName) String() string {
	return string(m.Serialization) + ":" + m.Path
}

// ParseMethodName parses a raw method name of the form "<ser>:<path>",
// normalizing a path without a leading slash by adding one. An unknown
// serialization prefix is a Configuration error (fatal at registration
// time, not a per-call Status).
func ParseMethodName(raw string) (MethodName, error) {
	ser, path, found := strings.Cut(raw, ":")
	if !found {
		return MethodName{}, fmt.Errorf("rpc: method name %q missing serialization prefix", raw)
	}
	switch Serialization(ser) {
	case SerializationPB, SerializationROS2:
	default:
		return MethodName{}, fmt.Errorf("rpc: method name %q has unknown serialization prefix %q", raw, ser)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return MethodName{Serialization: Serialization(ser), Path: path}, nil
}
