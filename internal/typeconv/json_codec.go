// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package typeconv

import "github.com/goccy/go-json"

// JSONCodec is the default codec for user types that have no native
// protobuf/ROS2 wire representation: W is serialized as JSON via
// goccy/go-json, the drop-in encoding/json replacement already used
// elsewhere in this module for wire-typed payloads.
type JSONCodec struct {
	typeName string
}

// NewJSONCodec returns a JSONCodec registered under the given wire type
// name (e.g. "pb:agibotrt.examples.JointState" for a pb-prefixed RPC path).
func NewJSONCodec(typeName string) *JSONCodec {
	return &JSONCodec{typeName: typeName}
}

func (c *JSONCodec) TypeName() string { return c.typeName }

func (c *JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Unmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}
