// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package rpc implements the C6 RPC registry: method-name prefix parsing,
// the Status result type shared by every backend, and the ServiceFunc
// registry that routes an incoming invocation to its single registered
// handler.
package rpc

import "fmt"

// Status is the closed result code every RPC call returns, mirrored on
// google.golang.org/grpc/codes naming without importing grpc's own type so
// non-grpc backends (mqtt, local, http) can return the same enum.
type Status int

const (
	// OK indicates the call completed successfully.
	OK Status = iota
	// Cancelled indicates the caller's context was cancelled before completion.
	Cancelled
	// Timeout indicates the call's deadline elapsed before a reply arrived.
	Timeout
	// Unavailable indicates the backend or remote endpoint could not be reached.
	Unavailable
	// InvalidArg indicates the request failed handler-side validation.
	InvalidArg
	// Internal indicates the handler or backend failed unexpectedly.
	Internal
	// Unknown is the fallback for backend-specific failures with no clean mapping.
	Unknown
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Cancelled:
		return "Cancelled"
	case Timeout:
		return "Timeout"
	case Unavailable:
		return "Unavailable"
	case InvalidArg:
		return "InvalidArg"
	case Internal:
		return "Internal"
	case Unknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result pairs a Status with an optional backend-specific numeric code,
// for backends (e.g. grpcbackend) whose native error carries more detail
// than the closed Status enum.
type Result struct {
	Status  Status
	Code    int32
	Message string
}

// Ok reports whether r represents a successful call.
func (r Result) Ok() bool { return r.Status == OK }

// Error implements the error interface so a Result can be returned/wrapped
// through ordinary Go error-handling paths when Status != OK.
func (r Result) Error() string {
	if r.Message != "" {
		return fmt.Sprintf("rpc: %s (code=%d): %s", r.Status, r.Code, r.Message)
	}
	return fmt.Sprintf("rpc: %s (code=%d)", r.Status, r.Code)
}
