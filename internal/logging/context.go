// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Correlation/request IDs travel as context.Context values so a single
// inbound HTTP request (internal/middleware's RequestID) and the RPC/
// channel events it triggers downstream (EventLogger, in event.go) can be
// tied together in structured log output without threading an explicit
// parameter through every call in between.
package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
)

// GenerateCorrelationID returns a short, log-friendly id: the first 8
// hex characters of a UUIDv4.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// GenerateRequestID returns a full UUIDv4, unique enough to correlate a
// request across process boundaries.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithCorrelationID attaches an existing correlation id to ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID attaches a freshly generated correlation id.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns "" if ctx carries no correlation id.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// ContextWithRequestID attaches a request id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns "" if ctx carries no request id.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
