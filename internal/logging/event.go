// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// EventLogger provides specialized logging for the messaging fabric: channel
// publish/subscribe and RPC dispatch. It is the logger handed to backends and
// the channel/rpc registries so every transport logs with the same fields.
type EventLogger struct {
	logger zerolog.Logger
}

// NewEventLogger creates a logger configured for messaging events, derived
// from the global logger with a "component":"messaging" field.
func NewEventLogger() *EventLogger {
	return &EventLogger{
		logger: With().Str("component", "messaging").Logger(),
	}
}

// NewEventLoggerWithLogger creates an EventLogger with a custom logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value (copy-on-write semantics)
func NewEventLoggerWithLogger(logger zerolog.Logger) *EventLogger {
	return &EventLogger{
		logger: logger.With().Str("component", "messaging").Logger(),
	}
}

// WithFields returns a new EventLogger with additional default fields.
func (e *EventLogger) WithFields(fields map[string]interface{}) *EventLogger {
	ctx := e.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &EventLogger{logger: ctx.Logger()}
}

// Debug logs a debug message.
func (e *EventLogger) Debug(msg string, fields ...interface{}) {
	event := e.logger.Debug()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Info logs an info message.
func (e *EventLogger) Info(msg string, fields ...interface{}) {
	event := e.logger.Info()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Warn logs a warning message.
func (e *EventLogger) Warn(msg string, fields ...interface{}) {
	event := e.logger.Warn()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Error logs an error message.
func (e *EventLogger) Error(msg string, fields ...interface{}) {
	event := e.logger.Error()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// DebugContext logs a debug message with context (for correlation ID).
func (e *EventLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Debug()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// InfoContext logs an info message with context.
func (e *EventLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Info()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// WarnContext logs a warning message with context.
func (e *EventLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Warn()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// ErrorContext logs an error message with context.
func (e *EventLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Error()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// loggerWithContext returns a logger with context fields added.
func (e *EventLogger) loggerWithContext(ctx context.Context) zerolog.Logger {
	logCtx := e.logger.With()

	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		logCtx = logCtx.Str("correlation_id", correlationID)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		logCtx = logCtx.Str("request_id", requestID)
	}

	return logCtx.Logger()
}

// ============================================================
// Domain-specific messaging log helpers
// ============================================================

// LogPublish logs a publish call on a topic through a given backend.
func (e *EventLogger) LogPublish(ctx context.Context, topic, backend string) {
	e.DebugContext(ctx, "message published",
		"topic", topic,
		"backend", backend,
	)
}

// LogDeliver logs a successful delivery to a subscriber.
func (e *EventLogger) LogDeliver(ctx context.Context, topic, backend string, durationMs int64) {
	e.InfoContext(ctx, "message delivered",
		"topic", topic,
		"backend", backend,
		"duration_ms", durationMs,
	)
}

// LogTransportFailure logs a best-effort publish/deliver failure (dropped message).
func (e *EventLogger) LogTransportFailure(ctx context.Context, topic, backend string, err error) {
	logger := e.loggerWithContext(ctx)
	event := logger.Warn().
		Str("topic", topic).
		Str("backend", backend).
		Err(err)
	event.Msg("message dropped: transport failure")
}

// LogFilterDrop logs a filter that suppressed a message in the send/deliver pipeline.
func (e *EventLogger) LogFilterDrop(ctx context.Context, topic, filter string) {
	e.WarnContext(ctx, "message dropped by filter",
		"topic", topic,
		"filter", filter,
	)
}

// LogRPCCall logs an outbound RPC call.
func (e *EventLogger) LogRPCCall(ctx context.Context, method, backend string) {
	e.DebugContext(ctx, "rpc call issued",
		"method", method,
		"backend", backend,
	)
}

// LogRPCResult logs the status of a completed RPC call.
func (e *EventLogger) LogRPCResult(ctx context.Context, method, status string, durationMs int64) {
	e.InfoContext(ctx, "rpc call completed",
		"method", method,
		"status", status,
		"duration_ms", durationMs,
	)
}

// LogSubscriptionStarted logs when a subscription is started.
func (e *EventLogger) LogSubscriptionStarted(topic, backend string) {
	e.Info("subscription started",
		"topic", topic,
		"backend", backend,
	)
}

// LogSubscriptionStopped logs when a subscription is stopped.
func (e *EventLogger) LogSubscriptionStopped(topic string) {
	e.Info("subscription stopped",
		"topic", topic,
	)
}

// LogRouterStarted logs when a backend's delivery router starts.
func (e *EventLogger) LogRouterStarted(backend string) {
	e.Info("router started", "backend", backend)
}

// LogRouterStopped logs when a backend's delivery router stops.
func (e *EventLogger) LogRouterStopped(backend string) {
	e.Info("router stopped", "backend", backend)
}
