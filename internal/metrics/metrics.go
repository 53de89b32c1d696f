// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package metrics exposes the runtime's Prometheus series: HTTP API
// traffic on the http backend, WebSocket connection churn, circuit
// breaker state, and per-topic channel/rpc throughput. Only the HTTP API
// and WebSocket series and ChannelMessagesPublished (from monitortap) are
// recorded anywhere; no backend calls SetCircuitBreakerState or
// RecordRPCInvoke, or updates ChannelMessagesDelivered.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agibotrt_api_requests_total",
			Help: "Total number of HTTP API requests served by the http backend.",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agibotrt_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds.",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agibotrt_api_active_requests",
			Help: "Current number of in-flight HTTP API requests.",
		},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agibotrt_ws_connections",
			Help: "Current number of open WebSocket connections on the http backend.",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agibotrt_ws_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients, by topic.",
		},
		[]string{"topic"},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agibotrt_ws_messages_received_total",
			Help: "Total number of WebSocket messages received from clients, by topic.",
		},
		[]string{"topic"},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agibotrt_ws_errors_total",
			Help: "Total number of WebSocket read/write errors, by kind.",
		},
		[]string{"kind"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agibotrt_circuit_breaker_state",
			Help: "Circuit breaker state per backend (0=closed, 1=half-open, 2=open).",
		},
		[]string{"backend"},
	)

	ChannelMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agibotrt_channel_messages_published_total",
			Help: "Total number of messages published, by backend and topic.",
		},
		[]string{"backend", "topic"},
	)

	ChannelMessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agibotrt_channel_messages_delivered_total",
			Help: "Total number of messages delivered to subscribers, by backend and topic.",
		},
		[]string{"backend", "topic"},
	)

	RPCInvokeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agibotrt_rpc_invoke_duration_seconds",
			Help:    "RPC Invoke round-trip duration in seconds, by backend and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "method", "status"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agibotrt_build_info",
			Help: "Build metadata; value is always 1.",
		},
		[]string{"version", "process_name"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agibotrt_uptime_seconds",
			Help: "Seconds since process start.",
		},
	)
)

// RecordAPIRequest records one completed HTTP API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}

// RecordRPCInvoke records one completed RPC Invoke round trip.
func RecordRPCInvoke(backendName, method, status string, duration time.Duration) {
	RPCInvokeDuration.WithLabelValues(backendName, method, status).Observe(duration.Seconds())
}

// SetCircuitBreakerState reports a backend's breaker state as a gauge value:
// 0 closed, 1 half-open, 2 open.
func SetCircuitBreakerState(backendName string, state int) {
	CircuitBreakerState.WithLabelValues(backendName).Set(float64(state))
}
