// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

/*
Package middleware provides the HTTP middleware stack the http wire backend
wraps its chi router with: gzip compression, latency/percentile tracking,
UUID request-ID propagation into internal/logging's correlation IDs, and
Prometheus request instrumentation via internal/metrics.

The backend composes them as, outermost first (adaptMiddleware turns a
func(http.HandlerFunc) http.HandlerFunc into chi's http.Handler form):

	r.Use(adaptMiddleware(middleware.RequestID))
	r.Use(adaptMiddleware(middleware.PrometheusMetrics))
	r.Use(adaptMiddleware(middleware.Compression))
	r.Use(b.perf.Middleware)

See Also:

  - internal/backend/httpbackend: the wire backend these wrap
  - internal/metrics: Prometheus metrics definitions
  - internal/logging: correlation ID propagation
*/
package middleware
