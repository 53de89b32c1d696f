// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agibot-rt/agibotrt/internal/metrics"
)

// metricsResponseWriter records the status code a handler eventually
// writes so PrometheusMetrics can label the request after the fact.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// PrometheusMetrics feeds every request it wraps into internal/metrics's
// active-request gauge and per-method/path/status counter and histogram.
// These series count every request since process start, while Stats
// (backed by PerformanceMonitor) covers only its bounded window.
func PrometheusMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		start := time.Now()
		wrapper := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(wrapper, r)

		metrics.RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode), time.Since(start))
	}
}
