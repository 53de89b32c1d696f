// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/agibot-rt/agibotrt/internal/logging"
)

// slowRequestThresholdMS is the latency above which Middleware logs a
// warning for the request it just served.
const slowRequestThresholdMS = 1000

// RequestMetrics is one served request's latency and outcome, kept in
// PerformanceMonitor's sliding window.
type RequestMetrics struct {
	Path       string
	Method     string
	DurationMS int64
	StatusCode int
	Timestamp  time.Time
	CacheHit   bool
	QueryCount int
}

// PerformanceMonitor is the backing store httpbackend.Stats reads from:
// a bounded window of recent requests plus running per-endpoint totals,
// so GetStats can report percentiles without rescanning every request
// this backend has ever served.
type PerformanceMonitor struct {
	mu            sync.RWMutex
	window        []RequestMetrics
	maxWindow     int
	requestCounts map[string]int64
	totalDuration map[string]int64
}

// EndpointStats is one method+path's aggregated latency distribution.
type EndpointStats struct {
	Path         string
	RequestCount int64
	AvgDuration  float64
	P50Duration  int64
	P95Duration  int64
	P99Duration  int64
	MinDuration  int64
	MaxDuration  int64
}

// NewPerformanceMonitor returns a monitor retaining at most maxMetrics
// recent requests.
func NewPerformanceMonitor(maxMetrics int) *PerformanceMonitor {
	return &PerformanceMonitor{
		window:        make([]RequestMetrics, 0, maxMetrics),
		maxWindow:     maxMetrics,
		requestCounts: make(map[string]int64),
		totalDuration: make(map[string]int64),
	}
}

func endpointKey(m *RequestMetrics) string {
	return m.Method + " " + m.Path
}

// RecordRequest appends metric to the sliding window, evicting the
// oldest entry once maxMetrics is reached, and folds it into the
// running per-endpoint totals.
func (pm *PerformanceMonitor) RecordRequest(metric *RequestMetrics) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.window = append(pm.window, *metric)
	if len(pm.window) > pm.maxWindow {
		pm.window = pm.window[1:]
	}

	key := endpointKey(metric)
	pm.requestCounts[key]++
	pm.totalDuration[key] += metric.DurationMS
}

// GetStats aggregates the current window by endpoint, sorted by request
// count descending.
func (pm *PerformanceMonitor) GetStats() []EndpointStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	byEndpoint := make(map[string][]int64)
	for _, m := range pm.window {
		key := endpointKey(&m)
		byEndpoint[key] = append(byEndpoint[key], m.DurationMS)
	}

	stats := make([]EndpointStats, 0, len(byEndpoint))
	for endpoint, durations := range byEndpoint {
		sorted := append([]int64(nil), durations...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, d := range sorted {
			sum += d
		}

		stats = append(stats, EndpointStats{
			Path:         endpoint,
			RequestCount: int64(len(sorted)),
			AvgDuration:  float64(sum) / float64(len(sorted)),
			P50Duration:  percentile(sorted, 0.50),
			P95Duration:  percentile(sorted, 0.95),
			P99Duration:  percentile(sorted, 0.99),
			MinDuration:  sorted[0],
			MaxDuration:  sorted[len(sorted)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].RequestCount > stats[j].RequestCount })
	return stats
}

// GetRecentMetrics returns up to the n most recently recorded requests,
// oldest first.
func (pm *PerformanceMonitor) GetRecentMetrics(n int) []RequestMetrics {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if n > len(pm.window) {
		n = len(pm.window)
	}
	recent := make([]RequestMetrics, n)
	copy(recent, pm.window[len(pm.window)-n:])
	return recent
}

// LogSlowRequests re-warns on every window entry past thresholdMS; a
// periodic sweep independent of the per-request warning Middleware
// already emits.
func (pm *PerformanceMonitor) LogSlowRequests(thresholdMS int64) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, m := range pm.window {
		if m.DurationMS > thresholdMS {
			logSlowRequest(m.Method, m.Path, m.DurationMS, thresholdMS)
		}
	}
}

func logSlowRequest(method, path string, durationMS, thresholdMS int64) {
	logging.Warn().
		Str("method", method).
		Str("path", path).
		Int64("duration_ms", durationMS).
		Int64("threshold_ms", thresholdMS).
		Msg("slow request")
}

// Middleware records every request's latency and status into pm, and
// logs a warning on the spot for anything slower than
// slowRequestThresholdMS.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start).Milliseconds()
		pm.RecordRequest(&RequestMetrics{
			Path:       r.URL.Path,
			Method:     r.Method,
			DurationMS: duration,
			StatusCode: wrapper.statusCode,
			Timestamp:  time.Now(),
		})

		if duration > slowRequestThresholdMS {
			logSlowRequest(r.Method, r.URL.Path, duration, slowRequestThresholdMS)
		}
	})
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

// responseWriter captures the status code a handler writes so Middleware
// can record it alongside latency.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
