// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/agibot-rt/agibotrt/internal/logging"
)

type contextKey string

// RequestIDKey is the context key RequestID stores the per-request id
// under; GetRequestID reads it back.
const RequestIDKey contextKey = "request_id"

// RequestID stamps every inbound request with an id and threads it
// through both the response header (so a caller can correlate its own
// logs) and the request context (so internal/logging's EventLogger
// picks it up downstream via logging.RequestIDFromContext). A request
// forwarded through a reverse proxy that already set X-Request-ID keeps
// that id rather than being assigned a new one.
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		ctx = logging.ContextWithRequestID(ctx, id)
		ctx = logging.ContextWithNewCorrelationID(ctx)

		next(w, r.WithContext(ctx))
	}
}

// GetRequestID returns the id RequestID attached to ctx, or "" if none.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
