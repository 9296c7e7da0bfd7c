package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shotpack/internal/infra"
)

// Metrics records request counts and latency per route pattern. It must sit
// inside the chi router so the matched pattern is available.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		infra.ObserveHTTPRequest(r.Method, route, rw.status, time.Since(start))
	})
}
