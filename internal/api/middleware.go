package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rewired-gh/bizalert/internal/logger"
	"github.com/rewired-gh/bizalert/internal/metrics"
)

// requestLogger logs each request and records HTTP metrics by route pattern.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		log := logger.WithComponent("http")
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("response_size", ww.BytesWritten()).
			Dur("duration", duration).
			Msg("request completed")

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
	})
}

// countPanics counts handler panics and re-panics so chi's Recoverer still
// logs the stack and writes the 500.
func countPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr != http.ErrAbortHandler {
					metrics.PanicsRecovered.WithLabelValues("http").Inc()
				}
				panic(rvr)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
