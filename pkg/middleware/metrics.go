// Package middleware holds the HTTP middleware of the research service.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/metrics"
)

// Metrics records request counts and latency per method and path, and the
// number of requests in flight.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	once   bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.once {
		sw.status = code
		sw.once = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.once = true
	return sw.ResponseWriter.Write(b)
}

// normalizePath bounds the path label: report lookups share one label and
// paths outside the known routes are counted as "other".
func normalizePath(path string) string {
	const reports = "/api/v1/research/"
	switch {
	case strings.HasPrefix(path, reports) && len(path) > len(reports):
		return reports + "{id}"
	case strings.HasPrefix(path, "/api/"), strings.HasPrefix(path, "/health/"), path == "/metrics":
		return path
	default:
		return "other"
	}
}
