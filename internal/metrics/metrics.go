// Package metrics registers the Prometheus instruments exported on /metrics.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts API requests by method, route pattern and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duelcore",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by method, route and status code.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes API request latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "duelcore",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// Verifications counts ledger transaction verification outcomes.
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duelcore",
		Subsystem: "ledger",
		Name:      "verifications_total",
		Help:      "Transaction verification attempts, by outcome (confirmed, pending, failed).",
	}, []string{"outcome"})

	// Settlements counts duel settlements by result.
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duelcore",
		Subsystem: "duel",
		Name:      "settlements_total",
		Help:      "Duel settlements, by result (won, push, cancelled, expired).",
	}, []string{"result"})

	// SweepCycles counts background sweeper passes.
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "duelcore",
		Subsystem: "sweeper",
		Name:      "cycles_total",
		Help:      "Completed sweeper passes.",
	})

	// Quotes counts AMM quote requests by trade type.
	Quotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duelcore",
		Subsystem: "amm",
		Name:      "quotes_total",
		Help:      "AMM quotes served, by trade type.",
	}, []string{"type"})
)

// Instrument wraps an http.Handler so every request is counted and timed.
// The route label collapses path parameters to keep cardinality bounded.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := routeLabel(r.URL.Path)
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel reduces a request path to its API resource, replacing IDs with a
// placeholder. "/api/duels/3f2a.../join" becomes "/api/duels/{id}/join".
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "api" {
		return "/" + parts[0]
	}
	out := []string{"", "api", parts[1]}
	if len(parts) >= 3 {
		out = append(out, "{id}")
	}
	if len(parts) >= 4 {
		out = append(out, parts[3])
	}
	return strings.Join(out, "/")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}

// Hijack keeps WebSocket upgrades working through the instrumented chain.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
