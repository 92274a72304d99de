package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yap_rewards_build_info",
			Help: "Build information of the YAP rewards service",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yap_rewards_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yap_rewards_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yap_rewards_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	DistributionCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yap_rewards_distribution_cycles_total",
			Help: "Total number of distribution cycles by outcome",
		},
		[]string{"status"},
	)

	DistributedAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yap_rewards_distributed_amount_total",
			Help: "Total token amount distributed, in smallest token units",
		},
	)

	RootSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yap_rewards_root_submissions_total",
			Help: "Total number of on-chain merkle root submissions by outcome",
		},
		[]string{"status"},
	)

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yap_rewards_claims_total",
			Help: "Total number of claim submissions by outcome",
		},
		[]string{"status"},
	)

	ChainRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yap_rewards_chain_requests_total",
			Help: "Total number of Solana RPC requests",
		},
		[]string{"method", "status"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise the raw path.
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
