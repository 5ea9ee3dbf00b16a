package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	TasksScrapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_tasks_total",
			Help: "Total number of finished task attempts by outcome",
		},
		[]string{"outcome"},
	)
	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrape_task_duration_seconds",
			Help:    "Wall time of one task attempt in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	SlotsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_slots_active",
			Help: "Number of worker slots currently running",
		},
	)
	ProxyRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_rotations_total",
			Help: "Total number of proxy rotations",
		},
	)
	ProxiesBlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxies_blocked_total",
			Help: "Total number of proxies retired as blocked",
		},
	)
	HeartbeatFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_failures_total",
			Help: "Total number of heartbeat upserts that failed",
		},
	)

	JanitorReclaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janitor_reclaimed_total",
			Help: "Total number of rows reclaimed by the janitor by kind",
		},
		[]string{"kind"},
	)
	JanitorSweepErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janitor_sweep_errors_total",
			Help: "Total number of sweep steps that failed",
		},
		[]string{"step"},
	)
	JanitorSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "janitor_sweep_duration_seconds",
			Help:    "Duration of one full janitor sweep in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

var registerOnce sync.Once

func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(TasksScrapedTotal)
		prometheus.MustRegister(TaskDuration)
		prometheus.MustRegister(SlotsActive)
		prometheus.MustRegister(ProxyRotationsTotal)
		prometheus.MustRegister(ProxiesBlockedTotal)
		prometheus.MustRegister(HeartbeatFailuresTotal)
		prometheus.MustRegister(JanitorReclaimedTotal)
		prometheus.MustRegister(JanitorSweepErrors)
		prometheus.MustRegister(JanitorSweepDuration)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveTask records one finished task attempt.
func ObserveTask(outcome string, dur time.Duration) {
	TasksScrapedTotal.WithLabelValues(outcome).Inc()
	TaskDuration.Observe(dur.Seconds())
}
