package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the auth service collectors. Every method is safe on a nil
// receiver so tests and tools can run without a registry.
type Metrics struct {
	Logins          *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	Revocations     *prometheus.CounterVec
	LedgerPruned    prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
	HTTPRequestTime *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_auth_logins_total",
				Help: "Login attempts by method and result",
			},
			[]string{"method", "result"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_auth_refresh_total",
				Help: "Refresh token rotations by result",
			},
			[]string{"result"},
		),
		Revocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_auth_revocations_total",
				Help: "Revoked ledger entries by reason",
			},
			[]string{"reason"},
		),
		LedgerPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campus_auth_ledger_pruned_total",
				Help: "Expired ledger entries deleted",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_auth_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campus_auth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(
		m.Logins,
		m.Refreshes,
		m.Revocations,
		m.LedgerPruned,
		m.HTTPRequests,
		m.HTTPRequestTime,
	)
	return m
}

func (m *Metrics) Login(method, result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(method, result).Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) Revoked(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Revocations.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Pruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.LedgerPruned.Add(float64(n))
}

// Middleware records request counts and latency by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestTime.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
