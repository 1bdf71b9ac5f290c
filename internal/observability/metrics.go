package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the auth counters. A nil *Metrics is valid and records
// nothing, which keeps collaborators usable without a registry.
type Metrics struct {
	AuthEvents      *prometheus.CounterVec
	SilentRefreshes prometheus.Counter
	TokenRejections *prometheus.CounterVec
	EmailDispatch   *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec
	CleanupDeleted  prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_events_total",
				Help: "Authentication flow outcomes by operation",
			},
			[]string{"op", "outcome"},
		),
		SilentRefreshes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_silent_refresh_total",
				Help: "Access tokens minted from a refresh token during a gated request",
			},
		),
		TokenRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_token_rejections_total",
				Help: "Token verification failures by kind and reason",
			},
			[]string{"kind", "reason"},
		),
		EmailDispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_email_dispatch_total",
				Help: "Verification and reset emails handed to the dispatcher",
			},
			[]string{"template", "result"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"bucket"},
		),
		CleanupDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_unverified_users_deleted_total",
				Help: "Unverified accounts removed after their verification link expired",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.AuthEvents, m.SilentRefreshes, m.TokenRejections,
			m.EmailDispatch, m.RateLimited, m.CleanupDeleted, m.HTTPRequests)
	}
	return m
}

func (m *Metrics) Auth(op, outcome string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Refreshed() {
	if m == nil {
		return
	}
	m.SilentRefreshes.Inc()
}

func (m *Metrics) Rejected(kind, reason string) {
	if m == nil {
		return
	}
	m.TokenRejections.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) Email(template, result string) {
	if m == nil {
		return
	}
	m.EmailDispatch.WithLabelValues(template, result).Inc()
}

func (m *Metrics) Limited(bucket string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(bucket).Inc()
}

func (m *Metrics) Cleaned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.CleanupDeleted.Add(float64(n))
}

func (m *Metrics) Request(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
