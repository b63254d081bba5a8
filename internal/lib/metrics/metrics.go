// Package metrics exposes Prometheus counters for the authorization flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters recorded by the services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	logins       *prometheus.CounterVec
	tokensIssued *prometheus.CounterVec
	grantErrors  *prometheus.CounterVec
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauthsrv",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauthsrv",
			Name:      "tokens_issued_total",
			Help:      "Delegated tokens issued by grant type.",
		}, []string{"grant_type"}),
		grantErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauthsrv",
			Name:      "grant_errors_total",
			Help:      "Rejected token exchanges by grant type.",
		}, []string{"grant_type"}),
	}
	reg.MustRegister(m.logins, m.tokensIssued, m.grantErrors)
	return m
}

// Login records a login attempt.
func (m *Metrics) Login(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.logins.WithLabelValues(result).Inc()
}

// TokensIssued records a successful exchange.
func (m *Metrics) TokensIssued(grantType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(grantType).Inc()
}

// GrantError records a rejected exchange.
func (m *Metrics) GrantError(grantType string) {
	if m == nil {
		return
	}
	m.grantErrors.WithLabelValues(grantType).Inc()
}
