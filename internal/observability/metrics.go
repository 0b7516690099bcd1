// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels shared by the auth counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
	ResultAllow   = "allow"
	ResultDeny    = "deny"
)

// Metrics contains the VidTube Prometheus collectors.
type Metrics struct {
	LoginsTotal        *prometheus.CounterVec
	RefreshesTotal     *prometheus.CounterVec
	GateDecisionsTotal *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidtube_auth_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidtube_auth_refreshes_total",
				Help: "Total number of refresh token rotations by result",
			},
			[]string{"result"},
		),
		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidtube_auth_gate_decisions_total",
				Help: "Total number of protected-route admission decisions by result",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidtube_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidtube_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.LoginsTotal, m.RefreshesTotal, m.GateDecisionsTotal, m.HTTPRequestsTotal, m.HTTPDuration)
	return m
}

// RecordLogin counts a login attempt. A nil receiver is a no-op.
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// RecordRefresh counts a refresh rotation attempt.
func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(result).Inc()
}

// RecordGateDecision counts an allow or deny from the auth gate.
func (m *Metrics) RecordGateDecision(result string) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTP records a completed request. route is the matched route
// template, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ResultForStatus maps an HTTP status to a counter result label.
func ResultForStatus(status int) string {
	switch {
	case status < 400:
		return ResultSuccess
	case status >= 500:
		return ResultError
	default:
		return ResultFailure
	}
}
