// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordLogin(ResultSuccess)
	m.RecordLogin(ResultFailure)
	m.RecordLogin(ResultFailure)
	m.RecordRefresh(ResultSuccess)
	m.RecordGateDecision(ResultAllow)
	m.ObserveHTTP(http.MethodGet, "/api/v1/users/current-user", http.StatusUnauthorized, 3*time.Millisecond)
	m.ObserveHTTP(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.LoginsTotal.WithLabelValues(ResultSuccess)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.LoginsTotal.WithLabelValues(ResultFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RefreshesTotal.WithLabelValues(ResultSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GateDecisionsTotal.WithLabelValues(ResultAllow)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/users/current-user", "401")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")), 0)
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLogin(ResultSuccess)
		m.RecordRefresh(ResultFailure)
		m.RecordGateDecision(ResultDeny)
		m.ObserveHTTP(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	})
}

func TestResultForStatus(t *testing.T) {
	assert.Equal(t, ResultSuccess, ResultForStatus(http.StatusOK))
	assert.Equal(t, ResultSuccess, ResultForStatus(http.StatusCreated))
	assert.Equal(t, ResultFailure, ResultForStatus(http.StatusUnauthorized))
	assert.Equal(t, ResultFailure, ResultForStatus(http.StatusNotFound))
	assert.Equal(t, ResultError, ResultForStatus(http.StatusInternalServerError))
}
