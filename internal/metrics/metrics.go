// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package metrics provides Prometheus instrumentation for Vigil:
// HTTP endpoint latency, scan and fetch outcomes, circuit breaker state,
// and session counts. All collectors are registered on the default registry
// and exposed via /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Scan metrics
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_scans_total",
			Help: "Total number of scan rounds executed per user",
		},
		[]string{"user"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_scan_duration_seconds",
			Help:    "Duration of full scan rounds in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"user"},
	)

	QueryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_query_runs_total",
			Help: "Total number of individual query executions by outcome",
		},
		[]string{"status"}, // "ok", "access_denied", "connection_lost"
	)

	QueryMatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_query_matches_total",
			Help: "Total number of positive query matches",
		},
	)

	// Fetch metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_fetch_duration_seconds",
			Help:    "Duration of outbound page fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"}, // "ok", "error"
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vigil_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"host"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_circuit_breaker_requests_total",
			Help: "Total requests through circuit breakers by result",
		},
		[]string{"host", "result"}, // "success", "failure", "rejected"
	)

	// Session metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_active_sessions",
			Help: "Current number of live user sessions",
		},
	)

	ActiveQueries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_active_queries",
			Help: "Current number of registered queries across all monitors",
		},
	)

	// WebSocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_websocket_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)
)
