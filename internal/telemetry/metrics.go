package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ServerMetrics holds metric instruments for HTTP server telemetry.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter     // Total HTTP requests
	RequestDuration metric.Float64Histogram // HTTP request latency
	ErrorCounter    metric.Int64Counter     // Total HTTP errors (5xx)
}

// NewServerMetrics creates the HTTP instruments on the global meter provider.
func NewServerMetrics() (*ServerMetrics, error) {
	meter := otel.Meter("storeapi/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// Buckets: 5ms .. 5s
	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records one finished HTTP request.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.String(AttrHTTPStatusCode, status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)
	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// AuthMetrics holds metric instruments for request authentication.
type AuthMetrics struct {
	AuthAttempts metric.Int64Counter
	AuthFailures metric.Int64Counter
	AuthDuration metric.Float64Histogram
}

// NewAuthMetrics creates metric instruments for authentication telemetry.
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("storeapi/auth")

	authAttempts, err := meter.Int64Counter(
		"auth.attempt.count",
		metric.WithDescription("Total number of authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	authFailures, err := meter.Int64Counter(
		"auth.failure.count",
		metric.WithDescription("Total number of failed authentication attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	authDuration, err := meter.Float64Histogram(
		"auth.duration",
		metric.WithDescription("Authentication operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		AuthAttempts: authAttempts,
		AuthFailures: authFailures,
		AuthDuration: authDuration,
	}, nil
}

// RecordAuth records one authentication attempt. transport is "bearer" or
// "session"; reason is the failure kind and is empty on success.
func (a *AuthMetrics) RecordAuth(ctx context.Context, transport string, success bool, reason string, durationMs float64) {
	if a == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrAuthTransport, transport),
		attribute.Bool(AttrAuthSuccess, success),
	)

	a.AuthAttempts.Add(ctx, 1, attrs)
	a.AuthDuration.Record(ctx, durationMs, attrs)
	if !success {
		a.AuthFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrAuthTransport, transport),
			attribute.String(AttrAuthReason, reason),
		))
	}
}

// SyncMetrics holds metric instruments for directory sync runs.
type SyncMetrics struct {
	Runs     metric.Int64Counter     // runs by result
	Users    metric.Int64Counter     // per-user outcomes
	Duration metric.Float64Histogram // run wall time
}

func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter("storeapi/sync")

	runs, err := meter.Int64Counter(
		"directory.sync.run.count",
		metric.WithDescription("Total number of directory sync runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	users, err := meter.Int64Counter(
		"directory.sync.user.count",
		metric.WithDescription("Users handled by directory sync, by outcome"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"directory.sync.duration",
		metric.WithDescription("Directory sync run duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{Runs: runs, Users: users, Duration: duration}, nil
}

// RecordRun records a finished run. counts maps outcome (created, updated,
// unchanged, skipped) to number of users.
func (s *SyncMetrics) RecordRun(ctx context.Context, success bool, durationSeconds float64, counts map[string]int) {
	if s == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	attrs := metric.WithAttributes(attribute.String(AttrSyncResult, result))
	s.Runs.Add(ctx, 1, attrs)
	s.Duration.Record(ctx, durationSeconds, attrs)

	for outcome, n := range counts {
		if n == 0 {
			continue
		}
		s.Users.Add(ctx, int64(n), metric.WithAttributes(attribute.String(AttrSyncOutcome, outcome)))
	}
}

// Metric attribute keys
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"

	AttrAuthTransport = "auth.transport"
	AttrAuthSuccess   = "auth.success"
	AttrAuthReason    = "auth.reason"

	AttrSyncResult  = "sync.result"
	AttrSyncOutcome = "sync.outcome"
)
