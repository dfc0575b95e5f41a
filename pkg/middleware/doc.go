// Package middleware provides observability middleware for the sync server.
//
// This package includes:
//   - Prometheus metrics middleware and recording hooks
//   - OpenTelemetry distributed tracing middleware
//
// Both middlewares are standard func(http.Handler) http.Handler wrappers
// and can be mounted on any router; when mounted on chi they label by
// route pattern instead of raw path to keep cardinality bounded.
//
// # Prometheus Metrics
//
// The metrics middleware collects:
//   - optimist_http_requests_total: requests by method, path, and status
//   - optimist_http_request_duration_seconds: request duration histogram
//   - optimist_ws_sessions_active: current number of sync sessions
//   - optimist_key_updates_total: key writes by source (ws, rest, local)
//   - optimist_commits_total: commits by outcome (success, failure)
//   - optimist_reverts_total: optimistic rollbacks
//
//	r.Use(middleware.Metrics())
//	r.Handle("/metrics", promhttp.Handler())
//
// Session and key counters are fed by the hub through the package-level
// Record functions, which are no-ops until Metrics is initialized.
//
// # OpenTelemetry
//
// The tracing middleware opens one span per request and injects the
// span context into the request context so downstream calls inherit the
// trace. The tracer uses the global provider unless WithTracerProvider
// is given. Configure the provider in main() before starting the server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	r.Use(middleware.Tracing())
//
// The hub uses StartKeySpan to open short spans around individual sync
// operations.
package middleware
