// Package middleware provides HTTP middleware for the casta server.
//
// This package includes:
//   - OpenTelemetry server spans
//   - Prometheus request metrics
//   - Structured request logging
//
// All of them are plain func(http.Handler) http.Handler values and are meant
// to be mounted on a chi router, after chi's RequestID and RealIP:
//
//	r := chi.NewRouter()
//	r.Use(chimw.RequestID, chimw.RealIP)
//	r.Use(middleware.RequestLogger(logger))
//	r.Use(middleware.OpenTelemetry())
//	r.Use(middleware.NewMetrics(middleware.WithRegistry(reg)).Handler)
//
// # Route labels
//
// Metrics and span names use the chi route pattern ("/api/sessions/{id}")
// rather than the request path, so label cardinality stays bounded.
// Requests that match no route are labelled "unmatched".
//
// # Tracing
//
// OpenTelemetry uses the global tracer provider. Spans opened by handlers
// from the request context, such as the one for each session delivery,
// become children of the request span.
package middleware
