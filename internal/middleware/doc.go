// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package middleware provides HTTP middleware components for cmd/collector's
readiness and metrics surface.

This package implements infrastructure middleware for compression, performance
monitoring, request ID tracking, and Prometheus metrics integration.

Key Components:

  - Compression: Gzip compression for responses
  - Performance Monitor: Request latency tracking with percentile calculations
  - Request ID: UUID-based request tracking for distributed tracing
  - Prometheus Metrics: HTTP request/response instrumentation

Middleware Stack:

cmd/collector wraps every endpoint in this order, outermost first:

	perfMon.Middleware(                    // Layer 1: Performance monitor
	    middleware.PrometheusMetrics(      // Layer 2: Metrics
	        middleware.Compression(        // Layer 3: Gzip
	            middleware.RequestID(      // Layer 4: Request tracking
	                handler,                // Layer 5: Business logic
	            ),
	        ),
	    ),
	)

The performance monitor sits outermost so its recorded duration covers the
full cost of every layer beneath it, including compression and metrics
bookkeeping.

Usage Example - Compression:

	import "github.com/rob-ellison-jet/stream-collector/internal/middleware"

	// Wrap handler with gzip compression
	http.HandleFunc("/api/v1/data",
	    middleware.Compression(handler),
	)

	// Responses of any size are compressed
	// Accept-Encoding: gzip header is required

Usage Example - Performance Monitoring:

	// Create a performance monitor with a 1000-sample sliding window
	perfMon := middleware.NewPerformanceMonitor(1000)

	// Wrap handler
	http.HandleFunc("/api/v1/stats",
	    perfMon.Middleware(handler).ServeHTTP,
	)

	// Get per-endpoint percentiles over the current window
	for _, s := range perfMon.GetStats() {
	    fmt.Printf("%s p50=%dms p95=%dms p99=%dms\n",
	        s.Path, s.P50Duration, s.P95Duration, s.P99Duration)
	}

Usage Example - Request ID:

	// Request ID middleware
	http.HandleFunc("/api/v1/logs",
	    middleware.RequestID(handler),
	)

	// Access request ID in handler
	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := r.Context().Value(middleware.RequestIDKey).(string)
	    log.Printf("[%s] Processing request", requestID)
	}

Performance Characteristics:

  - Compression: 70-90% size reduction for JSON (text/json mime types)
  - Compression overhead: ~1-2ms for typical responses
  - Metrics overhead: <0.1ms per request
  - Request ID overhead: <0.01ms (UUID generation)
  - Performance monitor: RWMutex-guarded sliding window of latency samples

Compression Details:

The compression middleware:
  - Compresses every response, with no size threshold and no content-type filter
  - Supports gzip encoding (Accept-Encoding: gzip)
  - Skips WebSocket upgrade requests
  - Automatically sets Content-Encoding header and drops Content-Length
  - Does not implement http.Flusher; compressed output is flushed when the
    handler returns

Performance Monitor:

The performance monitor tracks:
  - Per-endpoint request count (over the monitor's lifetime)
  - Latency percentiles, average, min and max (p50, p95, p99)
  - Rolling window of the N most recent requests, N given to
    NewPerformanceMonitor (cmd/collector uses 1000)
  - Thread-safe concurrent access with RWMutex

Thread Safety:

All middleware components are thread-safe:
  - Compression uses per-request gzip writers
  - Performance monitor uses sync.RWMutex
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use atomic operations

*/
package middleware
