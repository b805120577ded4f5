// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the default Prometheus registry, the handler a
// collector's /metrics route wraps.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Prometheus instrumentation: a promauto-registered collector per concern
// plus a small Record* helper so call sites never touch the collector
// directly.
var (
	bufferFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sink_buffer_flushes_total",
		Help: "Buffer flushes by trigger (count, bytes, time, shutdown).",
	}, []string{"trigger"})

	dispatchRoutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sink_dispatch_routed_total",
		Help: "Events routed to a destination by the dispatch controller.",
	}, []string{"destination"})

	dispatchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sink_dispatch_failures_total",
		Help: "Per-record destination failures observed by the dispatch controller.",
	}, []string{"destination"})

	retryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sink_retry_attempts_total",
		Help: "Submission attempts made by the dispatch controller, first tries and retries alike, by destination.",
	}, []string{"destination"})

	destinationExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sink_destination_exhausted_total",
		Help: "Times a destination's retry budget was exhausted.",
	}, []string{"destination"})

	destinationHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sink_destination_healthy",
		Help: "Destination health as seen by its prober: 0 when a prober starts, 1 when the prober observes recovery.",
	}, []string{"destination"})

	shutdownAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sink_shutdown_abandoned_events_total",
		Help: "Shutdowns whose drain timeout elapsed with work still in flight (one per such shutdown, not per event).",
	})
)

func recordBufferFlush(trigger string) {
	bufferFlushesTotal.WithLabelValues(trigger).Inc()
}

func recordDispatchRouted(destination string, n int) {
	dispatchRoutedTotal.WithLabelValues(destination).Add(float64(n))
}

func recordDispatchFailures(destination string, n int) {
	dispatchFailuresTotal.WithLabelValues(destination).Add(float64(n))
}

func recordRetryAttempt(destination string) {
	retryAttemptsTotal.WithLabelValues(destination).Inc()
}

func recordDestinationExhausted(destination string) {
	destinationExhaustedTotal.WithLabelValues(destination).Inc()
}

func recordHealthTransition(destination string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	destinationHealthy.WithLabelValues(destination).Set(v)
}

func recordShutdownAbandoned(n int) {
	if n <= 0 {
		return
	}
	shutdownAbandonedTotal.Add(float64(n))
}
