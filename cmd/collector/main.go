// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rob-ellison-jet/stream-collector

// Package main is a demonstration entry point for the streaming sink: it
// loads configuration, constructs the Kinesis/SQS clients and the Sink,
// and exposes /healthz and /metrics for a load balancer or orchestrator
// to probe. The HTTP collector front-end that would accept producer
// traffic and call sink.StoreRawEvents is intentionally not built here --
// this binary only demonstrates wiring the sink up and keeping it alive.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"

	"github.com/rob-ellison-jet/stream-collector/internal/config"
	"github.com/rob-ellison-jet/stream-collector/internal/logging"
	"github.com/rob-ellison-jet/stream-collector/internal/middleware"
	"github.com/rob-ellison-jet/stream-collector/internal/sink"
)

func main() {
	opts, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  opts.Logging.Level,
		Format: opts.Logging.Format,
	})
	logging.Info().Msg("starting stream-collector")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load AWS configuration")
	}

	primaryClient := kinesis.NewFromConfig(awsCfg, func(o *kinesis.Options) {
		if opts.CustomEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.CustomEndpoint)
		}
	})

	var secondaryClient sink.SecondaryClient
	if opts.QueueURL != "" {
		secondaryClient = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if opts.CustomEndpoint != "" {
				o.BaseEndpoint = aws.String(opts.CustomEndpoint)
			}
		})
	}

	s, err := sink.New(opts.SinkConfig(), primaryClient, secondaryClient)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to construct sink")
	}

	perfMon := middleware.NewPerformanceMonitor(1000)
	router := newRouter(s, perfMon)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Server.Host, opts.Server.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", server.Addr).Msg("readiness/metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
	}
	if err := s.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("sink shutdown did not complete cleanly")
	}

	cancel()
	logging.Info().Msg("stream-collector stopped")
}

// loadAWSConfig loads the AWS configuration shared by the Kinesis and SQS
// clients: the configured region, if any, and credentials from the default
// chain. customEndpoint, the other shared destination-addressing option, is
// applied to each client in main.
func loadAWSConfig(ctx context.Context, opts *config.Options) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	return awsconfig.LoadDefaultConfig(ctx, loadOpts...)
}

// healthResponse is the JSON body served by /healthz.
type healthResponse struct {
	Healthy bool             `json:"healthy"`
	Buffer  sink.BufferStats `json:"buffer"`
}

// newRouter wires the readiness and metrics surface, exposing
// Sink.IsHealthy() as an HTTP probe and instrumenting every endpoint with
// the same middleware stack (performance monitor, Prometheus, compression,
// request id). perfMon's own accumulated stats are served back over
// /debug/performance.
func newRouter(s *sink.Sink, perfMon *middleware.PerformanceMonitor) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", wrap(perfMon, healthzHandler(s)))
	r.Get("/metrics", wrap(perfMon, sink.MetricsHandler().ServeHTTP))
	r.Get("/debug/performance", wrap(perfMon, performanceHandler(perfMon)))

	return r
}

// wrap applies the shared middleware stack in the order documented by
// internal/middleware's doc.go: the performance monitor outermost (so its
// recorded duration includes every layer under it), then Prometheus, then
// compression, then request-id innermost so handlers can read it from
// context.
func wrap(perfMon *middleware.PerformanceMonitor, h http.HandlerFunc) http.HandlerFunc {
	inner := middleware.PrometheusMetrics(middleware.Compression(middleware.RequestID(h)))
	return perfMon.Middleware(inner).ServeHTTP
}

func healthzHandler(s *sink.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Healthy: s.IsHealthy(), Buffer: s.Stats()}

		status := http.StatusOK
		if !resp.Healthy {
			status = http.StatusServiceUnavailable
		}

		body, err := json.Marshal(resp)
		if err != nil {
			logging.Error().Err(err).Msg("failed to marshal health response")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}
}

// performanceHandler serves perfMon's accumulated per-endpoint latency
// stats, letting an operator inspect the middleware stack's own overhead
// alongside /healthz and /metrics.
func performanceHandler(perfMon *middleware.PerformanceMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(perfMon.GetStats())
		if err != nil {
			logging.Error().Err(err).Msg("failed to marshal performance stats")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}
