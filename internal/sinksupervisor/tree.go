// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sinksupervisor is a suture supervisor tree that runs the sink's
// background loops (the periodic buffer flush, and anything else a
// collector wants supervised) as restart-on-crash services. Submissions,
// retries and probers run on internal/sink's bounded executor instead.
package sinksupervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Config bounds suture's failure-detection thresholds, trimmed to the one
// layer this repo needs.
type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultConfig matches suture's own documented defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree supervises the sink's background services. This repo has one kind
// of supervised work -- the sink's own scheduled loops -- so a single
// child supervisor under root is enough; it still gives failure isolation
// between independently-added services.
type Tree struct {
	root *suture.Supervisor
	sink *suture.Supervisor
}

// New builds a supervisor tree logging restarts through logger via
// sutureslog.
func New(logger *slog.Logger, cfg Config) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultConfig()
	}
	eventHook := (&sutureslog.Handler{Logger: logger}).MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	root := suture.New("stream-collector", rootSpec)
	sinkSup := suture.New("sink-services", childSpec)
	root.Add(sinkSup)

	return &Tree{root: root, sink: sinkSup}
}

// AddSinkService registers a background service (the periodic flush loop,
// or a collector-supplied auxiliary task) under the sink layer.
func (t *Tree) AddSinkService(svc suture.Service) suture.ServiceToken {
	return t.sink.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a background goroutine and returns a
// channel that receives its terminal error.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
