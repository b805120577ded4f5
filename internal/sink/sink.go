// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rob-ellison-jet/stream-collector/internal/logging"
	"github.com/rob-ellison-jet/stream-collector/internal/sinksupervisor"
)

// Sink is the dual-destination streaming sink: the public surface a
// collector wires a producer against. Construct one with New, feed it
// through StoreRawEvents, and call Shutdown exactly once when done.
type Sink struct {
	cfg Config

	buf        *buffer
	dispatcher *dispatcher
	exec       *executor
	retry      *retryScheduler

	primary   *primaryDestination
	secondary *secondaryDestination

	tree   *sinksupervisor.Tree
	cancel context.CancelFunc

	// probeCancel stops every health prober independently of cancel: a
	// prober's run loop only returns on a successful probe or its context
	// being canceled, so if it shared cancel's context it would still be
	// registered on exec.wg -- and therefore block drain -- for the full
	// ShutdownTimeout on every Shutdown call that happens to catch a
	// destination mid-flap, even with no actual submissions in flight.
	probeCancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	flushDone chan struct{}
}

// New constructs a Sink. cfg is validated up front: construction either
// returns a fully-usable *Sink or a non-nil error, never a partially
// initialized one.
func New(cfg Config, primaryClient PrimaryClient, secondaryClient SecondaryClient) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if primaryClient == nil {
		return nil, ErrNilPrimaryClient
	}

	ctx, cancel := context.WithCancel(context.Background())
	probeCtx, probeCancel := context.WithCancel(context.Background())

	primary := &primaryDestination{
		client:     primaryClient,
		streamName: cfg.StreamName,
		health:     newHealthFlag(),
	}

	var secondary *secondaryDestination
	if cfg.QueueURL != "" {
		if secondaryClient == nil {
			cancel()
			probeCancel()
			return nil, fmt.Errorf("%w: secondary queue configured but no client supplied", ErrInvalidConfig)
		}
		secondary = &secondaryDestination{
			client:   secondaryClient,
			queueURL: cfg.QueueURL,
			maxBytes: cfg.SQSMaxBytes,
			health:   newHealthFlag(),
		}
	}

	exec := newExecutor(cfg.MaxConcurrentSubmissions)
	retry := newRetryScheduler(cfg.BackoffPolicy, exec, time.Now().UnixNano())
	d := newDispatcher(ctx, primary, secondary, cfg.BackoffPolicy, retry, exec)

	d.startPrimaryProber = func() {
		p := newProber(destPrimary, cfg.StartupCheckInterval, primary.health, exec, func(pctx context.Context) error {
			return probePrimary(pctx, primary)
		})
		p.startOnExecutor(probeCtx)
	}
	if secondary != nil {
		d.startSecondaryProber = func() {
			p := newProber(destSecondary, cfg.StartupCheckInterval, secondary.health, exec, func(pctx context.Context) error {
				return probeSecondary(pctx, secondary)
			})
			p.startOnExecutor(probeCtx)
		}
	} else {
		d.startSecondaryProber = func() {}
	}

	tree := sinksupervisor.New(logging.NewSlogLogger(), sinksupervisor.DefaultConfig())

	s := &Sink{
		cfg:         cfg,
		dispatcher:  d,
		exec:        exec,
		retry:       retry,
		primary:     primary,
		secondary:   secondary,
		tree:        tree,
		cancel:      cancel,
		probeCancel: probeCancel,
		flushDone:   make(chan struct{}),
	}
	s.buf = newBuffer(cfg.Buffer, func(batch []Event, trigger string) {
		logging.Debug().Int("events", len(batch)).Str("trigger", trigger).Msg("sink: buffer flushed")
		d.HandleBatch(batch)
	})

	tree.AddSinkService(flushLoopService{s: s})
	go func() {
		defer close(s.flushDone)
		_ = tree.Serve(ctx)
	}()

	return s, nil
}

// flushLoopService adapts Sink's periodic flush loop to suture.Service so
// the supervisor tree restarts it if it ever panics instead of silently
// leaving the buffer unflushed for the rest of the process's life.
type flushLoopService struct {
	s *Sink
}

func (f flushLoopService) Serve(ctx context.Context) error {
	f.s.runPeriodicFlush(ctx)
	return ctx.Err()
}

func (f flushLoopService) String() string {
	return "buffer-flush-loop"
}

// StoreRawEvents accepts events one at a time so a
// caller streaming records one-by-one never has to batch them itself; the
// buffer and dispatcher handle batching, splitting and failover
// internally. The caller is responsible for ensuring no single event's
// payload exceeds cfg.MaxBytes; StoreRawEvents enforces it
// defensively since accepting and later silently dropping an oversized
// event would violate the "every stored event eventually reaches some
// destination" invariant.
func (s *Sink) StoreRawEvents(events ...Event) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrSinkClosed
	}

	for _, e := range events {
		if e.size() > s.cfg.MaxBytes {
			return fmt.Errorf("%w: %d bytes > %d", ErrOversizedEvent, e.size(), s.cfg.MaxBytes)
		}
	}
	for _, e := range events {
		s.buf.store(e)
	}
	return nil
}

// IsHealthy reports whether at least one destination is currently able to
// accept writes -- the readiness signal a collector's
// /healthz probe should read.
func (s *Sink) IsHealthy() bool {
	if s.primary.health.isHealthy() {
		return true
	}
	if s.secondary != nil && s.secondary.health.isHealthy() {
		return true
	}
	return false
}

// Stats exposes the buffer's whitebox counters for tests and /metrics.
func (s *Sink) Stats() BufferStats {
	return s.buf.Stats()
}

// runPeriodicFlush is the self-rescheduling periodic flush: it asks the
// buffer whether TimeLimit has elapsed since the last flush, flushes if so,
// and sleeps for however long the buffer says is left before the next
// check -- so a flush happens within TimeLimit of the oldest unflushed
// event, never accumulating drift the way a fixed ticker would once a
// count/byte-triggered flush resets the clock early.
func (s *Sink) runPeriodicFlush(ctx context.Context) {
	timer := time.NewTimer(s.cfg.Buffer.TimeLimit)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			wait := s.buf.flushIfDue(time.Now())
			timer.Reset(wait)
		}
	}
}

// Shutdown drains in-flight submissions and retries up to cfg.ShutdownTimeout,
// flushes whatever remains buffered, and stops the background flush loop.
// Work still outstanding when the timeout elapses is abandoned and logged,
// never reported to the caller as an error. Health probers are stopped
// immediately rather than drained: a live prober loop only exits on a
// successful probe or context cancellation, and letting it sit on the same
// wait group as real submissions would make every Shutdown that catches a
// destination mid-flap block for the full timeout over a background health
// check instead of actual lost data.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.probeCancel()
	s.buf.flush()

	drainCtx, drainCancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer drainCancel()
	if !s.exec.drain(drainCtx) {
		logging.Warn().Msg("sink: shutdown timeout elapsed with submissions still in flight; abandoning them")
		recordShutdownAbandoned(1)
	}

	s.cancel()
	<-s.flushDone
	return nil
}
