// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/rob-ellison-jet/stream-collector/internal/logging"
)

// healthFlag is a destination's {healthy: bool} state,
// plus the double-checked-locking guard that ensures at most one prober
// goroutine runs for a given destination at a time, even if multiple
// dispatch goroutines observe a failure concurrently while one is already
// flapping.
type healthFlag struct {
	mu      sync.Mutex
	healthy atomic.Bool
}

func newHealthFlag() *healthFlag {
	h := &healthFlag{}
	h.healthy.Store(true)
	return h
}

func (h *healthFlag) isHealthy() bool {
	return h.healthy.Load()
}

func (h *healthFlag) markHealthy() {
	h.healthy.Store(true)
}

// markUnhealthyAndProbe flips healthy to false and invokes startProber,
// but only on the transition from healthy to unhealthy. If the flag is
// already false -- another goroutine has already flipped it and its
// prober is (or was) already running -- this is a no-op and returns
// false, which is exactly the "only one prober per destination" guarantee.
func (h *healthFlag) markUnhealthyAndProbe(startProber func()) bool {
	if !h.healthy.Load() {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.healthy.Load() {
		return false
	}
	h.healthy.Store(false)
	startProber()
	return true
}

// prober is a liveness loop for one destination, gated behind a
// circuit breaker so a persistently-down endpoint doesn't get hammered
// with probe calls while the plain healthy boolean the dispatch
// controller reads stays a cheap atomic load.
type prober struct {
	name     string
	interval time.Duration
	flag     *healthFlag
	exec     *executor
	breaker  *gobreaker.CircuitBreaker[struct{}]
	probe    func(ctx context.Context) error
}

func newProber(name string, interval time.Duration, flag *healthFlag, exec *executor, probe func(ctx context.Context) error) *prober {
	settings := gobreaker.Settings{
		Name:        name + "-prober",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     interval,
	}
	return &prober{
		name:     name,
		interval: interval,
		flag:     flag,
		exec:     exec,
		breaker:  gobreaker.NewCircuitBreaker[struct{}](settings),
		probe:    probe,
	}
}

// run loops, re-probing at interval, until the destination reports
// healthy again or ctx is canceled. It is started exactly once per
// flap by healthFlag.markUnhealthyAndProbe and exits as soon as a probe
// succeeds, letting the next failure start a fresh one.
func (p *prober) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := p.breaker.Execute(func() (struct{}, error) {
				return struct{}{}, p.probe(ctx)
			})
			if err == nil {
				p.flag.markHealthy()
				recordHealthTransition(p.name, true)
				logging.Info().Str("destination", p.name).Msg("sink: destination recovered")
				return
			}
			logging.Warn().Str("destination", p.name).Err(err).Msg("sink: destination still unhealthy")
		}
	}
}

// startOnExecutor launches run on the shared executor, bounding concurrent
// probers by the same semaphore that guards submissions.
func (p *prober) startOnExecutor(ctx context.Context) {
	recordHealthTransition(p.name, false)
	p.exec.submit(func() {
		p.run(ctx)
	})
}
