// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"math/rand"
	"sync"
	"time"
)

// unboundedRetries marks a retry chain (the oversized-event spillover to
// primary) that never exhausts.
const unboundedRetries = -1

// retryState threads through a dispatch retry chain: retriesLeft counts
// attempts remaining (unboundedRetries never decrements), and delay is the
// previous backoff value fed into nextBackoff to compute the next one. A
// freshly-started, otherwise-ordinary chain begins at delay 0.
type retryState struct {
	retriesLeft int
	delay       time.Duration
}

func (s retryState) exhausted() bool {
	return s.retriesLeft == 0
}

func (s retryState) decremented() retryState {
	if s.retriesLeft == unboundedRetries {
		return s
	}
	return retryState{retriesLeft: s.retriesLeft - 1, delay: s.delay}
}

// retryScheduler computes and enacts the adaptive backoff: a seedable
// math/rand.Rand guarded by a mutex so delay sequences are reproducible in
// tests.
type retryScheduler struct {
	policy BackoffPolicy
	exec   *executor

	mu  sync.Mutex
	rng *rand.Rand
}

func newRetryScheduler(policy BackoffPolicy, exec *executor, seed int64) *retryScheduler {
	return &retryScheduler{
		policy: policy,
		exec:   exec,
		rng:    rand.New(rand.NewSource(seed)), //nolint:gosec // non-cryptographic jitter
	}
}

// nextBackoff implements the adaptive backoff formula:
//
//	next = max(minBackoff + uniform_random[0, maxBackoff-minBackoff], (d/3)*2)
//
// which keeps every delay at or above minBackoff and at or below
// max(maxBackoff, (d/3)*2), letting a long prior backoff decay no faster
// than by a third each retry.
func (r *retryScheduler) nextBackoff(d time.Duration) time.Duration {
	window := r.policy.MaxBackoff - r.policy.MinBackoff
	r.mu.Lock()
	var jitter time.Duration
	if window > 0 {
		jitter = time.Duration(r.rng.Int63n(int64(window) + 1))
	}
	r.mu.Unlock()

	floor := r.policy.MinBackoff + jitter
	decay := (d / 3) * 2
	if decay > floor {
		return decay
	}
	return floor
}

// scheduleRetry schedules fn after the backoff computed from st.delay and
// passes fn a retryState carrying that backoff, so the chain keeps decaying
// on subsequent failures.
func (r *retryScheduler) scheduleRetry(st retryState, fn func(retryState)) {
	next := r.nextBackoff(st.delay)
	nst := retryState{retriesLeft: st.retriesLeft, delay: next}
	r.exec.schedule(next, func() {
		fn(nst)
	})
}

// scheduleAt schedules fn after exactly delay (bypassing nextBackoff),
// used for the three transitions pinned to an explicit value:
// the oversized-event chain and both destination-exhaustion resubmissions.
func (r *retryScheduler) scheduleAt(delay time.Duration, st retryState, fn func(retryState)) {
	nst := retryState{retriesLeft: st.retriesLeft, delay: delay}
	r.exec.schedule(delay, func() {
		fn(nst)
	})
}

// submitNow runs fn immediately, used for first submissions and for the
// failover leg of an exhaustion (no explicit delay is attached
// to a failover onto the other, presumably-healthy destination).
func (r *retryScheduler) submitNow(st retryState, fn func(retryState)) {
	r.exec.submit(func() {
		fn(st)
	})
}
