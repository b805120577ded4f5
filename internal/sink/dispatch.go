// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"

	"github.com/rob-ellison-jet/stream-collector/internal/logging"
)

const (
	destPrimary   = "primary"
	destSecondary = "secondary"
)

// dispatcher is the decision tree that routes a flushed batch to a
// destination based on health and size, and the partial-failure /
// exhaustion retry loop that follows a submission. It has no single
// "Dispatch" entry point distinct from the flush callback wired in
// sink.go -- HandleBatch() is that entry point.
//
// Delay semantics (a decision, not dictated anywhere else): a submission
// is sent immediately unless the routing below attaches an
// explicit backoff value to it ("at maxBackoff", "delay minBackoff"). The
// three chains that do -- the oversized-event spillover, and both
// destination-exhaustion resubmissions -- start their retryState.delay at
// that literal value so later retries in the same chain keep decaying from
// it via nextBackoff; every other first submission (a healthy-primary
// flush, or the small-event half of a failover) starts at delay 0 and
// schedules its first retry-after-failure through the normal adaptive
// formula.
type dispatcher struct {
	ctx context.Context

	primary   *primaryDestination
	secondary *secondaryDestination // nil if no secondary is configured

	policy BackoffPolicy
	retry  *retryScheduler
	exec   *executor

	// startPrimaryProber/startSecondaryProber launch the liveness loop for
	// the corresponding destination; set by sink.go at construction, once
	// the probe functions and startup-check interval are known.
	startPrimaryProber   func()
	startSecondaryProber func()
}

func newDispatcher(ctx context.Context, primary *primaryDestination, secondary *secondaryDestination, policy BackoffPolicy, retry *retryScheduler, exec *executor) *dispatcher {
	return &dispatcher{
		ctx:       ctx,
		primary:   primary,
		secondary: secondary,
		policy:    policy,
		retry:     retry,
		exec:      exec,
	}
}

// HandleBatch is the dispatcher's entry point, invoked once per buffer flush. It
// implements the routing table:
//
//	primary healthy                         -> all of B to primary
//	primary unhealthy, no secondary          -> all of B to primary anyway
//	primary unhealthy, secondary present      -> partition B by dest.maxBytes:
//	                                             small -> secondary, large -> primary (unbounded, at maxBackoff)
func (d *dispatcher) HandleBatch(batch []Event) {
	if len(batch) == 0 {
		return
	}

	if d.primary.health.isHealthy() || d.secondary == nil {
		d.retry.submitNow(retryState{retriesLeft: d.policy.MaxRetries}, func(st retryState) {
			d.attemptPrimary(batch, st)
		})
		return
	}

	small, large := partitionBySize(batch, d.secondary.maxBytes)
	if len(small) > 0 {
		d.retry.submitNow(retryState{retriesLeft: d.policy.MaxRetries}, func(st retryState) {
			d.attemptSecondary(small, st)
		})
	}
	if len(large) > 0 {
		d.retry.scheduleAt(d.policy.MaxBackoff, retryState{retriesLeft: unboundedRetries}, func(st retryState) {
			d.attemptPrimary(large, st)
		})
	}
}

// partitionBySize splits events into those that fit within the secondary
// destination's per-batch byte budget (small) and those that do not
// (large), each considered alone -- an oversized single event can still
// never reach the secondary, regardless of what else is in the batch.
func partitionBySize(events []Event, maxBytes int) (small, large []Event) {
	for _, e := range events {
		if e.size() > maxBytes {
			large = append(large, e)
		} else {
			small = append(small, e)
		}
	}
	return small, large
}

func eventsOf(failures []Failure) []Event {
	events := make([]Event, len(failures))
	for i, f := range failures {
		events[i] = f.Event
	}
	return events
}

// attemptPrimary runs one writeToPrimary call and resolves the outcome:
// full success, partial failure (schedule a retry), or exhaustion.
func (d *dispatcher) attemptPrimary(batch []Event, st retryState) {
	recordRetryAttempt(destPrimary)
	failures, callOK := writeToPrimary(d.ctx, d.primary, batch)
	if callOK {
		d.primary.health.markHealthy()
	}
	succeeded := len(batch) - len(failures)
	if succeeded > 0 {
		recordDispatchRouted(destPrimary, succeeded)
	}
	if len(failures) == 0 {
		return
	}
	recordDispatchFailures(destPrimary, len(failures))
	failed := eventsOf(failures)

	if !st.exhausted() {
		next := st.decremented()
		d.retry.scheduleRetry(next, func(rst retryState) {
			d.attemptPrimary(failed, rst)
		})
		return
	}
	d.primaryExhausted(failed)
}

// primaryExhausted implements the exhaustion branch for the
// primary destination.
func (d *dispatcher) primaryExhausted(failed []Event) {
	logging.Warn().Int("events", len(failed)).Msg("sink: primary retry budget exhausted")
	recordDestinationExhausted(destPrimary)

	if d.secondary != nil {
		small, large := partitionBySize(failed, d.secondary.maxBytes)
		if len(small) > 0 {
			d.retry.submitNow(retryState{retriesLeft: d.policy.MaxRetries}, func(st retryState) {
				d.attemptSecondary(small, st)
			})
		}
		if len(large) > 0 {
			d.retry.scheduleAt(d.policy.MaxBackoff, retryState{retriesLeft: unboundedRetries}, func(st retryState) {
				d.attemptPrimary(large, st)
			})
		}
	} else {
		d.retry.scheduleAt(d.policy.MaxBackoff, retryState{retriesLeft: d.policy.MaxRetries}, func(st retryState) {
			d.attemptPrimary(failed, st)
		})
	}

	d.primary.health.markUnhealthyAndProbe(func() {
		d.startPrimaryProber()
	})
}

// attemptSecondary is attemptPrimary's mirror for the secondary queue.
func (d *dispatcher) attemptSecondary(batch []Event, st retryState) {
	if d.secondary == nil {
		return
	}
	recordRetryAttempt(destSecondary)
	failures, callOK := writeToSecondary(d.ctx, d.secondary, batch)
	if callOK {
		d.secondary.health.markHealthy()
	}
	succeeded := len(batch) - len(failures)
	if succeeded > 0 {
		recordDispatchRouted(destSecondary, succeeded)
	}
	if len(failures) == 0 {
		return
	}
	recordDispatchFailures(destSecondary, len(failures))
	failed := eventsOf(failures)

	if !st.exhausted() {
		next := st.decremented()
		d.retry.scheduleRetry(next, func(rst retryState) {
			d.attemptSecondary(failed, rst)
		})
		return
	}
	d.secondaryExhausted(failed)
}

// secondaryExhausted implements the symmetric exhaustion branch
// for the secondary queue: it never has a further destination to spill to,
// so the failed set is resubmitted to primary with a fresh retry budget,
// delayed by minBackoff since primary may simply be mid-recovery.
func (d *dispatcher) secondaryExhausted(failed []Event) {
	logging.Warn().Int("events", len(failed)).Msg("sink: secondary retry budget exhausted")
	recordDestinationExhausted(destSecondary)

	d.retry.scheduleAt(d.policy.MinBackoff, retryState{retriesLeft: d.policy.MaxRetries}, func(st retryState) {
		d.attemptPrimary(failed, st)
	})

	d.secondary.health.markUnhealthyAndProbe(func() {
		d.startSecondaryProber()
	})
}
