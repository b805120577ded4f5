// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"sync"
	"time"
)

// BufferStats is a whitebox snapshot of the buffer's counters: a test or
// a metrics scrape can read it without racing the buffer's hot path.
type BufferStats struct {
	EventsStored  int64
	FlushCount    int64
	CountFlushes  int64
	ByteFlushes   int64
	TimeFlushes   int64
	LastFlushedAt time.Time
}

// buffer is the thread-safe event accumulator behind micro-batching.
// store() is the only method on the hot path; periodic flushing is driven
// externally (by internal/sinksupervisor) calling flushIfDue.
type buffer struct {
	mu     sync.Mutex
	cfg    BufferConfig
	events []Event
	bytes  int

	lastFlushedAt time.Time
	stats         BufferStats

	dispatch func(batch []Event, trigger string)
}

func newBuffer(cfg BufferConfig, dispatch func(batch []Event, trigger string)) *buffer {
	return &buffer{
		cfg:           cfg,
		events:        make([]Event, 0, cfg.RecordLimit),
		lastFlushedAt: time.Now(),
		dispatch:      dispatch,
	}
}

// store appends e to the buffer, first flushing the existing contents if
// adding e would push the buffer over either limit. The post-condition is
// always that e resides in the (possibly just-emptied) buffer: the config
// invariant ByteLimit >= MaxBytes guarantees a lone maximally-sized event
// never itself exceeds the limit it was just flushed to make room under.
func (b *buffer) store(e Event) {
	size := e.size()

	b.mu.Lock()
	var drained []Event
	trigger := ""
	if len(b.events) > 0 {
		switch {
		case len(b.events)+1 > b.cfg.RecordLimit:
			trigger = "count"
		case b.bytes+size > b.cfg.ByteLimit:
			trigger = "bytes"
		}
		if trigger != "" {
			drained = b.drainLocked()
		}
	}
	b.events = append(b.events, e)
	b.bytes += size
	b.stats.EventsStored++
	b.mu.Unlock()

	if drained != nil {
		b.recordTrigger(trigger)
		b.dispatch(drained, trigger)
	}
}

// flushIfDue drains and dispatches the buffer if TimeLimit has elapsed
// since the last flush and the buffer is non-empty. Called by the
// supervised periodic-flush loop; returns the duration to wait before the
// next check so the caller can self-reschedule.
func (b *buffer) flushIfDue(now time.Time) time.Duration {
	b.mu.Lock()
	elapsed := now.Sub(b.lastFlushedAt)
	if elapsed < b.cfg.TimeLimit || len(b.events) == 0 {
		wait := b.cfg.TimeLimit - elapsed
		b.mu.Unlock()
		if wait <= 0 {
			return b.cfg.TimeLimit
		}
		return wait
	}
	drained := b.drainLocked()
	b.mu.Unlock()

	b.recordTrigger("time")
	b.dispatch(drained, "time")
	return b.cfg.TimeLimit
}

// flush unconditionally drains and dispatches the buffer's current
// contents, used by Shutdown to emit whatever is left.
func (b *buffer) flush() {
	b.mu.Lock()
	drained := b.drainLocked()
	b.mu.Unlock()
	if len(drained) == 0 {
		return
	}
	b.recordTrigger("shutdown")
	b.dispatch(drained, "shutdown")
}

// drainLocked must be called with b.mu held. It takes ownership of the
// current event slice and resets the buffer to empty.
func (b *buffer) drainLocked() []Event {
	drained := b.events
	b.events = make([]Event, 0, b.cfg.RecordLimit)
	b.bytes = 0
	b.lastFlushedAt = time.Now()
	b.stats.FlushCount++
	b.stats.LastFlushedAt = b.lastFlushedAt
	return drained
}

func (b *buffer) recordTrigger(trigger string) {
	switch trigger {
	case "count":
		b.mu.Lock()
		b.stats.CountFlushes++
		b.mu.Unlock()
	case "bytes":
		b.mu.Lock()
		b.stats.ByteFlushes++
		b.mu.Unlock()
	case "time":
		b.mu.Lock()
		b.stats.TimeFlushes++
		b.mu.Unlock()
	}
	recordBufferFlush(trigger)
}

// Stats returns a snapshot of the buffer's counters.
func (b *buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *buffer) size() (count, bytes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events), b.bytes
}
