// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

// split greedily packs events into batches bounded by maxRecords and
// maxBytes: it is total (every event appears in exactly one output batch,
// in order), each batch respects both limits, and a batch is only closed
// when the next event would violate one of them (minimality). A single
// event whose own size exceeds maxBytes is never silently dropped -- it is
// placed alone in its own (over-limit) batch, since splitting one event
// across two wire calls is not possible.
func split(events []Event, maxRecords, maxBytes int) [][]Event {
	if len(events) == 0 {
		return nil
	}

	var batches [][]Event
	var current []Event
	var currentBytes int

	for _, e := range events {
		size := e.size()
		fits := len(current) > 0 && len(current) < maxRecords && currentBytes+size <= maxBytes
		if len(current) > 0 && !fits {
			batches = append(batches, current)
			current = nil
			currentBytes = 0
		}
		current = append(current, e)
		currentBytes += size
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
