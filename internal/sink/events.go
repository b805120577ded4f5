// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

// Event is a single raw record handed to the sink by the collector. Key is
// used as the Kinesis partition key and carried as the "kinesisKey" message
// attribute when an event spills over to the secondary queue. Payload is
// the opaque, already-serialized record body.
type Event struct {
	Key     string
	Payload []byte
}

// size returns the byte size this event contributes toward a buffer or
// batch's byte limit. Only the payload counts; Key is bookkeeping metadata.
func (e Event) size() int {
	return len(e.Payload)
}

// Failure pairs an event that a destination rejected with the destination's
// reported reason, mirroring a single Kinesis PutRecords result entry or a
// single SQS SendMessageBatch error entry.
type Failure struct {
	Event   Event
	Code    string
	Message string
}
