// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sink implements the dual-destination (Kinesis-like primary,
// SQS-like secondary) streaming sink: micro-batching, dispatch and
// failover, adaptive retry, and background health probing.
package sink

import "errors"

// ErrSinkClosed is returned by StoreRawEvents once Shutdown has completed.
var ErrSinkClosed = errors.New("sink: closed")

// ErrNilPrimaryClient is returned at construction when no primary client is supplied.
var ErrNilPrimaryClient = errors.New("sink: primary client required")

// ErrInvalidConfig is returned at construction when configuration invariants
// are violated (recordLimit < 1, byteLimit < maxBytes, etc).
var ErrInvalidConfig = errors.New("sink: invalid configuration")

// ErrOversizedEvent is returned by StoreRawEvents when an event's payload
// exceeds the configured per-event maxBytes. The caller, not the sink, is
// responsible for enforcing this precondition; the sink only
// guards against it defensively at the boundary.
var ErrOversizedEvent = errors.New("sink: event exceeds maxBytes")
