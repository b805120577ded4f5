// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"fmt"
	"time"
)

// BufferConfig bounds the micro-batching buffer. A flush is triggered
// whenever the next store would exceed RecordLimit or ByteLimit, or when the
// periodic flush loop finds TimeLimit elapsed since the last flush.
type BufferConfig struct {
	// RecordLimit is the maximum number of events the buffer may hold.
	RecordLimit int
	// ByteLimit is the maximum total payload bytes the buffer may hold.
	// Must be >= Config.MaxBytes so a single maximally-sized event always fits
	// in an otherwise-empty buffer.
	ByteLimit int
	// TimeLimit is the maximum time an event may sit in the buffer before
	// a periodic flush drains it, even if neither limit above is hit.
	TimeLimit time.Duration
}

// DefaultBufferConfig returns the buffer defaults used when koanf has no
// override: 500 records, 4 MiB, flushed at least every 5 seconds.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		RecordLimit: 500,
		ByteLimit:   4 << 20,
		TimeLimit:   5 * time.Second,
	}
}

// BackoffPolicy parameterizes the adaptive retry backoff.
type BackoffPolicy struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// MaxRetries is the number of retry attempts a fresh dispatch chain is
	// given before the controller treats the destination as exhausted.
	MaxRetries int
}

// DefaultBackoffPolicy mirrors common Kinesis/SQS client defaults: start
// at half a second, cap at a minute, and treat a destination as exhausted
// after 5 retries.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 60 * time.Second,
		MaxRetries: 5,
	}
}

// Config is the full set of options a Sink is constructed with.
type Config struct {
	StreamName     string
	QueueURL       string
	Region         string
	CustomEndpoint string

	// MaxBytes is the maximum payload size, in bytes, a single event may
	// have before it is considered oversized for the primary destination's
	// per-record limit (Kinesis: 1 MiB).
	MaxBytes int
	// SQSMaxBytes is the maximum total payload size, in bytes, a single
	// SendMessageBatch call may carry (SQS: 256 KiB).
	SQSMaxBytes int

	Buffer        BufferConfig
	BackoffPolicy BackoffPolicy

	// StartupCheckInterval is how often a health prober re-probes a
	// destination it believes is unhealthy.
	StartupCheckInterval time.Duration

	// MaxConcurrentSubmissions bounds the executor's in-flight network
	// calls to the destinations.
	MaxConcurrentSubmissions int64

	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// submissions and retries to drain before abandoning them.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with every field at its documented
// default, suitable as the koanf base layer before file/env overlays.
func DefaultConfig() Config {
	return Config{
		MaxBytes:                 1 << 20,
		SQSMaxBytes:              256 << 10,
		Buffer:                   DefaultBufferConfig(),
		BackoffPolicy:            DefaultBackoffPolicy(),
		StartupCheckInterval:     10 * time.Second,
		MaxConcurrentSubmissions: 16,
		ShutdownTimeout:          10 * time.Second,
	}
}

// Validate enforces the configuration invariants: the
// buffer must be able to hold at least one maximally-sized event, the
// backoff window must be non-empty and ordered, and the stream name/maxBytes
// must be set to something usable.
func (c Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("%w: streamName required", ErrInvalidConfig)
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("%w: maxBytes must be positive", ErrInvalidConfig)
	}
	if c.Buffer.RecordLimit < 1 {
		return fmt.Errorf("%w: buffer.recordLimit must be >= 1", ErrInvalidConfig)
	}
	if c.Buffer.ByteLimit < c.MaxBytes {
		return fmt.Errorf("%w: buffer.byteLimit must be >= maxBytes", ErrInvalidConfig)
	}
	if c.Buffer.TimeLimit <= 0 {
		return fmt.Errorf("%w: buffer.timeLimit must be positive", ErrInvalidConfig)
	}
	if c.BackoffPolicy.MinBackoff <= 0 || c.BackoffPolicy.MaxBackoff < c.BackoffPolicy.MinBackoff {
		return fmt.Errorf("%w: backoffPolicy.minBackoff must be positive and <= maxBackoff", ErrInvalidConfig)
	}
	if c.BackoffPolicy.MaxRetries < 0 {
		return fmt.Errorf("%w: backoffPolicy.maxRetries must be >= 0", ErrInvalidConfig)
	}
	if c.QueueURL != "" && c.SQSMaxBytes <= 0 {
		return fmt.Errorf("%w: sqsMaxBytes must be positive when a secondary queue is configured", ErrInvalidConfig)
	}
	return nil
}
