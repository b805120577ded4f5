// stream-collector - dual-destination streaming sink with failover
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the sink's configuration in three layers: built-in
// defaults, then an optional YAML file, then environment variables, each
// overriding the last.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rob-ellison-jet/stream-collector/internal/sink"
)

// DefaultConfigPaths lists the paths searched for a YAML config file, in
// priority order; the first one found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/stream-collector/config.yaml",
	"/etc/stream-collector/config.yml",
}

// ConfigPathEnvVar overrides the search list with a single explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Options mirrors sink.Config field-for-field in koanf-taggable form:
// streamName, region, customEndpoint, maxBytes, buffer.*, backoffPolicy.*,
// startupCheckInterval, sqsMaxBytes, sqsBufferName (queueUrl).
type Options struct {
	StreamName     string `koanf:"streamName"`
	QueueURL       string `koanf:"sqsBufferName"`
	Region         string `koanf:"region"`
	CustomEndpoint string `koanf:"customEndpoint"`

	MaxBytes    int `koanf:"maxBytes"`
	SQSMaxBytes int `koanf:"sqsMaxBytes"`

	Buffer        BufferOptions `koanf:"buffer"`
	BackoffPolicy BackoffOptions `koanf:"backoffPolicy"`

	StartupCheckInterval    time.Duration `koanf:"startupCheckInterval"`
	MaxConcurrentSubmissions int64        `koanf:"maxConcurrentSubmissions"`
	ShutdownTimeout          time.Duration `koanf:"shutdownTimeout"`

	Logging LoggingOptions `koanf:"logging"`
	Server  ServerOptions  `koanf:"server"`
}

// BufferOptions mirrors sink.BufferConfig.
type BufferOptions struct {
	RecordLimit int           `koanf:"recordLimit"`
	ByteLimit   int           `koanf:"byteLimit"`
	TimeLimit   time.Duration `koanf:"timeLimit"`
}

// BackoffOptions mirrors sink.BackoffPolicy.
type BackoffOptions struct {
	MinBackoff time.Duration `koanf:"minBackoff"`
	MaxBackoff time.Duration `koanf:"maxBackoff"`
	MaxRetries int           `koanf:"maxRetries"`
}

// LoggingOptions configures internal/logging: level and output format.
type LoggingOptions struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerOptions configures cmd/collector's HTTP readiness/metrics surface.
type ServerOptions struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// defaultOptions returns every field at its documented default; this is
// koanf's first, lowest-priority layer.
func defaultOptions() *Options {
	d := sink.DefaultConfig()
	return &Options{
		MaxBytes:                 d.MaxBytes,
		SQSMaxBytes:              d.SQSMaxBytes,
		Buffer:                   BufferOptions{RecordLimit: d.Buffer.RecordLimit, ByteLimit: d.Buffer.ByteLimit, TimeLimit: d.Buffer.TimeLimit},
		BackoffPolicy:            BackoffOptions{MinBackoff: d.BackoffPolicy.MinBackoff, MaxBackoff: d.BackoffPolicy.MaxBackoff, MaxRetries: d.BackoffPolicy.MaxRetries},
		StartupCheckInterval:     d.StartupCheckInterval,
		MaxConcurrentSubmissions: d.MaxConcurrentSubmissions,
		ShutdownTimeout:          d.ShutdownTimeout,
		Logging:                 LoggingOptions{Level: "info", Format: "json"},
		Server:                  ServerOptions{Host: "0.0.0.0", Port: 8080},
	}
}

// Load layers defaults, an optional YAML file, and environment variables,
// in that precedence order (env wins).
func Load() (*Options, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultOptions(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	opts := &Options{}
	if err := k.Unmarshal("", opts); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return opts, nil
}

// findConfigFile searches CONFIG_PATH then DefaultConfigPaths, returning
// the first path that exists on disk.
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps recognized environment variable names to koanf config
// paths with an explicit table rather than a generic case-conversion
// (some names, like sqsBufferName, don't follow the struct's own nesting).
var envMappings = map[string]string{
	"stream_name":                 "streamName",
	"sqs_buffer_name":              "sqsBufferName",
	"region":                       "region",
	"custom_endpoint":              "customEndpoint",
	"max_bytes":                    "maxBytes",
	"sqs_max_bytes":                "sqsMaxBytes",
	"buffer_record_limit":          "buffer.recordLimit",
	"buffer_byte_limit":            "buffer.byteLimit",
	"buffer_time_limit":            "buffer.timeLimit",
	"backoff_min_backoff":          "backoffPolicy.minBackoff",
	"backoff_max_backoff":          "backoffPolicy.maxBackoff",
	"backoff_max_retries":          "backoffPolicy.maxRetries",
	"startup_check_interval":       "startupCheckInterval",
	"max_concurrent_submissions":   "maxConcurrentSubmissions",
	"shutdown_timeout":             "shutdownTimeout",
	"log_level":                    "logging.level",
	"log_format":                   "logging.format",
	"http_host":                    "server.host",
	"http_port":                    "server.port",
}

// envTransform implements the mapping above; an unrecognized variable name
// is passed through lower-cased so koanf simply ignores it on unmarshal.
func envTransform(key string) string {
	key = strings.ToLower(key)
	if path, ok := envMappings[key]; ok {
		return path
	}
	return key
}

// SinkConfig converts the loaded Options into a sink.Config, splicing in
// the destination identifiers that come from the options' top-level
// fields rather than from env-var-friendly struct tags.
func (o *Options) SinkConfig() sink.Config {
	return sink.Config{
		StreamName:     o.StreamName,
		QueueURL:       o.QueueURL,
		Region:         o.Region,
		CustomEndpoint: o.CustomEndpoint,
		MaxBytes:       o.MaxBytes,
		SQSMaxBytes:    o.SQSMaxBytes,
		Buffer: sink.BufferConfig{
			RecordLimit: o.Buffer.RecordLimit,
			ByteLimit:   o.Buffer.ByteLimit,
			TimeLimit:   o.Buffer.TimeLimit,
		},
		BackoffPolicy: sink.BackoffPolicy{
			MinBackoff: o.BackoffPolicy.MinBackoff,
			MaxBackoff: o.BackoffPolicy.MaxBackoff,
			MaxRetries: o.BackoffPolicy.MaxRetries,
		},
		StartupCheckInterval:     o.StartupCheckInterval,
		MaxConcurrentSubmissions: o.MaxConcurrentSubmissions,
		ShutdownTimeout:          o.ShutdownTimeout,
	}
}
