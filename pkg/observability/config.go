// Package observability provides OpenTelemetry tracing and metrics plus
// trace-correlated structured logging for the gitrecommender commands.
package observability

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultServiceName     = "gitrecommender"
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Command is the CLI subcommand being run. It is attached to every log
	// record and to the telemetry resource.
	Command string

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// SampleRatio is the trace sampling ratio. Zero samples everything.
	SampleRatio float64

	LogLevel slog.Level
	LogJSON  bool

	ShutdownTimeout time.Duration
}

// DefaultConfig returns the zero-setup configuration: info logs as text, no export.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Exporting reports whether telemetry leaves the process.
func (c Config) Exporting() bool {
	return c.OTLPEndpoint != ""
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(strings.TrimSpace(name)))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level %q: %w", name, err)
	}

	return level, nil
}

// ParseOTLPHeaders parses "key=value,key=value". Pairs without "=" are
// dropped; nil is returned when nothing remains.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for pair := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	return headers
}
