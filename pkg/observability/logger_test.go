package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/observability"
)

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewTracingHandler(inner, observability.Config{
		ServiceName: "test-svc",
		Environment: "test",
		Command:     "mine",
	}))

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	logger.InfoContext(trace.ContextWithSpanContext(context.Background(), sc), "folded")

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "test-svc", record["service"])
	assert.Equal(t, "test", record["env"])
	assert.Equal(t, "mine", record["command"])
}

func TestTracingHandler_GroupsKeepServiceAtTop(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(observability.NewTracingHandler(inner, observability.Config{ServiceName: "svc"}))

	logger.WithGroup("mining").Info("progress", "commits", 3)

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "svc", record["service"])
	assert.NotContains(t, record, "env")
	assert.NotContains(t, record, "command")
	assert.NotContains(t, record, "trace_id")
	assert.Equal(t, map[string]any{"commits": float64(3)}, record["mining"])
}

func TestNewLogger_Formats(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()

	var text bytes.Buffer

	observability.NewLogger(&text, cfg).Debug("hidden")
	observability.NewLogger(&text, cfg).Info("shown")
	assert.NotContains(t, text.String(), "hidden")
	assert.Contains(t, text.String(), "msg=shown")

	cfg.LogJSON = true

	var js bytes.Buffer

	observability.NewLogger(&js, cfg).Info("shown")
	assert.Contains(t, js.String(), `"msg":"shown"`)
	assert.Contains(t, js.String(), `"service":"gitrecommender"`)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	level, err := observability.ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = observability.ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = observability.ParseLevel("loud")
	require.Error(t, err)
}
