package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/observability"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}

	return out
}

func TestMiningMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewMiningMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()

	metrics.TaskStarted(ctx)
	metrics.TaskStarted(ctx)
	metrics.TaskFinished(ctx, observability.ResultFolded)
	metrics.TaskFinished(ctx, observability.ResultFailed)
	metrics.RecordDiff(ctx, 2*time.Millisecond)
	metrics.RecordSave(ctx, time.Second, nil)
	metrics.RecordSave(ctx, time.Second, errors.New("disk full"))

	data := collect(t, reader)

	commits, ok := data["gitrecommender.mining.commits.total"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, commits.DataPoints, 2)

	inflight, ok := data["gitrecommender.mining.inflight"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, inflight.DataPoints, 1)
	assert.Equal(t, int64(0), inflight.DataPoints[0].Value)

	diffs, ok := data["gitrecommender.mining.diff.duration.seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(1), diffs.DataPoints[0].Count)

	saves, ok := data["gitrecommender.mining.saves.total"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, saves.DataPoints, 2)
}

func TestMiningMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *observability.MiningMetrics

	ctx := context.Background()

	assert.NotPanics(t, func() {
		metrics.TaskStarted(ctx)
		metrics.TaskFinished(ctx, observability.ResultSkipped)
		metrics.RecordDiff(ctx, time.Millisecond)
		metrics.RecordSave(ctx, time.Millisecond, nil)
	})
}

func TestPrometheusExporter_Serve(t *testing.T) {
	t.Parallel()

	exporter, err := observability.NewPrometheusExporter()
	require.NoError(t, err)

	metrics, err := observability.NewMiningMetrics(exporter.Provider.Meter("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.TaskStarted(ctx)
	metrics.TaskFinished(ctx, observability.ResultFolded)

	logger := observability.NewLogger(io.Discard, observability.DefaultConfig())

	addr, err := exporter.Serve(ctx, "127.0.0.1:0", logger)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "gitrecommender_mining_commits"), string(body))
}
