package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/observability"
)

func TestInit_NoopWhenNoEndpoint(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	require.False(t, cfg.Exporting())

	providers, err := observability.Init(context.Background(), cfg)
	require.NoError(t, err)

	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)

	ctx, span := providers.Tracer.Start(context.Background(), "history.walk")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	metrics, err := observability.NewMiningMetrics(providers.Meter)
	require.NoError(t, err)
	metrics.TaskStarted(ctx)
	metrics.TaskFinished(ctx, observability.ResultFolded)

	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestConfig_Exporting(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.OTLPEndpoint = "localhost:4317"
	assert.True(t, cfg.Exporting())
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, observability.ParseOTLPHeaders(""))
	assert.Nil(t, observability.ParseOTLPHeaders("garbage"))
	assert.Equal(t,
		map[string]string{"api-key": "secret", "tenant": "a"},
		observability.ParseOTLPHeaders(" api-key = secret ,tenant=a,broken"),
	)
}
