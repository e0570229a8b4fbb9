package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCommitsTotal  = "gitrecommender.mining.commits.total"
	metricInflight      = "gitrecommender.mining.inflight"
	metricDiffDuration  = "gitrecommender.mining.diff.duration.seconds"
	metricSavesTotal    = "gitrecommender.mining.saves.total"
	metricSaveDuration  = "gitrecommender.mining.save.duration.seconds"
	attrResult          = "result"
	resultSaveSucceeded = "ok"
	resultSaveFailed    = "error"
)

// CommitResult is the outcome of one commit task.
type CommitResult string

// Commit task outcomes.
const (
	ResultFolded  CommitResult = "folded"
	ResultFailed  CommitResult = "failed"
	ResultSkipped CommitResult = "skipped"
)

// diffBucketBoundaries covers 0.1ms to 10s; most tree diffs finish in a few milliseconds.
var diffBucketBoundaries = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// saveBucketBoundaries covers 10ms to 120s for full store rewrites.
var saveBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// MiningMetrics holds OTel instruments for a mining run.
// A nil *MiningMetrics records nothing.
type MiningMetrics struct {
	commits      metric.Int64Counter
	inflight     metric.Int64UpDownCounter
	diffDuration metric.Float64Histogram
	saves        metric.Int64Counter
	saveDuration metric.Float64Histogram
}

// NewMiningMetrics creates mining instruments from the given meter.
func NewMiningMetrics(mt metric.Meter) (*MiningMetrics, error) {
	commits, err := mt.Int64Counter(metricCommitsTotal,
		metric.WithDescription("Commits handled by the aggregator, by result"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCommitsTotal, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflight,
		metric.WithDescription("Commit tasks submitted and not yet finished"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflight, err)
	}

	diffDuration, err := mt.Float64Histogram(metricDiffDuration,
		metric.WithDescription("Tree diff duration per commit in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(diffBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDiffDuration, err)
	}

	saves, err := mt.Int64Counter(metricSavesTotal,
		metric.WithDescription("Store saves, by result"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSavesTotal, err)
	}

	saveDuration, err := mt.Float64Histogram(metricSaveDuration,
		metric.WithDescription("Store save duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(saveBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSaveDuration, err)
	}

	return &MiningMetrics{
		commits:      commits,
		inflight:     inflight,
		diffDuration: diffDuration,
		saves:        saves,
		saveDuration: saveDuration,
	}, nil
}

// TaskStarted marks a submitted commit task.
func (m *MiningMetrics) TaskStarted(ctx context.Context) {
	if m == nil {
		return
	}

	m.inflight.Add(ctx, 1)
}

// TaskFinished records a finished commit task and its result.
func (m *MiningMetrics) TaskFinished(ctx context.Context, result CommitResult) {
	if m == nil {
		return
	}

	m.inflight.Add(ctx, -1)
	m.commits.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, string(result))))
}

// RecordDiff records one tree diff duration.
func (m *MiningMetrics) RecordDiff(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}

	m.diffDuration.Record(ctx, d.Seconds())
}

// RecordSave records one store save.
func (m *MiningMetrics) RecordSave(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}

	result := resultSaveSucceeded
	if err != nil {
		result = resultSaveFailed
	}

	m.saves.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
	m.saveDuration.Record(ctx, d.Seconds())
}
