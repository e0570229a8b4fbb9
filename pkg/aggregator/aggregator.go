// Package aggregator folds a list of commits into an affinity store on a
// fixed pool of goroutines, saving the store periodically.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/diffresolve"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/history"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/observability"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/pathfilter"
)

const (
	// DefaultProgressInterval is the number of submissions between drains.
	DefaultProgressInterval = 1000
	// DefaultSaveInterval is the number of submissions between saves.
	DefaultSaveInterval = 10000

	queueSizeMultiplier = 2
)

// Config sizes the worker pool and the drain and save cadence.
type Config struct {
	// Workers is the number of task goroutines.
	Workers int

	// ProgressInterval is how many submissions pass between drains.
	// Every drain logs throughput and tightens the store checkpoint.
	ProgressInterval int

	// SaveInterval is how many submissions pass between saves.
	SaveInterval int

	// QueueSize bounds the task channel. Submission blocks when it is full.
	QueueSize int
}

// DefaultConfig returns one worker per CPU and the default intervals.
func DefaultConfig() Config {
	workers := runtime.NumCPU()

	return Config{
		Workers:          workers,
		ProgressInterval: DefaultProgressInterval,
		SaveInterval:     DefaultSaveInterval,
		QueueSize:        workers * queueSizeMultiplier,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()

	if c.Workers <= 0 {
		c.Workers = def.Workers
	}

	if c.ProgressInterval <= 0 {
		c.ProgressInterval = def.ProgressInterval
	}

	if c.SaveInterval <= 0 {
		c.SaveInterval = def.SaveInterval
	}

	if c.QueueSize <= 0 {
		c.QueueSize = c.Workers * queueSizeMultiplier
	}

	return c
}

// Saver persists the store.
type Saver interface {
	Save(ctx context.Context, store *affinity.Store) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, store *affinity.Store) error

// Save implements Saver.
func (f SaverFunc) Save(ctx context.Context, store *affinity.Store) error {
	return f(ctx, store)
}

// Stats summarizes a run.
type Stats struct {
	Submitted int
	Folded    int
	Failed    int
	Skipped   int
	Saves     int
	Elapsed   time.Duration
}

// Aggregator runs commit tasks against a store.
type Aggregator struct {
	store    *affinity.Store
	resolver diffresolve.Resolver
	saver    Saver
	cfg      Config

	logger  *slog.Logger
	metrics *observability.MiningMetrics
	tracer  trace.Tracer
	authors *pathfilter.AuthorFilter
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics records per-commit and per-save metrics.
func WithMetrics(metrics *observability.MiningMetrics) Option {
	return func(a *Aggregator) {
		a.metrics = metrics
	}
}

// WithTracer records run and save spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Aggregator) {
		a.tracer = tracer
	}
}

// WithAuthorFilter skips commits by excluded authors.
func WithAuthorFilter(filter *pathfilter.AuthorFilter) Option {
	return func(a *Aggregator) {
		a.authors = filter
	}
}

// New creates an aggregator. Zero config fields take their defaults.
func New(store *affinity.Store, resolver diffresolve.Resolver, saver Saver, cfg Config, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:    store,
		resolver: resolver,
		saver:    saver,
		cfg:      cfg.normalized(),
		logger:   slog.Default(),
		tracer:   nooptrace.NewTracerProvider().Tracer("aggregator"),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

type counters struct {
	folded  atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

// run holds the state of one Run call.
type run struct {
	*Aggregator

	tasks    chan history.Commit
	inflight sync.WaitGroup
	workers  sync.WaitGroup
	counts   counters

	submitted int
	saves     int
	last      history.Commit
	start     time.Time
	total     int
}

// Run folds commits, which must be ordered oldest first. Every commit is
// handled exactly once: folded, skipped (filtered author) or dropped (diff
// failure). The store is saved every SaveInterval submissions and once more
// at the end, also when ctx is cancelled; cancellation only stops further
// submissions and Run then returns ctx.Err() after the final save.
func (a *Aggregator) Run(ctx context.Context, commits []history.Commit) (Stats, error) {
	ctx, span := a.tracer.Start(ctx, "aggregator.run",
		trace.WithAttributes(
			attribute.Int("commits", len(commits)),
			attribute.Int("workers", a.cfg.Workers),
		))
	defer span.End()

	r := &run{
		Aggregator: a,
		tasks:      make(chan history.Commit, a.cfg.QueueSize),
		start:      time.Now(),
		total:      len(commits),
	}

	// In-flight tasks finish even after cancellation so that every submitted
	// commit is accounted for before the checkpoint moves past it.
	taskCtx := context.WithoutCancel(ctx)

	for range a.cfg.Workers {
		r.workers.Add(1)

		go r.work(taskCtx)
	}

	runErr := r.submitAll(ctx, commits)

	close(r.tasks)
	r.workers.Wait()
	r.markDrained()

	if runErr == nil || ctx.Err() != nil {
		saveErr := r.save(taskCtx)
		if saveErr != nil && runErr == nil {
			runErr = saveErr
		}
	}

	stats := r.stats()

	span.SetAttributes(
		attribute.Int("commits.folded", stats.Folded),
		attribute.Int("commits.failed", stats.Failed),
		attribute.Int("commits.skipped", stats.Skipped),
	)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())

		return stats, runErr
	}

	a.logger.Info("mining finished",
		"commits", humanize.Comma(int64(stats.Submitted)),
		"folded", stats.Folded,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"elapsed", stats.Elapsed.Round(time.Millisecond),
	)

	return stats, nil
}

func (r *run) submitAll(ctx context.Context, commits []history.Commit) error {
	for _, commit := range commits {
		err := ctx.Err()
		if err != nil {
			return err
		}

		r.inflight.Add(1)

		select {
		case r.tasks <- commit:
		case <-ctx.Done():
			r.inflight.Done()

			return ctx.Err()
		}

		r.metrics.TaskStarted(ctx)

		r.submitted++
		r.last = commit

		if r.submitted%r.cfg.ProgressInterval == 0 {
			r.drain()
			r.logProgress()
		}

		if r.submitted%r.cfg.SaveInterval == 0 {
			r.drain()

			err = r.save(ctx)
			if err != nil {
				return err
			}
		}
	}

	return ctx.Err()
}

func (r *run) work(ctx context.Context) {
	defer r.workers.Done()

	for commit := range r.tasks {
		result := r.handle(ctx, commit)
		r.metrics.TaskFinished(ctx, result)
		r.inflight.Done()
	}
}

func (r *run) handle(ctx context.Context, commit history.Commit) observability.CommitResult {
	if r.authors.Excluded(commit.Author) {
		r.counts.skipped.Add(1)

		return observability.ResultSkipped
	}

	started := time.Now()
	paths, err := r.resolver.ChangedFiles(ctx, commit)
	r.metrics.RecordDiff(ctx, time.Since(started))

	if err != nil {
		r.logger.Warn("dropping commit", "commit", commit.Hash.String(), "author", commit.Author, "error", err)
		r.counts.failed.Add(1)

		return observability.ResultFailed
	}

	r.store.Fold(commit.Checkpoint(), commit.Author, paths)
	r.counts.folded.Add(1)

	return observability.ResultFolded
}

// drain waits for every submitted task and moves the checkpoint to the last
// submitted commit, which is now the newest handled one.
func (r *run) drain() {
	r.inflight.Wait()
	r.markDrained()
}

func (r *run) markDrained() {
	if r.submitted > 0 {
		r.store.MarkCheckpoint(r.last.Checkpoint())
	}
}

func (r *run) save(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "aggregator.save",
		trace.WithAttributes(attribute.String("checkpoint", r.store.LastCommit().String())))
	defer span.End()

	started := time.Now()
	err := r.saver.Save(ctx, r.store)
	elapsed := time.Since(started)

	r.metrics.RecordSave(ctx, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return fmt.Errorf("save store at %s: %w", r.store.LastCommit(), err)
	}

	r.saves++

	r.logger.Debug("store saved",
		"checkpoint", r.store.LastCommit().String(),
		"elapsed", elapsed.Round(time.Millisecond),
	)

	return nil
}

func (r *run) logProgress() {
	elapsed := time.Since(r.start)

	rate := 0.0
	if elapsed > 0 {
		rate = float64(r.submitted) / elapsed.Seconds()
	}

	r.logger.Info("mining progress",
		"done", humanize.Comma(int64(r.submitted)),
		"total", humanize.Comma(int64(r.total)),
		"commits_per_sec", humanize.FtoaWithDigits(rate, 1),
		"failed", r.counts.failed.Load(),
	)
}

func (r *run) stats() Stats {
	return Stats{
		Submitted: r.submitted,
		Folded:    int(r.counts.folded.Load()),
		Failed:    int(r.counts.failed.Load()),
		Skipped:   int(r.counts.skipped.Load()),
		Saves:     r.saves,
		Elapsed:   time.Since(r.start),
	}
}
