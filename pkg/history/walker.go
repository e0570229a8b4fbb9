// Package history lists the commits a mining run still has to fold.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/gitlib"
)

// Sentinel errors.
var (
	// ErrStopWalk is returned by a WalkCommits callback to end the walk early.
	// WalkCommits itself then returns nil.
	ErrStopWalk = errors.New("stop walk")

	// ErrCheckpointNotFound means the saved checkpoint is not reachable from
	// the tip, e.g. after a history rewrite. Mining cannot resume.
	ErrCheckpointNotFound = errors.New("checkpoint commit not found in history")
)

// Commit is one entry of the walked history.
type Commit struct {
	Hash   gitlib.Hash
	Author string
	Tree   gitlib.Hash
	// ParentTree is the tree of the next-older commit in walk order.
	// It is only meaningful when HasParent is true.
	ParentTree gitlib.Hash
	HasParent  bool
}

// Checkpoint returns the commit hash as a store checkpoint.
func (c Commit) Checkpoint() affinity.Checkpoint {
	return affinity.Checkpoint(c.Hash.String())
}

// Source enumerates commits newest first, starting at the tip.
type Source interface {
	// WalkCommits calls fn for each commit, newest first. Returning
	// ErrStopWalk from fn ends the walk without error.
	WalkCommits(ctx context.Context, fn func(Commit) error) error
}

// Walker computes the commits newer than a checkpoint.
type Walker struct {
	source Source
	tracer trace.Tracer
}

// Option configures a Walker.
type Option func(*Walker)

// WithTracer records a span per walk.
func WithTracer(tracer trace.Tracer) Option {
	return func(w *Walker) {
		w.tracer = tracer
	}
}

// NewWalker creates a walker over source.
func NewWalker(source Source, opts ...Option) *Walker {
	w := &Walker{
		source: source,
		tracer: nooptrace.NewTracerProvider().Tracer("history"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// NewCommits walks back from the tip until the checkpoint commit and returns
// the strictly newer commits, oldest first. NoCheckpoint returns the whole
// history. A checkpoint that is not a commit hash fails with
// affinity.ErrCorruptStore before anything is walked. If the checkpoint is
// never reached ErrCheckpointNotFound is returned.
func (w *Walker) NewCommits(ctx context.Context, checkpoint affinity.Checkpoint) ([]Commit, error) {
	ctx, span := w.tracer.Start(ctx, "history.walk",
		trace.WithAttributes(attribute.String("checkpoint", checkpoint.String())))
	defer span.End()

	var target gitlib.Hash

	if !checkpoint.IsSentinel() {
		hash, err := gitlib.ParseHash(checkpoint.String())
		if err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("%w: last commit: %w", affinity.ErrCorruptStore, err)
		}

		target = hash
	}

	var (
		commits []Commit
		found   bool
	)

	err := w.source.WalkCommits(ctx, func(c Commit) error {
		if !checkpoint.IsSentinel() && c.Hash == target {
			found = true

			return ErrStopWalk
		}

		commits = append(commits, c)

		return nil
	})
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("walk history: %w", err)
	}

	if !checkpoint.IsSentinel() && !found {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, checkpoint)
	}

	slices.Reverse(commits)
	span.SetAttributes(attribute.Int("commits.new", len(commits)))

	return commits, nil
}

// NewCommits is a shorthand for NewWalker(src).NewCommits.
func NewCommits(ctx context.Context, src Source, checkpoint affinity.Checkpoint) ([]Commit, error) {
	return NewWalker(src).NewCommits(ctx, checkpoint)
}
