package history

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/gitlib"
)

// RepositorySource walks a libgit2 repository from HEAD in time and
// topological order. Each commit's ParentTree is the tree of the commit the
// walk yields right after it; the last (oldest) commit has none.
type RepositorySource struct {
	Repo        *gitlib.Repository
	FirstParent bool
}

// WalkCommits implements Source. An empty repository yields no commits.
func (s RepositorySource) WalkCommits(ctx context.Context, fn func(Commit) error) error {
	empty, err := s.Repo.IsEmpty()
	if err != nil {
		return err
	}

	if empty {
		return nil
	}

	iter, err := s.Repo.Log(&gitlib.LogOptions{FirstParent: s.FirstParent})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer iter.Close()

	// Each commit is emitted once its successor in walk order is known.
	var (
		pending     Commit
		havePending bool
	)

	for {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return ctxErr
		}

		next, nextErr := iter.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}

		if nextErr != nil {
			return nextErr
		}

		current := Commit{
			Hash:   next.Hash(),
			Author: next.Author().Name,
			Tree:   next.TreeHash(),
		}
		next.Free()

		if havePending {
			pending.ParentTree = current.Tree
			pending.HasParent = true

			cbErr := fn(pending)
			if errors.Is(cbErr, ErrStopWalk) {
				return nil
			}

			if cbErr != nil {
				return cbErr
			}
		}

		pending, havePending = current, true
	}

	if havePending {
		cbErr := fn(pending)
		if cbErr != nil && !errors.Is(cbErr, ErrStopWalk) {
			return cbErr
		}
	}

	return nil
}

// SliceSource replays a fixed newest-first list of commits.
type SliceSource []Commit

// WalkCommits implements Source.
func (s SliceSource) WalkCommits(ctx context.Context, fn func(Commit) error) error {
	for _, c := range s {
		err := ctx.Err()
		if err != nil {
			return err
		}

		err = fn(c)
		if errors.Is(err, ErrStopWalk) {
			return nil
		}

		if err != nil {
			return err
		}
	}

	return nil
}
