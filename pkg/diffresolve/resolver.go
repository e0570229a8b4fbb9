// Package diffresolve finds the paths a commit changed relative to its
// predecessor in the walked history.
package diffresolve

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/gitlib"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/history"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/pathfilter"
)

// ErrPoolClosed is returned when a request reaches a closed Pool.
var ErrPoolClosed = errors.New("diff pool closed")

// Resolver returns the changed paths of a commit. Implementations must be
// safe for concurrent use.
type Resolver interface {
	ChangedFiles(ctx context.Context, commit history.Commit) ([]string, error)
}

// Pool resolves diffs on a fixed set of libgit2 workers. Each worker owns a
// separate repository handle pinned to its own OS thread.
type Pool struct {
	requests chan gitlib.TreeDiffRequest
	workers  []*gitlib.DiffWorker
	opts     gitlib.DiffOptions

	mu     sync.RWMutex
	closed bool
}

// NewPool opens size handles on the repository at repoPath and starts one worker per handle.
func NewPool(repoPath string, size int, opts gitlib.DiffOptions) (*Pool, error) {
	size = max(size, 1)

	pool := &Pool{
		requests: make(chan gitlib.TreeDiffRequest, size),
		opts:     opts,
	}

	for range size {
		repo, err := gitlib.OpenRepository(repoPath)
		if err != nil {
			pool.Close()

			return nil, fmt.Errorf("open worker repository: %w", err)
		}

		pool.workers = append(pool.workers, gitlib.ServeDiffs(repo, pool.requests))
	}

	return pool, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// ChangedFiles implements Resolver. A commit without a predecessor yields no
// paths; identical trees yield none either.
func (p *Pool) ChangedFiles(ctx context.Context, commit history.Commit) ([]string, error) {
	if !commit.HasParent || commit.ParentTree == commit.Tree {
		return nil, nil
	}

	response := make(chan gitlib.TreeDiffResponse, 1)

	req := gitlib.TreeDiffRequest{
		OldTree:  commit.ParentTree,
		NewTree:  commit.Tree,
		Options:  p.opts,
		Response: response,
	}

	err := p.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	select {
	case resp := <-response:
		if resp.Error != nil {
			return nil, fmt.Errorf("diff %s: %w", commit.Hash, resp.Error)
		}

		return resp.Changes.Paths(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) submit(ctx context.Context, req gitlib.TreeDiffRequest) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the workers and frees their repository handles.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	close(p.requests)
	p.mu.Unlock()

	for _, worker := range p.workers {
		worker.Wait()
	}
}

// Filtered drops paths rejected by Filter from another Resolver's result.
type Filtered struct {
	Resolver Resolver
	Filter   pathfilter.PathFilter
}

// ChangedFiles implements Resolver.
func (f Filtered) ChangedFiles(ctx context.Context, commit history.Commit) ([]string, error) {
	paths, err := f.Resolver.ChangedFiles(ctx, commit)
	if err != nil {
		return nil, err
	}

	return pathfilter.Apply(f.Filter, paths), nil
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, commit history.Commit) ([]string, error)

// ChangedFiles implements Resolver.
func (f Func) ChangedFiles(ctx context.Context, commit history.Commit) ([]string, error) {
	return f(ctx, commit)
}
