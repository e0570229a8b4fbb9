package gitlib

import (
	"runtime"
)

// TreeDiffRequest asks a DiffWorker for the changes between two trees.
type TreeDiffRequest struct {
	OldTree  Hash // Zero means the empty tree.
	NewTree  Hash
	Options  DiffOptions
	Response chan<- TreeDiffResponse
}

// TreeDiffResponse answers a TreeDiffRequest.
type TreeDiffResponse struct {
	Changes Changes
	Error   error
}

// DiffWorker serves tree diffs from one repository handle. libgit2 handles
// are not shared between threads, so every call runs on one locked OS thread.
type DiffWorker struct {
	done chan struct{}
}

// ServeDiffs starts a DiffWorker that answers requests until the channel is
// closed, then frees repo.
func ServeDiffs(repo *Repository, requests <-chan TreeDiffRequest) *DiffWorker {
	w := &DiffWorker{done: make(chan struct{})}

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		defer close(w.done)
		defer repo.Free()

		for req := range requests {
			changes, err := TreeDiffByHash(repo, req.OldTree, req.NewTree, req.Options)
			req.Response <- TreeDiffResponse{Changes: changes, Error: err}
		}
	}()

	return w
}

// Wait blocks until the worker has exited.
func (w *DiffWorker) Wait() {
	<-w.done
}
