package affinity_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
)

func TestStore_DenseFirstSeenIDs(t *testing.T) {
	t.Parallel()

	store := affinity.NewStore()

	assert.Equal(t, 0, store.IDAuthor("a"))
	assert.Equal(t, 1, store.IDAuthor("b"))
	assert.Equal(t, 0, store.IDAuthor("a"))
	assert.Equal(t, 2, store.IDAuthor("c"))

	assert.Equal(t, 0, store.IDFile("x.go"))
	assert.Equal(t, 1, store.IDFile("y.go"))
	assert.Equal(t, 0, store.IDFile("x.go"))

	snap := store.Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, snap.Authors)
	assert.Equal(t, []string{"x.go", "y.go"}, snap.Files)
	assert.Equal(t, []int{0, 0, 0}, snap.Commits)
	assert.Equal(t, affinity.NoCheckpoint, snap.LastCommit)
	assert.True(t, snap.LastCommit.IsSentinel())

	id, ok := store.LookupAuthor("b")
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	_, ok = store.LookupFile("z.go")
	assert.False(t, ok)
}

func TestStore_ObserveCommit(t *testing.T) {
	t.Parallel()

	store := affinity.NewStore()
	author := store.IDAuthor("alice")
	x := store.IDFile("x.go")
	y := store.IDFile("y.go")

	store.ObserveCommit("c1", author, []int{x, y})

	snap := store.Snapshot()
	assert.Equal(t, 1, snap.Commits[author])
	assert.Equal(t, 1, snap.Count(author, x))
	assert.Equal(t, 1, snap.Count(author, y))
	assert.Equal(t, affinity.Checkpoint("c1"), snap.LastCommit)

	// Delivery is the caller's job: the same commit twice is counted twice.
	store.ObserveCommit("c1", author, []int{x})

	snap = store.Snapshot()
	assert.Equal(t, 2, snap.Commits[author])
	assert.Equal(t, 2, snap.Count(author, x))
	assert.Equal(t, 1, snap.Count(author, y))
}

func TestStore_ObserveCommitEmptyAndDuplicateFiles(t *testing.T) {
	t.Parallel()

	store := affinity.NewStore()
	author := store.IDAuthor("alice")
	x := store.IDFile("x.go")

	store.ObserveCommit("root", author, nil)
	store.ObserveCommit("dup", author, []int{x, x})

	snap := store.Snapshot()
	assert.Equal(t, 2, snap.Commits[author])
	assert.Equal(t, 2, snap.Count(author, x))
	assert.Equal(t, 1, snap.Interactions())
}

func TestStore_ObserveUnknownAuthorPanics(t *testing.T) {
	t.Parallel()

	store := affinity.NewStore()

	assert.Panics(t, func() {
		store.ObserveCommit("c", 0, nil)
	})
}

func TestStore_Fold(t *testing.T) {
	t.Parallel()

	store := affinity.NewStore()

	folded := store.Fold("c1", "alice", []string{"a.go", "b.go"})
	assert.Equal(t, affinity.Folded{Author: 0, Files: []int{0, 1}}, folded)

	folded = store.Fold("c2", "bob", []string{"b.go", "c.go"})
	assert.Equal(t, affinity.Folded{Author: 1, Files: []int{1, 2}}, folded)

	snap := store.Snapshot()
	assert.Equal(t, []int{1, 1}, snap.Commits)
	assert.Equal(t, map[int]int{0: 1, 1: 1}, snap.Counts[0])
	assert.Equal(t, map[int]int{1: 1, 2: 1}, snap.Counts[1])
	assert.Equal(t, affinity.Checkpoint("c2"), store.LastCommit())
	assert.Equal(t, 2, snap.TotalCommits())
}

func TestStore_MarkCheckpoint(t *testing.T) {
	t.Parallel()

	store := affinity.NewStore()
	store.Fold("c1", "alice", nil)
	store.MarkCheckpoint("c2")

	assert.Equal(t, affinity.Checkpoint("c2"), store.LastCommit())
	assert.Equal(t, []int{1}, store.Snapshot().Commits)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	store := affinity.NewStore()
	store.Fold("c1", "alice", []string{"a.go"})

	snap := store.Snapshot()
	snap.Counts[0][0] = 99
	snap.Authors[0] = "mallory"

	fresh := store.Snapshot()
	assert.Equal(t, 1, fresh.Count(0, 0))
	assert.Equal(t, "alice", fresh.Authors[0])
}

func TestStore_ConcurrentFoldsAreExact(t *testing.T) {
	t.Parallel()

	const (
		goroutines = 8
		perWorker  = 250
	)

	store := affinity.NewStore()

	var wg sync.WaitGroup

	for g := range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range perWorker {
				author := fmt.Sprintf("author-%d", i%5)
				paths := []string{"shared.go", fmt.Sprintf("own-%d.go", g)}
				store.Fold(affinity.Checkpoint(fmt.Sprintf("%d-%d", g, i)), author, paths)
			}
		}()
	}

	wg.Wait()

	snap := store.Snapshot()
	require.Len(t, snap.Authors, 5)
	assert.Len(t, snap.Files, goroutines+1)
	assert.Equal(t, goroutines*perWorker, snap.TotalCommits())

	shared, ok := store.LookupFile("shared.go")
	require.True(t, ok)

	sharedTotal := 0
	for author := range snap.Authors {
		sharedTotal += snap.Count(author, shared)
	}

	assert.Equal(t, goroutines*perWorker, sharedTotal)

	for id, name := range snap.Authors {
		got, found := store.LookupAuthor(name)
		require.True(t, found)
		assert.Equal(t, id, got)
	}
}

func TestRestore_RejectsMisalignedTables(t *testing.T) {
	t.Parallel()

	_, err := affinity.Restore(affinity.Snapshot{
		Authors: []string{"a"},
		Commits: []int{1, 2},
		Counts:  []map[int]int{{}},
	})
	require.ErrorIs(t, err, affinity.ErrCorruptStore)

	_, err = affinity.Restore(affinity.Snapshot{
		Authors: []string{"a", "a"},
		Commits: []int{1, 1},
		Counts:  []map[int]int{{}, {}},
	})
	require.ErrorIs(t, err, affinity.ErrCorruptStore)

	_, err = affinity.Restore(affinity.Snapshot{
		Authors: []string{"a"},
		Commits: []int{1},
		Counts:  []map[int]int{{3: 1}},
	})
	require.ErrorIs(t, err, affinity.ErrCorruptStore)
}
