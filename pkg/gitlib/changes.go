package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ChangeAction represents the type of change in a diff.
type ChangeAction int

const (
	// Insert indicates a new file was added.
	Insert ChangeAction = iota
	// Delete indicates a file was removed.
	Delete
	// Modify indicates a file was modified, renamed or copied.
	Modify
)

// String returns the action name.
func (a ChangeAction) String() string {
	switch a {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Modify:
		return "modify"
	default:
		return fmt.Sprintf("ChangeAction(%d)", int(a))
	}
}

// Change represents a single file change between two trees.
type Change struct {
	Action ChangeAction
	From   ChangeEntry
	To     ChangeEntry
}

// ChangeEntry represents one side of a change (old or new file).
type ChangeEntry struct {
	Name string
	Hash Hash
}

// Path returns the path the change is attributed to: the new path for
// insertions and modifications, the old path for deletions.
func (c *Change) Path() string {
	if c.Action == Delete {
		return c.From.Name
	}

	return c.To.Name
}

// Changes is a collection of Change objects.
type Changes []*Change

// Paths returns the attributed path of every change, in diff order.
func (cs Changes) Paths() []string {
	paths := make([]string, 0, len(cs))

	for _, change := range cs {
		paths = append(paths, change.Path())
	}

	return paths
}

// TreeDiff computes the changes between two trees using libgit2.
// Skips diff when both tree OIDs are equal (e.g. metadata-only commits).
// A nil oldTree makes every file of newTree an insertion.
func TreeDiff(repo *Repository, oldTree, newTree *Tree, opts DiffOptions) (Changes, error) {
	if oldTree != nil && newTree != nil && oldTree.Hash() == newTree.Hash() {
		return make(Changes, 0), nil
	}

	deltas, err := repo.DiffTreeToTree(oldTree, newTree, opts)
	if err != nil {
		return nil, err
	}

	changes := make(Changes, 0, len(deltas))

	for _, delta := range deltas {
		change := &Change{
			From: ChangeEntry{Name: delta.OldFile.Path, Hash: delta.OldFile.Hash},
			To:   ChangeEntry{Name: delta.NewFile.Path, Hash: delta.NewFile.Hash},
		}

		switch delta.Status {
		case git2go.DeltaAdded:
			change.Action = Insert
			change.From = ChangeEntry{}
		case git2go.DeltaDeleted:
			change.Action = Delete
			change.To = ChangeEntry{}
		case git2go.DeltaModified, git2go.DeltaRenamed, git2go.DeltaCopied, git2go.DeltaTypeChange:
			change.Action = Modify
		case git2go.DeltaUnmodified, git2go.DeltaIgnored, git2go.DeltaUntracked,
			git2go.DeltaUnreadable, git2go.DeltaConflicted:
			continue
		}

		changes = append(changes, change)
	}

	return changes, nil
}

// TreeDiffByHash looks up both trees and diffs them. A zero oldHash diffs against the empty tree.
func TreeDiffByHash(repo *Repository, oldHash, newHash Hash, opts DiffOptions) (Changes, error) {
	if oldHash == newHash {
		return make(Changes, 0), nil
	}

	newTree, err := repo.LookupTree(newHash)
	if err != nil {
		return nil, err
	}
	defer newTree.Free()

	var oldTree *Tree

	if !oldHash.IsZero() {
		oldTree, err = repo.LookupTree(oldHash)
		if err != nil {
			return nil, err
		}
		defer oldTree.Free()
	}

	return TreeDiff(repo, oldTree, newTree, opts)
}
