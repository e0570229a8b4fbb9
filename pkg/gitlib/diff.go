package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Tree is a libgit2 tree handle. It must be freed.
type Tree struct {
	tree *git2go.Tree
}

// Hash returns the tree hash.
func (t *Tree) Hash() Hash {
	return HashFromOid(t.tree.Id())
}

// Free releases the tree.
func (t *Tree) Free() {
	if t.tree != nil {
		t.tree.Free()
		t.tree = nil
	}
}

// LookupTree returns the tree with the given hash.
func (r *Repository) LookupTree(hash Hash) (*Tree, error) {
	tree, err := r.repo.LookupTree(hash.ToOid())
	if err != nil {
		return nil, fmt.Errorf("lookup tree %s: %w", hash, err)
	}

	return &Tree{tree: tree}, nil
}

// DiffOptions configures tree-to-tree diffs.
type DiffOptions struct {
	// DetectRenames pairs deleted and added files into rename deltas.
	DetectRenames bool
}

// DiffFile is one side of a delta.
type DiffFile struct {
	Path string
	Hash Hash
}

// DiffDelta is one changed file of a diff.
type DiffDelta struct {
	Status  git2go.Delta
	OldFile DiffFile
	NewFile DiffFile
}

// DiffTreeToTree returns the deltas between two trees. A nil tree is empty.
func (r *Repository) DiffTreeToTree(oldTree, newTree *Tree, opts DiffOptions) ([]DiffDelta, error) {
	diffOpts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("get diff options: %w", err)
	}

	diff, err := r.repo.DiffTreeToTree(nativeTree(oldTree), nativeTree(newTree), &diffOpts)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	// Free errors are not actionable once the deltas are copied out.
	defer func() { _ = diff.Free() }()

	if opts.DetectRenames {
		err = findRenames(diff)
		if err != nil {
			return nil, err
		}
	}

	n, err := diff.NumDeltas()
	if err != nil {
		return nil, fmt.Errorf("count deltas: %w", err)
	}

	deltas := make([]DiffDelta, 0, n)

	for i := range n {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			return nil, fmt.Errorf("read delta %d: %w", i, deltaErr)
		}

		deltas = append(deltas, DiffDelta{
			Status:  delta.Status,
			OldFile: DiffFile{Path: delta.OldFile.Path, Hash: HashFromOid(delta.OldFile.Oid)},
			NewFile: DiffFile{Path: delta.NewFile.Path, Hash: HashFromOid(delta.NewFile.Oid)},
		})
	}

	return deltas, nil
}

func nativeTree(t *Tree) *git2go.Tree {
	if t == nil {
		return nil
	}

	return t.tree
}

func findRenames(diff *git2go.Diff) error {
	findOpts, err := git2go.DefaultDiffFindOptions()
	if err != nil {
		return fmt.Errorf("get find options: %w", err)
	}

	findOpts.Flags |= git2go.DiffFindRenames

	err = diff.FindSimilar(&findOpts)
	if err != nil {
		return fmt.Errorf("find renames: %w", err)
	}

	return nil
}
