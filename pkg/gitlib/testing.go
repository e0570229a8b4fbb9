package gitlib

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/require"
)

// TestRepo builds a real on-disk repository for tests.
type TestRepo struct {
	t      testing.TB
	path   string
	native *git2go.Repository
	clock  time.Time
}

// NewTestRepo initializes an empty repository in a temporary directory.
// The native handle is released when the test ends.
func NewTestRepo(t testing.TB) *TestRepo {
	t.Helper()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(repo.Free)

	return &TestRepo{
		t:      t,
		path:   dir,
		native: repo,
		clock:  time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Path returns the working directory of the repository.
func (tr *TestRepo) Path() string {
	return tr.path
}

// WriteFile creates or overwrites a file in the working directory.
func (tr *TestRepo) WriteFile(name, content string) {
	tr.t.Helper()

	path := filepath.Join(tr.path, name)

	require.NoError(tr.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tr.t, os.WriteFile(path, []byte(content), 0o644))
}

// RemoveFile deletes a file from the working directory.
func (tr *TestRepo) RemoveFile(name string) {
	tr.t.Helper()

	require.NoError(tr.t, os.Remove(filepath.Join(tr.path, name)))
}

// Commit stages the whole working directory and commits it on HEAD as author.
// Each commit is one minute younger than the previous one.
func (tr *TestRepo) Commit(author, message string) Hash {
	tr.t.Helper()

	index, err := tr.native.Index()
	require.NoError(tr.t, err)

	defer index.Free()

	require.NoError(tr.t, index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil))
	require.NoError(tr.t, index.UpdateAll([]string{"*"}, nil))
	require.NoError(tr.t, index.Write())

	treeID, err := index.WriteTree()
	require.NoError(tr.t, err)

	tree, err := tr.native.LookupTree(treeID)
	require.NoError(tr.t, err)

	defer tree.Free()

	tr.clock = tr.clock.Add(time.Minute)

	sig := &git2go.Signature{
		Name:  author,
		Email: "dev@example.com",
		When:  tr.clock,
	}

	var parents []*git2go.Commit

	unborn, err := tr.native.IsHeadUnborn()
	require.NoError(tr.t, err)

	if !unborn {
		head, headErr := tr.native.Head()
		require.NoError(tr.t, headErr)

		headCommit, lookupErr := tr.native.LookupCommit(head.Target())
		require.NoError(tr.t, lookupErr)

		parents = append(parents, headCommit)

		head.Free()
	}

	oid, err := tr.native.CreateCommit("HEAD", sig, sig, message, tree, parents...)
	require.NoError(tr.t, err)

	for _, parent := range parents {
		parent.Free()
	}

	return HashFromOid(oid)
}

// Open returns a new handle on the repository. The caller must Free it.
func (tr *TestRepo) Open() *Repository {
	tr.t.Helper()

	repo, err := OpenRepository(tr.path)
	require.NoError(tr.t, err)

	return repo
}
