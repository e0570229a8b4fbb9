package persist

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeText(name, text string) func(stage string) error {
	return func(stage string) error {
		return WriteFile(filepath.Join(stage, name), func(w io.Writer) error {
			_, err := io.WriteString(w, text)

			return err
		})
	}
}

var testLayout = []string{"a.txt", "b.txt"}

func readText(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func TestReplaceDir_CreateAndReplace(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "data")

	require.NoError(t, ReplaceDir(dir, testLayout, writeText("a.txt", "one")))
	assert.Equal(t, "one", readText(t, filepath.Join(dir, "a.txt")))

	require.NoError(t, ReplaceDir(dir, testLayout, writeText("b.txt", "two")))
	assert.Equal(t, "two", readText(t, filepath.Join(dir, "b.txt")))
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
	assert.NoDirExists(t, dir+tmpSuffix)
	assert.NoDirExists(t, dir+oldSuffix)
}

func TestReplaceDir_FillErrorKeepsOldContents(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, ReplaceDir(dir, testLayout, writeText("a.txt", "one")))

	boom := errors.New("boom")

	err := ReplaceDir(dir, testLayout, func(stage string) error {
		require.NoError(t, writeText("a.txt", "partial")(stage))

		return boom
	})
	require.ErrorIs(t, err, ErrReplaceDir)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, "one", readText(t, filepath.Join(dir, "a.txt")))
	assert.NoDirExists(t, dir+tmpSuffix)
}

func TestRecoverDir_RestoresBackup(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")

	// Simulate a crash after the old contents were moved aside.
	require.NoError(t, os.MkdirAll(dir+oldSuffix, DirPerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir+oldSuffix, "a.txt"), []byte("old"), FilePerm))
	require.NoError(t, os.MkdirAll(dir+tmpSuffix, DirPerm))

	require.NoError(t, RecoverDir(dir))

	assert.Equal(t, "old", readText(t, filepath.Join(dir, "a.txt")))
	assert.NoDirExists(t, dir+oldSuffix)
	assert.NoDirExists(t, dir+tmpSuffix)
}

func TestRecoverDir_DropsStaleBackup(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, ReplaceDir(dir, testLayout, writeText("a.txt", "new")))
	require.NoError(t, os.MkdirAll(dir+oldSuffix, DirPerm))

	require.NoError(t, RecoverDir(dir))

	assert.Equal(t, "new", readText(t, filepath.Join(dir, "a.txt")))
	assert.NoDirExists(t, dir+oldSuffix)
}

func TestRecoverDir_NothingToDo(t *testing.T) {
	t.Parallel()

	require.NoError(t, RecoverDir(filepath.Join(t.TempDir(), "missing")))
}

func TestReplaceDir_RefusesForeignEntries(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dir, DirPerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("keep me"), FilePerm))

	err := ReplaceDir(dir, testLayout, writeText("a.txt", "one"))
	require.ErrorIs(t, err, ErrReplaceDir)
	require.ErrorIs(t, err, ErrForeignEntries)

	assert.Equal(t, "keep me", readText(t, filepath.Join(dir, "notes.md")))
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
	assert.NoDirExists(t, dir+tmpSuffix)
}

func TestReplaceDir_RejectsFillOutsideLayout(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, ReplaceDir(dir, testLayout, writeText("a.txt", "one")))

	err := ReplaceDir(dir, testLayout, writeText("c.txt", "stray"))
	require.ErrorIs(t, err, ErrForeignEntries)

	assert.Equal(t, "one", readText(t, filepath.Join(dir, "a.txt")))
	assert.NoFileExists(t, filepath.Join(dir, "c.txt"))
	assert.NoDirExists(t, dir+tmpSuffix)
}

func TestClearDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, ReplaceDir(dir, testLayout, writeText("a.txt", "one")))
	require.NoError(t, os.MkdirAll(dir+tmpSuffix, DirPerm))

	require.NoError(t, ClearDir(dir, testLayout))

	assert.NoDirExists(t, dir)
	assert.NoDirExists(t, dir+tmpSuffix)
	require.NoError(t, ClearDir(dir, testLayout))
}

func TestClearDir_KeepsForeignEntries(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, ReplaceDir(dir, testLayout, writeText("a.txt", "one")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("keep me"), FilePerm))

	err := ClearDir(dir, testLayout)
	require.ErrorIs(t, err, ErrForeignEntries)

	assert.Equal(t, "keep me", readText(t, filepath.Join(dir, "notes.md")))
	assert.Equal(t, "one", readText(t, filepath.Join(dir, "a.txt")))
}
