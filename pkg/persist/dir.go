package persist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Suffixes of the sibling directories used while replacing a state directory.
const (
	tmpSuffix = ".tmp"
	oldSuffix = ".old"
)

// Permissions for state directories and files.
const (
	DirPerm  = 0o750
	FilePerm = 0o600
)

// ErrReplaceDir is returned when a state directory could not be swapped in.
// The previous directory contents are left in place.
var ErrReplaceDir = errors.New("replace state directory")

// ErrForeignEntries is returned when a state directory holds entries that are
// not part of its layout. Such a directory is never replaced or cleared.
var ErrForeignEntries = errors.New("directory holds entries outside the state layout")

// WriteFile creates path, lets write fill it through a buffered writer, then
// flushes and fsyncs it.
func WriteFile(path string, write func(w io.Writer) error) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FilePerm)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	buf := bufio.NewWriter(file)

	err = write(buf)
	if err == nil {
		err = buf.Flush()
	}

	if err == nil {
		err = file.Sync()
	}

	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

// SyncDir fsyncs a directory so its entries are persisted.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	defer d.Close()

	err = d.Sync()
	if err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}

	return nil
}

// ReplaceDir atomically replaces dir with a directory populated by fill.
// fill writes into a sibling staging directory; the staging directory is
// synced and swapped in by rename, so readers see either the old or the new
// contents, never a mix. On any error the old contents stay in place.
//
// layout lists the entry names dir may hold. An existing dir with any other
// entry is left alone and ErrForeignEntries returned, as is a fill that
// writes outside the layout.
func ReplaceDir(dir string, layout []string, fill func(stage string) error) error {
	dir = filepath.Clean(dir)
	stage := dir + tmpSuffix
	backup := dir + oldSuffix

	err := checkLayout(dir, layout)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReplaceDir, err)
	}

	err = os.MkdirAll(filepath.Dir(dir), DirPerm)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReplaceDir, err)
	}

	err = os.RemoveAll(stage)
	if err != nil {
		return fmt.Errorf("%w: clear staging: %w", ErrReplaceDir, err)
	}

	err = os.Mkdir(stage, DirPerm)
	if err != nil {
		return fmt.Errorf("%w: create staging: %w", ErrReplaceDir, err)
	}

	err = fill(stage)
	if err == nil {
		err = checkLayout(stage, layout)
	}

	if err == nil {
		err = SyncDir(stage)
	}

	if err != nil {
		_ = os.RemoveAll(stage)

		return fmt.Errorf("%w: %w", ErrReplaceDir, err)
	}

	err = swapDir(dir, stage, backup)
	if err != nil {
		_ = os.RemoveAll(stage)

		return fmt.Errorf("%w: %w", ErrReplaceDir, err)
	}

	// The new contents are durable at this point; a leftover backup is only garbage.
	_ = SyncDir(filepath.Dir(dir))
	_ = os.RemoveAll(backup)

	return nil
}

func swapDir(dir, stage, backup string) error {
	err := os.RemoveAll(backup)
	if err != nil {
		return fmt.Errorf("clear backup: %w", err)
	}

	hadOld := true

	err = os.Rename(dir, backup)
	if errors.Is(err, os.ErrNotExist) {
		hadOld = false
	} else if err != nil {
		return fmt.Errorf("move old contents aside: %w", err)
	}

	err = os.Rename(stage, dir)
	if err != nil {
		if hadOld {
			_ = os.Rename(backup, dir)
		}

		return fmt.Errorf("move new contents in: %w", err)
	}

	return nil
}

// RecoverDir repairs the state left by a ReplaceDir interrupted by a crash:
// an unfinished staging directory is discarded, and a backup is restored if
// the crash happened between the two renames.
func RecoverDir(dir string) error {
	dir = filepath.Clean(dir)
	backup := dir + oldSuffix

	err := os.RemoveAll(dir + tmpSuffix)
	if err != nil {
		return fmt.Errorf("discard staging: %w", err)
	}

	_, err = os.Stat(backup)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("stat backup: %w", err)
	}

	_, err = os.Stat(dir)

	switch {
	case errors.Is(err, os.ErrNotExist):
		err = os.Rename(backup, dir)
		if err != nil {
			return fmt.Errorf("restore backup: %w", err)
		}
	case err != nil:
		return fmt.Errorf("stat %s: %w", dir, err)
	default:
		err = os.RemoveAll(backup)
		if err != nil {
			return fmt.Errorf("discard backup: %w", err)
		}
	}

	return nil
}

// checkLayout fails with ErrForeignEntries when dir holds an entry not named
// in layout. A missing dir passes.
func checkLayout(dir string, layout []string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}

	var foreign []string

	for _, entry := range entries {
		if !slices.Contains(layout, entry.Name()) {
			foreign = append(foreign, entry.Name())
		}
	}

	if len(foreign) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrForeignEntries, dir, strings.Join(foreign, ", "))
	}

	return nil
}

// ClearDir removes the layout entries of dir, the leftovers of an interrupted
// ReplaceDir, and dir itself once it is empty. A dir holding foreign entries
// is left untouched.
func ClearDir(dir string, layout []string) error {
	dir = filepath.Clean(dir)

	err := RecoverDir(dir)
	if err != nil {
		return err
	}

	err = checkLayout(dir, layout)
	if err != nil {
		return err
	}

	for _, name := range layout {
		err = os.RemoveAll(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}

	err = os.Remove(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", dir, err)
	}

	return nil
}
