package affinity

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/persist"
)

// File names of the persisted store layout.
const (
	CountsFile       = "counts.tsv"
	CommitCountsFile = "commit-counts.tsv"
	FilesFile        = "files.txt"
	AuthorsFile      = "authors.txt"
	LastCommitFile   = "last-commit.txt"
)

// Layout returns the names of the files a saved store consists of.
func Layout() []string {
	return []string{CountsFile, CommitCountsFile, FilesFile, AuthorsFile, LastCommitFile}
}

// maxLineSize bounds a single line of a store file.
const maxLineSize = 1 << 20

// ErrCorruptStore is returned when a persisted store cannot be parsed or its
// tables do not line up. Nothing is loaded in that case.
var ErrCorruptStore = errors.New("corrupt affinity store")

// Save atomically replaces dir with the store's current contents. A dir
// holding files other than the store layout is not touched and
// persist.ErrForeignEntries is returned.
func (s *Store) Save(dir string) error {
	return persist.ReplaceDir(dir, Layout(), s.WriteFiles)
}

// WriteFiles writes the store layout into an existing directory.
func (s *Store) WriteFiles(dir string) error {
	return WriteSnapshot(dir, s.Snapshot())
}

// WriteSnapshot writes the layout for snap into an existing directory.
func WriteSnapshot(dir string, snap Snapshot) error {
	writers := []struct {
		name  string
		write func(w io.Writer) error
	}{
		{CountsFile, snap.writeCounts},
		{CommitCountsFile, snap.writeCommitCounts},
		{FilesFile, func(w io.Writer) error { return writeEntries(w, snap.Files) }},
		{AuthorsFile, func(w io.Writer) error { return writeEntries(w, snap.Authors) }},
		{LastCommitFile, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, snap.LastCommit)

			return err
		}},
	}

	for _, f := range writers {
		err := persist.WriteFile(filepath.Join(dir, f.name), f.write)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s Snapshot) writeCounts(w io.Writer) error {
	for author, perFile := range s.Counts {
		if len(perFile) == 0 {
			continue
		}

		_, err := fmt.Fprintln(w, author)
		if err != nil {
			return err
		}

		for _, file := range s.FileIDs(author) {
			_, err = fmt.Fprintf(w, "\t%d\t%d\n", file, perFile[file])
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (s Snapshot) writeCommitCounts(w io.Writer) error {
	for author, count := range s.Commits {
		_, err := fmt.Fprintf(w, "%d\t%d\n", author, count)
		if err != nil {
			return err
		}
	}

	return nil
}

func writeEntries(w io.Writer, entries []string) error {
	for _, entry := range entries {
		_, err := io.WriteString(w, EncodeEntry(entry)+"\n")
		if err != nil {
			return err
		}
	}

	return nil
}

// EncodeEntry keeps a name or path on a single tab-free line. Names holding a
// tab or line break, or starting with a double quote, are Go-quoted.
func EncodeEntry(s string) string {
	if strings.ContainsAny(s, "\n\r\t") || strings.HasPrefix(s, `"`) {
		return strconv.Quote(s)
	}

	return s
}

func decodeEntry(s string) (string, error) {
	if !strings.HasPrefix(s, `"`) {
		return s, nil
	}

	return strconv.Unquote(s)
}

// Load reads a store from dir. A directory without a counts file yields an
// empty store. Interrupted saves are recovered first.
func Load(dir string) (*Store, error) {
	err := persist.RecoverDir(dir)
	if err != nil {
		return nil, fmt.Errorf("recover %s: %w", dir, err)
	}

	_, err = os.Stat(filepath.Join(dir, CountsFile))
	if errors.Is(err, os.ErrNotExist) {
		return NewStore(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("stat counts: %w", err)
	}

	snap, err := ReadSnapshot(dir)
	if err != nil {
		return nil, err
	}

	return Restore(snap)
}

// ReadSnapshot parses the store layout in dir without building a Store.
func ReadSnapshot(dir string) (Snapshot, error) {
	var snap Snapshot

	var err error

	snap.Authors, err = readEntries(dir, AuthorsFile)
	if err != nil {
		return Snapshot{}, err
	}

	snap.Files, err = readEntries(dir, FilesFile)
	if err != nil {
		return Snapshot{}, err
	}

	snap.Commits, err = readCommitCounts(dir, len(snap.Authors))
	if err != nil {
		return Snapshot{}, err
	}

	snap.Counts, err = readCounts(dir, len(snap.Authors), len(snap.Files))
	if err != nil {
		return Snapshot{}, err
	}

	snap.LastCommit, err = readLastCommit(dir)
	if err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func corrupt(name string, line int, format string, args ...any) error {
	return fmt.Errorf("%w: %s:%d: %s", ErrCorruptStore, name, line, fmt.Sprintf(format, args...))
}

// scanLines calls fn with every line of dir/name and its 1-based number.
func scanLines(dir, name string, fn func(line string, n int) error) error {
	file, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: missing %s", ErrCorruptStore, name)
	}

	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	n := 0
	for scanner.Scan() {
		n++

		err = fn(scanner.Text(), n)
		if err != nil {
			return err
		}
	}

	err = scanner.Err()
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrCorruptStore, name, err)
	}

	return nil
}

func readEntries(dir, name string) ([]string, error) {
	var entries []string

	err := scanLines(dir, name, func(line string, n int) error {
		entry, err := decodeEntry(line)
		if err != nil {
			return corrupt(name, n, "bad quoted entry %q", line)
		}

		entries = append(entries, entry)

		return nil
	})

	return entries, err
}

func parseID(field string, limit int) (int, bool) {
	id, err := strconv.Atoi(field)
	if err != nil || id < 0 || id >= limit {
		return 0, false
	}

	return id, true
}

func parseCount(field string) (int, bool) {
	count, err := strconv.Atoi(field)
	if err != nil || count < 0 {
		return 0, false
	}

	return count, true
}

func readCommitCounts(dir string, numAuthors int) ([]int, error) {
	commits := make([]int, numAuthors)
	seen := make([]bool, numAuthors)

	err := scanLines(dir, CommitCountsFile, func(line string, n int) error {
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return corrupt(CommitCountsFile, n, "want 2 fields, got %d", len(fields))
		}

		author, ok := parseID(fields[0], numAuthors)
		if !ok {
			return corrupt(CommitCountsFile, n, "bad author id %q", fields[0])
		}

		if seen[author] {
			return corrupt(CommitCountsFile, n, "duplicate author id %d", author)
		}

		count, ok := parseCount(fields[1])
		if !ok {
			return corrupt(CommitCountsFile, n, "bad commit count %q", fields[1])
		}

		commits[author] = count
		seen[author] = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	for author, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: %s: no commit count for author %d", ErrCorruptStore, CommitCountsFile, author)
		}
	}

	return commits, nil
}

func readCounts(dir string, numAuthors, numFiles int) ([]map[int]int, error) {
	counts := make([]map[int]int, numAuthors)
	for i := range counts {
		counts[i] = make(map[int]int)
	}

	seen := make([]bool, numAuthors)
	current := -1

	err := scanLines(dir, CountsFile, func(line string, n int) error {
		if !strings.HasPrefix(line, "\t") {
			author, ok := parseID(line, numAuthors)
			if !ok {
				return corrupt(CountsFile, n, "bad author id %q", line)
			}

			if seen[author] {
				return corrupt(CountsFile, n, "duplicate author block %d", author)
			}

			seen[author] = true
			current = author

			return nil
		}

		if current < 0 {
			return corrupt(CountsFile, n, "count line before any author")
		}

		fields := strings.Split(line[1:], "\t")
		if len(fields) != 2 {
			return corrupt(CountsFile, n, "want 2 fields, got %d", len(fields))
		}

		file, ok := parseID(fields[0], numFiles)
		if !ok {
			return corrupt(CountsFile, n, "bad file id %q", fields[0])
		}

		count, ok := parseCount(fields[1])
		if !ok || count == 0 {
			return corrupt(CountsFile, n, "bad count %q", fields[1])
		}

		if _, dup := counts[current][file]; dup {
			return corrupt(CountsFile, n, "duplicate file %d for author %d", file, current)
		}

		counts[current][file] = count

		return nil
	})
	if err != nil {
		return nil, err
	}

	return counts, nil
}

func readLastCommit(dir string) (Checkpoint, error) {
	var (
		last  Checkpoint
		lines int
	)

	err := scanLines(dir, LastCommitFile, func(line string, n int) error {
		lines = n
		if n > 1 {
			return corrupt(LastCommitFile, n, "unexpected extra line")
		}

		last = Checkpoint(strings.TrimSpace(line))

		return nil
	})
	if err != nil {
		return "", err
	}

	if lines == 0 || last == "" {
		return "", corrupt(LastCommitFile, 1, "missing checkpoint")
	}

	return last, nil
}
