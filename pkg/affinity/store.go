// Package affinity holds the author/file interaction matrix mined from a
// repository's history.
//
// Authors and files get dense, zero-based ids in order of first appearance.
// Each author carries a commit counter and a sparse map from file id to the
// number of that author's commits touching the file. All mutation goes
// through a single mutex, so a commit is either fully folded or not at all.
package affinity

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Checkpoint identifies the last commit folded into a Store.
type Checkpoint string

// NoCheckpoint means no commit has been folded yet; the whole history is new.
const NoCheckpoint Checkpoint = "NOSUCHCOMMIT"

// IsSentinel reports whether the checkpoint is NoCheckpoint.
func (c Checkpoint) IsSentinel() bool {
	return c == NoCheckpoint
}

// String returns the commit hash, or the sentinel text.
func (c Checkpoint) String() string {
	return string(c)
}

// Store is the affinity matrix. The zero value is not usable; call NewStore.
type Store struct {
	mu sync.RWMutex

	authors   []string
	authorIDs map[string]int
	files     []string
	fileIDs   map[string]int
	commits   []int
	counts    []map[int]int
	last      Checkpoint
}

// NewStore returns an empty store whose checkpoint is NoCheckpoint.
func NewStore() *Store {
	return &Store{
		authorIDs: make(map[string]int),
		fileIDs:   make(map[string]int),
		last:      NoCheckpoint,
	}
}

// IDAuthor returns the id of the named author, allocating the next id on first sight.
func (s *Store) IDAuthor(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.idAuthorLocked(name)
}

// IDFile returns the id of the path, allocating the next id on first sight.
func (s *Store) IDFile(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.idFileLocked(path)
}

// ObserveCommit records one commit by author touching files: the author's
// commit counter and each listed file counter are incremented, and the
// checkpoint becomes commit. A file listed twice is counted twice.
// Calling it twice for the same commit counts it twice; callers guarantee
// at-most-once delivery.
func (s *Store) ObserveCommit(commit Checkpoint, author int, files []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observeLocked(commit, author, files)
}

// Folded reports the ids a Fold assigned.
type Folded struct {
	Author int
	Files  []int
}

// Fold resolves the author and paths to ids and observes the commit, all in
// one critical section. No reader can see the new ids without the counters.
func (s *Store) Fold(commit Checkpoint, author string, paths []string) Folded {
	s.mu.Lock()
	defer s.mu.Unlock()

	folded := Folded{
		Author: s.idAuthorLocked(author),
		Files:  make([]int, len(paths)),
	}

	for i, path := range paths {
		folded.Files[i] = s.idFileLocked(path)
	}

	s.observeLocked(commit, folded.Author, folded.Files)

	return folded
}

// MarkCheckpoint moves the checkpoint without folding anything.
func (s *Store) MarkCheckpoint(commit Checkpoint) {
	s.mu.Lock()
	s.last = commit
	s.mu.Unlock()
}

func (s *Store) idAuthorLocked(name string) int {
	if id, ok := s.authorIDs[name]; ok {
		return id
	}

	id := len(s.authors)
	s.authors = append(s.authors, name)
	s.authorIDs[name] = id
	s.commits = append(s.commits, 0)
	s.counts = append(s.counts, make(map[int]int))

	return id
}

func (s *Store) idFileLocked(path string) int {
	if id, ok := s.fileIDs[path]; ok {
		return id
	}

	id := len(s.files)
	s.files = append(s.files, path)
	s.fileIDs[path] = id

	return id
}

func (s *Store) observeLocked(commit Checkpoint, author int, files []int) {
	if author < 0 || author >= len(s.authors) {
		panic(fmt.Sprintf("affinity: unknown author id %d", author))
	}

	for _, file := range files {
		if file < 0 || file >= len(s.files) {
			panic(fmt.Sprintf("affinity: unknown file id %d", file))
		}
	}

	s.commits[author]++

	perFile := s.counts[author]
	for _, file := range files {
		perFile[file]++
	}

	s.last = commit
}

// LastCommit returns the current checkpoint.
func (s *Store) LastCommit() Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.last
}

// NumAuthors returns the number of known authors.
func (s *Store) NumAuthors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.authors)
}

// NumFiles returns the number of known files.
func (s *Store) NumFiles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.files)
}

// LookupAuthor returns the id of a known author.
func (s *Store) LookupAuthor(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.authorIDs[name]

	return id, ok
}

// LookupFile returns the id of a known path.
func (s *Store) LookupFile(path string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.fileIDs[path]

	return id, ok
}

// Authors returns the author names indexed by id.
func (s *Store) Authors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.authors)
}

// Files returns the file paths indexed by id.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.files)
}

// CommitsPerAuthor returns the commit counter of each author id.
func (s *Store) CommitsPerAuthor() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.commits)
}

// Counts returns a copy of the per-author file counters.
func (s *Store) Counts() []map[int]int {
	return s.Snapshot().Counts
}

// Snapshot returns a consistent copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]map[int]int, len(s.counts))
	for i, perFile := range s.counts {
		counts[i] = maps.Clone(perFile)
	}

	return Snapshot{
		Authors:    slices.Clone(s.authors),
		Files:      slices.Clone(s.files),
		Commits:    slices.Clone(s.commits),
		Counts:     counts,
		LastCommit: s.last,
	}
}

// Snapshot is an immutable copy of a Store. Index i of Authors, Commits and
// Counts all describe author id i; index j of Files is file id j.
type Snapshot struct {
	Authors    []string
	Files      []string
	Commits    []int
	Counts     []map[int]int
	LastCommit Checkpoint
}

// Count returns how many of author's commits touched file.
func (s Snapshot) Count(author, file int) int {
	if author < 0 || author >= len(s.Counts) {
		return 0
	}

	return s.Counts[author][file]
}

// FileIDs returns the file ids the author touched, ascending.
func (s Snapshot) FileIDs(author int) []int {
	return slices.Sorted(maps.Keys(s.Counts[author]))
}

// Interactions returns the number of nonzero (author, file) pairs.
func (s Snapshot) Interactions() int {
	total := 0
	for _, perFile := range s.Counts {
		total += len(perFile)
	}

	return total
}

// TotalCommits returns the sum of all author commit counters.
func (s Snapshot) TotalCommits() int {
	total := 0
	for _, c := range s.Commits {
		total += c
	}

	return total
}

// Restore builds a store from a snapshot, validating that its tables are aligned.
func Restore(snap Snapshot) (*Store, error) {
	if len(snap.Commits) != len(snap.Authors) || len(snap.Counts) != len(snap.Authors) {
		return nil, fmt.Errorf("%w: %d authors, %d commit counters, %d count maps",
			ErrCorruptStore, len(snap.Authors), len(snap.Commits), len(snap.Counts))
	}

	store := NewStore()
	store.last = snap.LastCommit

	for id, name := range snap.Authors {
		if _, dup := store.authorIDs[name]; dup {
			return nil, fmt.Errorf("%w: duplicate author %q", ErrCorruptStore, name)
		}

		store.authorIDs[name] = id
	}

	for id, path := range snap.Files {
		if _, dup := store.fileIDs[path]; dup {
			return nil, fmt.Errorf("%w: duplicate file %q", ErrCorruptStore, path)
		}

		store.fileIDs[path] = id
	}

	for author, perFile := range snap.Counts {
		if snap.Commits[author] < 0 {
			return nil, fmt.Errorf("%w: negative commit count for author %d", ErrCorruptStore, author)
		}

		for file, count := range perFile {
			if file < 0 || file >= len(snap.Files) {
				return nil, fmt.Errorf("%w: author %d references unknown file %d", ErrCorruptStore, author, file)
			}

			if count <= 0 {
				return nil, fmt.Errorf("%w: non-positive count %d for author %d file %d",
					ErrCorruptStore, count, author, file)
			}
		}
	}

	store.authors = slices.Clone(snap.Authors)
	store.files = slices.Clone(snap.Files)
	store.commits = slices.Clone(snap.Commits)
	store.counts = make([]map[int]int, len(snap.Counts))

	for i, perFile := range snap.Counts {
		store.counts[i] = maps.Clone(perFile)
		if store.counts[i] == nil {
			store.counts[i] = make(map[int]int)
		}
	}

	return store, nil
}
