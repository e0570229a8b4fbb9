package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/persist"
)

// MetadataVersion is the current checkpoint metadata format version.
const MetadataVersion = 1

// Metadata file name, with and without the codec extension.
const (
	metadataBasename = "checkpoint"
	MetadataFile     = metadataBasename + ".json"
)

// Layout returns the names of the files in a data directory: the store
// layout plus the metadata file.
func Layout() []string {
	return append(affinity.Layout(), MetadataFile)
}

// Sentinel errors for checkpoint validation.
var (
	ErrRepoPathMismatch = errors.New("repo path mismatch")
	ErrVersionMismatch  = errors.New("unsupported checkpoint version")
	ErrMetadataMismatch = errors.New("checkpoint metadata does not match store")
)

// DefaultDir returns the default workspace root (~/.gitrecommender/repos).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".gitrecommender", "repos")
}

// RepoHash computes a short hash of the repository path for use as directory name.
func RepoHash(repoPath string) string {
	h := sha256.Sum256([]byte(repoPath))

	return hex.EncodeToString(h[:8]) // First 8 bytes = 16 hex chars.
}

// Manager owns one repository's data directory.
// It implements the aggregator's Saver.
type Manager struct {
	Dir      string
	RepoPath string
	RepoHash string
	RunID    string

	mu        sync.Mutex
	createdAt string
	saves     int
	now       func() time.Time
	persister *persist.Persister[Metadata]
}

// NewManager creates a manager for an explicit data directory.
func NewManager(dir, repoPath string) *Manager {
	return &Manager{
		Dir:       dir,
		RepoPath:  repoPath,
		RepoHash:  RepoHash(repoPath),
		RunID:     uuid.NewString(),
		now:       time.Now,
		persister: persist.NewPersister[Metadata](metadataBasename, persist.NewJSONCodec()),
	}
}

// ForRepo creates a manager whose data directory lives under baseDir, keyed by RepoHash.
func ForRepo(baseDir, repoPath string) *Manager {
	return NewManager(filepath.Join(baseDir, RepoHash(repoPath)), repoPath)
}

// DataDir returns the directory holding the store files.
func (m *Manager) DataDir() string {
	return m.Dir
}

// MetadataPath returns the path to the metadata file.
func (m *Manager) MetadataPath() string {
	return filepath.Join(m.Dir, m.persister.Filename())
}

// Exists returns true if a saved store exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(filepath.Join(m.Dir, affinity.CountsFile))

	return err == nil
}

// Clear removes the checkpoint files, any leftovers of an interrupted save,
// and the data directory once it is empty. A data directory holding other
// files is left alone and persist.ErrForeignEntries returned.
func (m *Manager) Clear() error {
	err := persist.ClearDir(m.Dir, Layout())
	if err != nil {
		return fmt.Errorf("clear checkpoint dir: %w", err)
	}

	m.mu.Lock()
	m.createdAt = ""
	m.saves = 0
	m.mu.Unlock()

	return nil
}

// LoadMetadata loads the checkpoint metadata. It returns os.ErrNotExist
// (wrapped) when the directory has no metadata file.
func (m *Manager) LoadMetadata() (*Metadata, error) {
	meta, err := m.persister.Load(m.Dir)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	return meta, nil
}

// Validate checks that the saved metadata, if any, belongs to this repository.
func (m *Manager) Validate() error {
	meta, err := m.LoadMetadata()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return err
	}

	return m.validate(meta)
}

func (m *Manager) validate(meta *Metadata) error {
	if meta.Version != MetadataVersion {
		return fmt.Errorf("%w: %d", ErrVersionMismatch, meta.Version)
	}

	if meta.RepoPath != m.RepoPath {
		return fmt.Errorf("%w: checkpoint has %q, got %q", ErrRepoPathMismatch, meta.RepoPath, m.RepoPath)
	}

	return nil
}

// Load recovers interrupted saves, validates the metadata and loads the store.
// A missing data directory yields an empty store and nil metadata.
func (m *Manager) Load() (*affinity.Store, *Metadata, error) {
	store, err := affinity.Load(m.Dir)
	if err != nil {
		return nil, nil, err
	}

	meta, err := m.LoadMetadata()
	if errors.Is(err, os.ErrNotExist) {
		return store, nil, nil
	}

	if err != nil {
		return nil, nil, err
	}

	err = m.validate(meta)
	if err != nil {
		return nil, nil, err
	}

	if meta.LastCommit != store.LastCommit() {
		return nil, nil, fmt.Errorf("%w: metadata at %s, store at %s",
			ErrMetadataMismatch, meta.LastCommit, store.LastCommit())
	}

	m.mu.Lock()
	m.createdAt = meta.CreatedAt
	m.saves = meta.Saves
	m.mu.Unlock()

	return store, meta, nil
}

// Save atomically replaces the data directory with the store and fresh metadata.
func (m *Manager) Save(_ context.Context, store *affinity.Store) error {
	snap := store.Snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC().Format(time.RFC3339)
	if m.createdAt == "" {
		m.createdAt = now
	}

	meta := Metadata{
		Version:    MetadataVersion,
		RepoPath:   m.RepoPath,
		RepoHash:   m.RepoHash,
		RunID:      m.RunID,
		CreatedAt:  m.createdAt,
		UpdatedAt:  now,
		LastCommit: snap.LastCommit,
		Authors:    len(snap.Authors),
		Files:      len(snap.Files),
		Commits:    snap.TotalCommits(),
		Saves:      m.saves + 1,
	}

	err := persist.ReplaceDir(m.Dir, Layout(), func(stage string) error {
		writeErr := affinity.WriteSnapshot(stage, snap)
		if writeErr != nil {
			return writeErr
		}

		return m.persister.Save(stage, &meta)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	m.saves++

	return nil
}
