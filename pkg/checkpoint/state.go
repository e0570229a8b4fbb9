// Package checkpoint manages the per-repository mining workspace: the data
// directory holding the affinity store and the run metadata saved with it.
package checkpoint

import "github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"

// Metadata describes the run that produced a saved store. It is written in
// the same directory swap as the store files, so both always agree.
type Metadata struct {
	Version    int                 `json:"version"`
	RepoPath   string              `json:"repo_path"`
	RepoHash   string              `json:"repo_hash"`
	RunID      string              `json:"run_id"`
	CreatedAt  string              `json:"created_at"`
	UpdatedAt  string              `json:"updated_at"`
	LastCommit affinity.Checkpoint `json:"last_commit"`
	Authors    int                 `json:"authors"`
	Files      int                 `json:"files"`
	Commits    int                 `json:"commits"`
	Saves      int                 `json:"saves"`
}
