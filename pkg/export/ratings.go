// Package export turns an affinity snapshot into recommender input and maps
// recommender output back to author names and file paths.
package export

import (
	"strings"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
)

const (
	// StrengthScale maps the fraction of an author's commits touching a file
	// onto the rating range.
	StrengthScale = 10000.0

	// DefaultQueryStrength is the strength given to every query candidate.
	DefaultQueryStrength = 100.0
)

// AuthorRef names the author of a rating: either a real author id or the
// synthetic query author, which has no id until the ratings are written.
type AuthorRef struct {
	id    int
	query bool
}

// RealAuthor refers to the author with the given store id.
func RealAuthor(id int) AuthorRef {
	return AuthorRef{id: id}
}

// QueryAuthor refers to the synthetic author that holds query candidates.
func QueryAuthor() AuthorRef {
	return AuthorRef{query: true}
}

// IsQuery reports whether the reference is the query author.
func (a AuthorRef) IsQuery() bool {
	return a.query
}

// ID returns the numeric id to serialize. The query author takes the first
// id after the real ones.
func (a AuthorRef) ID(numAuthors int) int {
	if a.query {
		return numAuthors
	}

	return a.id
}

// Rating is one (author, file) affinity.
type Rating struct {
	Author   AuthorRef
	File     int
	Strength float64
	// Count is the raw interaction count, or the candidate ordinal for the query author.
	Count int
}

// Ratings returns one rating per nonzero (author, file) pair ordered by author
// then file id. Strength is the share of the author's commits that touched
// the file, times StrengthScale.
func Ratings(snap affinity.Snapshot) []Rating {
	ratings := make([]Rating, 0, snap.Interactions())

	for author := range snap.Authors {
		commits := snap.Commits[author]
		if commits == 0 {
			continue
		}

		for _, file := range snap.FileIDs(author) {
			count := snap.Counts[author][file]

			ratings = append(ratings, Rating{
				Author:   RealAuthor(author),
				File:     file,
				Strength: float64(count) / float64(commits) * StrengthScale,
				Count:    count,
			})
		}
	}

	return ratings
}

// QueryRatings rates each candidate path known to the snapshot under the query
// author with a fixed strength. Unknown paths are skipped and repeated paths
// are rated once; Count is the position among the emitted ratings.
func QueryRatings(snap affinity.Snapshot, candidates []string, strength float64) []Rating {
	fileIDs := make(map[string]int, len(snap.Files))
	for id, path := range snap.Files {
		fileIDs[path] = id
	}

	seen := make(map[int]bool, len(candidates))
	ratings := make([]Rating, 0, len(candidates))

	for _, candidate := range candidates {
		id, ok := fileIDs[candidate]
		if !ok || seen[id] {
			continue
		}

		seen[id] = true

		ratings = append(ratings, Rating{
			Author:   QueryAuthor(),
			File:     id,
			Strength: strength,
			Count:    len(ratings),
		})
	}

	return ratings
}

// StripBranch drops the first path segment, e.g. "main/src/a.go" becomes
// "src/a.go". Paths without a separator are returned unchanged.
func StripBranch(path string) string {
	_, rest, found := strings.Cut(path, "/")
	if !found {
		return path
	}

	return rest
}
