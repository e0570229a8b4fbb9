// Package report summarizes an affinity store for humans.
package report

import (
	"cmp"
	"slices"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/pathfilter"
)

// DefaultTopN is the default length of the top author and file lists.
const DefaultTopN = 10

// otherLanguage labels files enry cannot classify.
const otherLanguage = "Other"

// AuthorStat describes one author.
type AuthorStat struct {
	Name    string `json:"name"    yaml:"name"`
	Commits int    `json:"commits" yaml:"commits"`
	Files   int    `json:"files"   yaml:"files"`
}

// FileStat describes one file.
type FileStat struct {
	Path     string `json:"path"     yaml:"path"`
	Language string `json:"language" yaml:"language"`
	Authors  int    `json:"authors"  yaml:"authors"`
	Touches  int    `json:"touches"  yaml:"touches"`
}

// LanguageStat counts files per language.
type LanguageStat struct {
	Language string `json:"language" yaml:"language"`
	Files    int    `json:"files"    yaml:"files"`
}

// Summary is the overview of a store.
type Summary struct {
	Authors      int            `json:"authors"       yaml:"authors"`
	Files        int            `json:"files"         yaml:"files"`
	Commits      int            `json:"commits"       yaml:"commits"`
	Interactions int            `json:"interactions"  yaml:"interactions"`
	LastCommit   string         `json:"last_commit"   yaml:"last_commit"`
	TopAuthors   []AuthorStat   `json:"top_authors"   yaml:"top_authors"`
	TopFiles     []FileStat     `json:"top_files"     yaml:"top_files"`
	Languages    []LanguageStat `json:"languages"     yaml:"languages"`
}

// Summarize builds a summary with at most topN authors and files. Authors are
// ranked by commits, files by total touches; ties break by name.
func Summarize(snap affinity.Snapshot, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}

	authors := make([]AuthorStat, len(snap.Authors))
	files := make([]FileStat, len(snap.Files))

	for id, path := range snap.Files {
		files[id] = FileStat{Path: path, Language: language(path)}
	}

	for id, name := range snap.Authors {
		authors[id] = AuthorStat{Name: name, Commits: snap.Commits[id], Files: len(snap.Counts[id])}

		for file, count := range snap.Counts[id] {
			files[file].Authors++
			files[file].Touches += count
		}
	}

	langs := map[string]int{}
	for _, f := range files {
		langs[f.Language]++
	}

	languages := make([]LanguageStat, 0, len(langs))
	for lang, n := range langs {
		languages = append(languages, LanguageStat{Language: lang, Files: n})
	}

	slices.SortFunc(authors, func(a, b AuthorStat) int {
		return cmp.Or(cmp.Compare(b.Commits, a.Commits), cmp.Compare(a.Name, b.Name))
	})
	slices.SortFunc(files, func(a, b FileStat) int {
		return cmp.Or(cmp.Compare(b.Touches, a.Touches), cmp.Compare(a.Path, b.Path))
	})
	slices.SortFunc(languages, func(a, b LanguageStat) int {
		return cmp.Or(cmp.Compare(b.Files, a.Files), cmp.Compare(a.Language, b.Language))
	})

	return Summary{
		Authors:      len(snap.Authors),
		Files:        len(snap.Files),
		Commits:      snap.TotalCommits(),
		Interactions: snap.Interactions(),
		LastCommit:   snap.LastCommit.String(),
		TopAuthors:   authors[:min(topN, len(authors))],
		TopFiles:     files[:min(topN, len(files))],
		Languages:    languages,
	}
}

func language(path string) string {
	lang := pathfilter.Language(path)
	if lang == "" {
		return otherLanguage
	}

	return lang
}
