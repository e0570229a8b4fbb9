package pathfilter

import (
	"fmt"
	"regexp"
)

// DefaultBotPatterns match the names of common automation accounts.
func DefaultBotPatterns() []string {
	return []string{
		`\[bot\]$`,
		`^dependabot`,
		`^renovate`,
		`^github-actions`,
	}
}

// AuthorFilter excludes authors whose name matches any pattern.
// A nil *AuthorFilter excludes nobody.
type AuthorFilter struct {
	patterns []*regexp.Regexp
}

// NewAuthorFilter compiles patterns. An invalid pattern is an error.
func NewAuthorFilter(patterns []string) (*AuthorFilter, error) {
	filter := &AuthorFilter{patterns: make([]*regexp.Regexp, 0, len(patterns))}

	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile author pattern %q: %w", pattern, err)
		}

		filter.patterns = append(filter.patterns, re)
	}

	return filter, nil
}

// Excluded reports whether the author is filtered out.
func (f *AuthorFilter) Excluded(name string) bool {
	if f == nil {
		return false
	}

	for _, re := range f.patterns {
		if re.MatchString(name) {
			return true
		}
	}

	return false
}
