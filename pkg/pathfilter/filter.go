// Package pathfilter decides which changed paths and which authors take part
// in mining. Every filter is off by default.
package pathfilter

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/src-d/enry/v2"
)

// PathFilter reports whether a changed path should be counted.
type PathFilter interface {
	Keep(path string) bool
}

// Rules is a PathFilter built from configuration.
type Rules struct {
	// SkipVendored drops paths enry classifies as vendored (vendor/, node_modules/, ...).
	SkipVendored bool
	// SkipPrefixes drops paths starting with any of the prefixes.
	SkipPrefixes []string
	// Include, when set, keeps only matching paths.
	Include *regexp.Regexp
}

// NewRules builds Rules, compiling include when it is not empty.
func NewRules(skipVendored bool, skipPrefixes []string, include string) (*Rules, error) {
	rules := &Rules{SkipVendored: skipVendored, SkipPrefixes: skipPrefixes}

	if include != "" {
		re, err := regexp.Compile(include)
		if err != nil {
			return nil, fmt.Errorf("compile include pattern: %w", err)
		}

		rules.Include = re
	}

	return rules, nil
}

// Active reports whether the rules can drop anything.
func (r *Rules) Active() bool {
	return r != nil && (r.SkipVendored || len(r.SkipPrefixes) > 0 || r.Include != nil)
}

// Keep implements PathFilter.
func (r *Rules) Keep(name string) bool {
	if r == nil {
		return true
	}

	for _, prefix := range r.SkipPrefixes {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}

	if r.SkipVendored && enry.IsVendor(name) {
		return false
	}

	if r.Include != nil && !r.Include.MatchString(name) {
		return false
	}

	return true
}

// Apply returns the paths filter keeps, preserving order.
func Apply(filter PathFilter, paths []string) []string {
	if filter == nil {
		return paths
	}

	kept := make([]string, 0, len(paths))

	for _, p := range paths {
		if filter.Keep(p) {
			kept = append(kept, p)
		}
	}

	return kept
}

// Language guesses the programming language of a path from its name alone.
// It returns "" when enry cannot tell.
func Language(name string) string {
	return enry.GetLanguage(path.Base(name), nil)
}
