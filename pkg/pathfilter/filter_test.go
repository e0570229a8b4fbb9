package pathfilter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/pathfilter"
)

func TestRules_Keep(t *testing.T) {
	t.Parallel()

	rules, err := pathfilter.NewRules(true, []string{"docs/"}, `\.go$`)
	require.NoError(t, err)
	assert.True(t, rules.Active())

	assert.True(t, rules.Keep("cmd/main.go"))
	assert.False(t, rules.Keep("vendor/github.com/x/y.go"))
	assert.False(t, rules.Keep("docs/guide.go"))
	assert.False(t, rules.Keep("README.md"))
}

func TestRules_ZeroValueKeepsEverything(t *testing.T) {
	t.Parallel()

	var rules *pathfilter.Rules

	assert.False(t, rules.Active())
	assert.True(t, rules.Keep("vendor/x.go"))

	empty, err := pathfilter.NewRules(false, nil, "")
	require.NoError(t, err)
	assert.False(t, empty.Active())
	assert.True(t, empty.Keep("node_modules/x.js"))
}

func TestNewRules_BadPattern(t *testing.T) {
	t.Parallel()

	_, err := pathfilter.NewRules(false, nil, "(")
	require.Error(t, err)
}

func TestApply(t *testing.T) {
	t.Parallel()

	rules, err := pathfilter.NewRules(true, nil, "")
	require.NoError(t, err)

	in := []string{"a.go", "vendor/b.go", "c.go"}
	assert.Equal(t, []string{"a.go", "c.go"}, pathfilter.Apply(rules, in))
	assert.Equal(t, []string{"a.go", "vendor/b.go", "c.go"}, in)
	assert.Equal(t, in, pathfilter.Apply(nil, in))
}

func TestLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Go", pathfilter.Language("pkg/x/main.go"))
	assert.Equal(t, "Python", pathfilter.Language("tools/run.py"))
}

func TestAuthorFilter(t *testing.T) {
	t.Parallel()

	filter, err := pathfilter.NewAuthorFilter(pathfilter.DefaultBotPatterns())
	require.NoError(t, err)

	assert.True(t, filter.Excluded("dependabot[bot]"))
	assert.True(t, filter.Excluded("renovate-bot"))
	assert.True(t, filter.Excluded("some-app[bot]"))
	assert.False(t, filter.Excluded("Alice"))

	var none *pathfilter.AuthorFilter
	assert.False(t, none.Excluded("dependabot[bot]"))

	_, err = pathfilter.NewAuthorFilter([]string{"["})
	require.Error(t, err)
}
