package export_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/export"
)

// sampleSnapshot has alice with 10 commits, 3 of which touch a.go, and bob
// with 2 commits touching b.go once.
func sampleSnapshot(t *testing.T) affinity.Snapshot {
	t.Helper()

	store := affinity.NewStore()

	for i := range 10 {
		var paths []string
		if i < 3 {
			paths = []string{"a.go"}
		}

		store.Fold(affinity.Checkpoint("c"), "alice", paths)
	}

	store.Fold(affinity.Checkpoint("d"), "bob", []string{"b.go", "a.go"})
	store.Fold(affinity.Checkpoint("e"), "bob", nil)

	return store.Snapshot()
}

func TestRatings_Normalization(t *testing.T) {
	t.Parallel()

	ratings := export.Ratings(sampleSnapshot(t))
	require.Len(t, ratings, 3)

	assert.Equal(t, export.RealAuthor(0), ratings[0].Author)
	assert.Equal(t, 0, ratings[0].File)
	assert.InDelta(t, 3000.0, ratings[0].Strength, 1e-9)
	assert.Equal(t, 3, ratings[0].Count)

	// bob: a.go (id 0) then b.go (id 1), each 1 of 2 commits.
	assert.Equal(t, export.RealAuthor(1), ratings[1].Author)
	assert.Equal(t, 0, ratings[1].File)
	assert.InDelta(t, 5000.0, ratings[1].Strength, 1e-9)
	assert.Equal(t, 1, ratings[2].File)
}

func TestRatings_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, export.Ratings(affinity.NewStore().Snapshot()))
}

func TestQueryRatings(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot(t)

	ratings := export.QueryRatings(snap, []string{"b.go", "missing.go", "a.go", "b.go"}, export.DefaultQueryStrength)
	require.Len(t, ratings, 2)

	for i, r := range ratings {
		assert.True(t, r.Author.IsQuery())
		assert.Equal(t, len(snap.Authors), r.Author.ID(len(snap.Authors)))
		assert.InDelta(t, 100.0, r.Strength, 1e-9)
		assert.Equal(t, i, r.Count)
	}

	assert.Equal(t, 1, ratings[0].File)
	assert.Equal(t, 0, ratings[1].File)
}

func TestAuthorRef(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4, export.RealAuthor(4).ID(10))
	assert.False(t, export.RealAuthor(4).IsQuery())
	assert.Equal(t, 10, export.QueryAuthor().ID(10))
	assert.NotEqual(t, export.RealAuthor(0), export.QueryAuthor())
}

func TestStripBranch(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "src/a.go", export.StripBranch("main/src/a.go"))
	assert.Equal(t, "README", export.StripBranch("README"))
}

func TestWriteTSV(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot(t)
	ratings := append(export.Ratings(snap), export.QueryRatings(snap, []string{"b.go"}, 100)...)

	var buf bytes.Buffer
	require.NoError(t, export.WriteTSV(&buf, ratings, len(snap.Authors)))

	assert.Equal(t, "0\t0\t3000\t3\n1\t0\t5000\t1\n1\t1\t5000\t1\n2\t1\t100\t0\n", buf.String())
}

func TestWriteParquet(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot(t)
	ratings := export.Ratings(snap)

	var buf bytes.Buffer
	require.NoError(t, export.WriteParquet(&buf, ratings, len(snap.Authors)))

	rows, err := parquet.Read[export.RatingRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, export.Rows(ratings, len(snap.Authors)), rows)
}

func TestWriteIndex(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, export.WriteIndex(&buf, []string{"alice", "bob"}))
	assert.Equal(t, "0\talice\n1\tbob\n", buf.String())
}

func TestWriteIndex_QuotesAwkwardNames(t *testing.T) {
	t.Parallel()

	names := []string{"dir/a\tb.go", "two\nlines.go", `"quoted".go`, "plain.go"}

	var buf bytes.Buffer
	require.NoError(t, export.WriteIndex(&buf, names))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, len(names))

	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, "\t"), "line %q", line)
	}

	assert.Equal(t, "0\t\"dir/a\\tb.go\"", lines[0])
	assert.Equal(t, "1\t\"two\\nlines.go\"", lines[1])
	assert.Equal(t, "2\t\"\\\"quoted\\\".go\"", lines[2])
	assert.Equal(t, "3\tplain.go", lines[3])
}

func TestParseRecommendations(t *testing.T) {
	t.Parallel()

	input := "0\t[1:4.5,0:2.0]\n\n2 {0:1}\n1\t[]\n"

	recs, err := export.ParseRecommendations(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []export.Recommendation{
		{Author: 0, Items: []export.Scored{{File: 1, Score: 4.5}, {File: 0, Score: 2}}},
		{Author: 2, Items: []export.Scored{{File: 0, Score: 1}}},
		{Author: 1},
	}, recs)
}

func TestParseRecommendations_Malformed(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"x\t[1:2]", "0", "0\t[1-2]", "0\t[a:2]", "0\t[1:b]"} {
		_, err := export.ParseRecommendations(strings.NewReader(input))
		require.ErrorIs(t, err, export.ErrMalformedRecommendation, input)
	}
}

func TestExpandAndWriteResolved(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot(t)

	recs := []export.Recommendation{
		{Author: 1, Items: []export.Scored{{File: 0, Score: 4.5}}},
		{Author: 2, Items: []export.Scored{{File: 1, Score: 0.25}}},
	}

	rows, err := export.Expand(snap, recs)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteResolved(&buf, rows))
	assert.Equal(t, "bob\ta.go\t4.5\n<query>\tb.go\t0.25\n", buf.String())
}

func TestExpand_UnknownIDs(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot(t)

	_, err := export.Expand(snap, []export.Recommendation{{Author: 3}})
	require.ErrorIs(t, err, export.ErrUnknownID)

	_, err = export.Expand(snap, []export.Recommendation{{Author: 0, Items: []export.Scored{{File: 9}}}})
	require.ErrorIs(t, err, export.ErrUnknownID)
}
