package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
)

// QueryAuthorLabel stands in for the query author's name in resolved output.
const QueryAuthorLabel = "<query>"

// Sentinel errors.
var (
	ErrMalformedRecommendation = errors.New("malformed recommendation line")
	ErrUnknownID               = errors.New("unknown id")
)

// Scored is one recommended file with its score.
type Scored struct {
	File  int
	Score float64
}

// Recommendation is one line of recommender output.
type Recommendation struct {
	Author int
	Items  []Scored
}

// ParseRecommendations reads "authorId<ws>[fileId:score,...]" lines. The list
// may use any single-character brackets. Blank lines are ignored.
func ParseRecommendations(r io.Reader) ([]Recommendation, error) {
	var recs []Recommendation

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := parseRecommendation(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		recs = append(recs, rec)
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read recommendations: %w", err)
	}

	return recs, nil
}

func parseRecommendation(line string) (Recommendation, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || len(fields[1]) < 2 {
		return Recommendation{}, fmt.Errorf("%w: %q", ErrMalformedRecommendation, line)
	}

	author, err := strconv.Atoi(fields[0])
	if err != nil {
		return Recommendation{}, fmt.Errorf("%w: author %q", ErrMalformedRecommendation, fields[0])
	}

	rec := Recommendation{Author: author}

	body := fields[1][1 : len(fields[1])-1]
	if body == "" {
		return rec, nil
	}

	for pair := range strings.SplitSeq(body, ",") {
		fileStr, scoreStr, found := strings.Cut(pair, ":")
		if !found {
			return Recommendation{}, fmt.Errorf("%w: item %q", ErrMalformedRecommendation, pair)
		}

		file, fileErr := strconv.Atoi(fileStr)
		score, scoreErr := strconv.ParseFloat(scoreStr, 64)

		if fileErr != nil || scoreErr != nil {
			return Recommendation{}, fmt.Errorf("%w: item %q", ErrMalformedRecommendation, pair)
		}

		rec.Items = append(rec.Items, Scored{File: file, Score: score})
	}

	return rec, nil
}

// Resolved is a recommendation with names in place of ids.
type Resolved struct {
	Author string
	File   string
	Score  float64
}

// Expand resolves ids against the snapshot. The id right after the last real
// author is the query author and resolves to QueryAuthorLabel.
func Expand(snap affinity.Snapshot, recs []Recommendation) ([]Resolved, error) {
	var out []Resolved

	for _, rec := range recs {
		var author string

		switch {
		case rec.Author == len(snap.Authors):
			author = QueryAuthorLabel
		case rec.Author >= 0 && rec.Author < len(snap.Authors):
			author = snap.Authors[rec.Author]
		default:
			return nil, fmt.Errorf("%w: author %d", ErrUnknownID, rec.Author)
		}

		for _, item := range rec.Items {
			if item.File < 0 || item.File >= len(snap.Files) {
				return nil, fmt.Errorf("%w: file %d", ErrUnknownID, item.File)
			}

			out = append(out, Resolved{Author: author, File: snap.Files[item.File], Score: item.Score})
		}
	}

	return out, nil
}

// WriteResolved writes authorName, filePath and score per line.
func WriteResolved(w io.Writer, rows []Resolved) error {
	bw := bufio.NewWriter(w)

	for _, row := range rows {
		_, err := fmt.Fprintf(bw, "%s\t%s\t%s\n", row.Author, row.File, FormatStrength(row.Score))
		if err != nil {
			return fmt.Errorf("write resolved row: %w", err)
		}
	}

	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("flush resolved rows: %w", err)
	}

	return nil
}
