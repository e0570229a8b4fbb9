package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
)

// RatingRow is the serialized form of a Rating.
type RatingRow struct {
	AuthorID int64   `parquet:"author_id"`
	FileID   int64   `parquet:"file_id"`
	Strength float64 `parquet:"strength"`
	Count    int64   `parquet:"count"`
}

// Rows resolves ratings to serialized rows.
func Rows(ratings []Rating, numAuthors int) []RatingRow {
	rows := make([]RatingRow, len(ratings))

	for i, r := range ratings {
		rows[i] = RatingRow{
			AuthorID: int64(r.Author.ID(numAuthors)),
			FileID:   int64(r.File),
			Strength: r.Strength,
			Count:    int64(r.Count),
		}
	}

	return rows
}

// FormatStrength renders a strength with the fewest digits that round-trip.
func FormatStrength(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteTSV writes authorId, fileId, strength and count per line.
func WriteTSV(w io.Writer, ratings []Rating, numAuthors int) error {
	bw := bufio.NewWriter(w)

	for _, row := range Rows(ratings, numAuthors) {
		_, err := fmt.Fprintf(bw, "%d\t%d\t%s\t%d\n", row.AuthorID, row.FileID, FormatStrength(row.Strength), row.Count)
		if err != nil {
			return fmt.Errorf("write rating: %w", err)
		}
	}

	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("flush ratings: %w", err)
	}

	return nil
}

// WriteParquet writes the same columns as WriteTSV as a parquet file.
func WriteParquet(w io.Writer, ratings []Rating, numAuthors int) error {
	writer := parquet.NewGenericWriter[RatingRow](w)

	_, err := writer.Write(Rows(ratings, numAuthors))
	if err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}

	return nil
}

// WriteIndex writes an "id\tname" dictionary; ids are positions in names.
// Names are quoted like the store's own tables, so every entry stays on one line.
func WriteIndex(w io.Writer, names []string) error {
	bw := bufio.NewWriter(w)

	for id, name := range names {
		_, err := fmt.Fprintf(bw, "%d\t%s\n", id, affinity.EncodeEntry(name))
		if err != nil {
			return fmt.Errorf("write index entry: %w", err)
		}
	}

	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("flush index: %w", err)
	}

	return nil
}
