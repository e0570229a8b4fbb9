package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/config"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/export"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/persist"
)

// Output file suffixes appended to the export prefix.
const (
	ratingsSuffix = ".ratings"
	parquetSuffix = ".parquet"
	usersSuffix   = ".users"
	filesSuffix   = ".files"
)

// ExportCommand holds the flags of the export command.
type ExportCommand struct {
	app *app

	dataDir       string
	repo          string
	output        string
	format        string
	queryFiles    string
	queryStrength float64
	stripBranch   bool
}

func newExportCommand(a *app) *cobra.Command {
	ec := &ExportCommand{app: a}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write ratings and id dictionaries for a recommender",
		Long: `Write <output>.ratings (or <output>.parquet), <output>.users and
<output>.files from an affinity store.

With --query-files, an extra query author is appended whose ratings are the
listed files that exist in the store. Its id is the number of real authors.`,
		Args: cobra.NoArgs,
		RunE: ec.run,
	}

	cmd.Flags().StringVar(&ec.dataDir, "data-dir", "", "Store directory")
	cmd.Flags().StringVar(&ec.repo, "repo", "", "Repository whose default store directory to use")
	cmd.Flags().StringVarP(&ec.output, "output", "o", "affinity", "Output path prefix")
	cmd.Flags().StringVar(&ec.format, "format", "", "Ratings format: tsv or parquet (default from config)")
	cmd.Flags().StringVar(&ec.queryFiles, "query-files", "", "File with one path per line for the query author (- for stdin)")
	cmd.Flags().Float64Var(&ec.queryStrength, "query-strength", 0, "Strength of query ratings (default from config)")
	cmd.Flags().BoolVar(&ec.stripBranch, "strip-branch", false, "Drop the first path segment of each query file")

	return cmd
}

func (ec *ExportCommand) run(cmd *cobra.Command, _ []string) error {
	a := ec.app

	dataDir, err := a.resolveDataDir(ec.dataDir, ec.repo)
	if err != nil {
		return err
	}

	format := a.cfg.Export.Format
	if ec.format != "" {
		format = ec.format
	}

	if format != config.ExportFormatTSV && format != config.ExportFormatParquet {
		return fmt.Errorf("%w: %q", config.ErrInvalidExportFormat, format)
	}

	strength := a.cfg.Export.QueryStrength
	if cmd.Flags().Changed("query-strength") {
		strength = ec.queryStrength
	}

	if strength <= 0 {
		return fmt.Errorf("%w: %v", config.ErrInvalidQueryStrength, strength)
	}

	store, err := affinity.Load(dataDir)
	if err != nil {
		return fmt.Errorf("load store from %s: %w", dataDir, err)
	}

	snap := store.Snapshot()
	ratings := export.Ratings(snap)

	if ec.queryFiles != "" {
		candidates, readErr := ec.readQueryFiles(cmd.InOrStdin())
		if readErr != nil {
			return readErr
		}

		query := export.QueryRatings(snap, candidates, strength)
		a.logger.Info("query author", "id", len(snap.Authors), "candidates", len(candidates), "known", len(query))

		ratings = append(ratings, query...)
	}

	numAuthors := len(snap.Authors)

	ratingsPath := ec.output + ratingsSuffix
	writeRatings := func(w io.Writer) error { return export.WriteTSV(w, ratings, numAuthors) }

	if format == config.ExportFormatParquet {
		ratingsPath = ec.output + parquetSuffix
		writeRatings = func(w io.Writer) error { return export.WriteParquet(w, ratings, numAuthors) }
	}

	outputs := []struct {
		path  string
		write func(io.Writer) error
	}{
		{ratingsPath, writeRatings},
		{ec.output + usersSuffix, func(w io.Writer) error { return export.WriteIndex(w, snap.Authors) }},
		{ec.output + filesSuffix, func(w io.Writer) error { return export.WriteIndex(w, snap.Files) }},
	}

	for _, out := range outputs {
		err = persist.WriteFile(out.path, out.write)
		if err != nil {
			return fmt.Errorf("export %s: %w", out.path, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d ratings to %s\n", len(ratings), ratingsPath)

	return nil
}

// readQueryFiles reads candidate paths, one per line, skipping blanks.
func (ec *ExportCommand) readQueryFiles(stdin io.Reader) ([]string, error) {
	r := stdin

	if ec.queryFiles != "-" {
		f, err := os.Open(ec.queryFiles)
		if err != nil {
			return nil, fmt.Errorf("open query files: %w", err)
		}
		defer f.Close()

		r = f
	}

	var paths []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if ec.stripBranch {
			line = export.StripBranch(line)
		}

		paths = append(paths, line)
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read query files: %w", err)
	}

	return paths, nil
}
