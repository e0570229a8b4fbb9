package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/export"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/persist"
)

// TranslateCommand holds the flags of the translate command.
type TranslateCommand struct {
	app *app

	dataDir string
	repo    string
	input   string
	output  string
}

func newTranslateCommand(a *app) *cobra.Command {
	tc := &TranslateCommand{app: a}

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Map recommender output ids back to author names and file paths",
		Long: `Read lines of the form "<author id> [<file id>:<score>,...]" and print one
"<author>\t<file>\t<score>" line per recommended item.`,
		Args: cobra.NoArgs,
		RunE: tc.run,
	}

	cmd.Flags().StringVar(&tc.dataDir, "data-dir", "", "Store directory")
	cmd.Flags().StringVar(&tc.repo, "repo", "", "Repository whose default store directory to use")
	cmd.Flags().StringVarP(&tc.input, "input", "i", "-", "Recommender output (- for stdin)")
	cmd.Flags().StringVarP(&tc.output, "output", "o", "", "Output file (default stdout)")

	return cmd
}

func (tc *TranslateCommand) run(cmd *cobra.Command, _ []string) error {
	dataDir, err := tc.app.resolveDataDir(tc.dataDir, tc.repo)
	if err != nil {
		return err
	}

	store, err := affinity.Load(dataDir)
	if err != nil {
		return fmt.Errorf("load store from %s: %w", dataDir, err)
	}

	in := cmd.InOrStdin()

	if tc.input != "-" {
		f, openErr := os.Open(tc.input)
		if openErr != nil {
			return fmt.Errorf("open input: %w", openErr)
		}
		defer f.Close()

		in = f
	}

	recs, err := export.ParseRecommendations(in)
	if err != nil {
		return err
	}

	rows, err := export.Expand(store.Snapshot(), recs)
	if err != nil {
		return err
	}

	if tc.output == "" {
		return export.WriteResolved(cmd.OutOrStdout(), rows)
	}

	return persist.WriteFile(tc.output, func(w io.Writer) error {
		return export.WriteResolved(w, rows)
	})
}
