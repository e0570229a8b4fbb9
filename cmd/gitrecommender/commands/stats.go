package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/persist"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/report"
)

// StatsCommand holds the flags of the stats command.
type StatsCommand struct {
	app *app

	dataDir string
	repo    string
	format  string
	top     int
	output  string
}

func newStatsCommand(a *app) *cobra.Command {
	sc := &StatsCommand{app: a}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize an affinity store",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.dataDir, "data-dir", "", "Store directory")
	cmd.Flags().StringVar(&sc.repo, "repo", "", "Repository whose default store directory to use")
	cmd.Flags().StringVarP(&sc.format, "format", "f", report.FormatText, "Output format: table, json, yaml, plot")
	cmd.Flags().IntVar(&sc.top, "top", report.DefaultTopN, "Number of authors and files to list")
	cmd.Flags().StringVarP(&sc.output, "output", "o", "", "Output file (default stdout)")

	return cmd
}

func (sc *StatsCommand) run(cmd *cobra.Command, _ []string) error {
	dataDir, err := sc.app.resolveDataDir(sc.dataDir, sc.repo)
	if err != nil {
		return err
	}

	store, err := affinity.Load(dataDir)
	if err != nil {
		return fmt.Errorf("load store from %s: %w", dataDir, err)
	}

	summary := report.Summarize(store.Snapshot(), sc.top)

	if sc.output != "" {
		return persist.WriteFile(sc.output, func(w io.Writer) error {
			return report.Write(w, summary, sc.format, false)
		})
	}

	out := cmd.OutOrStdout()
	_, isFile := out.(*os.File)

	return report.Write(out, summary, sc.format, isFile && !color.NoColor)
}
