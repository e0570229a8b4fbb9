package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/aggregator"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/config"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/diffresolve"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/gitlib"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/history"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/observability"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/pathfilter"
)

const meterName = "gitrecommender"

// MineCommand holds the flags of the mine command.
type MineCommand struct {
	app *app

	dataDir     string
	reset       bool
	metricsAddr string

	workers          int
	diffWorkers      int
	progressInterval int
	saveInterval     int
	firstParent      bool
	detectRenames    bool
	skipVendored     bool
	excludeAuthors   []string
	excludeBots      bool
}

func newMineCommand(a *app) *cobra.Command {
	mc := &MineCommand{app: a}

	cmd := &cobra.Command{
		Use:   "mine [repo]",
		Short: "Fold new commits into the affinity store",
		Long: `Walk the repository from HEAD back to the last mined commit and fold every
newer commit into the store. The store is saved periodically and when the run
ends, including on interrupt, so a later run resumes where this one stopped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: mc.run,
	}

	cmd.Flags().StringVar(&mc.dataDir, "data-dir", "", "Store directory (default: <store.dir>/<repo hash>)")
	cmd.Flags().BoolVar(&mc.reset, "reset", false, "Discard the existing store and mine from scratch")
	cmd.Flags().StringVar(&mc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while mining")

	cmd.Flags().IntVar(&mc.workers, "workers", 0, "Number of commit workers (0 = CPU count)")
	cmd.Flags().IntVar(&mc.diffWorkers, "diff-workers", 0, "Number of libgit2 diff handles (0 = workers)")
	cmd.Flags().IntVar(&mc.progressInterval, "progress-interval", config.DefaultProgressInterval, "Commits between progress drains")
	cmd.Flags().IntVar(&mc.saveInterval, "save-interval", config.DefaultSaveInterval, "Commits between store saves")
	cmd.Flags().BoolVar(&mc.firstParent, "first-parent", false, "Follow only first parents of merges")
	cmd.Flags().BoolVar(&mc.detectRenames, "detect-renames", false, "Attribute renamed files to their new path only")
	cmd.Flags().BoolVar(&mc.skipVendored, "skip-vendored", false, "Ignore vendored and generated paths")
	cmd.Flags().StringSliceVar(&mc.excludeAuthors, "exclude-author", nil, "Regexp of author names to skip (repeatable)")
	cmd.Flags().BoolVar(&mc.excludeBots, "exclude-bots", false, "Skip common bot authors")

	return cmd
}

// applyFlags overrides configuration with explicitly set flags.
func (mc *MineCommand) applyFlags(cmd *cobra.Command, cfg *config.MiningConfig) {
	flags := cmd.Flags()

	if flags.Changed("workers") {
		cfg.Workers = mc.workers
	}

	if flags.Changed("diff-workers") {
		cfg.DiffWorkers = mc.diffWorkers
	}

	if flags.Changed("progress-interval") {
		cfg.ProgressInterval = mc.progressInterval
	}

	if flags.Changed("save-interval") {
		cfg.SaveInterval = mc.saveInterval
	}

	if flags.Changed("first-parent") {
		cfg.FirstParent = mc.firstParent
	}

	if flags.Changed("detect-renames") {
		cfg.DetectRenames = mc.detectRenames
	}

	if flags.Changed("skip-vendored") {
		cfg.SkipVendored = mc.skipVendored
	}

	cfg.ExcludeAuthors = slices.Concat(cfg.ExcludeAuthors, mc.excludeAuthors)

	if mc.excludeBots {
		cfg.ExcludeAuthors = append(cfg.ExcludeAuthors, pathfilter.DefaultBotPatterns()...)
	}
}

func (mc *MineCommand) run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := mc.app

	cfg := *a.cfg
	mc.applyFlags(cmd, &cfg.Mining)

	err := cfg.Validate()
	if err != nil {
		return err
	}

	mining := cfg.Mining

	repoArg := "."
	if len(args) > 0 {
		repoArg = args[0]
	}

	repo, err := gitlib.LoadRepository(repoArg)
	if err != nil {
		return err
	}
	defer repo.Free()

	repoPath, err := gitlib.CanonicalPath(repoArg)
	if err != nil {
		return err
	}

	mgr := a.manager(mc.dataDir, repoPath)

	if mc.reset {
		err = mgr.Clear()
		if err != nil {
			return err
		}
	}

	store, meta, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load store from %s: %w", mgr.DataDir(), err)
	}

	if meta != nil {
		a.logger.Info("resuming", "data_dir", mgr.DataDir(), "checkpoint", store.LastCommit().String(),
			"commits", humanize.Comma(int64(meta.Commits)))
	}

	walker := history.NewWalker(
		history.RepositorySource{Repo: repo, FirstParent: mining.FirstParent},
		history.WithTracer(a.providers.Tracer),
	)

	commits, err := walker.NewCommits(ctx, store.LastCommit())
	if errors.Is(err, history.ErrCheckpointNotFound) {
		return fmt.Errorf("%w (history rewritten? rerun with --reset)", err)
	}

	if err != nil {
		return err
	}

	a.logger.Info("mining", "repo", repoPath, "new_commits", humanize.Comma(int64(len(commits))))

	resolver, closeResolver, err := mc.buildResolver(repoPath, mining)
	if err != nil {
		return err
	}
	defer closeResolver()

	aggOpts, cleanup, err := mc.aggregatorOptions(ctx, mining)
	if err != nil {
		return err
	}
	defer cleanup()

	agg := aggregator.New(store, resolver, mgr, aggregator.Config{
		Workers:          mining.Workers,
		ProgressInterval: mining.ProgressInterval,
		SaveInterval:     mining.SaveInterval,
		QueueSize:        mining.QueueSize,
	}, aggOpts...)

	stats, runErr := agg.Run(ctx, commits)

	printMineSummary(cmd.OutOrStdout(), mgr.DataDir(), stats)

	return runErr
}

// buildResolver opens the diff pool and wraps it with path filtering when configured.
func (mc *MineCommand) buildResolver(repoPath string, mining config.MiningConfig) (diffresolve.Resolver, func(), error) {
	workers := mining.DiffWorkers
	if workers <= 0 {
		workers = mining.Workers
	}

	if workers <= 0 {
		workers = aggregator.DefaultConfig().Workers
	}

	pool, err := diffresolve.NewPool(repoPath, workers, gitlib.DiffOptions{DetectRenames: mining.DetectRenames})
	if err != nil {
		return nil, nil, err
	}

	rules, err := pathfilter.NewRules(mining.SkipVendored, mining.SkipPrefixes, mining.Include)
	if err != nil {
		pool.Close()

		return nil, nil, err
	}

	if !rules.Active() {
		return pool, pool.Close, nil
	}

	return diffresolve.Filtered{Resolver: pool, Filter: rules}, pool.Close, nil
}

// aggregatorOptions wires logging, tracing, metrics and the author filter.
func (mc *MineCommand) aggregatorOptions(ctx context.Context, mining config.MiningConfig) ([]aggregator.Option, func(), error) {
	a := mc.app
	cleanup := func() {}

	opts := []aggregator.Option{
		aggregator.WithLogger(a.logger),
		aggregator.WithTracer(a.providers.Tracer),
	}

	if len(mining.ExcludeAuthors) > 0 {
		filter, err := pathfilter.NewAuthorFilter(mining.ExcludeAuthors)
		if err != nil {
			return nil, cleanup, err
		}

		opts = append(opts, aggregator.WithAuthorFilter(filter))
	}

	var meter metric.Meter = a.providers.Meter

	addr := a.cfg.Observability.MetricsAddr
	if mc.metricsAddr != "" {
		addr = mc.metricsAddr
	}

	if addr != "" {
		exporter, err := observability.NewPrometheusExporter()
		if err != nil {
			return nil, cleanup, err
		}

		bound, err := exporter.Serve(ctx, addr, a.logger)
		if err != nil {
			return nil, cleanup, err
		}

		a.logger.Info("serving metrics", "addr", bound.String())

		meter = exporter.Provider.Meter(meterName)
		cleanup = func() {
			_ = exporter.Provider.Shutdown(context.WithoutCancel(ctx))
		}
	}

	metrics, err := observability.NewMiningMetrics(meter)
	if err != nil {
		cleanup()

		return nil, func() {}, err
	}

	return append(opts, aggregator.WithMetrics(metrics)), cleanup, nil
}

func printMineSummary(w io.Writer, dataDir string, stats aggregator.Stats) {
	heading := color.New(color.FgGreen, color.Bold)
	if stats.Failed > 0 {
		heading = color.New(color.FgYellow, color.Bold)
	}

	heading.Fprintf(w, "mined %s commits in %s\n", humanize.Comma(int64(stats.Submitted)), stats.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  folded: %d  failed: %d  skipped: %d  saves: %d\n", stats.Folded, stats.Failed, stats.Skipped, stats.Saves)
	fmt.Fprintf(w, "  store: %s\n", dataDir)
}
