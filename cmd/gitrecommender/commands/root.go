// Package commands implements CLI command handlers for gitrecommender.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/checkpoint"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/config"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/gitlib"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/observability"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/version"
)

// ErrNoDataDir is returned when a command can locate neither a data
// directory nor a repository.
var ErrNoDataDir = errors.New("either --data-dir or --repo is required")

// app carries the state shared by all commands of one invocation.
type app struct {
	configPath string
	logLevel   string
	logJSON    bool

	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
}

// Execute runs the CLI with the given arguments and flushes telemetry before returning.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)

	return errors.Join(err, a.shutdown(ctx))
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gitrecommender",
		Short: "Mine git history into author/file affinities for recommenders",
		Long: `gitrecommender walks a repository's history, counts which files each
author touches, and exports the counts as recommender input.

Commands:
  mine       Fold new commits into the repository's affinity store
  export     Write ratings and id dictionaries
  translate  Map recommender output back to names and paths
  stats      Summarize an affinity store
  push/pull  Copy a store to or from S3`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default .gitrecommender.yaml in . or $HOME)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "emit logs as JSON")

	root.AddCommand(
		newMineCommand(a),
		newExportCommand(a),
		newTranslateCommand(a),
		newStatsCommand(a),
		newPushCommand(a),
		newPullCommand(a),
		newVersionCommand(),
	)

	return root
}

// setup loads the configuration and initializes observability.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}

	if cmd.Flags().Changed("log-json") && a.logJSON {
		cfg.Logging.Format = "json"
	}

	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.JSONLogs()
	obsCfg.Command = cmd.Name()

	providers, err := observability.Init(cmd.Context(), obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	a.cfg = cfg
	a.providers = providers
	a.logger = observability.NewLogger(cmd.ErrOrStderr(), obsCfg)

	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	if a.providers.Shutdown == nil {
		return nil
	}

	err := a.providers.Shutdown(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("observability shutdown: %w", err)
	}

	return nil
}

// storeBase returns the directory under which per-repository workspaces live.
func (a *app) storeBase() string {
	if a.cfg.Store.Dir != "" {
		return a.cfg.Store.Dir
	}

	return checkpoint.DefaultDir()
}

// manager returns the workspace manager for a repository, honoring an
// explicit data directory.
func (a *app) manager(dataDir, repoPath string) *checkpoint.Manager {
	if dataDir != "" {
		return checkpoint.NewManager(dataDir, repoPath)
	}

	return checkpoint.ForRepo(a.storeBase(), repoPath)
}

// resolveDataDir returns dataDir, or the workspace of repo when dataDir is empty.
func (a *app) resolveDataDir(dataDir, repo string) (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}

	if repo == "" {
		return "", ErrNoDataDir
	}

	repoPath, err := gitlib.CanonicalPath(repo)
	if err != nil {
		return "", err
	}

	return a.manager("", repoPath).DataDir(), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
