package commands

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/remote"
)

// remoteFlags are shared by push and pull.
type remoteFlags struct {
	app *app

	dataDir  string
	repo     string
	key      string
	bucket   string
	prefix   string
	region   string
	endpoint string
}

func (rf *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rf.dataDir, "data-dir", "", "Store directory")
	cmd.Flags().StringVar(&rf.repo, "repo", "", "Repository whose default store directory to use")
	cmd.Flags().StringVar(&rf.key, "key", "", "Object key (default <data dir name>"+remote.ArchiveExtension+")")
	cmd.Flags().StringVar(&rf.bucket, "bucket", "", "S3 bucket (default from config)")
	cmd.Flags().StringVar(&rf.prefix, "prefix", "", "Key prefix (default from config)")
	cmd.Flags().StringVar(&rf.region, "region", "", "AWS region (default from config or environment)")
	cmd.Flags().StringVar(&rf.endpoint, "endpoint", "", "S3-compatible endpoint URL")
}

// open resolves the data directory and key and connects to the bucket.
func (rf *remoteFlags) open(cmd *cobra.Command) (*remote.S3Store, string, string, error) {
	a := rf.app

	dataDir, err := a.resolveDataDir(rf.dataDir, rf.repo)
	if err != nil {
		return nil, "", "", err
	}

	opts := remote.S3Options{
		Bucket:   a.cfg.Remote.S3Bucket,
		Prefix:   a.cfg.Remote.S3Prefix,
		Region:   a.cfg.Remote.S3Region,
		Endpoint: a.cfg.Remote.S3Endpoint,
		PartSize: a.cfg.Remote.PartSizeBytes(),
	}

	if rf.bucket != "" {
		opts.Bucket = rf.bucket
	}

	if cmd.Flags().Changed("prefix") {
		opts.Prefix = rf.prefix
	}

	if rf.region != "" {
		opts.Region = rf.region
	}

	if rf.endpoint != "" {
		opts.Endpoint = rf.endpoint
	}

	store, err := remote.NewS3Store(cmd.Context(), opts)
	if err != nil {
		return nil, "", "", err
	}

	key := rf.key
	if key == "" {
		key = remote.WorkspaceKey(filepath.Base(filepath.Clean(dataDir)))
	}

	return store, dataDir, key, nil
}

func newPushCommand(a *app) *cobra.Command {
	rf := &remoteFlags{app: a}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload a store directory to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, dataDir, key, err := rf.open(cmd)
			if err != nil {
				return err
			}

			err = remote.Push(cmd.Context(), store, key, dataDir)
			if err != nil {
				return err
			}

			a.logger.Info("pushed", "data_dir", dataDir, "key", key)
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s to %s\n", dataDir, key)

			return nil
		},
	}

	rf.register(cmd)

	return cmd
}

func newPullCommand(a *app) *cobra.Command {
	rf := &remoteFlags{app: a}

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download a store directory from S3, replacing the local one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, dataDir, key, err := rf.open(cmd)
			if err != nil {
				return err
			}

			n, err := remote.Pull(cmd.Context(), store, key, dataDir)
			if err != nil {
				return err
			}

			restored, err := affinity.Load(dataDir)
			if err != nil {
				return fmt.Errorf("pulled store is unreadable: %w", err)
			}

			a.logger.Info("pulled", "data_dir", dataDir, "key", key, "bytes", n)
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %s (%s bytes): %d authors, %d files, checkpoint %s\n",
				key, humanize.Comma(n), restored.NumAuthors(), restored.NumFiles(), restored.LastCommit())

			return nil
		},
	}

	rf.register(cmd)

	return cmd
}
