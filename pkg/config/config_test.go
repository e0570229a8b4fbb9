package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gitrecommender.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultMiningWorkers, cfg.Mining.Workers)
	assert.Equal(t, config.DefaultProgressInterval, cfg.Mining.ProgressInterval)
	assert.Equal(t, config.DefaultSaveInterval, cfg.Mining.SaveInterval)
	assert.False(t, cfg.Mining.FirstParent)
	assert.Empty(t, cfg.Mining.ExcludeAuthors)
	assert.Equal(t, config.DefaultExportFormat, cfg.Export.Format)
	assert.InDelta(t, config.DefaultQueryStrength, cfg.Export.QueryStrength, 1e-9)
	assert.Equal(t, config.DefaultLogLevel, cfg.Logging.Level)
	assert.False(t, cfg.JSONLogs())
	assert.Equal(t, config.DefaultS3Prefix, cfg.Remote.S3Prefix)

	partSize, err := cfg.Remote.PartSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(16_000_000), partSize)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
mining:
  workers: 6
  save_interval: 500
  first_parent: true
  skip_vendored: true
  exclude_authors:
    - "\\[bot\\]$"
store:
  dir: /var/lib/gitrecommender
export:
  format: parquet
  query_strength: 42.5
logging:
  level: debug
  format: json
observability:
  metrics_addr: ":9090"
remote:
  s3_bucket: stores
  part_size: 64MiB
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Mining.Workers)
	assert.Equal(t, 500, cfg.Mining.SaveInterval)
	assert.Equal(t, config.DefaultProgressInterval, cfg.Mining.ProgressInterval)
	assert.True(t, cfg.Mining.FirstParent)
	assert.True(t, cfg.Mining.SkipVendored)
	assert.Equal(t, []string{`\[bot\]$`}, cfg.Mining.ExcludeAuthors)
	assert.Equal(t, "/var/lib/gitrecommender", cfg.Store.Dir)
	assert.Equal(t, config.ExportFormatParquet, cfg.Export.Format)
	assert.InDelta(t, 42.5, cfg.Export.QueryStrength, 1e-9)
	assert.True(t, cfg.JSONLogs())
	assert.Equal(t, ":9090", cfg.Observability.MetricsAddr)
	assert.Equal(t, "stores", cfg.Remote.S3Bucket)

	partSize, err := cfg.Remote.PartSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(64<<20), partSize)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"negative workers", "mining:\n  workers: -1\n", config.ErrInvalidWorkers},
		{"zero progress", "mining:\n  progress_interval: 0\n", config.ErrInvalidProgressInterval},
		{"zero save", "mining:\n  save_interval: 0\n", config.ErrInvalidSaveInterval},
		{"negative queue", "mining:\n  queue_size: -4\n", config.ErrInvalidQueueSize},
		{"bad include", "mining:\n  include: \"(\"\n", config.ErrInvalidPattern},
		{"bad author pattern", "mining:\n  exclude_authors: [\"[\"]\n", config.ErrInvalidPattern},
		{"bad format", "export:\n  format: csv\n", config.ErrInvalidExportFormat},
		{"bad strength", "export:\n  query_strength: 0\n", config.ErrInvalidQueryStrength},
		{"bad level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"bad log format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"tiny part", "remote:\n  part_size: 1KB\n", config.ErrInvalidPartSize},
		{"garbage part", "remote:\n  part_size: lots\n", config.ErrInvalidPartSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) { //nolint:paralleltest // uses t.Setenv
	t.Setenv("GITRECOMMENDER_MINING_WORKERS", "3")
	t.Setenv("GITRECOMMENDER_LOGGING_LEVEL", "warn")

	cfg, err := config.LoadConfig(writeConfig(t, "mining:\n  workers: 12\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Mining.Workers)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
