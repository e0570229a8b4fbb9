// Package config provides configuration loading and validation for gitrecommender.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/observability"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/safeconv"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers          = errors.New("mining workers must not be negative")
	ErrInvalidProgressInterval = errors.New("progress interval must be positive")
	ErrInvalidSaveInterval     = errors.New("save interval must be positive")
	ErrInvalidQueueSize        = errors.New("queue size must not be negative")
	ErrInvalidPattern          = errors.New("invalid pattern")
	ErrInvalidQueryStrength    = errors.New("query strength must be positive")
	ErrInvalidLogLevel         = errors.New("invalid log level")
	ErrInvalidLogFormat        = errors.New("log format must be text or json")
	ErrInvalidPartSize         = errors.New("invalid remote part size")
	ErrInvalidExportFormat     = errors.New("export format must be tsv or parquet")
)

// EnvPrefix prefixes every environment override, e.g. GITRECOMMENDER_MINING_WORKERS.
const EnvPrefix = "GITRECOMMENDER"

// configName is the basename viper searches for when no path is given.
const configName = ".gitrecommender"

// minPartSize is the smallest multipart chunk S3 accepts.
const minPartSize = 5 * 1024 * 1024

// Config holds all configuration for gitrecommender.
type Config struct {
	Mining        MiningConfig        `mapstructure:"mining"`
	Store         StoreConfig         `mapstructure:"store"`
	Export        ExportConfig        `mapstructure:"export"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Remote        RemoteConfig        `mapstructure:"remote"`
}

// MiningConfig controls the history walk and the aggregator.
type MiningConfig struct {
	// Workers is the task pool size; 0 means one per CPU.
	Workers          int `mapstructure:"workers"`
	ProgressInterval int `mapstructure:"progress_interval"`
	SaveInterval     int `mapstructure:"save_interval"`
	// QueueSize bounds pending tasks; 0 means twice the workers.
	QueueSize int `mapstructure:"queue_size"`
	// DiffWorkers is the number of libgit2 handles; 0 means Workers.
	DiffWorkers    int      `mapstructure:"diff_workers"`
	FirstParent    bool     `mapstructure:"first_parent"`
	DetectRenames  bool     `mapstructure:"detect_renames"`
	SkipVendored   bool     `mapstructure:"skip_vendored"`
	SkipPrefixes   []string `mapstructure:"skip_prefixes"`
	Include        string   `mapstructure:"include"`
	ExcludeAuthors []string `mapstructure:"exclude_authors"`
}

// StoreConfig locates checkpoint workspaces.
type StoreConfig struct {
	// Dir is the base directory; empty means ~/.gitrecommender/repos.
	Dir string `mapstructure:"dir"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	Format        string  `mapstructure:"format"`
	QueryStrength float64 `mapstructure:"query_strength"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds tracing and metrics export settings.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string `mapstructure:"otlp_headers"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	// MetricsAddr serves Prometheus /metrics during mining when set.
	MetricsAddr string  `mapstructure:"metrics_addr"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// RemoteConfig holds S3 settings for push and pull.
type RemoteConfig struct {
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Region   string `mapstructure:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	// PartSize is a human readable size such as "16MB".
	PartSize string `mapstructure:"part_size"`
}

// PartSizeBytes parses PartSize.
func (r RemoteConfig) PartSizeBytes() (int64, error) {
	size, err := humanize.ParseBytes(r.PartSize)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidPartSize, r.PartSize, err)
	}

	if size < minPartSize {
		return 0, fmt.Errorf("%w: %s is below %s", ErrInvalidPartSize,
			humanize.IBytes(size), humanize.IBytes(minPartSize))
	}

	return safeconv.Must[int64](size), nil
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches for .gitrecommender.yaml in the working
// directory and $HOME; a missing file there is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME")
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Mining defaults.
	viperCfg.SetDefault("mining.workers", DefaultMiningWorkers)
	viperCfg.SetDefault("mining.progress_interval", DefaultProgressInterval)
	viperCfg.SetDefault("mining.save_interval", DefaultSaveInterval)
	viperCfg.SetDefault("mining.queue_size", DefaultQueueSize)
	viperCfg.SetDefault("mining.diff_workers", DefaultDiffWorkers)
	viperCfg.SetDefault("mining.first_parent", DefaultFirstParent)
	viperCfg.SetDefault("mining.detect_renames", DefaultDetectRenames)
	viperCfg.SetDefault("mining.skip_vendored", DefaultSkipVendored)
	viperCfg.SetDefault("mining.skip_prefixes", []string{})
	viperCfg.SetDefault("mining.include", "")
	viperCfg.SetDefault("mining.exclude_authors", []string{})

	// Store defaults.
	viperCfg.SetDefault("store.dir", DefaultStoreDir)

	// Export defaults.
	viperCfg.SetDefault("export.format", DefaultExportFormat)
	viperCfg.SetDefault("export.query_strength", DefaultQueryStrength)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	// Observability defaults.
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.metrics_addr", "")
	viperCfg.SetDefault("observability.sample_ratio", DefaultSampleRatio)

	// Remote defaults.
	viperCfg.SetDefault("remote.s3_bucket", "")
	viperCfg.SetDefault("remote.s3_prefix", DefaultS3Prefix)
	viperCfg.SetDefault("remote.s3_region", "")
	viperCfg.SetDefault("remote.s3_endpoint", "")
	viperCfg.SetDefault("remote.part_size", DefaultPartSize)
}

// Validate checks value ranges and that patterns compile.
func (c *Config) Validate() error {
	err := c.Mining.validate()
	if err != nil {
		return err
	}

	switch c.Export.Format {
	case ExportFormatTSV, ExportFormatParquet:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidExportFormat, c.Export.Format)
	}

	if c.Export.QueryStrength <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQueryStrength, c.Export.QueryStrength)
	}

	_, err = observability.ParseLevel(c.Logging.Level)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	_, err = c.Remote.PartSizeBytes()

	return err
}

func (m MiningConfig) validate() error {
	if m.Workers < 0 || m.DiffWorkers < 0 {
		return fmt.Errorf("%w: %d/%d", ErrInvalidWorkers, m.Workers, m.DiffWorkers)
	}

	if m.ProgressInterval <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidProgressInterval, m.ProgressInterval)
	}

	if m.SaveInterval <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSaveInterval, m.SaveInterval)
	}

	if m.QueueSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueSize, m.QueueSize)
	}

	patterns := append([]string{m.Include}, m.ExcludeAuthors...)
	for _, pattern := range patterns {
		_, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w %q: %w", ErrInvalidPattern, pattern, err)
		}
	}

	return nil
}

// JSONLogs reports whether logs should be JSON.
func (c *Config) JSONLogs() bool {
	return c.Logging.Format == "json"
}
