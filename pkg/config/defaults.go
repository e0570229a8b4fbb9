package config

// Mining defaults.
const (
	DefaultMiningWorkers    = 0
	DefaultProgressInterval = 1000
	DefaultSaveInterval     = 10000
	DefaultQueueSize        = 0
	DefaultDiffWorkers      = 0
	DefaultFirstParent      = false
	DefaultDetectRenames    = false
	DefaultSkipVendored     = false
)

// Store defaults.
const (
	DefaultStoreDir = ""
)

// Export formats.
const (
	ExportFormatTSV     = "tsv"
	ExportFormatParquet = "parquet"
)

// Export defaults.
const (
	DefaultExportFormat  = ExportFormatTSV
	DefaultQueryStrength = 100.0
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Observability defaults.
const (
	DefaultSampleRatio = 1.0
)

// Remote defaults.
const (
	DefaultS3Prefix = "gitrecommender/"
	DefaultPartSize = "16MB"
)
