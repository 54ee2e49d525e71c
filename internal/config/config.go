// Package config defines the configuration model for a songlake run and the
// loaders that resolve it from a config file, SONGLAKE_* environment
// variables, command-line flags and a key-value credentials file.
//
// Example (yaml):
//
//	job: sparkify
//	input_root: s3a://udacity-dend/
//	output_root: s3a://my-lake/
//	credentials: dl.cfg
//	aws:
//	  region: us-west-2
//	warehouse:
//	  kind: postgres
//	  dsn: postgresql://etl@localhost/sparkify
//	  auto_create: true
package config

// Pipeline is the fully resolved configuration for one run.
type Pipeline struct {
	// Job names the run for logs and metrics grouping.
	Job string `mapstructure:"job"`

	// InputRoot holds song_data/ and log_data/. Local path or s3 URI.
	InputRoot string `mapstructure:"input_root"`

	// OutputRoot receives one directory per table.
	OutputRoot string `mapstructure:"output_root"`

	// Credentials is an optional path to a key-value (INI) file with
	// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
	Credentials string `mapstructure:"credentials"`

	// TimeZone is the IANA zone used to derive calendar fields from event
	// timestamps.
	TimeZone string `mapstructure:"time_zone"`

	// OnBadRecord is "fail" or "skip" for records that do not match the
	// declared input schema.
	OnBadRecord string `mapstructure:"on_bad_record"`

	// UnmatchedOutput writes events that found no song to unmatched_plays/.
	UnmatchedOutput bool `mapstructure:"unmatched_output"`

	// UsersDedupe is "", "keep-first" or "keep-last".
	UsersDedupe string `mapstructure:"users_dedupe"`

	AWS       AWSConfig       `mapstructure:"aws"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AWSConfig configures the S3 client used for s3:// and s3a:// roots.
type AWSConfig struct {
	Region string `mapstructure:"region"`
	// Endpoint overrides the S3 endpoint (minio, localstack).
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// RuntimeConfig controls lake writer resources.
type RuntimeConfig struct {
	// WriteParallelism bounds concurrently encoded partition files.
	WriteParallelism int `mapstructure:"write_parallelism"`
	// RowGroupMB is the Parquet row group size in megabytes.
	RowGroupMB int `mapstructure:"row_group_mb"`
}

// WarehouseConfig configures the optional relational copy of the tables.
type WarehouseConfig struct {
	// Kind selects the storage backend: "", "none", "postgres", "sqlite", "mssql".
	Kind string `mapstructure:"kind"`

	// DSN is passed to the backend driver unchanged.
	DSN string `mapstructure:"dsn"`

	// TablePrefix is prepended to every table name, e.g. "lake_" or "analytics.".
	TablePrefix string `mapstructure:"table_prefix"`

	// AutoCreate drops and re-creates target tables before loading.
	AutoCreate bool `mapstructure:"auto_create"`

	BatchSize int `mapstructure:"batch_size"`
}

// Enabled reports whether a warehouse sink is configured.
func (w WarehouseConfig) Enabled() bool {
	return w.Kind != "" && w.Kind != "none"
}

// MetricsConfig selects and configures the metrics backend.
type MetricsConfig struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string `mapstructure:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	DatadogAddr    string `mapstructure:"datadog_addr"`
	// DatadogTags are applied to every metric, e.g. ["env:prod"].
	DatadogTags []string `mapstructure:"datadog_tags"`
}
