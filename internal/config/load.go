package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override config keys,
// e.g. SONGLAKE_OUTPUT_ROOT or SONGLAKE_WAREHOUSE_DSN.
const EnvPrefix = "SONGLAKE"

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// ConfigFile is an optional yaml/json/toml file.
	ConfigFile string
	// EnvFile is an optional dotenv file loaded into the process environment
	// before env binding. A missing file is ignored.
	EnvFile string
	// Flags are bound to config keys via FlagKeys when present.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"job":              "job",
	"input-root":       "input_root",
	"output-root":      "output_root",
	"credentials":      "credentials",
	"time-zone":        "time_zone",
	"on-bad-record":    "on_bad_record",
	"unmatched-output": "unmatched_output",
	"metrics-backend":  "metrics.backend",
	"pushgateway-url":  "metrics.pushgateway_url",
	"warehouse-kind":   "warehouse.kind",
	"warehouse-dsn":    "warehouse.dsn",
}

// SetDefaults registers every known key with its default. Keys must be known
// to viper for AutomaticEnv to apply during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("job", "songlake")
	v.SetDefault("input_root", "")
	v.SetDefault("output_root", "")
	v.SetDefault("credentials", "")
	v.SetDefault("time_zone", "UTC")
	v.SetDefault("on_bad_record", "fail")
	v.SetDefault("unmatched_output", false)
	v.SetDefault("users_dedupe", "")

	v.SetDefault("aws.region", "us-west-2")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.path_style", false)

	v.SetDefault("runtime.write_parallelism", 4)
	v.SetDefault("runtime.row_group_mb", 128)

	v.SetDefault("warehouse.kind", "none")
	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.table_prefix", "")
	v.SetDefault("warehouse.auto_create", false)
	v.SetDefault("warehouse.batch_size", 5000)

	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "http://localhost:9091")
	v.SetDefault("metrics.datadog_addr", "127.0.0.1:8125")
	v.SetDefault("metrics.datadog_tags", []string{})
}

// Load resolves a Pipeline. Precedence, highest first: flags explicitly set,
// SONGLAKE_* env, config file, defaults.
func Load(opts LoadOptions) (Pipeline, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Pipeline{}, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Pipeline{}, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			f := opts.Flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Pipeline{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config: %w", err)
	}
	return p, nil
}
