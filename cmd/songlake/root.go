package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"songlake/internal/config"
	"songlake/internal/storage"

	// register local and s3 stores with the datasource factory.
	_ "songlake/internal/datasource/file"
	_ "songlake/internal/datasource/s3"

	// register all warehouse backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "songlake/internal/storage/all"
)

var (
	// Version of this software, filled in by ldflags.
	Version = "v0.0.0"
	// BuildTime of this software, filled in by ldflags.
	BuildTime = "not recorded"
)

// errInvalidConfig is returned after issues have been printed.
var errInvalidConfig = errors.New("configuration is invalid")

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
	verbose    bool
	logLevel   string
	logFormat  string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.configFile, "config", "", "config file (yaml, json or toml)")
	fs.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before SONGLAKE_* env binding; missing is ignored")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "console logs at debug level")
	fs.StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&g.logFormat, "log-format", "json", "log format (json or console)")

	fs.String("job", "songlake", "job name used in logs and metrics")
	fs.String("input-root", "", "root holding song_data/ and log_data/ (path or s3a:// URI)")
	fs.String("output-root", "", "root receiving one directory per table (path or s3a:// URI)")
	fs.String("credentials", "", "key-value file with AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
	fs.String("time-zone", "UTC", "IANA zone for hour, day, week, month, year and weekday")
	fs.String("on-bad-record", "fail", "fail or skip records that do not match the input schema")
	fs.Bool("unmatched-output", false, "also write events without a matching song to unmatched_plays/")
	fs.String("metrics-backend", "none", "metrics backend (none, pushgateway, datadog)")
	fs.String("pushgateway-url", "http://localhost:9091", "Pushgateway base URL")
	fs.String("warehouse-kind", "none", "warehouse backend ("+strings.Join(append([]string{"none"}, storage.ListKinds()...), ", ")+")")
	fs.String("warehouse-dsn", "", "warehouse connection string")
}

func (g *globalFlags) load(cmd *cobra.Command) (config.Pipeline, error) {
	return config.Load(config.LoadOptions{
		ConfigFile: g.configFile,
		EnvFile:    g.envFile,
		Flags:      cmd.Flags(),
	})
}

// newRootCommand wires the subcommands. The root command itself runs the job.
func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	rc := &cobra.Command{
		Use:   "songlake",
		Short: "songlake - song play analytics tables from raw JSON",
		Long: `Reads song metadata (song_data/) and listening events (log_data/),
builds the songs, artists, users, times and song_plays tables and writes
them as Hive-partitioned Parquet under the output root.

Version: ` + Version + `
Build Time: ` + BuildTime + "\n",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	g.register(rc.PersistentFlags())

	run := newRunCommand(g, stdout, stderr)
	rc.RunE = run.RunE

	rc.AddCommand(run)
	rc.AddCommand(newValidateCommand(g, stdout, stderr))
	rc.AddCommand(newKindsCommand(stdout))
	return rc
}

// checkConfig prints every issue and fails when any is an error.
func checkConfig(p config.Pipeline, stderr io.Writer) error {
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errInvalidConfig
	}
	return nil
}

func newValidateCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration and exit",
		Long: `Resolves configuration from defaults, the config file, SONGLAKE_*
environment variables and flags, then reports every issue found.
Exits non-zero when any issue is an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.load(cmd)
			if err != nil {
				return err
			}
			if err := checkConfig(p, stderr); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "configuration is valid: input_root=%s output_root=%s warehouse=%s\n",
				p.InputRoot, p.OutputRoot, p.Warehouse.Kind)
			return nil
		},
	}
}

func newKindsCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the compiled-in warehouse backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range storage.ListKinds() {
				fmt.Fprintln(stdout, k)
			}
			return nil
		},
	}
}
