package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"songlake/internal/config"
	"songlake/internal/datasource"
	"songlake/internal/logging"
	"songlake/internal/metrics"
	"songlake/internal/metrics/datadog"
	"songlake/internal/metrics/prompush"
	"songlake/internal/pipeline"
	"songlake/internal/storage"
)

// Swapped in tests.
var (
	openStore    = datasource.Open
	newWarehouse = storage.New
	newLogger    = logging.New
)

func newRunCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the job once",
		Long: `Builds every table from the input root and replaces it under the
output root. When a warehouse is configured the same rows are copied into it
after the lake write succeeds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.load(cmd)
			if err != nil {
				return err
			}
			if err := checkConfig(p, stderr); err != nil {
				return err
			}
			log, err := newLogger(logging.Config{
				Job:     p.Job,
				Level:   g.logLevel,
				Format:  g.logFormat,
				Verbose: g.verbose,
			})
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			sum, err := runJob(cmd.Context(), p, log)
			if err != nil {
				log.Error("run failed", zap.Error(err))
				return err
			}
			fmt.Fprintf(stdout, "songs=%d artists=%d users=%d times=%d song_plays=%d elapsed=%s\n",
				sum.Rows(pipeline.TableSongs), sum.Rows(pipeline.TableArtists), sum.Rows(pipeline.TableUsers),
				sum.Rows(pipeline.TableTimes), sum.Rows(pipeline.TableSongPlays), sum.Elapsed.Truncate(time.Millisecond))
			return nil
		},
	}
}

// runJob opens the stores and runs the pipeline. Metrics are flushed on every
// exit path once a backend is installed.
func runJob(ctx context.Context, p config.Pipeline, log *zap.Logger) (pipeline.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if b := metricsBackend(p, log); b != nil {
		metrics.SetBackend(b)
		defer func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics flush failed", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}()
	}

	var creds config.Credentials
	if p.Credentials != "" {
		c, err := config.LoadCredentials(p.Credentials)
		if err != nil {
			return pipeline.Summary{}, err
		}
		creds = c
		log.Debug("credentials loaded", zap.String("path", p.Credentials), zap.Stringer("credentials", creds))
	}
	opts := datasource.Options{Credentials: creds, AWS: p.AWS}

	in, err := openStore(ctx, p.InputRoot, opts)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("open input_root: %w", err)
	}
	out, err := openStore(ctx, p.OutputRoot, opts)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("open output_root: %w", err)
	}

	popt := pipeline.Options{Logger: log}
	if p.Warehouse.Enabled() {
		repo, err := newWarehouse(ctx, storage.Config{Kind: p.Warehouse.Kind, DSN: p.Warehouse.DSN})
		if err != nil {
			return pipeline.Summary{}, fmt.Errorf("open warehouse: %w", err)
		}
		defer repo.Close()
		popt.Warehouse = repo
	}

	r, err := pipeline.New(p, in, out, popt)
	if err != nil {
		return pipeline.Summary{}, err
	}
	return r.Run(ctx)
}

// metricsBackend returns nil when metrics are disabled or cannot be set up.
// A broken metrics endpoint never fails the run.
func metricsBackend(p config.Pipeline, log *zap.Logger) metrics.Backend {
	m := p.Metrics
	switch m.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(p.Job, m.PushgatewayURL)
		if err != nil {
			log.Warn("metrics: pushgateway backend unavailable; using nop", zap.Error(err))
			return nil
		}
		log.Debug("metrics enabled", zap.String("backend", m.Backend), zap.String("url", m.PushgatewayURL))
		return b
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  "songlake.",
			GlobalTags: append([]string{"job:" + p.Job}, m.DatadogTags...),
		})
		if err != nil {
			log.Warn("metrics: datadog backend unavailable; using nop", zap.Error(err))
			return nil
		}
		log.Debug("metrics enabled", zap.String("backend", m.Backend), zap.String("addr", m.DatadogAddr))
		return b
	case "", "none":
		log.Debug("metrics disabled")
		return nil
	default:
		log.Warn("metrics: unknown backend; metrics disabled", zap.String("backend", m.Backend))
		return nil
	}
}
