// Package pipeline runs the two transforms of a songlake job.
//
// The song-catalog transform reads song_data and writes the songs and
// artists tables. The event-log transform reads log_data, keeps NextSong
// events, writes users and times, re-reads songs from the output store and
// joins on exact (title, duration) to produce song_plays. When a warehouse
// is configured every table is then loaded into it.
//
// Stages run in that order in one control flow; concurrency lives inside
// input reading and the lake writer.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"songlake/internal/config"
	"songlake/internal/datasource"
	"songlake/internal/lake"
	"songlake/internal/metrics"
	"songlake/internal/schema"
	"songlake/internal/storage"
	tr "songlake/internal/transformer"
)

// Options carry the collaborators of a Runner.
type Options struct {
	Logger *zap.Logger
	// Warehouse receives a copy of every table when non-nil.
	Warehouse storage.Repository
}

// Runner executes one job. A Runner is single use.
type Runner struct {
	cfg     config.Pipeline
	in      datasource.Store
	out     datasource.Store
	repo    storage.Repository
	log     *zap.Logger
	loc     *time.Location
	stats   counters
	rejects *errAgg
	inputs  map[string][]string // source -> keys, resolved before any write
	results []lake.Result
	sink    []sinkTable
}

// New validates the parts of cfg the Runner depends on and returns a Runner
// reading from in and writing to out.
func New(cfg config.Pipeline, in, out datasource.Store, opt Options) (*Runner, error) {
	if in == nil || out == nil {
		return nil, fmt.Errorf("pipeline: input and output stores are required")
	}
	loc := time.UTC
	if tz := cfg.TimeZone; tz != "" && tz != "UTC" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("pipeline: time zone %q: %w", tz, err)
		}
		loc = l
	}
	switch cfg.OnBadRecord {
	case "":
		cfg.OnBadRecord = policyFail
	case policyFail, policySkip:
	default:
		return nil, fmt.Errorf("pipeline: on_bad_record must be fail or skip, got %q", cfg.OnBadRecord)
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		in:      in,
		out:     out,
		repo:    opt.Warehouse,
		log:     log,
		loc:     loc,
		rejects: newErrAgg(maxLoggedRejects),
	}, nil
}

func (r *Runner) parallelism() int {
	if n := r.cfg.Runtime.WriteParallelism; n > 0 {
		return n
	}
	return 4
}

// Run resolves the input files, then executes song_data, then log_data, then
// the optional warehouse load. Missing input fails the run before the output
// store is touched.
// The Summary reflects whatever completed, also on error.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	r.log.Info("run start",
		zap.String("input_root", r.in.URI()),
		zap.String("output_root", r.out.URI()),
		zap.String("time_zone", r.loc.String()),
		zap.String("on_bad_record", r.cfg.OnBadRecord),
	)

	if err := r.step(ctx, "input", r.resolveInputs); err != nil {
		return r.summary(start), err
	}
	stages := []stage{
		{"song_data", r.ProcessSongData},
		{"log_data", r.ProcessLogData},
	}
	if r.repo != nil {
		stages = append(stages, stage{"warehouse", r.LoadWarehouse})
	}
	for _, s := range stages {
		if err := r.step(ctx, s.name, s.fn); err != nil {
			return r.summary(start), err
		}
	}

	if n, first, kinds := r.rejects.snapshot(); n > 0 {
		r.log.Warn("bad records skipped", zap.Int("count", n), zap.Int("distinct_errors", kinds), zap.Strings("first", first))
	}
	sum := r.summary(start)
	r.log.Info("run complete", sum.Fields()...)
	return sum, nil
}

type stage struct {
	name string
	fn   func(context.Context) error
}

func (r *Runner) step(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	r.log.Info("stage start", zap.String("stage", name))
	err := fn(ctx)
	d := time.Since(start)
	metrics.RecordStep(r.cfg.Job, name, err, d)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	r.log.Info("stage done", zap.String("stage", name), zap.Duration("elapsed", d))
	return nil
}

func (r *Runner) summary(start time.Time) Summary {
	s := Summary{
		SongsRead:   r.stats.songsRead.Load(),
		EventsRead:  r.stats.eventsRead.Load(),
		Rejected:    r.stats.rejected.Load(),
		Filtered:    r.stats.filtered.Load(),
		JoinDropped: r.stats.joinDropped.Load(),
		Batches:     r.stats.batches.Load(),
		Tables:      append([]lake.Result(nil), r.results...),
		Elapsed:     time.Since(start),
	}
	for _, t := range r.sink {
		if t.loaded >= 0 {
			if s.Loaded == nil {
				s.Loaded = map[string]int64{}
			}
			s.Loaded[t.name] = t.loaded
		}
	}
	return s
}

// ProcessSongData reads song_data and writes songs and artists.
func (r *Runner) ProcessSongData(ctx context.Context) error {
	before := r.stats.rejected.Load()
	songs, err := readAll(ctx, r, "song_data", SongDataPattern, schema.DecodeSong, &r.stats.songsRead)
	if err != nil {
		return err
	}
	metrics.RecordRow(r.cfg.Job, "read", int64(len(songs)))
	metrics.RecordRow(r.cfg.Job, "schema_rejected", r.stats.rejected.Load()-before)

	songRows := tr.Songs(songs)
	if err := writeTable(ctx, r, SongsTable, songRows); err != nil {
		return err
	}
	artistRows := tr.Artists(songs)
	if err := writeTable(ctx, r, ArtistsTable, artistRows); err != nil {
		return err
	}
	if r.repo != nil {
		r.addSink(TableSongs, songsSink(songRows))
		r.addSink(TableArtists, artistsSink(artistRows))
	}
	return nil
}

// ProcessLogData reads log_data and writes users, times and song_plays, plus
// unmatched_plays when enabled. songs must already be in the output store.
func (r *Runner) ProcessLogData(ctx context.Context) error {
	before := r.stats.rejected.Load()
	events, err := readAll(ctx, r, "log_data", LogDataPattern, schema.DecodeEvent, &r.stats.eventsRead)
	if err != nil {
		return err
	}
	read := len(events)
	metrics.RecordRow(r.cfg.Job, "read", int64(read))
	metrics.RecordRow(r.cfg.Job, "schema_rejected", r.stats.rejected.Load()-before)

	events = tr.Chain[schema.Event]{tr.NextSong()}.Apply(events)
	filtered := int64(read - len(events))
	r.stats.filtered.Add(filtered)
	metrics.RecordRow(r.cfg.Job, "filtered", filtered)
	r.log.Info("filtered events", zap.Int("read", read), zap.Int("next_song", len(events)))

	userRows := tr.Users(events, r.cfg.UsersDedupe)
	if err := writeTable(ctx, r, UsersTable, userRows); err != nil {
		return err
	}
	timeRows := tr.Times(events, r.loc)
	if err := writeTable(ctx, r, TimesTable, timeRows); err != nil {
		return err
	}

	songs, err := lake.ReadWith(ctx, r.out, SongsTable, lake.Options{Parallelism: r.parallelism()})
	if err != nil {
		return fmt.Errorf("re-read songs: %w", err)
	}
	ix := tr.NewSongIndex(songs)
	r.log.Info("song index built", zap.Int("songs", ix.Len()))

	plays, misses := tr.SongPlays(events, ix, r.loc)
	r.stats.joinDropped.Add(int64(len(misses)))
	metrics.RecordRow(r.cfg.Job, "join_dropped", int64(len(misses)))
	if len(misses) > 0 {
		r.log.Info("join misses dropped",
			zap.Int("count", len(misses)),
			zap.String("first_song", misses[0].Song),
			zap.String("first_artist", misses[0].Artist),
		)
	}
	if err := writeTable(ctx, r, SongPlaysTable, plays); err != nil {
		return err
	}
	if r.cfg.UnmatchedOutput {
		if err := writeTable(ctx, r, UnmatchedTable, tr.Unmatched(misses, r.loc)); err != nil {
			return err
		}
	}

	if r.repo != nil {
		r.addSink(TableUsers, usersSink(userRows))
		r.addSink(TableTimes, timesSink(timeRows))
		r.addSink(TableSongPlays, songPlaysSink(plays))
	}
	return nil
}

func writeTable[T any](ctx context.Context, r *Runner, t lake.Table[T], rows []T) error {
	start := time.Now()
	res, err := lake.Write(ctx, r.out, t, rows, lake.Options{
		Parallelism: r.parallelism(),
		RowGroupMB:  r.cfg.Runtime.RowGroupMB,
		Logger:      r.log,
	})
	metrics.RecordStep(r.cfg.Job, "write_"+t.Name, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("write %s: %w", t.Name, err)
	}
	metrics.RecordTable(r.cfg.Job, t.Name, res.Rows, res.Bytes)
	metrics.RecordRow(r.cfg.Job, "written", int64(res.Rows))
	r.results = append(r.results, res)
	r.log.Info("table written",
		zap.String("table", t.Name),
		zap.Int("rows", res.Rows),
		zap.Int("files", res.Files),
		zap.Int("partitions", res.Partitions),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("elapsed", res.Elapsed),
	)
	return nil
}
