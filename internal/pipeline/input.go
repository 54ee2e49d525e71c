package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"songlake/internal/datasource"
	ndjson "songlake/internal/parser/json"
)

// Input layouts below the input root.
const (
	SongDataPattern = "song_data/*/*/*/*.json"
	LogDataPattern  = "log_data/*/*/*.json"
)

const (
	policyFail = "fail"
	policySkip = "skip"
)

// ErrNoInput reports an input layout that matched no files. The run stops
// before any table is written, so the previous output stays in place.
var ErrNoInput = errors.New("pipeline: no input files")

// resolveInputs globs both input layouts and fails if either is empty.
func (r *Runner) resolveInputs(ctx context.Context) error {
	r.inputs = make(map[string][]string, 2)
	for _, in := range []struct{ source, pattern string }{
		{"song_data", SongDataPattern},
		{"log_data", LogDataPattern},
	} {
		keys, err := datasource.Glob(ctx, r.in, in.pattern)
		if err != nil {
			return fmt.Errorf("list %s: %w", in.source, err)
		}
		if len(keys) == 0 {
			return fmt.Errorf("%w: %s matched nothing under %s", ErrNoInput, in.pattern, r.in.URI())
		}
		r.inputs[in.source] = keys
	}
	return nil
}

// decodeFunc maps one raw JSON object to a typed record.
type decodeFunc[T any] func(rec map[string]any) (T, error)

// readAll decodes every file matching pattern. Files are read concurrently
// but records come back in file order, then line order, so downstream
// tiebreaks on input position are stable.
//
// Lines that are not JSON objects or do not match the declared schema are
// fatal under on_bad_record=fail; under skip they are counted and the first
// few are logged.
func readAll[T any](ctx context.Context, r *Runner, source, pattern string, decode decodeFunc[T], read *atomic.Int64) ([]T, error) {
	keys, ok := r.inputs[source]
	if !ok {
		var err error
		if keys, err = datasource.Glob(ctx, r.in, pattern); err != nil {
			return nil, fmt.Errorf("list %s: %w", source, err)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s matched nothing under %s", ErrNoInput, pattern, r.in.URI())
	}
	r.log.Info("reading input", zap.String("source", source), zap.String("root", r.in.URI()), zap.Int("files", len(keys)))

	parts := make([][]T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism())
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			recs, err := readFile(gctx, r, key, decode)
			if err != nil {
				return err
			}
			parts[i] = recs
			read.Add(int64(len(recs)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []T
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

func readFile[T any](ctx context.Context, r *Runner, key string, decode decodeFunc[T]) ([]T, error) {
	rc, err := r.in.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var out []T
	onBad := func(le *ndjson.LineError) error { return r.badRecord(key, le) }
	err = ndjson.Stream(ctx, rc, func(line int, rec ndjson.Record) error {
		v, err := decode(rec)
		if err != nil {
			return onBad(&ndjson.LineError{Line: line, Err: err})
		}
		out = append(out, v)
		return nil
	}, onBad)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// badRecord applies on_bad_record to a rejected line.
func (r *Runner) badRecord(key string, le *ndjson.LineError) error {
	if r.cfg.OnBadRecord != policySkip {
		return fmt.Errorf("%s: %w", key, le)
	}
	r.stats.rejected.Add(1)
	if r.rejects.add(le.Err.Error(), fmt.Sprintf("%s: %v", key, le)) {
		r.log.Warn("skipping bad record", zap.String("key", key), zap.Int("line", le.Line), zap.Error(le.Err))
	}
	return nil
}
