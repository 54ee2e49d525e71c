// Package lake writes and reads tables as Hive-partitioned Parquet file sets
// on a datasource.Store.
//
// A table lives under "<name>/" with one file per partition directory:
//
//	songs/year=2018/artist_id=ARXXX/part-00000-<uuid>.snappy.parquet
//	songs/_SUCCESS
//
// Partition columns are encoded in the path only. Write always replaces the
// whole table directory; _SUCCESS is written last.
package lake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"songlake/internal/datasource"
)

// SuccessMarker is the empty object written after every file of a table.
const SuccessMarker = "_SUCCESS"

const fileSuffix = ".snappy.parquet"

// Table binds a row type to its on-disk layout. Partition returns the row's
// partition values in PartitionBy order; Assign sets a partition column on a
// row read back from disk. Both may be nil for unpartitioned tables.
type Table[T any] struct {
	Name        string
	PartitionBy []string
	Partition   func(*T) []string
	Assign      func(row *T, col, val string) error
}

// Options tune Write.
type Options struct {
	Parallelism int // concurrent file encodes/uploads, or reads in ReadWith; 0 means 4
	RowGroupMB  int // parquet row group size; 0 means 128
	Logger      *zap.Logger
}

// Result summarizes one table write.
type Result struct {
	Table      string
	Rows       int
	Files      int
	Partitions int
	Bytes      int64
	Elapsed    time.Duration
}

// newUUID is swapped in tests for stable file names.
var newUUID = func() string { return uuid.NewString() }

type group[T any] struct {
	dir  string
	rows []T
}

func (t Table[T]) groups(rows []T) ([]group[T], error) {
	if len(t.PartitionBy) == 0 {
		if len(rows) == 0 {
			return nil, nil
		}
		return []group[T]{{rows: rows}}, nil
	}
	if t.Partition == nil {
		return nil, fmt.Errorf("lake: table %s is partitioned but has no Partition func", t.Name)
	}
	byDir := map[string]int{}
	var out []group[T]
	for i := range rows {
		vals := t.Partition(&rows[i])
		if len(vals) != len(t.PartitionBy) {
			return nil, fmt.Errorf("lake: table %s: row %d has %d partition values, want %d", t.Name, i, len(vals), len(t.PartitionBy))
		}
		dir := PartitionPath(t.PartitionBy, vals)
		gi, ok := byDir[dir]
		if !ok {
			gi = len(out)
			byDir[dir] = gi
			out = append(out, group[T]{dir: dir})
		}
		out[gi].rows = append(out[gi].rows, rows[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].dir < out[j].dir })
	return out, nil
}

// Write replaces table t in store with rows.
func Write[T any](ctx context.Context, store datasource.Store, t Table[T], rows []T, opt Options) (Result, error) {
	start := time.Now()
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	res := Result{Table: t.Name, Rows: len(rows)}

	groups, err := t.groups(rows)
	if err != nil {
		return res, err
	}
	if err := store.RemoveAll(ctx, t.Name); err != nil {
		return res, fmt.Errorf("lake: clear %s: %w", t.Name, err)
	}

	par := opt.parallelism()
	rowGroup := int64(opt.RowGroupMB)
	if rowGroup <= 0 {
		rowGroup = 128
	}

	job := newUUID()
	sizes := make([]int64, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(par)
	for i := range groups {
		i := i
		g.Go(func() error {
			name := fmt.Sprintf("part-%05d-%s%s", i, job, fileSuffix)
			key := datasource.Join(t.Name, groups[i].dir, name)
			data, err := encode(groups[i].rows, rowGroup<<20)
			if err != nil {
				return fmt.Errorf("lake: encode %s: %w", key, err)
			}
			if err := store.Put(gctx, key, bytes.NewReader(data)); err != nil {
				return err
			}
			sizes[i] = int64(len(data))
			log.Debug("wrote file", zap.String("key", key), zap.Int("rows", len(groups[i].rows)), zap.Int("bytes", len(data)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if err := store.Put(ctx, datasource.Join(t.Name, SuccessMarker), bytes.NewReader(nil)); err != nil {
		return res, err
	}

	res.Files = len(groups)
	if len(t.PartitionBy) > 0 {
		res.Partitions = len(groups)
	}
	for _, s := range sizes {
		res.Bytes += s
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func encode[T any](rows []T, rowGroupBytes int64) ([]byte, error) {
	var buf bytes.Buffer
	pw, err := writer.NewParquetWriterFromWriter(&buf, new(T), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	pw.RowGroupSize = rowGroupBytes
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Files lists the data files of table name, relative to the store root.
func Files(ctx context.Context, store datasource.Store, name string) ([]string, error) {
	keys, err := store.List(ctx, name+"/")
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		base := path.Base(k)
		if strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") || !strings.HasSuffix(base, ".parquet") {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func (o Options) parallelism() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	return 4
}

// Read is ReadWith with default Options.
func Read[T any](ctx context.Context, store datasource.Store, t Table[T]) ([]T, error) {
	return ReadWith(ctx, store, t, Options{})
}

// ReadWith loads every row of table t, restoring partition columns from the
// directory names. At most opt.Parallelism files are read at once; rows come
// back in file order.
func ReadWith[T any](ctx context.Context, store datasource.Store, t Table[T], opt Options) ([]T, error) {
	files, err := Files(ctx, store, t.Name)
	if err != nil {
		return nil, fmt.Errorf("lake: list %s: %w", t.Name, err)
	}

	parts := make([][]T, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.parallelism())
	for i, key := range files {
		i, key := i, key
		g.Go(func() error {
			rows, err := readFile[T](gctx, store, key)
			if err != nil {
				return fmt.Errorf("lake: read %s: %w", key, err)
			}
			if len(t.PartitionBy) > 0 && t.Assign != nil {
				rel := strings.TrimPrefix(key, t.Name+"/")
				pv := ParsePartitionPath(rel)
				for _, col := range t.PartitionBy {
					val, ok := pv[col]
					if !ok {
						return fmt.Errorf("lake: read %s: missing partition column %s", key, col)
					}
					for r := range rows {
						if err := t.Assign(&rows[r], col, val); err != nil {
							return fmt.Errorf("lake: read %s: partition %s=%q: %w", key, col, val, err)
						}
					}
				}
			}
			parts[i] = rows
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

func readFile[T any](ctx context.Context, store datasource.Store, key string) ([]T, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	pf := buffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(pf, new(T), 1)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()
	n := int(pr.GetNumRows())
	rows := make([]T, n)
	if n == 0 {
		return rows, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}
