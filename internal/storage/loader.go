package storage

// This file implements a generic, batched loader that drains rows from a
// channel and invokes a bulk-insert function (CopyFn) per batch.
//
// Backends implement CopyFn with their most efficient primitive (Postgres
// COPY, SQL Server bulk copy, SQLite prepared INSERT in a transaction).
//
// On every successful flush a progress line is logged with running totals
// and rows/sec since the previous flush.

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CopyFn inserts rows (aligned to columns) and returns the number inserted.
// It must cancel promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains rows from in, groups them into batches of batchSize and
// calls copyFn for each non-empty batch. It returns the total reported by
// copyFn and the first error encountered.
//
// Cancellation: returns (total, ctx.Err()) when canceled.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
	log *zap.Logger,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n

		// Reuse allocated slice; keep capacity to avoid churn.
		batch = batch[:0]

		if err != nil {
			log.Warn("copy failed", zap.Int64("after", n), zap.Int64("total", total), zap.Error(err))
			return err
		}

		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(total-lastTotal) / sinceLast.Seconds()
		}
		log.Debug("batch loaded",
			zap.Int64("batch", batches),
			zap.Float64("rps", rps),
			zap.Int64("inserted", n),
			zap.Int64("total_inserted", total),
			zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)),
		)
		lastFlushTS = now
		lastTotal = total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// LoadTable streams rows into table through repo in batches of batchSize.
// onBatch, when set, is called once per successful batch with its row count.
func LoadTable(
	ctx context.Context,
	repo Repository,
	table string,
	columns []string,
	rows [][]any,
	batchSize int,
	onBatch func(n int64),
	log *zap.Logger,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if log == nil {
		log = zap.NewNop()
	}
	g, gctx := errgroup.WithContext(ctx)
	in := make(chan []any, batchSize)
	g.Go(func() error {
		defer close(in)
		for _, r := range rows {
			select {
			case in <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var total int64
	g.Go(func() error {
		copyFn := func(ctx context.Context, cols []string, batch [][]any) (int64, error) {
			n, err := repo.CopyFrom(ctx, table, cols, batch)
			if err == nil && onBatch != nil {
				onBatch(n)
			}
			return n, err
		}
		n, err := LoadBatches(gctx, columns, in, batchSize, copyFn, log.With(zap.String("table", table)))
		total = n
		return err
	})
	if err := g.Wait(); err != nil {
		return total, fmt.Errorf("load %s: %w", table, err)
	}
	return total, nil
}
