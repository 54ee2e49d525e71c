// Package mssql is the SQL Server warehouse backend. Rows are loaded with
// the TDS bulk-copy protocol (go-mssqldb CopyIn), one transaction per batch.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// Config holds MSSQL repository configuration.
type Config struct {
	// DSN is a sqlserver:// URL or ADO-style connection string.
	DSN string
}

// Repository loads warehouse tables into SQL Server.
type Repository struct {
	db       *sql.DB
	database string
}

// NewRepository parses cfg.DSN, connects and pings. The returned func closes
// the connection pool.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("mssql: DSN must not be empty")
	}
	conf, err := msdsn.Parse(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: parse dsn: %w", err)
	}
	db := sql.OpenDB(mssql.NewConnectorConfig(conf))
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mssql: ping %s: %w", conf.Host, err)
	}
	return &Repository{db: db, database: conf.Database}, func() { _ = db.Close() }, nil
}

// bulkOptions takes a table lock; the target was just dropped or emptied and
// nothing else writes to it during a load.
var bulkOptions = mssql.BulkOptions{Tablock: true}

// CopyFrom bulk-copies rows into table and commits. A failed row aborts the
// whole batch.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (n int64, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, bulkOptions, columns...))
	if err != nil {
		return 0, fmt.Errorf("mssql: prepare bulk copy into %s: %w", table, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("mssql: bulk row %d into %s: %w", i, table, err)
		}
	}
	// An Exec without arguments flushes the bulk copy.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mssql: finish bulk copy into %s: %w", table, err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return n, nil
}

// Exec runs one T-SQL batch.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mssql: exec on %s: %w", r.database, err)
	}
	return nil
}
