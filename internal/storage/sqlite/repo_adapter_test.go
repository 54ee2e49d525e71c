package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"songlake/internal/ddl"
	"songlake/internal/storage"
)

func newRepo(tb testing.TB) *wrappedRepo {
	tb.Helper()
	r, closeFn, err := NewRepository(context.Background(), Config{DSN: ":memory:"})
	if err != nil {
		tb.Fatalf("open sqlite :memory:: %v", err)
	}
	tb.Cleanup(closeFn)
	return &wrappedRepo{Repository: r}
}

func count(tb testing.TB, r *Repository, table string) int64 {
	tb.Helper()
	var n int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM " + Dialect.QuoteFQN(table)).Scan(&n); err != nil {
		tb.Fatalf("count %s: %v", table, err)
	}
	return n
}

var songsDef = ddl.TableDef{FQN: "lake_songs", Columns: []ddl.ColumnDef{
	{Name: "song_id", Kind: ddl.KindString},
	{Name: "title", Kind: ddl.KindString},
	{Name: "duration", Kind: ddl.KindFloat},
	{Name: "year", Kind: ddl.KindInt},
	{Name: "start_time", Kind: ddl.KindTimestamp, Nullable: true},
}}

// TestSQLiteStorageRegistrationUsesNewRepositoryHook verifies that the
// "sqlite" backend registered in init() uses the newRepository hook and that
// wrappedRepo delegates Close.
func TestSQLiteStorageRegistrationUsesNewRepositoryHook(t *testing.T) {
	origNewRepository := newRepository
	defer func() { newRepository = origNewRepository }()

	var (
		gotCfg Config
		closed bool
	)
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: "file:test.db?mode=memory"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	if gotCfg.DSN != "file:test.db?mode=memory" {
		t.Fatalf("DSN = %q", gotCfg.DSN)
	}
	repo.Close()
	if !closed {
		t.Fatalf("Close did not call closeFn")
	}
}

func TestPrepareAndCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRepo(t)

	if err := storage.PrepareTable(ctx, "sqlite", r, songsDef, true); err != nil {
		t.Fatalf("PrepareTable(recreate): %v", err)
	}
	rows := [][]any{
		{"SOXXX", "Fix You", 294.05, int64(2005), time.UnixMilli(1541990258796).UTC()},
		{"SOYYY", "Intro", 100.5, int64(0), nil},
	}
	n, err := r.CopyFrom(ctx, songsDef.FQN, songsDef.ColumnNames(), rows)
	if err != nil || n != 2 {
		t.Fatalf("CopyFrom = %d, %v", n, err)
	}
	if got := count(t, r.Repository, songsDef.FQN); got != 2 {
		t.Fatalf("count = %d", got)
	}

	var title string
	var dur float64
	if err := r.db.QueryRow(`SELECT "title", "duration" FROM "lake_songs" WHERE "song_id" = ?`, "SOXXX").Scan(&title, &dur); err != nil {
		t.Fatalf("select: %v", err)
	}
	if title != "Fix You" || dur != 294.05 {
		t.Fatalf("row = %q %v", title, dur)
	}

	// A second run without recreate keeps the table but none of its rows.
	if err := storage.PrepareTable(ctx, "sqlite", r, songsDef, false); err != nil {
		t.Fatalf("PrepareTable(truncate): %v", err)
	}
	if got := count(t, r.Repository, songsDef.FQN); got != 0 {
		t.Fatalf("count after truncate = %d", got)
	}
}

func TestCopyFrom_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRepo(t)
	if err := storage.PrepareTable(ctx, "sqlite", r, songsDef, true); err != nil {
		t.Fatalf("PrepareTable: %v", err)
	}

	tests := []struct {
		name    string
		columns []string
		rows    [][]any
		want    string
	}{
		{name: "no_columns", rows: [][]any{{1}}, want: "columns must not be empty"},
		{name: "short_row", columns: []string{"song_id", "title"}, rows: [][]any{{"a"}}, want: "row length 1 != columns length 2"},
		{name: "not_null", columns: []string{"song_id", "title", "duration", "year"}, rows: [][]any{{"a", nil, 1.0, int64(1)}}, want: "insert"},
	}
	for _, tc := range tests {
		if _, err := r.CopyFrom(ctx, songsDef.FQN, tc.columns, tc.rows); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err = %v, want %q", tc.name, err, tc.want)
		}
	}
	// Failed batches are rolled back.
	if got := count(t, r.Repository, songsDef.FQN); got != 0 {
		t.Fatalf("count after failures = %d", got)
	}
}

func TestLoadTable_FileDB(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "sparkify.db")
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()

	if err := storage.PrepareTable(ctx, "sqlite", repo, songsDef, true); err != nil {
		t.Fatalf("PrepareTable: %v", err)
	}
	rows := make([][]any, 250)
	for i := range rows {
		rows[i] = []any{"S", "t", 1.5, int64(i), nil}
	}
	n, err := storage.LoadTable(ctx, repo, songsDef.FQN, songsDef.ColumnNames(), rows, 100, nil, nil)
	if err != nil || n != 250 {
		t.Fatalf("LoadTable = %d, %v", n, err)
	}
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()
	if _, _, err := NewRepository(context.Background(), Config{}); err == nil {
		t.Fatalf("empty DSN accepted")
	}
}
