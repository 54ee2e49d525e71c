package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"songlake/internal/ddl"
	"songlake/internal/metrics"
	"songlake/internal/storage"
	tr "songlake/internal/transformer"
)

const defaultBatchSize = 5000

// sinkTable is one table queued for the warehouse. loaded is -1 until the
// table has been loaded.
type sinkTable struct {
	name   string
	cols   []ddl.ColumnDef
	rows   [][]any
	loaded int64
}

type sinkRows struct {
	cols []ddl.ColumnDef
	rows [][]any
}

func (r *Runner) addSink(name string, s sinkRows) {
	r.sink = append(r.sink, sinkTable{name: name, cols: s.cols, rows: s.rows, loaded: -1})
}

// Warehouse columns mirror the lake tables, partition columns included.
var (
	songsCols = []ddl.ColumnDef{
		{Name: "song_id", Kind: ddl.KindString},
		{Name: "title", Kind: ddl.KindString},
		{Name: "duration", Kind: ddl.KindFloat},
		{Name: "year", Kind: ddl.KindInt},
		{Name: "artist_id", Kind: ddl.KindString},
	}
	artistsCols = []ddl.ColumnDef{
		{Name: "artist_id", Kind: ddl.KindString},
		{Name: "artist_name", Kind: ddl.KindString},
		{Name: "artist_location", Kind: ddl.KindString},
		{Name: "artist_latitude", Kind: ddl.KindFloat, Nullable: true},
		{Name: "artist_longitude", Kind: ddl.KindFloat, Nullable: true},
	}
	usersCols = []ddl.ColumnDef{
		{Name: "userId", Kind: ddl.KindString},
		{Name: "firstName", Kind: ddl.KindString},
		{Name: "lastName", Kind: ddl.KindString},
		{Name: "gender", Kind: ddl.KindString},
		{Name: "level", Kind: ddl.KindString},
	}
	timesCols = []ddl.ColumnDef{
		{Name: "timestamp", Kind: ddl.KindTimestamp},
		{Name: "hour", Kind: ddl.KindInt},
		{Name: "day", Kind: ddl.KindInt},
		{Name: "week", Kind: ddl.KindInt},
		{Name: "weekday", Kind: ddl.KindString},
		{Name: "year", Kind: ddl.KindInt},
		{Name: "month", Kind: ddl.KindInt},
	}
	songPlaysCols = []ddl.ColumnDef{
		{Name: "id", Kind: ddl.KindInt},
		{Name: "timestamp", Kind: ddl.KindTimestamp},
		{Name: "userId", Kind: ddl.KindString},
		{Name: "level", Kind: ddl.KindString},
		{Name: "song_id", Kind: ddl.KindString},
		{Name: "artist_id", Kind: ddl.KindString},
		{Name: "sessionId", Kind: ddl.KindInt},
		{Name: "location", Kind: ddl.KindString},
		{Name: "userAgent", Kind: ddl.KindString},
		{Name: "year", Kind: ddl.KindInt},
		{Name: "month", Kind: ddl.KindInt},
	}
)

func millis(ts int64) time.Time { return time.UnixMilli(ts).UTC() }

// optFloat keeps SQL NULL for absent values.
func optFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func songsSink(in []tr.SongRow) sinkRows {
	rows := make([][]any, len(in))
	for i, s := range in {
		rows[i] = []any{s.SongID, s.Title, s.Duration, s.Year, s.ArtistID}
	}
	return sinkRows{songsCols, rows}
}

func artistsSink(in []tr.ArtistRow) sinkRows {
	rows := make([][]any, len(in))
	for i, a := range in {
		rows[i] = []any{a.ArtistID, a.ArtistName, a.ArtistLocation, optFloat(a.ArtistLatitude), optFloat(a.ArtistLongitude)}
	}
	return sinkRows{artistsCols, rows}
}

func usersSink(in []tr.UserRow) sinkRows {
	rows := make([][]any, len(in))
	for i, u := range in {
		rows[i] = []any{u.UserID, u.FirstName, u.LastName, u.Gender, u.Level}
	}
	return sinkRows{usersCols, rows}
}

func timesSink(in []tr.TimeRow) sinkRows {
	rows := make([][]any, len(in))
	for i, t := range in {
		rows[i] = []any{millis(t.Timestamp), int64(t.Hour), int64(t.Day), int64(t.Week), t.Weekday, int64(t.Year), int64(t.Month)}
	}
	return sinkRows{timesCols, rows}
}

func songPlaysSink(in []tr.SongPlayRow) sinkRows {
	rows := make([][]any, len(in))
	for i, p := range in {
		rows[i] = []any{p.ID, millis(p.Timestamp), p.UserID, p.Level, p.SongID, p.ArtistID, p.SessionID, p.Location, p.UserAgent, int64(p.Year), int64(p.Month)}
	}
	return sinkRows{songPlaysCols, rows}
}

// LoadWarehouse prepares and loads every queued table into the warehouse.
// Target names are table_prefix + table.
func (r *Runner) LoadWarehouse(ctx context.Context) error {
	w := r.cfg.Warehouse
	batch := w.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	for i := range r.sink {
		t := &r.sink[i]
		def := ddl.TableDef{FQN: w.TablePrefix + t.name, Columns: t.cols}
		if err := storage.PrepareTable(ctx, w.Kind, r.repo, def, w.AutoCreate); err != nil {
			return err
		}
		onBatch := func(int64) {
			r.stats.batches.Add(1)
			metrics.RecordBatches(r.cfg.Job, 1)
		}
		n, err := storage.LoadTable(ctx, r.repo, def.FQN, def.ColumnNames(), t.rows, batch, onBatch, r.log)
		metrics.RecordRow(r.cfg.Job, "loaded", n)
		if err != nil {
			return err
		}
		t.loaded = n
		t.rows = nil
		r.log.Info("table loaded", zap.String("table", def.FQN), zap.Int64("rows", n), zap.String("kind", w.Kind))
	}
	return nil
}
