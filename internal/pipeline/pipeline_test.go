package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"songlake/internal/config"
	"songlake/internal/datasource/file"
	"songlake/internal/lake"
	"songlake/internal/schema"
	"songlake/internal/storage"
	_ "songlake/internal/storage/sqlite"
	tr "songlake/internal/transformer"
)

const (
	songFixYou = `{"num_songs":1,"artist_id":"ARXXX","artist_latitude":null,"artist_longitude":null,"artist_location":"London","artist_name":"Coldplay","song_id":"SOXXX","title":"Fix You","duration":294.05,"year":2005}`
	songYellow = `{"num_songs":1,"artist_id":"AR/Y","artist_latitude":51.5,"artist_longitude":-0.12,"artist_location":"","artist_name":"Yellow Band","song_id":"SOYYY","title":"Yellow","duration":266.77,"year":0}`

	evFixYou = `{"artist":"Coldplay","auth":"Logged In","firstName":"Jacob","gender":"M","itemInSession":0,"lastName":"Klein","length":294.05,"level":"paid","location":"Tampa","method":"PUT","page":"NextSong","registration":1540558108796.0,"sessionId":518,"song":"Fix You","status":200,"ts":1541990258796,"userAgent":"Mozilla","userId":"26"}`
	evYellow = `{"artist":"Yellow Band","auth":"Logged In","firstName":"Ryan","gender":"M","itemInSession":1,"lastName":"Smith","length":266.77,"level":"free","location":"SF","method":"PUT","page":"NextSong","registration":null,"sessionId":583,"song":"Yellow","status":200,"ts":1541990300000,"userAgent":"Mozilla","userId":26}`
	evMiss   = `{"artist":"Nobody","auth":"Logged In","firstName":"Ann","gender":"F","itemInSession":2,"lastName":"Lee","length":100.5,"level":"free","location":"NY","method":"PUT","page":"NextSong","registration":null,"sessionId":9,"song":"Nope","status":200,"ts":1543622400000,"userAgent":"Mozilla","userId":"10"}`
	evHome   = `{"artist":null,"auth":"Logged In","firstName":"Ann","gender":"F","itemInSession":3,"lastName":"Lee","length":null,"level":"free","location":"NY","method":"GET","page":"Home","registration":null,"sessionId":9,"song":null,"status":200,"ts":1543622401000,"userAgent":"Mozilla","userId":"10"}`
)

func writeFile(t *testing.T, root, rel string, lines ...string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

// fixture lays out song_data and log_data under a fresh input root.
func fixture(t *testing.T) (in, out string) {
	t.Helper()
	in, out = t.TempDir(), t.TempDir()
	writeFile(t, in, "song_data/A/A/A/TRAAAXX.json", songFixYou)
	writeFile(t, in, "song_data/A/B/C/TRABCYY.json", songYellow)
	writeFile(t, in, "song_data/README.json", `{"ignored":true}`)
	writeFile(t, in, "log_data/2018/11/2018-11-12-events.json", evFixYou, "", evYellow)
	writeFile(t, in, "log_data/2018/12/2018-12-01-events.json", evMiss, evHome)
	return in, out
}

func baseConfig() config.Pipeline {
	return config.Pipeline{Job: "sparkify", TimeZone: "UTC", OnBadRecord: "fail"}
}

func newRunner(t *testing.T, cfg config.Pipeline, in, out string, opt Options) *Runner {
	t.Helper()
	r, err := New(cfg, file.NewLocal(in), file.NewLocal(out), opt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	in, out := fixture(t)
	cfg := baseConfig()
	cfg.UnmatchedOutput = true
	sum, err := newRunner(t, cfg, in, out, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.SongsRead != 2 || sum.EventsRead != 4 || sum.Filtered != 1 || sum.JoinDropped != 1 || sum.Rejected != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	for table, want := range map[string]int{
		TableSongs: 2, TableArtists: 2, TableUsers: 3, TableTimes: 3, TableSongPlays: 2, TableUnmatched: 1,
	} {
		if got := sum.Rows(table); got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}

	for _, dir := range []string{
		"songs/year=2005/artist_id=ARXXX",
		"songs/year=0/artist_id=AR%2FY",
		"times/year=2018/month=11",
		"times/year=2018/month=12",
		"song_plays/year=2018/month=11",
		"unmatched_plays/year=2018/month=12",
		"artists/" + lake.SuccessMarker,
		"song_plays/" + lake.SuccessMarker,
	} {
		if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(dir))); err != nil {
			t.Errorf("missing %s: %v", dir, err)
		}
	}

	ctx := context.Background()
	store := file.NewLocal(out)
	plays, err := lake.Read(ctx, store, SongPlaysTable)
	if err != nil {
		t.Fatalf("read song_plays: %v", err)
	}
	sort.Slice(plays, func(i, j int) bool { return plays[i].Timestamp < plays[j].Timestamp })
	want := tr.SongPlayRow{
		ID: 1, Timestamp: 1541990258796, UserID: "26", Level: "paid", SongID: "SOXXX", ArtistID: "ARXXX",
		SessionID: 518, Location: "Tampa", UserAgent: "Mozilla", Year: 2018, Month: 11,
	}
	if len(plays) != 2 || plays[0] != want {
		t.Fatalf("song_plays = %+v", plays)
	}
	if plays[1].SongID != "SOYYY" || plays[1].ArtistID != "AR/Y" || plays[1].UserID != "26" || plays[1].ID != 1 {
		t.Fatalf("second play = %+v", plays[1])
	}

	songs, err := lake.Read(ctx, store, SongsTable)
	if err != nil {
		t.Fatalf("read songs: %v", err)
	}
	sort.Slice(songs, func(i, j int) bool { return songs[i].SongID < songs[j].SongID })
	if songs[0] != (tr.SongRow{SongID: "SOXXX", Title: "Fix You", Duration: 294.05, Year: 2005, ArtistID: "ARXXX"}) {
		t.Fatalf("songs[0] = %+v", songs[0])
	}

	times, err := lake.Read(ctx, store, TimesTable)
	if err != nil {
		t.Fatalf("read times: %v", err)
	}
	var fix tr.TimeRow
	for _, tm := range times {
		if tm.Timestamp == 1541990258796 {
			fix = tm
		}
	}
	if fix.Hour != 2 || fix.Weekday != "Monday" || fix.Year != 2018 || fix.Month != 11 || fix.Day != 12 || fix.Week != 46 {
		t.Fatalf("Fix You time row = %+v", fix)
	}

	unmatched, err := lake.Read(ctx, store, UnmatchedTable)
	if err != nil {
		t.Fatalf("read unmatched: %v", err)
	}
	if len(unmatched) != 1 || unmatched[0].Song != "Nope" || unmatched[0].Month != 12 {
		t.Fatalf("unmatched = %+v", unmatched)
	}
}

func TestRun_OverwritesPreviousOutput(t *testing.T) {
	t.Parallel()

	in, out := fixture(t)
	writeFile(t, out, "song_plays/year=1999/month=1/part-00000-old.snappy.parquet", "stale")
	if _, err := newRunner(t, baseConfig(), in, out, Options{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "song_plays", "year=1999")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale partition survived: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, TableUnmatched)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unmatched_plays written while disabled: %v", err)
	}
}

// lakeTables holds the read-back contents of every lake table.
type lakeTables struct {
	Songs     []tr.SongRow
	Artists   []tr.ArtistRow
	Users     []tr.UserRow
	Times     []tr.TimeRow
	SongPlays []tr.SongPlayRow
}

// snapshot reads every lake table under out, sorted so file order does not
// matter.
func snapshot(t *testing.T, out string) lakeTables {
	t.Helper()
	ctx := context.Background()
	store := file.NewLocal(out)
	var lt lakeTables
	var err error
	check := func(table string) {
		if err != nil {
			t.Fatalf("read %s: %v", table, err)
		}
	}
	lt.Songs, err = lake.Read(ctx, store, SongsTable)
	check(TableSongs)
	lt.Artists, err = lake.Read(ctx, store, ArtistsTable)
	check(TableArtists)
	lt.Users, err = lake.Read(ctx, store, UsersTable)
	check(TableUsers)
	lt.Times, err = lake.Read(ctx, store, TimesTable)
	check(TableTimes)
	lt.SongPlays, err = lake.Read(ctx, store, SongPlaysTable)
	check(TableSongPlays)

	sort.Slice(lt.Songs, func(i, j int) bool { return lt.Songs[i].SongID < lt.Songs[j].SongID })
	sort.Slice(lt.Artists, func(i, j int) bool { return lt.Artists[i].ArtistID < lt.Artists[j].ArtistID })
	sort.Slice(lt.Users, func(i, j int) bool {
		a, b := lt.Users[i], lt.Users[j]
		return a.UserID+"/"+a.Level < b.UserID+"/"+b.Level
	})
	sort.Slice(lt.Times, func(i, j int) bool { return lt.Times[i].Timestamp < lt.Times[j].Timestamp })
	sort.Slice(lt.SongPlays, func(i, j int) bool { return lt.SongPlays[i].Timestamp < lt.SongPlays[j].Timestamp })
	return lt
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()

	in, out := fixture(t)
	// Two plays in one window so the ids depend on the ordering rule.
	writeFile(t, in, "log_data/2018/11/2018-11-12-events.json", evFixYou, evYellow, strings.Replace(evFixYou, `"ts":1541990258796`, `"ts":1541990400000`, 1))

	var runs []lakeTables
	for i := 0; i < 2; i++ {
		if _, err := newRunner(t, baseConfig(), in, out, Options{}).Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		runs = append(runs, snapshot(t, out))
	}
	if len(runs[0].SongPlays) != 3 {
		t.Fatalf("song_plays = %+v", runs[0].SongPlays)
	}
	if !reflect.DeepEqual(runs[0], runs[1]) {
		t.Fatalf("second run differs:\nfirst  %+v\nsecond %+v", runs[0], runs[1])
	}
}

func TestRun_MissingInputKeepsOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input func(t *testing.T, in string) string
	}{
		{name: "missing root", input: func(t *testing.T, in string) string {
			return filepath.Join(in, "does-not-exist")
		}},
		{name: "no log files", input: func(t *testing.T, in string) string {
			if err := os.RemoveAll(filepath.Join(in, "log_data")); err != nil {
				t.Fatal(err)
			}
			return in
		}},
		{name: "no song files", input: func(t *testing.T, in string) string {
			if err := os.RemoveAll(filepath.Join(in, "song_data")); err != nil {
				t.Fatal(err)
			}
			return in
		}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in, out := fixture(t)
			if _, err := newRunner(t, baseConfig(), in, out, Options{}).Run(context.Background()); err != nil {
				t.Fatalf("first run: %v", err)
			}
			before := snapshot(t, out)

			sum, err := newRunner(t, baseConfig(), tc.input(t, in), out, Options{}).Run(context.Background())
			if !errors.Is(err, ErrNoInput) {
				t.Fatalf("err = %v; want ErrNoInput", err)
			}
			if len(sum.Tables) != 0 {
				t.Fatalf("tables written: %+v", sum.Tables)
			}
			if after := snapshot(t, out); !reflect.DeepEqual(before, after) || len(after.Songs) != 2 {
				t.Fatalf("output changed:\nbefore %+v\nafter  %+v", before, after)
			}
		})
	}
}

func TestRun_BadRecordPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		policy       string
		wantErr      []string
		wantRejected int64
	}{
		{name: "fail", policy: "fail", wantErr: []string{"song_data", "TRAAAXX.json", "line 2"}},
		{name: "skip", policy: "skip", wantRejected: 2},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in, out := fixture(t)
			writeFile(t, in, "song_data/A/A/A/TRAAAXX.json", songFixYou, `{"song_id":`)
			writeFile(t, in, "log_data/2018/11/2018-11-13-events.json", `{"page":"NextSong","ts":"yesterday"}`)

			cfg := baseConfig()
			cfg.OnBadRecord = tc.policy
			sum, err := newRunner(t, cfg, in, out, Options{}).Run(context.Background())
			if tc.wantErr != nil {
				if err == nil {
					t.Fatalf("Run succeeded")
				}
				for _, w := range tc.wantErr {
					if !strings.Contains(err.Error(), w) {
						t.Errorf("error %q lacks %q", err, w)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if sum.Rejected != tc.wantRejected || sum.SongsRead != 2 || sum.EventsRead != 4 {
				t.Fatalf("summary = %+v", sum)
			}
		})
	}
}

func TestRun_SchemaErrorIsTyped(t *testing.T) {
	t.Parallel()

	in, out := fixture(t)
	writeFile(t, in, "log_data/2018/11/2018-11-13-events.json", `{"page":"NextSong","ts":1541990258796,"sessionId":"abc"}`)
	_, err := newRunner(t, baseConfig(), in, out, Options{}).Run(context.Background())
	if !errors.Is(err, schema.ErrType) {
		t.Fatalf("err = %v; want schema.ErrType", err)
	}
	if !strings.HasPrefix(err.Error(), "log_data: ") {
		t.Fatalf("err lacks stage: %v", err)
	}
}

func TestRun_UsersDedupe(t *testing.T) {
	t.Parallel()

	in, out := fixture(t)
	cfg := baseConfig()
	cfg.UsersDedupe = "keep-last"
	if _, err := newRunner(t, cfg, in, out, Options{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	users, err := lake.Read(context.Background(), file.NewLocal(out), UsersTable)
	if err != nil {
		t.Fatalf("read users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("users = %+v", users)
	}
	for _, u := range users {
		if u.UserID == "26" && u.Level != "free" {
			t.Fatalf("keep-last kept %+v", u)
		}
	}
}

func TestRun_TimeZone(t *testing.T) {
	t.Parallel()

	in, out := fixture(t)
	cfg := baseConfig()
	cfg.TimeZone = "America/New_York"
	if _, err := newRunner(t, cfg, in, out, Options{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 2018-12-01T00:00:00Z is still November in New York.
	if _, err := os.Stat(filepath.Join(out, "times", "year=2018", "month=12")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("December partition present under America/New_York: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := file.NewLocal(dir)
	cases := []config.Pipeline{
		{TimeZone: "Mars/Olympus"},
		{OnBadRecord: "ignore"},
	}
	for _, cfg := range cases {
		if _, err := New(cfg, s, s, Options{}); err == nil {
			t.Errorf("New(%+v) accepted", cfg)
		}
	}
	if _, err := New(config.Pipeline{}, nil, s, Options{}); err == nil {
		t.Errorf("nil input store accepted")
	}
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	in, out := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newRunner(t, baseConfig(), in, out, Options{}).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
}

func TestRun_SQLiteWarehouse(t *testing.T) {
	t.Parallel()

	in, out := fixture(t)
	dsn := filepath.Join(t.TempDir(), "sparkify.db")
	cfg := baseConfig()
	cfg.Warehouse = config.WarehouseConfig{Kind: "sqlite", DSN: dsn, TablePrefix: "lake_", AutoCreate: true, BatchSize: 2}

	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	sum, err := newRunner(t, cfg, in, out, Options{Warehouse: repo}).Run(ctx)
	repo.Close()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]int64{"songs": 2, "artists": 2, "users": 3, "times": 3, "song_plays": 2}
	if len(sum.Loaded) != len(want) {
		t.Fatalf("Loaded = %v", sum.Loaded)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	for table, n := range want {
		if sum.Loaded[table] != n {
			t.Errorf("Loaded[%s] = %d, want %d", table, sum.Loaded[table], n)
		}
		var got int64
		if err := db.QueryRow(`SELECT COUNT(*) FROM "lake_` + table + `"`).Scan(&got); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if got != n {
			t.Errorf("lake_%s has %d rows, want %d", table, got, n)
		}
	}
	var songID, artistID string
	var year int64
	if err := db.QueryRow(`SELECT "song_id", "artist_id", "year" FROM "lake_song_plays" WHERE "userId" = '26' AND "level" = 'paid'`).Scan(&songID, &artistID, &year); err != nil {
		t.Fatalf("select play: %v", err)
	}
	if songID != "SOXXX" || artistID != "ARXXX" || year != 2018 {
		t.Fatalf("play = %s %s %d", songID, artistID, year)
	}
}

type failingRepo struct{ storage.Repository }

func (failingRepo) Exec(context.Context, string) error { return errors.New("permission denied") }
func (failingRepo) Close()                             {}

func TestRun_WarehouseErrorIsFatal(t *testing.T) {
	t.Parallel()

	in, out := fixture(t)
	cfg := baseConfig()
	cfg.Warehouse = config.WarehouseConfig{Kind: "sqlite", DSN: "unused"}
	sum, err := newRunner(t, cfg, in, out, Options{Warehouse: failingRepo{}}).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "warehouse: ") || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("err = %v", err)
	}
	// The lake tables were written before the load failed.
	if sum.Rows(TableSongPlays) != 2 {
		t.Fatalf("summary = %+v", sum)
	}
}
