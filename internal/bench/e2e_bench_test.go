package bench

import (
	"context"
	"fmt"
	"testing"
	"time"

	"songlake/internal/datasource/file"
	"songlake/internal/lake"
	"songlake/internal/pipeline"
	"songlake/internal/schema"
	"songlake/internal/storage"
	"songlake/internal/transformer"
)

// catalog builds n songs and m NextSong events, every third of which
// misses the catalog.
func catalog(n, m int) ([]schema.Song, []schema.Event) {
	songs := make([]schema.Song, n)
	for i := range songs {
		songs[i] = schema.Song{
			SongID:     fmt.Sprintf("SO%06d", i),
			Title:      fmt.Sprintf("Title %d", i),
			ArtistID:   fmt.Sprintf("AR%04d", i%500),
			ArtistName: fmt.Sprintf("Artist %d", i%500),
			Year:       int64(1990 + i%30),
			Duration:   120 + float64(i%240),
		}
	}
	base := time.Date(2018, 11, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	events := make([]schema.Event, m)
	for i := range events {
		s := songs[i%n]
		title := s.Title
		if i%3 == 0 {
			title = "missing"
		}
		length := s.Duration
		events[i] = schema.Event{
			Artist:    s.ArtistName,
			Song:      title,
			Length:    &length,
			Page:      "NextSong",
			TS:        base + int64(i)*1000,
			UserID:    fmt.Sprint(i % 97),
			SessionID: int64(i % 1000),
			Level:     "free",
		}
	}
	return songs, events
}

// BenchmarkEndToEnd exercises the in-memory hot path of the log stage: the
// NextSong filter, users/times derivation, the song join and batching into a
// fake COPY. No files or databases are involved.
//
// Run with:
//
//	go test -run=^$ -bench ^BenchmarkEndToEnd$ -cpuprofile cpu.out -memprofile mem.out -count=1
func BenchmarkEndToEnd(b *testing.B) {
	ctx := context.Background()
	songs, events := catalog(10_000, 50_000)
	ix := transformer.NewSongIndex(transformer.Songs(songs))
	cols := []string{"id", "timestamp", "userId", "song_id", "artist_id"}
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		return int64(len(rows)), nil
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next := transformer.Chain[schema.Event]{transformer.NextSong()}.Apply(events)
		_ = transformer.Users(next, "keep-last")
		_ = transformer.Times(next, time.UTC)
		plays, _ := transformer.SongPlays(next, ix, time.UTC)

		in := make(chan []any, 1024)
		go func() {
			defer close(in)
			for j := range plays {
				p := &plays[j]
				in <- []any{p.ID, p.Timestamp, p.UserID, p.SongID, p.ArtistID}
			}
		}()
		if _, err := storage.LoadBatches(ctx, cols, in, 5000, copyFn, nil); err != nil {
			b.Fatalf("LoadBatches: %v", err)
		}
	}
	b.ReportMetric(float64(len(events)), "events/op")
}

// BenchmarkWriteSongPlays measures Parquet encoding and partitioned writes
// to a local store.
func BenchmarkWriteSongPlays(b *testing.B) {
	ctx := context.Background()
	songs, events := catalog(2_000, 20_000)
	plays, _ := transformer.SongPlays(events, transformer.NewSongIndex(transformer.Songs(songs)), time.UTC)
	store := file.NewLocal(b.TempDir())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := lake.Write(ctx, store, pipeline.SongPlaysTable, plays, lake.Options{}); err != nil {
			b.Fatalf("Write: %v", err)
		}
	}
}
