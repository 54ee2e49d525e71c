package transformer

import (
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/zeebo/xxh3"

	"songlake/internal/schema"
)

// SongIndex is a hash index of songs by exact (title, duration). It is not
// safe for concurrent use.
type SongIndex struct {
	buckets map[uint64][]int
	songs   []SongRow
	buf     []byte
}

func joinKey(buf []byte, title string, duration float64) ([]byte, uint64) {
	if duration == 0 {
		duration = 0 // -0 == 0
	}
	buf = append(buf[:0], title...)
	buf = append(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(duration))
	return buf, xxh3.Hash(buf)
}

// NewSongIndex indexes songs. NaN durations are never indexed since NaN
// equals nothing.
func NewSongIndex(songs []SongRow) *SongIndex {
	ix := &SongIndex{buckets: make(map[uint64][]int, len(songs)), songs: songs}
	for i, s := range songs {
		if math.IsNaN(s.Duration) {
			continue
		}
		var h uint64
		ix.buf, h = joinKey(ix.buf, s.Title, s.Duration)
		ix.buckets[h] = append(ix.buckets[h], i)
	}
	return ix
}

// Lookup returns every song whose title and duration equal the arguments, in
// index order.
func (ix *SongIndex) Lookup(title string, duration float64) []SongRow {
	var h uint64
	ix.buf, h = joinKey(ix.buf, title, duration)
	var out []SongRow
	for _, i := range ix.buckets[h] {
		s := ix.songs[i]
		if s.Title == title && s.Duration == duration {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of indexed songs.
func (ix *SongIndex) Len() int { return len(ix.songs) }

type joined struct {
	ev   schema.Event
	song SongRow
}

// SongPlays inner-joins events to songs on event.song == title and
// event.length == duration. Events without a length never match.
//
// id is a row number within each timestamp starting at 1. Rows sharing a
// timestamp are ordered by userId, then sessionId, then input position, so ids
// are stable for unchanged input. Rows are returned in that order.
//
// Events that matched no song are returned as unmatched, in input order.
func SongPlays(events []schema.Event, ix *SongIndex, loc *time.Location) (plays []SongPlayRow, unmatched []schema.Event) {
	var rows []joined
	for _, e := range events {
		if e.Length == nil {
			unmatched = append(unmatched, e)
			continue
		}
		hits := ix.Lookup(e.Song, *e.Length)
		if len(hits) == 0 {
			unmatched = append(unmatched, e)
			continue
		}
		for _, s := range hits {
			rows = append(rows, joined{ev: e, song: s})
		}
	}

	// Stable: rows with equal keys keep input order.
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ev.TS != b.ev.TS {
			return a.ev.TS < b.ev.TS
		}
		if a.ev.UserID != b.ev.UserID {
			return a.ev.UserID < b.ev.UserID
		}
		return a.ev.SessionID < b.ev.SessionID
	})

	plays = make([]SongPlayRow, 0, len(rows))
	var id int64
	for i, r := range rows {
		if i == 0 || rows[i-1].ev.TS != r.ev.TS {
			id = 0
		}
		id++
		p := DeriveTime(r.ev.TS, loc)
		plays = append(plays, SongPlayRow{
			ID:        id,
			Timestamp: r.ev.TS,
			UserID:    r.ev.UserID,
			Level:     r.ev.Level,
			SongID:    r.song.SongID,
			ArtistID:  r.song.ArtistID,
			SessionID: r.ev.SessionID,
			Location:  r.ev.Location,
			UserAgent: r.ev.UserAgent,
			Year:      p.Year,
			Month:     p.Month,
		})
	}
	return plays, unmatched
}

// Unmatched projects join misses to the unmatched_plays side table.
func Unmatched(events []schema.Event, loc *time.Location) []UnmatchedPlayRow {
	out := make([]UnmatchedPlayRow, 0, len(events))
	for _, e := range events {
		p := DeriveTime(e.TS, loc)
		out = append(out, UnmatchedPlayRow{
			Timestamp: e.TS,
			UserID:    e.UserID,
			SessionID: e.SessionID,
			Song:      e.Song,
			Artist:    e.Artist,
			Length:    e.Length,
			Year:      p.Year,
			Month:     p.Month,
		})
	}
	return out
}
