package pipeline

import (
	"strconv"

	"songlake/internal/lake"
	tr "songlake/internal/transformer"
)

// Output table names, relative to the output root.
const (
	TableSongs     = "songs"
	TableArtists   = "artists"
	TableUsers     = "users"
	TableTimes     = "times"
	TableSongPlays = "song_plays"
	TableUnmatched = "unmatched_plays"
)

var yearMonth = []string{"year", "month"}

func itoa32(v int32) string { return strconv.FormatInt(int64(v), 10) }

func atoi32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	return int32(v), err
}

// assignYearMonth sets year/month partition columns read from a path.
func assignYearMonth(year, month *int32, col, val string) error {
	v, err := atoi32(val)
	if err != nil {
		return err
	}
	switch col {
	case "year":
		*year = v
	case "month":
		*month = v
	}
	return nil
}

// SongsTable is partitioned by (year, artist_id).
var SongsTable = lake.Table[tr.SongRow]{
	Name:        TableSongs,
	PartitionBy: []string{"year", "artist_id"},
	Partition: func(r *tr.SongRow) []string {
		return []string{strconv.FormatInt(r.Year, 10), r.ArtistID}
	},
	Assign: func(r *tr.SongRow, col, val string) error {
		switch col {
		case "year":
			y, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return err
			}
			r.Year = y
		case "artist_id":
			r.ArtistID = val
		}
		return nil
	},
}

var ArtistsTable = lake.Table[tr.ArtistRow]{Name: TableArtists}

var UsersTable = lake.Table[tr.UserRow]{Name: TableUsers}

var TimesTable = lake.Table[tr.TimeRow]{
	Name:        TableTimes,
	PartitionBy: yearMonth,
	Partition:   func(r *tr.TimeRow) []string { return []string{itoa32(r.Year), itoa32(r.Month)} },
	Assign: func(r *tr.TimeRow, col, val string) error {
		return assignYearMonth(&r.Year, &r.Month, col, val)
	},
}

var SongPlaysTable = lake.Table[tr.SongPlayRow]{
	Name:        TableSongPlays,
	PartitionBy: yearMonth,
	Partition:   func(r *tr.SongPlayRow) []string { return []string{itoa32(r.Year), itoa32(r.Month)} },
	Assign: func(r *tr.SongPlayRow, col, val string) error {
		return assignYearMonth(&r.Year, &r.Month, col, val)
	},
}

var UnmatchedTable = lake.Table[tr.UnmatchedPlayRow]{
	Name:        TableUnmatched,
	PartitionBy: yearMonth,
	Partition:   func(r *tr.UnmatchedPlayRow) []string { return []string{itoa32(r.Year), itoa32(r.Month)} },
	Assign: func(r *tr.UnmatchedPlayRow, col, val string) error {
		return assignYearMonth(&r.Year, &r.Month, col, val)
	},
}
