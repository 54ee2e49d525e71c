// Package transformer turns decoded song and event records into the rows of
// the output tables: projection, NextSong filtering, time derivation and the
// songs-to-events equality join.
package transformer

import "songlake/internal/schema"

// Songs projects song records to the songs table, one row per record.
func Songs(in []schema.Song) []SongRow {
	out := make([]SongRow, 0, len(in))
	for _, s := range in {
		out = append(out, SongRow{
			SongID:   s.SongID,
			Title:    s.Title,
			ArtistID: s.ArtistID,
			Year:     s.Year,
			Duration: s.Duration,
		})
	}
	return out
}

// Artists projects song records to the artists table. Rows are not
// deduplicated: an artist with several songs appears once per song.
func Artists(in []schema.Song) []ArtistRow {
	out := make([]ArtistRow, 0, len(in))
	for _, s := range in {
		out = append(out, ArtistRow{
			ArtistID:        s.ArtistID,
			ArtistName:      s.ArtistName,
			ArtistLocation:  s.ArtistLocation,
			ArtistLatitude:  s.ArtistLatitude,
			ArtistLongitude: s.ArtistLongitude,
		})
	}
	return out
}
