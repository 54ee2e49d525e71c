package transformer

// Output row types. Fields with a parquet tag are stored in the data files;
// untagged fields are partition columns and live only in the directory path.

// SongRow is one row of the songs table, partitioned by (year, artist_id).
type SongRow struct {
	SongID   string  `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title    string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	Duration float64 `parquet:"name=duration, type=DOUBLE"`
	Year     int64
	ArtistID string
}

// ArtistRow is one row of the unpartitioned artists table.
type ArtistRow struct {
	ArtistID        string   `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ArtistName      string   `parquet:"name=artist_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ArtistLocation  string   `parquet:"name=artist_location, type=BYTE_ARRAY, convertedtype=UTF8"`
	ArtistLatitude  *float64 `parquet:"name=artist_latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	ArtistLongitude *float64 `parquet:"name=artist_longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// UserRow is one row of the unpartitioned users table.
type UserRow struct {
	UserID    string `parquet:"name=userId, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstName string `parquet:"name=firstName, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `parquet:"name=lastName, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gender    string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level     string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TimeRow is one row of the times table, partitioned by (year, month).
// Timestamp is epoch milliseconds.
type TimeRow struct {
	Timestamp int64  `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Hour      int32  `parquet:"name=hour, type=INT32"`
	Day       int32  `parquet:"name=day, type=INT32"`
	Week      int32  `parquet:"name=week, type=INT32"`
	Weekday   string `parquet:"name=weekday, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year      int32
	Month     int32
}

// SongPlayRow is one row of the song_plays fact table, partitioned by
// (year, month).
type SongPlayRow struct {
	ID        int64  `parquet:"name=id, type=INT64"`
	Timestamp int64  `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	UserID    string `parquet:"name=userId, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level     string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
	SongID    string `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ArtistID  string `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SessionID int64  `parquet:"name=sessionId, type=INT64"`
	Location  string `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserAgent string `parquet:"name=userAgent, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year      int32
	Month     int32
}

// UnmatchedPlayRow records a NextSong event that matched no song, partitioned
// by (year, month).
type UnmatchedPlayRow struct {
	Timestamp int64    `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	UserID    string   `parquet:"name=userId, type=BYTE_ARRAY, convertedtype=UTF8"`
	SessionID int64    `parquet:"name=sessionId, type=INT64"`
	Song      string   `parquet:"name=song, type=BYTE_ARRAY, convertedtype=UTF8"`
	Artist    string   `parquet:"name=artist, type=BYTE_ARRAY, convertedtype=UTF8"`
	Length    *float64 `parquet:"name=length, type=DOUBLE, repetitiontype=OPTIONAL"`
	Year      int32
	Month     int32
}
