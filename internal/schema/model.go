package schema

// SongContract is the declared schema of song_data records.
var SongContract = Contract{
	Name: "song_data",
	Fields: []Field{
		{Name: "song_id", Type: TypeString, Required: true},
		{Name: "title", Type: TypeString},
		{Name: "artist_id", Type: TypeString},
		{Name: "year", Type: TypeInt},
		{Name: "duration", Type: TypeFloat},
		{Name: "artist_name", Type: TypeString},
		{Name: "artist_location", Type: TypeString},
		{Name: "artist_latitude", Type: TypeFloat, Nullable: true},
		{Name: "artist_longitude", Type: TypeFloat, Nullable: true},
		{Name: "num_songs", Type: TypeInt},
	},
}

// EventContract is the declared schema of log_data records.
var EventContract = Contract{
	Name: "log_data",
	Fields: []Field{
		{Name: "artist", Type: TypeString},
		{Name: "auth", Type: TypeString},
		{Name: "firstName", Type: TypeString},
		{Name: "gender", Type: TypeString},
		{Name: "itemInSession", Type: TypeInt},
		{Name: "lastName", Type: TypeString},
		{Name: "length", Type: TypeFloat, Nullable: true},
		{Name: "level", Type: TypeString},
		{Name: "location", Type: TypeString},
		{Name: "method", Type: TypeString},
		{Name: "page", Type: TypeString},
		{Name: "registration", Type: TypeFloat, Nullable: true},
		{Name: "sessionId", Type: TypeInt},
		{Name: "song", Type: TypeString},
		{Name: "status", Type: TypeInt},
		{Name: "ts", Type: TypeInt, Required: true},
		{Name: "userAgent", Type: TypeString},
		{Name: "userId", Type: TypeString},
	},
}

// Song is one song_data record.
type Song struct {
	SongID          string
	Title           string
	ArtistID        string
	Year            int64
	Duration        float64
	ArtistName      string
	ArtistLocation  string
	ArtistLatitude  *float64
	ArtistLongitude *float64
	NumSongs        int64
}

// Event is one log_data record. TS is epoch milliseconds.
type Event struct {
	Artist        string
	Auth          string
	FirstName     string
	Gender        string
	ItemInSession int64
	LastName      string
	Length        *float64
	Level         string
	Location      string
	Method        string
	Page          string
	Registration  *float64
	SessionID     int64
	Song          string
	Status        int64
	TS            int64
	UserAgent     string
	UserID        string
}

// DecodeSong coerces rec against SongContract.
func DecodeSong(rec map[string]any) (Song, error) {
	v, err := SongContract.Coerce(rec)
	if err != nil {
		return Song{}, err
	}
	return Song{
		SongID:          v.String("song_id"),
		Title:           v.String("title"),
		ArtistID:        v.String("artist_id"),
		Year:            v.Int("year"),
		Duration:        v.Float("duration"),
		ArtistName:      v.String("artist_name"),
		ArtistLocation:  v.String("artist_location"),
		ArtistLatitude:  v.OptFloat("artist_latitude"),
		ArtistLongitude: v.OptFloat("artist_longitude"),
		NumSongs:        v.Int("num_songs"),
	}, nil
}

// DecodeEvent coerces rec against EventContract.
func DecodeEvent(rec map[string]any) (Event, error) {
	v, err := EventContract.Coerce(rec)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Artist:        v.String("artist"),
		Auth:          v.String("auth"),
		FirstName:     v.String("firstName"),
		Gender:        v.String("gender"),
		ItemInSession: v.Int("itemInSession"),
		LastName:      v.String("lastName"),
		Length:        v.OptFloat("length"),
		Level:         v.String("level"),
		Location:      v.String("location"),
		Method:        v.String("method"),
		Page:          v.String("page"),
		Registration:  v.OptFloat("registration"),
		SessionID:     v.Int("sessionId"),
		Song:          v.String("song"),
		Status:        v.Int("status"),
		TS:            v.Int("ts"),
		UserAgent:     v.String("userAgent"),
		UserID:        v.String("userId"),
	}, nil
}
