package transformer

import (
	"time"

	"songlake/internal/schema"
	"songlake/internal/transformer/builtin"
)

// NextSongPage is the page value of a song play event.
const NextSongPage = "NextSong"

// NextSong returns the filter that keeps only song play events.
func NextSong() builtin.Filter[schema.Event] {
	return builtin.Filter[schema.Event]{Keep: func(e schema.Event) bool { return e.Page == NextSongPage }}
}

// Users projects events to the users table. With an empty policy every event
// yields a row; otherwise rows are deduplicated by userId per policy.
func Users(events []schema.Event, policy string) []UserRow {
	out := make([]UserRow, 0, len(events))
	for _, e := range events {
		out = append(out, UserRow{
			UserID:    e.UserID,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Gender:    e.Gender,
			Level:     e.Level,
		})
	}
	if policy == "" {
		return out
	}
	return builtin.DeDup[UserRow]{
		Key:    func(u UserRow) (string, bool) { return u.UserID, true },
		Policy: policy,
	}.Apply(out)
}

// TimeParts are the calendar fields of one instant.
type TimeParts struct {
	Timestamp time.Time
	Hour      int32
	Day       int32
	Week      int32
	Month     int32
	Year      int32
	Weekday   string
}

// DeriveTime converts epoch milliseconds to an instant and its calendar
// fields in loc. Week is the ISO 8601 week number.
func DeriveTime(tsMillis int64, loc *time.Location) TimeParts {
	if loc == nil {
		loc = time.UTC
	}
	t := time.UnixMilli(tsMillis).In(loc)
	_, week := t.ISOWeek()
	return TimeParts{
		Timestamp: t,
		Hour:      int32(t.Hour()),
		Day:       int32(t.Day()),
		Week:      int32(week),
		Month:     int32(t.Month()),
		Year:      int32(t.Year()),
		Weekday:   t.Weekday().String(),
	}
}

// Times projects events to the times table, one row per event.
func Times(events []schema.Event, loc *time.Location) []TimeRow {
	out := make([]TimeRow, 0, len(events))
	for _, e := range events {
		p := DeriveTime(e.TS, loc)
		out = append(out, TimeRow{
			Timestamp: e.TS,
			Hour:      p.Hour,
			Day:       p.Day,
			Week:      p.Week,
			Weekday:   p.Weekday,
			Year:      p.Year,
			Month:     p.Month,
		})
	}
	return out
}
