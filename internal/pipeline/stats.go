package pipeline

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"songlake/internal/lake"
)

// maxLoggedRejects bounds how many individual bad records are logged.
const maxLoggedRejects = 5

// counters holds run statistics. Input files are read concurrently, so every
// field is updated atomically.
type counters struct {
	songsRead   atomic.Int64 // song records decoded
	eventsRead  atomic.Int64 // event records decoded
	rejected    atomic.Int64 // records skipped under on_bad_record=skip
	filtered    atomic.Int64 // events dropped by the NextSong filter
	joinDropped atomic.Int64 // NextSong events that matched no song
	batches     atomic.Int64 // warehouse batches flushed
}

// errAgg keeps the first limit messages and a count per error bucket.
type errAgg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

// add records msg under bucket and reports whether it is among the first
// limit messages.
func (a *errAgg) add(bucket, msg string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets[bucket]++
	a.count++
	if len(a.first) < a.limit {
		a.first = append(a.first, msg)
		return true
	}
	return false
}

func (a *errAgg) snapshot() (count int, first []string, buckets int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count, append([]string(nil), a.first...), len(a.buckets)
}

// Summary describes a finished run.
type Summary struct {
	SongsRead   int64
	EventsRead  int64
	Rejected    int64
	Filtered    int64
	JoinDropped int64
	Tables      []lake.Result
	Loaded      map[string]int64
	Batches     int64
	Elapsed     time.Duration
}

// Rows returns the rows written to table, or 0.
func (s Summary) Rows(table string) int {
	for _, t := range s.Tables {
		if t.Table == table {
			return t.Rows
		}
	}
	return 0
}

// Fields renders s for the final log line.
func (s Summary) Fields() []zap.Field {
	fields := []zap.Field{
		zap.Int64("songs_read", s.SongsRead),
		zap.Int64("events_read", s.EventsRead),
		zap.Int64("rejected", s.Rejected),
		zap.Int64("filtered", s.Filtered),
		zap.Int64("join_dropped", s.JoinDropped),
		zap.Duration("elapsed", s.Elapsed),
	}
	for _, t := range s.Tables {
		fields = append(fields, zap.Int(t.Table+"_rows", t.Rows))
	}
	if len(s.Loaded) > 0 {
		names := make([]string, 0, len(s.Loaded))
		for n := range s.Loaded {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fields = append(fields, zap.Int64(n+"_loaded", s.Loaded[n]))
		}
		fields = append(fields, zap.Int64("batches", s.Batches))
	}
	return fields
}
