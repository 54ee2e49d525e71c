// Package json decodes line-delimited JSON (NDJSON) into Record maps.
//
// Each non-blank line is one JSON object:
//
//	{"song_id":"SOXXX","title":"Fix You","duration":294.05}
//	{"song_id":"SOYYY","title":"Yellow","duration":266.77}
//
// Numbers are decoded as json.Number so the schema layer decides how to map
// them. A line that is not a JSON object yields a *LineError; the Decoder stays
// usable and the next call continues with the following line, so callers can
// choose between failing and skipping.
package json

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const utf8BOM = "\uFEFF"

// Record is one decoded JSON object.
type Record map[string]any

// LineError reports a line that could not be decoded as an object.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *LineError) Unwrap() error { return e.Err }

// Decoder reads Records line by line.
type Decoder struct {
	br   *bufio.Reader
	line int
}

// NewDecoder constructs a Decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{br: bufio.NewReaderSize(r, 64<<10)}
}

// Line returns the 1-based number of the line last returned by Next.
func (d *Decoder) Line() int { return d.line }

// Next returns the next object. io.EOF is returned when the stream is
// exhausted. Blank lines are skipped.
func (d *Decoder) Next() (Record, error) {
	for {
		raw, err := d.br.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("json parser: read: %w", err)
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("json parser: read: %w", err)
		}
		d.line++
		if d.line == 1 {
			raw = bytes.TrimPrefix(raw, []byte(utf8BOM))
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		rec, derr := decodeObject(raw)
		if derr != nil {
			return nil, &LineError{Line: d.line, Err: derr}
		}
		return rec, nil
	}
}

var errNotObject = errors.New("top-level value is not an object")

func decodeObject(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after object")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w (got %T)", errNotObject, v)
	}
	return Record(m), nil
}

// Stream decodes r and calls fn for every object with its line number.
//
// Decode failures go to onBad. If onBad is nil or returns an error the
// stream stops with that error; returning nil skips the line. A non-nil error
// from fn stops the stream and is returned as is.
func Stream(ctx context.Context, r io.Reader, fn func(line int, rec Record) error, onBad func(err *LineError) error) error {
	d := NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := d.Next()
		if err == io.EOF {
			return nil
		}
		var le *LineError
		if errors.As(err, &le) {
			if onBad == nil {
				return le
			}
			if herr := onBad(le); herr != nil {
				return herr
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(d.Line(), rec); err != nil {
			return err
		}
	}
}
