// Package schema declares the input contracts for song and event records and
// coerces decoded JSON objects into typed Go values.
//
// Coercion is deliberately narrow. A JSON number is accepted for a string
// field (userId arrives as 26 or "26"), a numeric string is accepted for a
// numeric field, and null or a missing key yields the zero value (or nil for
// Nullable fields). Anything else is a type error wrapping ErrType.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrType marks a value whose JSON type cannot be coerced to the declared one.
var ErrType = errors.New("schema: type mismatch")

// Field types.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
)

// Field is one declared input column.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
}

// Contract is the declared schema of one input source.
type Contract struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// FieldError describes a single coercion failure.
type FieldError struct {
	Field string
	Type  string
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: cannot use %s as %s", e.Field, describe(e.Value), e.Type)
}

func (e *FieldError) Unwrap() error { return e.Err }

func describe(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	case json.Number:
		return "number " + t.String()
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Values holds coerced values keyed by field name: string, int64, float64, or
// nil for a null Nullable field.
type Values map[string]any

// Coerce validates rec against c and returns the coerced values. Unknown keys
// are ignored.
func (c Contract) Coerce(rec map[string]any) (Values, error) {
	out := make(Values, len(c.Fields))
	for _, f := range c.Fields {
		raw, present := rec[f.Name]
		if (!present || raw == nil) && f.Required {
			return nil, &FieldError{Field: f.Name, Type: f.Type, Value: nil, Err: fmt.Errorf("%w: required field is missing", ErrType)}
		}
		v, err := coerceValue(f, raw)
		if err != nil {
			return nil, &FieldError{Field: f.Name, Type: f.Type, Value: raw, Err: err}
		}
		out[f.Name] = v
	}
	return out, nil
}

func coerceValue(f Field, raw any) (any, error) {
	if raw == nil {
		if f.Nullable {
			return nil, nil
		}
		return zero(f.Type), nil
	}
	switch f.Type {
	case TypeString:
		switch t := raw.(type) {
		case string:
			return t, nil
		case json.Number:
			return t.String(), nil
		case bool:
			return strconv.FormatBool(t), nil
		}
	case TypeInt:
		switch t := raw.(type) {
		case json.Number:
			return parseInt(t.String())
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				if f.Nullable {
					return nil, nil
				}
				return int64(0), nil
			}
			return parseInt(s)
		}
	case TypeFloat:
		switch t := raw.(type) {
		case json.Number:
			return parseFloat(t.String())
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				if f.Nullable {
					return nil, nil
				}
				return float64(0), nil
			}
			return parseFloat(s)
		}
	default:
		return nil, fmt.Errorf("schema: unknown field type %q", f.Type)
	}
	return nil, ErrType
}

func zero(typ string) any {
	switch typ {
	case TypeInt:
		return int64(0)
	case TypeFloat:
		return float64(0)
	default:
		return ""
	}
}

// parseInt accepts integral floats such as "1541990258796.0".
func parseInt(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > 1<<53 {
		return nil, ErrType
	}
	return int64(f), nil
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, ErrType
	}
	return f, nil
}

// String returns the field's value as a string; missing means "".
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Int returns the field's value as int64; missing or null means 0.
func (v Values) Int(name string) int64 {
	i, _ := v[name].(int64)
	return i
}

// Float returns the field's value as float64; missing or null means 0.
func (v Values) Float(name string) float64 {
	f, _ := v[name].(float64)
	return f
}

// OptFloat returns nil for a null field.
func (v Values) OptFloat(name string) *float64 {
	f, ok := v[name].(float64)
	if !ok {
		return nil
	}
	return &f
}
