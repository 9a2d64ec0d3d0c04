// Package records decodes the raw newline-delimited JSON inputs of the job.
//
// Decoding is schema-on-read: every declared field is optional, a field whose JSON
// type does not match its declared type is nulled, and a line that is not a JSON
// object still yields a record with every field null. Each line is classified so
// callers can report how much of the input was coerced.
package records

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/zeebo/errs"
)

// Error is the error class for input decoding.
var Error = errs.Class("records")

// maxLineSize bounds a single JSON line.
const maxLineSize = 16 * 1024 * 1024

// Status classifies a decoded input line.
type Status int

const (
	// StatusOK means every present field matched its declared type.
	StatusOK Status = iota
	// StatusCoerced means at least one field was nulled or converted.
	StatusCoerced
	// StatusMalformed means the line was not a JSON object.
	StatusMalformed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCoerced:
		return "coerced"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Counts tallies decoded lines by status.
type Counts struct {
	OK        int64 `json:"ok"`
	Coerced   int64 `json:"coerced"`
	Malformed int64 `json:"malformed"`
}

// Total returns the number of decoded lines.
func (c Counts) Total() int64 {
	return c.OK + c.Coerced + c.Malformed
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.OK += other.OK
	c.Coerced += other.Coerced
	c.Malformed += other.Malformed
}

func (c *Counts) observe(s Status) {
	switch s {
	case StatusOK:
		c.OK++
	case StatusCoerced:
		c.Coerced++
	case StatusMalformed:
		c.Malformed++
	}
}

// decodeLines runs build over every non-blank line of r.
func decodeLines[T any](r io.Reader, build func(*fields) T) ([]T, Counts, error) {
	var (
		out    []T
		counts Counts
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		f := parseFields(line)
		out = append(out, build(f))
		counts.observe(f.status())
	}
	if err := scanner.Err(); err != nil {
		return nil, counts, Error.Wrap(err)
	}
	return out, counts, nil
}

// fields gives typed, coercing access to one JSON object.
type fields struct {
	raw       map[string]json.RawMessage
	malformed bool
	coerced   bool
}

func parseFields(line []byte) *fields {
	f := &fields{}
	if err := json.Unmarshal(line, &f.raw); err != nil || f.raw == nil {
		f.raw = nil
		f.malformed = true
	}
	return f
}

func (f *fields) status() Status {
	switch {
	case f.malformed:
		return StatusMalformed
	case f.coerced:
		return StatusCoerced
	default:
		return StatusOK
	}
}

func (f *fields) lookup(name string) (json.RawMessage, bool) {
	v, ok := f.raw[name]
	if !ok || len(v) == 0 || string(v) == "null" {
		return nil, false
	}
	return v, true
}

// str reads a string field. Scalars of another type keep their JSON text.
func (f *fields) str(name string) *string {
	v, ok := f.lookup(name)
	if !ok {
		return nil
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			f.coerced = true
			return nil
		}
		return &s
	}
	f.coerced = true
	s := string(v)
	return &s
}

func (f *fields) int64(name string) *int64 {
	v, ok := f.lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		f.coerced = true
		return nil
	}
	return &n
}

func (f *fields) int32(name string) *int32 {
	v, ok := f.lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(string(v), 10, 32)
	if err != nil {
		f.coerced = true
		return nil
	}
	n32 := int32(n)
	return &n32
}

func (f *fields) float64(name string) *float64 {
	v, ok := f.lookup(name)
	if !ok {
		return nil
	}
	if v[0] == '"' || v[0] == '{' || v[0] == '[' || v[0] == 't' || v[0] == 'f' {
		f.coerced = true
		return nil
	}
	n, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		f.coerced = true
		return nil
	}
	return &n
}
