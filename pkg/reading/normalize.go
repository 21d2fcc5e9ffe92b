// Package reading converts between store wire records and the canonical
// types.Reading, and validates user drafts before submission.
package reading

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/types"
)

// Candidate wire names per logical field, in resolution order
var (
	IDFields        = []string{"id"}
	ValueFields     = []string{"value", "glucose"}
	NoteFields      = []string{"description", "note"}
	SiteFields      = []string{"punctureSpot", "puncture", "punctureType"}
	TimestampFields = []string{"timestamp", "ts"}
)

// Layouts accepted for timestamp strings. Those without a zone are read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// maxIndex bounds the per-batch index packed into the low 20 bits of a synthetic id
const maxIndex = 1<<20 - 1

// SyntheticID derives a negative id from the fetch generation and batch index.
// Negative ids never collide with store-assigned ids and are stable for a given
// generation and position.
func SyntheticID(generation uint64, index int) int64 {
	return -int64((generation%(1<<42))<<20 | uint64(index%maxIndex+1))
}

// LocalID derives a synthetic id for a record created between fetches. Local
// ids count down from the top of the index range so they stay clear of batch ids.
func LocalID(generation uint64, seq int) int64 {
	return SyntheticID(generation, maxIndex-1-seq%(maxIndex/2))
}

// ServerID returns the store-assigned id carried by a payload, if any
func ServerID(payload types.WirePayload) (int64, bool) {
	v, ok := lookup(payload, IDFields)
	if !ok {
		return 0, false
	}
	// exact integer parse first so ids beyond 2^53 survive
	switch n := v.(type) {
	case json.Number:
		if id, err := n.Int64(); err == nil {
			return id, true
		}
	case string:
		if id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return id, true
		}
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// Normalize resolves a wire record into a Reading. index is the record's
// position in its batch and generation identifies the fetch that produced it.
func Normalize(payload types.WirePayload, index int, generation uint64, now time.Time) types.Reading {
	r := types.Reading{}

	if v, ok := lookup(payload, ValueFields); ok {
		if f, ok := toFloat(v); ok {
			r.GlucoseValue = f
		}
	}

	if v, ok := lookup(payload, NoteFields); ok {
		if s, ok := v.(string); ok {
			r.Note = s
		}
	}

	if v, ok := lookup(payload, SiteFields); ok {
		if s, ok := v.(string); ok && s != "" {
			if site, err := sitecode.Decode(strings.TrimSpace(s)); err == nil {
				r.PunctureSite = &site
			}
		}
	}

	r.Timestamp = now.Add(time.Duration(index) * time.Millisecond)
	if v, ok := lookup(payload, TimestampFields); ok {
		if ts, ok := toTime(v); ok {
			r.Timestamp = ts
		}
	}

	r.ID = SyntheticID(generation, index)
	if id, ok := ServerID(payload); ok {
		r.ID = id
	}

	return r
}

// NormalizeAll normalizes a batch in order
func NormalizeAll(payloads []types.WirePayload, generation uint64, now time.Time) []types.Reading {
	readings := make([]types.Reading, 0, len(payloads))
	for i, p := range payloads {
		readings = append(readings, Normalize(p, i, generation, now))
	}
	return readings
}

// UndecodableSite returns the raw site value when one is present but cannot be decoded
func UndecodableSite(payload types.WirePayload) (string, bool) {
	v, ok := lookup(payload, SiteFields)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	if _, err := sitecode.Decode(strings.TrimSpace(s)); err != nil {
		return s, true
	}
	return "", false
}

// lookup returns the first candidate present with a non-null value
func lookup(payload types.WirePayload, names []string) (interface{}, bool) {
	for _, name := range names {
		if v, ok := payload[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toTime(v interface{}) (time.Time, bool) {
	if s, ok := v.(string); ok {
		return ParseTimestamp(s)
	}
	// numeric timestamps are epoch milliseconds
	if ms, ok := toFloat(v); ok {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}

// ParseTimestamp parses an ISO-like timestamp. Strings without a zone are local time.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
