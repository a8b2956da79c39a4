// Package flight holds the flight/segment records and the dropsonde inventory
// that the checker and the circle fitter work on.
package flight

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Record keys used by the tooling. Any other key is passed through untouched.
const (
	KeyFlightID       = "flight_id"
	KeyPlatform       = "platform"
	KeySegments       = "segments"
	KeySegmentID      = "segment_id"
	KeyStart          = "start"
	KeyEnd            = "end"
	KeyKinds          = "kinds"
	KeyIrregularities = "irregularities"
	KeyDropsondes     = "dropsondes"
	KeyGoodDropsondes = "good_dropsondes" // deprecated
	KeyCircleLat      = "clat"
	KeyCircleLon      = "clon"
	KeyRadius         = "radius"
)

// Dropsonde quality flags
const (
	FlagGood    = "GOOD"
	FlagBad     = "BAD"
	FlagUgly    = "UGLY"
	FlagUnknown = "UNKNOWN"
)

// Segment kinds that select circle handling
const (
	KindCircle   = "circle"
	KindCircling = "circling"
)

// Flight is a flight record as read from a flight file
type Flight map[string]any

// Segment is one time-bounded piece of a flight
type Segment map[string]any

// FlightID returns the flight id and whether it is present as a string
func (f Flight) FlightID() (string, bool) {
	s, ok := f[KeyFlightID].(string)
	return s, ok
}

// Platform returns the platform name and whether it is present as a string
func (f Flight) Platform() (string, bool) {
	s, ok := f[KeyPlatform].(string)
	return s, ok
}

// Segments returns the flight's segments in file order. Entries that are not
// mappings are skipped.
func (f Flight) Segments() []Segment {
	var out []Segment
	switch raw := f[KeySegments].(type) {
	case []Segment:
		return raw
	case []any:
		for _, item := range raw {
			if seg, ok := asSegment(item); ok {
				out = append(out, seg)
			}
		}
	case []map[string]any:
		for _, item := range raw {
			out = append(out, Segment(item))
		}
	}
	return out
}

// WithSegments returns a shallow copy of the flight with its segments replaced
func (f Flight) WithSegments(segments []Segment) Flight {
	out := maps.Clone(f)
	if out == nil {
		out = Flight{}
	}
	items := make([]any, len(segments))
	for i, s := range segments {
		items[i] = map[string]any(s)
	}
	out[KeySegments] = items
	return out
}

func asSegment(v any) (Segment, bool) {
	switch m := v.(type) {
	case Segment:
		return m, true
	case map[string]any:
		return Segment(m), true
	}
	return nil, false
}

// Clone returns a shallow copy of the segment
func (s Segment) Clone() Segment {
	if s == nil {
		return Segment{}
	}
	return maps.Clone(s)
}

// SegmentID returns the segment id and whether it is present as a string
func (s Segment) SegmentID() (string, bool) {
	id, ok := s[KeySegmentID].(string)
	return id, ok
}

// Start returns the parsed start time. ok is false when the key is missing
// or the value is not a timestamp.
func (s Segment) Start() (time.Time, bool) {
	return timeValue(s[KeyStart])
}

// End returns the parsed end time
func (s Segment) End() (time.Time, bool) {
	return timeValue(s[KeyEnd])
}

// Kinds returns the segment kinds when they form a list of strings.
// Non-string entries are ignored.
func (s Segment) Kinds() []string {
	items, ok := listValue(s[KeyKinds])
	if !ok {
		return nil
	}
	var kinds []string
	for _, item := range items {
		if k, ok := item.(string); ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Irregularities returns the irregularity tags when they form a list of
// strings, nil otherwise
func (s Segment) Irregularities() []string {
	tags, ok := StringList(s[KeyIrregularities])
	if !ok {
		return nil
	}
	return tags
}

// IsCircle reports whether the segment kinds contain the exact "circle" token
func (s Segment) IsCircle() bool {
	for _, k := range s.Kinds() {
		if k == KindCircle {
			return true
		}
	}
	return false
}

// KindsIsCircle reports whether any kind selects circle handling
func KindsIsCircle(kinds []string) bool {
	for _, k := range kinds {
		if k == KindCircle || k == KindCircling {
			return true
		}
	}
	return false
}

// HasIrregularity reports whether any tag starts with the given prefix
func HasIrregularity(irregularities []string, prefix string) bool {
	for _, tag := range irregularities {
		if strings.HasPrefix(tag, prefix) {
			return true
		}
	}
	return false
}

// ListLen returns the length of a sequence value. ok is false when v is not
// a sequence.
func ListLen(v any) (n int, ok bool) {
	items, ok := listValue(v)
	return len(items), ok
}

// StringList converts v to a list of strings. ok is false when v is not a
// list or holds a non-string element.
func StringList(v any) ([]string, bool) {
	if s, ok := v.([]string); ok {
		return s, true
	}
	items, ok := listValue(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func listValue(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// MappingValue converts v to a string-keyed mapping
func MappingValue(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string][]string:
		out := make(map[string]any, len(m))
		for k, ids := range m {
			out[k] = ids
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// SondeIDs renders the elements of a sonde id list as strings. ok is false
// when v is not a list.
func SondeIDs(v any) ([]string, bool) {
	items, ok := listValue(v)
	if !ok {
		return nil, false
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = fmt.Sprint(item)
	}
	return ids, true
}

// IntValue converts integral numeric values to int
func IntValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the timestamp formats found in flight files. Values
// without a zone are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %q", s)
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		parsed, err := ParseTime(t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
