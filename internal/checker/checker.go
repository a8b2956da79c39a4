// Package checker cross-validates flight and segment records against the
// navigation track and the dropsonde inventory. Every finding is reported as
// advisory text; no check stops the remaining ones from running.
package checker

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/yegors/flightseg/internal/flight"
	"github.com/yegors/flightseg/internal/nav"
)

// Diagnostic messages. Downstream tooling greps for these, keep them stable.
const (
	MsgFlightIDMissing = "flight_id is missing"
	MsgPlatformMissing = "platform is missing"

	MsgSegmentIDMissing     = "segment_id is missing"
	MsgSegmentIDNotString   = "segment_id is not a string"
	MsgSegmentIDPrefix      = "segment_id does not start with flight_id"
	msgSegmentIDDuplicated  = "segment_id \"%s\" is duplicated"
	MsgKindsMissing         = "segment has no kinds attribute"
	MsgKindsNotList         = "kinds is not a list"
	MsgKindsEmpty           = "segment has no kinds"
	MsgStartMissing         = "segment start is missing"
	MsgEndMissing           = "segment end is missing"
	MsgStartInvalid         = "segment start is not a timestamp"
	MsgEndInvalid           = "segment end is not a timestamp"
	MsgEndsBeforeStart      = "segment ends before it starts"
	MsgIrregularitiesAbsent = "segment has no irregularities attribute"
	MsgIrregularitiesList   = "irregularities is not a list"
	MsgIrregularitiesStr    = "irregularities is not a list of str"
	MsgGoodDropsondesDepr   = "good_dropsondes attribute is deprecated. uses dropsondes instead"
	MsgDropsondesMissing    = "dropsondes attribute is missing"
	MsgDropsondesNotMapping = "dropsondes is not a mapping"
	msgDropsondesFlagList   = "dropsondes with flag %s are not a list"
	MsgDropsondesMismatch   = "dropsondes in segment file are different from sondes in sondes.yaml and no SAM irregularity is recorded"
	MsgGoodCountMismatch    = "inconsistent number of good sondes between segment file and sondes.yaml and no SAM irregularity is recorded"
	MsgTimeToFirstSonde     = "time to first sonde is not 1 minute and no TTFS irregularities are recorded"
)

// MsgSegmentIDDuplicated formats the duplicate id diagnostic
func MsgSegmentIDDuplicated(id string) string {
	return fmt.Sprintf(msgSegmentIDDuplicated, id)
}

// MsgDropsondesFlagNotList formats the per-flag list diagnostic
func MsgDropsondesFlagNotList(flag string) string {
	return fmt.Sprintf(msgDropsondesFlagList, flag)
}

// Defaults for the time-to-first-sonde check. The tolerance is a little
// above half a second to absorb rounding of launch times.
const (
	DefaultTTFS          = 60 * time.Second
	DefaultTTFSTolerance = 750 * time.Millisecond
	DefaultSAMPrefix     = "SAM"
	DefaultTTFSPrefix    = "TTFS"
)

// Option configures a FlightChecker
type Option func(*FlightChecker)

// WithTTFS overrides the expected time to first sonde and its tolerance
func WithTTFS(expected, tolerance time.Duration) Option {
	return func(c *FlightChecker) {
		c.ttfs = expected
		c.ttfsTolerance = tolerance
	}
}

// WithPrefixes overrides the irregularity prefixes that suppress the sonde
// consistency checks (sam) and the timing check (ttfs)
func WithPrefixes(sam, ttfs string) Option {
	return func(c *FlightChecker) {
		if sam != "" {
			c.samPrefix = sam
		}
		if ttfs != "" {
			c.ttfsPrefix = ttfs
		}
	}
}

// FlightChecker checks the records of one flight. It remembers the segment
// ids it has seen, so segments must be passed in file order and a checker
// must not be shared between flights or goroutines.
type FlightChecker struct {
	flightID       string
	usedSegmentIDs map[string]struct{}

	ttfs          time.Duration
	ttfsTolerance time.Duration
	samPrefix     string
	ttfsPrefix    string
}

// NewFlightChecker creates a checker scoped to the given flight id
func NewFlightChecker(flightID string, opts ...Option) *FlightChecker {
	c := &FlightChecker{
		flightID:       flightID,
		usedSegmentIDs: make(map[string]struct{}),
		ttfs:           DefaultTTFS,
		ttfsTolerance:  DefaultTTFSTolerance,
		samPrefix:      DefaultSAMPrefix,
		ttfsPrefix:     DefaultTTFSPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForFlight creates a checker for the given flight record. A missing flight
// id scopes the checker to the empty id, which every segment id matches.
func ForFlight(f flight.Flight, opts ...Option) *FlightChecker {
	id, _ := f.FlightID()
	return NewFlightChecker(id, opts...)
}

// FlightID returns the flight id the checker is scoped to
func (c *FlightChecker) FlightID() string {
	return c.flightID
}

// SeenSegmentIDs returns a copy of the segment ids seen so far
func (c *FlightChecker) SeenSegmentIDs() map[string]struct{} {
	return maps.Clone(c.usedSegmentIDs)
}

// CheckFlight performs the flight-level presence checks
func (c *FlightChecker) CheckFlight(f flight.Flight) []string {
	var warnings []string
	if _, ok := f[flight.KeyFlightID]; !ok {
		warnings = append(warnings, MsgFlightIDMissing)
	}
	if _, ok := f[flight.KeyPlatform]; !ok {
		warnings = append(warnings, MsgPlatformMissing)
	}
	return warnings
}

// CheckSegment checks one segment against the sondes launched inside its
// [start, end) window, grouped by flag. track is the navigation data sliced
// to the segment window; the current rules take their time reference from
// the segment record and do not read it.
//
// The returned segment is a corrected copy: malformed kinds or
// irregularities are removed from it. The input segment is not modified.
func (c *FlightChecker) CheckSegment(seg flight.Segment, track nav.Track, sondesByFlag flight.SondesByFlag) ([]string, flight.Segment) {
	var warnings []string
	warn := func(msg string) {
		warnings = append(warnings, msg)
	}
	corrected := seg.Clone()

	c.checkSegmentID(corrected, warn)

	if raw, ok := corrected[flight.KeyKinds]; ok {
		if n, isList := flight.ListLen(raw); !isList {
			warn(MsgKindsNotList)
			delete(corrected, flight.KeyKinds)
		} else if n == 0 {
			warn(MsgKindsEmpty)
		}
	} else {
		warn(MsgKindsMissing)
	}

	start, startOK := c.checkTimes(corrected, warn)

	if raw, ok := corrected[flight.KeyIrregularities]; ok {
		if _, isList := flight.ListLen(raw); !isList {
			warn(MsgIrregularitiesList)
			delete(corrected, flight.KeyIrregularities)
		} else if _, ok := flight.StringList(raw); !ok {
			warn(MsgIrregularitiesStr)
			delete(corrected, flight.KeyIrregularities)
		}
	} else {
		warn(MsgIrregularitiesAbsent)
	}
	irregularities := corrected.Irregularities()
	samRecorded := flight.HasIrregularity(irregularities, c.samPrefix)

	goodDropsondes := 0
	if raw, ok := corrected[flight.KeyGoodDropsondes]; ok {
		warn(MsgGoodDropsondesDepr)
		if n, ok := flight.IntValue(raw); ok {
			goodDropsondes = n
		} else {
			// a count that is not an integer can never match
			goodDropsondes = -1
		}
	}

	if raw, ok := corrected[flight.KeyDropsondes]; !ok {
		warn(MsgDropsondesMissing)
	} else if dropsondes, ok := flight.MappingValue(raw); !ok {
		warn(MsgDropsondesNotMapping)
	} else {
		fromSegment := make(map[string]map[string]struct{}, len(dropsondes))
		for _, flag := range slices.Sorted(maps.Keys(dropsondes)) {
			ids, ok := flight.SondeIDs(dropsondes[flag])
			if !ok {
				warn(MsgDropsondesFlagNotList(flag))
				// a non-empty value still counts as listed sondes that can
				// never match the inventory
				if !emptyValue(dropsondes[flag]) {
					fromSegment[flag] = map[string]struct{}{}
				}
				continue
			}
			if len(ids) > 0 {
				fromSegment[flag] = idSet(ids)
			}
		}
		goodIDs, _ := flight.SondeIDs(dropsondes[flight.FlagGood])
		goodDropsondes = len(goodIDs)

		if !equalIDSets(fromSegment, sondesByFlag.IDSets()) && !samRecorded {
			warn(MsgDropsondesMismatch)
		}
	}

	if goodDropsondes != len(sondesByFlag[flight.FlagGood]) && !samRecorded {
		warn(MsgGoodCountMismatch)
	}

	if startOK && corrected.IsCircle() {
		if first, ok := sondesByFlag.FirstLaunch(); ok {
			secondsToFirstSonde := first.Sub(start).Seconds()
			deviation := math.Abs(secondsToFirstSonde - c.ttfs.Seconds())
			if deviation > c.ttfsTolerance.Seconds() && !flight.HasIrregularity(irregularities, c.ttfsPrefix) {
				warn(MsgTimeToFirstSonde)
			}
		}
	}

	return warnings, corrected
}

func (c *FlightChecker) checkSegmentID(seg flight.Segment, warn func(string)) {
	raw, ok := seg[flight.KeySegmentID]
	if !ok {
		warn(MsgSegmentIDMissing)
		return
	}
	id, ok := raw.(string)
	if !ok {
		warn(MsgSegmentIDNotString)
		id = fmt.Sprint(raw)
	}
	if !strings.HasPrefix(id, c.flightID) {
		warn(MsgSegmentIDPrefix)
	}
	if _, seen := c.usedSegmentIDs[id]; seen {
		warn(MsgSegmentIDDuplicated(id))
	}
	c.usedSegmentIDs[id] = struct{}{}
}

// checkTimes reports missing or unordered start/end and returns the start
// time when it is usable
func (c *FlightChecker) checkTimes(seg flight.Segment, warn func(string)) (time.Time, bool) {
	start, startOK := timeField(seg, flight.KeyStart, seg.Start, MsgStartMissing, MsgStartInvalid, warn)
	end, endOK := timeField(seg, flight.KeyEnd, seg.End, MsgEndMissing, MsgEndInvalid, warn)
	if startOK && endOK && !end.After(start) {
		warn(MsgEndsBeforeStart)
	}
	return start, startOK
}

func timeField(seg flight.Segment, key string, get func() (time.Time, bool), missing, invalid string, warn func(string)) (time.Time, bool) {
	if _, ok := seg[key]; !ok {
		warn(missing)
		return time.Time{}, false
	}
	t, ok := get()
	if !ok {
		warn(invalid)
	}
	return t, ok
}

// emptyValue reports whether a malformed dropsonde entry holds nothing
func emptyValue(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	if m, ok := flight.MappingValue(v); ok {
		return len(m) == 0
	}
	return false
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func equalIDSets(a, b map[string]map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for flag, ids := range a {
		other, ok := b[flag]
		if !ok || len(ids) != len(other) {
			return false
		}
		for id := range ids {
			if _, ok := other[id]; !ok {
				return false
			}
		}
	}
	return true
}
