package flight

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flightYAML = `
mission: ORCESTRA
platform: HALO
flight_id: HALO-20240811a
segments:
  - segment_id: HALO-20240811a_c1
    name: circle south
    start: 2024-08-11 12:00:00
    end: 2024-08-11T13:00:00Z
    kinds: [circle]
    irregularities: []
    dropsondes:
      GOOD: [S1, S2]
  - segment_id: HALO-20240811a_sl1
    start: "2024-08-11T13:05:00"
    end: "2024-08-11T13:35:00"
    kinds: [straight_leg]
  - just a string
`

func TestDecodeFlight(t *testing.T) {
	f, err := DecodeFlight(strings.NewReader(flightYAML))
	require.NoError(t, err)

	id, ok := f.FlightID()
	require.True(t, ok)
	assert.Equal(t, "HALO-20240811a", id)

	platform, ok := f.Platform()
	require.True(t, ok)
	assert.Equal(t, "HALO", platform)

	segs := f.Segments()
	require.Len(t, segs, 2, "non-mapping entries are skipped")

	start, ok := segs[0].Start()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 8, 11, 12, 0, 0, 0, time.UTC), start)
	end, ok := segs[0].End()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 8, 11, 13, 0, 0, 0, time.UTC), end)

	assert.Equal(t, []string{"circle"}, segs[0].Kinds())
	assert.True(t, segs[0].IsCircle())
	assert.False(t, segs[1].IsCircle())
	assert.Equal(t, "circle south", segs[0]["name"], "unknown keys pass through")

	ds, ok := MappingValue(segs[0][KeyDropsondes])
	require.True(t, ok)
	ids, ok := SondeIDs(ds[FlagGood])
	require.True(t, ok)
	assert.Equal(t, []string{"S1", "S2"}, ids)
}

func TestDecodeFlightRejectsNonMapping(t *testing.T) {
	_, err := DecodeFlight(strings.NewReader("- a\n- b\n"))
	assert.ErrorIs(t, err, ErrNotMapping)
}

func TestEncodeFlightRoundTrip(t *testing.T) {
	f := Flight{"flight_id": "HALO-1", "platform": "HALO"}
	var buf bytes.Buffer
	require.NoError(t, EncodeFlight(&buf, f))

	back, err := DecodeFlight(&buf)
	require.NoError(t, err)
	assert.Equal(t, f, back)
}

func TestWithSegmentsDoesNotTouchOriginal(t *testing.T) {
	f := Flight{"flight_id": "HALO-1", "segments": []any{map[string]any{"segment_id": "a"}}}
	g := f.WithSegments([]Segment{{"segment_id": "b"}})

	assert.Equal(t, "a", f.Segments()[0]["segment_id"])
	assert.Equal(t, "b", g.Segments()[0]["segment_id"])
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-08-11T12:00:00Z", time.Date(2024, 8, 11, 12, 0, 0, 0, time.UTC), false},
		{"2024-08-11T14:00:00+02:00", time.Date(2024, 8, 11, 12, 0, 0, 0, time.UTC), false},
		{"2024-08-11 12:00:00", time.Date(2024, 8, 11, 12, 0, 0, 0, time.UTC), false},
		{"2024-08-11T12:00:00.5", time.Date(2024, 8, 11, 12, 0, 0, 500000000, time.UTC), false},
		{"noon", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestStringList(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   []string
		wantOK bool
	}{
		{"strings", []any{"SAM-1", "TTFS"}, []string{"SAM-1", "TTFS"}, true},
		{"typed", []string{"x"}, []string{"x"}, true},
		{"empty", []any{}, []string{}, true},
		{"mixed", []any{"a", 3}, nil, false},
		{"scalar", "SAM", nil, false},
		{"nil", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StringList(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasIrregularity(t *testing.T) {
	assert.True(t, HasIrregularity([]string{"SAM-2"}, "SAM"))
	assert.True(t, HasIrregularity([]string{"other", "TTFS: late"}, "TTFS"))
	assert.False(t, HasIrregularity([]string{"the SAM"}, "SAM"))
	assert.False(t, HasIrregularity(nil, "SAM"))
}

func TestKindsIsCircle(t *testing.T) {
	assert.True(t, KindsIsCircle([]string{"circle"}))
	assert.True(t, KindsIsCircle([]string{"straight_leg", "circling"}))
	assert.False(t, KindsIsCircle([]string{"straight_leg"}))
}

func TestIntValue(t *testing.T) {
	n, ok := IntValue(3)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	n, ok = IntValue(float64(4))
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	_, ok = IntValue(2.5)
	assert.False(t, ok)
	_, ok = IntValue("3")
	assert.False(t, ok)
}
