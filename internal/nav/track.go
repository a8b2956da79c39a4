// Package nav holds navigation tracks and the sources they are read from.
package nav

import (
	"sort"
	"time"
)

// Sample is one navigation fix
type Sample struct {
	Time    time.Time `json:"time"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Alt     float64   `json:"alt"`     // meters above WGS84
	Heading float64   `json:"heading"` // degrees true
	Roll    float64   `json:"roll"`    // degrees
	Pitch   float64   `json:"pitch"`   // degrees
}

// Track is a time-ordered sequence of samples
type Track []Sample

// Sort orders the track by time
func (t Track) Sort() {
	sort.SliceStable(t, func(i, j int) bool { return t[i].Time.Before(t[j].Time) })
}

// Slice returns the samples with start <= time <= end. The track must be
// sorted. The result shares storage with t.
func (t Track) Slice(start, end time.Time) Track {
	lo := sort.Search(len(t), func(i int) bool { return !t[i].Time.Before(start) })
	hi := sort.Search(len(t), func(i int) bool { return t[i].Time.After(end) })
	if lo >= hi {
		return Track{}
	}
	return t[lo:hi]
}

// LatLon returns the latitudes and longitudes of the track
func (t Track) LatLon() (lats, lons []float64) {
	lats = make([]float64, len(t))
	lons = make([]float64, len(t))
	for i, s := range t {
		lats[i] = s.Lat
		lons[i] = s.Lon
	}
	return lats, lons
}

// Bounds returns the first and last sample time
func (t Track) Bounds() (time.Time, time.Time, bool) {
	if len(t) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return t[0].Time, t[len(t)-1].Time, true
}
