package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DiagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightseg_diagnostics_total",
			Help: "Total checker diagnostics emitted",
		},
		[]string{"scope"},
	)

	SegmentsChecked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flightseg_segments_checked_total",
			Help: "Total segments run through the consistency checker",
		},
	)

	CircleFitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightseg_circle_fits_total",
			Help: "Total robust circle fits by outcome",
		},
		[]string{"status"},
	)

	CircleFitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flightseg_circle_fit_duration_seconds",
			Help:    "Robust circle fit latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TrackFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightseg_track_fetches_total",
			Help: "Total navigation track fetches",
		},
		[]string{"source", "status"},
	)
)
