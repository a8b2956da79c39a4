package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/flightseg/internal/circlefit"
	"github.com/yegors/flightseg/internal/config"
	"github.com/yegors/flightseg/internal/flight"
	"github.com/yegors/flightseg/internal/geodesy"
	"github.com/yegors/flightseg/internal/nav"
	"github.com/yegors/flightseg/internal/physics"
	"github.com/yegors/flightseg/internal/storage/sqlite"
	"github.com/yegors/flightseg/internal/verify"
	"github.com/yegors/flightseg/internal/websocket"
	"github.com/yegors/flightseg/pkg/logger"
)

// maxBodyBytes limits request bodies
const maxBodyBytes = 8 << 20

// Handler contains the API handlers
type Handler struct {
	config   *config.Config
	verifier *verify.Verifier
	source   nav.Source
	fitter   *circlefit.Fitter
	tracks   *sqlite.TrackStorage
	reports  *sqlite.ReportStorage
	wsServer *websocket.Server
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	cfg *config.Config,
	verifier *verify.Verifier,
	source nav.Source,
	fitter *circlefit.Fitter,
	tracks *sqlite.TrackStorage,
	reports *sqlite.ReportStorage,
	wsServer *websocket.Server,
	log *logger.Logger,
) *Handler {
	return &Handler{
		config:   cfg,
		verifier: verifier,
		source:   source,
		fitter:   fitter,
		tracks:   tracks,
		reports:  reports,
		wsServer: wsServer,
		logger:   log.Named("api-handler"),
	}
}

// Health reports that the server is up
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// HandleWebSocket handles WebSocket connections
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("WebSocket connection request received")
	h.wsServer.HandleConnection(w, r)
}

// VerifyFlight checks a flight posted as JSON (or YAML), stores the report
// and broadcasts it
func (h *Handler) VerifyFlight(w http.ResponseWriter, r *http.Request) {
	f, err := flight.DecodeFlight(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Debug("Rejected flight document", logger.Error(err))
		http.Error(w, "Invalid flight document: "+err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.verifier.Verify(r.Context(), f)
	switch {
	case err == nil:
	case errors.Is(err, verify.ErrIncomplete):
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": err.Error(),
		})
		return
	case errors.Is(err, nav.ErrTrackNotFound):
		http.Error(w, "No navigation track for flight", http.StatusNotFound)
		return
	default:
		h.logger.Error("Failed to verify flight", logger.Error(err))
		http.Error(w, "Failed to verify flight", http.StatusInternalServerError)
		return
	}

	body, err := json.Marshal(report)
	if err != nil {
		h.logger.Error("Failed to encode report", logger.Error(err))
		http.Error(w, "Failed to encode report", http.StatusInternalServerError)
		return
	}

	id, err := h.reports.SaveReport(r.Context(), &sqlite.ReportRecord{
		FlightID:     report.FlightID,
		Platform:     report.Platform,
		CheckedAt:    report.CheckedAt,
		WarningCount: report.WarningCount(),
		Body:         body,
	})
	if err != nil {
		h.logger.Error("Failed to store report", logger.Error(err))
		http.Error(w, "Failed to store report", http.StatusInternalServerError)
		return
	}

	h.wsServer.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeVerificationCompleted,
		Data: map[string]any{
			"report_id": id,
			"platform":  report.Platform,
			"flight_id": report.FlightID,
			"warnings":  report.WarningCount(),
		},
	})

	WriteJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"report":    report,
		"corrected": report.Corrected,
	})
}

type circleFitRequest struct {
	Points     []circlefit.Point `json:"points"`
	ToleranceM float64           `json:"tolerance_m"`
	Trials     int               `json:"trials"`
	Seed       *uint64           `json:"seed"`
	SpeedMs    float64           `json:"speed_ms"` // optional, reports the bank angle flown
	SpeedKt    float64           `json:"speed_kt"` // speed_ms in knots, speed_ms wins when both are set
	AltitudeM  float64           `json:"altitude_m"`
	Time       *time.Time        `json:"time"` // epoch for the declination, defaults to now
}

type circleFitResponse struct {
	Circle      circlefit.Circle `json:"circle"`
	RadiusNM    float64          `json:"radius_nm"`
	Params      circlefit.Params `json:"params"`
	Seed        uint64           `json:"seed"`
	Declination *float64         `json:"declination,omitempty"`
	BankAngle   *float64         `json:"bank_angle,omitempty"`
}

// FitCircle runs RANSAC over posted points. Parameters missing from the
// request fall back to the configured ones.
func (h *Handler) FitCircle(w http.ResponseWriter, r *http.Request) {
	var req circleFitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ToleranceM < 0 || req.Trials < 0 || req.SpeedMs < 0 || req.SpeedKt < 0 {
		http.Error(w, "tolerance_m, trials, speed_ms and speed_kt must not be negative", http.StatusBadRequest)
		return
	}
	speed := req.SpeedMs
	if speed == 0 {
		speed = req.SpeedKt * physics.KnotsToMs
	}

	seed := h.fitter.Seed()
	if req.Seed != nil {
		seed = *req.Seed
	}
	fitter := h.fitter.WithParams(circlefit.Params{Tolerance: req.ToleranceM, Trials: req.Trials}, seed)
	params := fitter.Params()

	circle, err := fitter.FitPoints(req.Points)
	if err != nil {
		if errors.Is(err, circlefit.ErrInsufficientPoints) || errors.Is(err, circlefit.ErrNoConsensus) {
			WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": err.Error(),
			})
			return
		}
		h.logger.Error("Circle fit failed", logger.Error(err))
		http.Error(w, "Circle fit failed", http.StatusInternalServerError)
		return
	}

	resp := circleFitResponse{
		Circle:   circle,
		RadiusNM: geodesy.MetersToNM(circle.Radius),
		Params:   params,
		Seed:     seed,
	}

	epoch := time.Now().UTC()
	if req.Time != nil {
		epoch = *req.Time
	}
	if declination, err := physics.MagneticVariation(circle.Lat, circle.Lon, req.AltitudeM, epoch); err != nil {
		h.logger.Warn("Failed to compute magnetic declination", logger.Error(err))
	} else {
		resp.Declination = &declination
	}
	if speed > 0 {
		bank := physics.BankAngle(speed, circle.Radius)
		resp.BankAngle = &bank
	}

	h.wsServer.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeCircleFitCompleted,
		Data: map[string]any{
			"clat":    circle.Lat,
			"clon":    circle.Lon,
			"radius":  circle.Radius,
			"inliers": circle.Inliers,
		},
	})

	WriteJSON(w, http.StatusOK, resp)
}

// GetTrack returns the navigation track of a flight, optionally limited to
// [start, end]
func (h *Handler) GetTrack(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	flightID := chi.URLParam(r, "flightID")
	if platform == "" || flightID == "" {
		http.Error(w, "Missing platform or flight ID", http.StatusBadRequest)
		return
	}

	start, end, err := parseTimeRangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	track, err := h.track(r.Context(), platform, flightID, start, end)
	if err != nil {
		if errors.Is(err, nav.ErrTrackNotFound) {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to load track",
			logger.String("platform", platform),
			logger.String("flight_id", flightID),
			logger.Error(err))
		http.Error(w, "Failed to load track", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"platform":  platform,
		"flight_id": flightID,
		"count":     len(track),
		"samples":   track,
	})
}

// GetFlights lists the flights with imported tracks
func (h *Handler) GetFlights(w http.ResponseWriter, r *http.Request) {
	flights, err := h.tracks.Flights(r.Context())
	if err != nil {
		h.logger.Error("Failed to retrieve flights", logger.Error(err))
		http.Error(w, "Failed to retrieve flights", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"count":   len(flights),
		"flights": flights,
	})
}

// GetReports returns stored verification reports, newest first
func (h *Handler) GetReports(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	reports, err := h.reports.Reports(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve reports", logger.Error(err))
		http.Error(w, "Failed to retrieve reports", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC(),
		"count":     len(reports),
		"reports":   reports,
	})
}

// GetReport returns one stored verification report
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid report ID", http.StatusBadRequest)
		return
	}

	report, err := h.reports.Report(r.Context(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to retrieve report", logger.Int64("id", id), logger.Error(err))
		http.Error(w, "Failed to retrieve report", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parsePaginationParams(r *http.Request) (int, int) {
	limit := 100 // Default limit
	offset := 0  // Default offset

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}

// parseTimeRangeParams reads the optional start and end query parameters.
// Absent bounds are returned as zero times.
func parseTimeRangeParams(r *http.Request) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if s := r.URL.Query().Get("start"); s != "" {
		if start, err = flight.ParseTime(s); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if s := r.URL.Query().Get("end"); s != "" {
		if end, err = flight.ParseTime(s); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end is before start")
	}
	return start, end, nil
}

// track loads the samples of a flight in [start, end]. Zero bounds are open.
// Sources that can query a window do so, the others are sliced in memory.
func (h *Handler) track(ctx context.Context, platform, flightID string, start, end time.Time) (nav.Track, error) {
	if start.IsZero() && end.IsZero() {
		return h.source.Track(ctx, platform, flightID)
	}
	if rs, ok := h.source.(nav.RangeSource); ok {
		return rs.TrackRange(ctx, platform, flightID, start, end)
	}

	track, err := h.source.Track(ctx, platform, flightID)
	if err != nil {
		return nil, err
	}
	first, last, _ := track.Bounds()
	if start.IsZero() {
		start = first
	}
	if end.IsZero() {
		end = last
	}
	return track.Slice(start, end), nil
}
