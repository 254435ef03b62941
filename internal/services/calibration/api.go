package calibration

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/plantio/autowater/internal/store"
)

// NewHTTPMux exposes the calibration operations over a small JSON API used
// by the mobile app during supervised calibration runs.
func NewHTTPMux(cal *Calibrator, adj *FeedbackAdjuster, pumps store.PumpStore) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	// POST /calibration/start {"pump_id": "...", "duration_seconds": 30}
	mux.HandleFunc("/calibration/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PumpID          string `json:"pump_id"`
			DurationSeconds int    `json:"duration_seconds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PumpID) == "" {
			http.Error(w, "pump_id required", http.StatusBadRequest)
			return
		}
		res, err := cal.StartCalibration(req.PumpID, req.DurationSeconds)
		if err != nil {
			writeCalibrationError(w, err)
			return
		}
		writeJSON(w, res)
	})

	// POST /calibration/complete {"pump_id": "...", "measured_ml": 100.0}
	mux.HandleFunc("/calibration/complete", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PumpID     string  `json:"pump_id"`
			MeasuredML float64 `json:"measured_ml"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PumpID) == "" {
			http.Error(w, "pump_id required", http.StatusBadRequest)
			return
		}
		res, err := cal.CompleteCalibration(req.PumpID, req.MeasuredML)
		if err != nil {
			writeCalibrationError(w, err)
			return
		}
		writeJSON(w, res)
	})

	// POST /calibration/cancel {"pump_id": "..."}
	mux.HandleFunc("/calibration/cancel", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PumpID string `json:"pump_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PumpID) == "" {
			http.Error(w, "pump_id required", http.StatusBadRequest)
			return
		}
		sess, err := cal.CancelCalibration(req.PumpID)
		if err != nil {
			writeCalibrationError(w, err)
			return
		}
		writeJSON(w, sess)
	})

	// GET /calibration/status?pump_id=...
	mux.HandleFunc("/calibration/status", func(w http.ResponseWriter, r *http.Request) {
		pumpID := r.URL.Query().Get("pump_id")
		if pumpID == "" {
			http.Error(w, "pump_id required", http.StatusBadRequest)
			return
		}
		if sess, ok := cal.GetSession(pumpID); ok {
			writeJSON(w, sess)
			return
		}
		if data, ok := cal.GetCalibrationData(pumpID); ok {
			writeJSON(w, data)
			return
		}
		http.Error(w, "pump has no session and no calibration data", http.StatusNotFound)
	})

	// GET /calibration/trend?pump_id=...
	mux.HandleFunc("/calibration/trend", func(w http.ResponseWriter, r *http.Request) {
		pumpID := r.URL.Query().Get("pump_id")
		if pumpID == "" {
			http.Error(w, "pump_id required", http.StatusBadRequest)
			return
		}
		trend := cal.GetFlowRateTrend(pumpID)
		if trend == nil {
			http.Error(w, "not enough calibration history", http.StatusNotFound)
			return
		}
		writeJSON(w, trend)
	})

	// GET /pumps[?unit_id=N]
	mux.HandleFunc("/pumps", func(w http.ResponseWriter, r *http.Request) {
		var unitID *int
		if s := r.URL.Query().Get("unit_id"); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				unitID = &n
			}
		}
		writeJSON(w, pumps.ListPumps(unitID))
	})

	// POST /feedback {"pump_id": "...", "feedback": "too_little", "adjustment_factor": 0.05}
	mux.HandleFunc("/feedback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PumpID           string  `json:"pump_id"`
			Feedback         string  `json:"feedback"`
			AdjustmentFactor float64 `json:"adjustment_factor"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PumpID) == "" {
			http.Error(w, "pump_id required", http.StatusBadRequest)
			return
		}
		rate, ok := adj.AdjustFromFeedback(req.PumpID, req.Feedback, req.AdjustmentFactor)
		if !ok {
			http.Error(w, "pump has no calibration data", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]float64{"flow_rate_ml_per_second": rate})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeCalibrationError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case IsConflict(err):
		status = http.StatusConflict
	case errors.Is(err, ErrPumpNotFound), errors.Is(err, ErrNoActiveSession):
		status = http.StatusNotFound
	case errors.Is(err, ErrNotAPump), errors.Is(err, ErrInvalidMeasurement), errors.Is(err, ErrInvalidDuration):
		status = http.StatusBadRequest
	case errors.Is(err, ErrActivationFailed):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}
