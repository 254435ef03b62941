package entities

import (
	"math"
	"time"
)

// MaxCalibrationHistory bounds the per-pump history list. Older entries
// fall off the end; index 0 is always the newest.
const MaxCalibrationHistory = 10

// CalibrationMethod records how a history entry was produced.
type CalibrationMethod string

const (
	MethodManual            CalibrationMethod = "manual"
	MethodFeedbackTooLittle CalibrationMethod = "feedback_adjustment_too_little"
	MethodFeedbackTooMuch   CalibrationMethod = "feedback_adjustment_too_much"
)

// SessionStatus is the lifecycle state of an in-flight calibration run.
type SessionStatus string

const (
	SessionRunning             SessionStatus = "running"
	SessionAwaitingMeasurement SessionStatus = "awaiting_measurement"
	SessionCompleted           SessionStatus = "completed"
	SessionCancelled           SessionStatus = "cancelled"
)

// CalibrationSession is the transient state of one timed calibration run.
// It lives only in the session table; it is never persisted.
type CalibrationSession struct {
	ID              string        `json:"id"`
	PumpID          string        `json:"pump_id"`
	UnitID          int           `json:"unit_id,omitempty"`
	StartTime       time.Time     `json:"start_time"`
	DurationSeconds int           `json:"target_duration_seconds"`
	Status          SessionStatus `json:"status"`
}

// CalibrationHistoryEntry is an immutable record of one calibration or
// feedback adjustment, kept newest-first in PumpCalibrationData.
type CalibrationHistoryEntry struct {
	FlowRateMlPerSecond float64           `json:"flow_rate_ml_per_second"`
	MeasuredVolumeML    float64           `json:"measured_volume_ml"`
	DurationSeconds     int               `json:"duration_seconds"`
	CalibratedAt        time.Time         `json:"calibrated_at"`
	Confidence          float64           `json:"confidence"`
	Method              CalibrationMethod `json:"method"`
}

// PumpCalibrationData is the persisted calibration state of one pump,
// embedded in the pump's config record. Created on the first completed
// calibration and mutated in place afterwards.
type PumpCalibrationData struct {
	FlowRateMlPerSecond     float64                   `json:"flow_rate_ml_per_second"`
	CalibrationVolumeML     float64                   `json:"calibration_volume_ml"`
	CalibrationDurationSecs int                       `json:"calibration_duration_seconds"`
	CalibratedAt            time.Time                 `json:"calibrated_at"`
	Confidence              float64                   `json:"calibration_confidence"`
	LastFeedbackAdjustment  *time.Time                `json:"last_feedback_adjustment,omitempty"`
	FeedbackAdjustments     int                       `json:"feedback_adjustments_count"`
	History                 []CalibrationHistoryEntry `json:"calibration_history,omitempty"`
}

// PushHistory prepends an entry and trims the list to MaxCalibrationHistory.
func (d *PumpCalibrationData) PushHistory(e CalibrationHistoryEntry) {
	d.History = append([]CalibrationHistoryEntry{e}, d.History...)
	if len(d.History) > MaxCalibrationHistory {
		d.History = d.History[:MaxCalibrationHistory]
	}
}

// CalibrationResult is returned to the caller of a completed calibration.
type CalibrationResult struct {
	PumpID              string    `json:"pump_id"`
	FlowRateMlPerSecond float64   `json:"flow_rate_ml_per_second"`
	MeasuredVolumeML    float64   `json:"measured_volume_ml"`
	DurationSeconds     int       `json:"duration_seconds"`
	CalibratedAt        time.Time `json:"calibrated_at"`
	Confidence          float64   `json:"confidence"`
}

// Trend direction and consistency labels.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"

	ConsistencyConsistent = "consistent"
	ConsistencyVariable   = "variable"
	ConsistencyUnknown    = "unknown"
)

// TrendAnalysis summarizes how a pump's measured flow rate has moved across
// the retained history window.
type TrendAnalysis struct {
	Samples           int     `json:"samples"`
	CurrentRate       float64 `json:"current_rate"`
	OldestRate        float64 `json:"oldest_rate"`
	AverageRate       float64 `json:"average_rate"`
	StdDev            float64 `json:"std_dev"`
	Trend             string  `json:"trend"`
	Consistency       string  `json:"consistency"`
	RateChangePercent float64 `json:"rate_change_percent"`
}

// AnalyzeTrend computes a TrendAnalysis over a newest-first history list.
// Returns nil when fewer than two entries exist.
func AnalyzeTrend(history []CalibrationHistoryEntry) *TrendAnalysis {
	if len(history) < 2 {
		return nil
	}

	rates := make([]float64, len(history))
	sum := 0.0
	for i, h := range history {
		rates[i] = h.FlowRateMlPerSecond
		sum += h.FlowRateMlPerSecond
	}
	avg := sum / float64(len(rates))
	current := rates[0]
	oldest := rates[len(rates)-1]

	variance := 0.0
	for _, r := range rates {
		d := r - avg
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(len(rates)))

	trend := TrendStable
	switch {
	case current > oldest*1.05:
		trend = TrendIncreasing
	case current < oldest*0.95:
		trend = TrendDecreasing
	}

	consistency := ConsistencyUnknown
	if avg > 0 {
		if stdDev/avg < 0.10 {
			consistency = ConsistencyConsistent
		} else {
			consistency = ConsistencyVariable
		}
	}

	changePct := 0.0
	if oldest > 0 {
		changePct = (current - oldest) / oldest * 100
	}

	return &TrendAnalysis{
		Samples:           len(rates),
		CurrentRate:       current,
		OldestRate:        oldest,
		AverageRate:       avg,
		StdDev:            stdDev,
		Trend:             trend,
		Consistency:       consistency,
		RateChangePercent: changePct,
	}
}
