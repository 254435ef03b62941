package messages

import "time"

// Qualitative irrigation outcomes reported after a watering.
const (
	FeedbackTooLittle = "too_little"
	FeedbackJustRight = "just_right"
	FeedbackTooMuch   = "too_much"
)

// IrrigationFeedbackEvent carries a user's post-irrigation outcome report.
// The calibration service consumes these to nudge the stored flow rate.
type IrrigationFeedbackEvent struct {
	PlantID          string    `json:"plant_id,omitempty"`
	PumpID           string    `json:"pump_id"`
	UnitID           int       `json:"unit_id,omitempty"`
	Feedback         string    `json:"feedback"` // too_little | just_right | too_much
	AdjustmentFactor float64   `json:"adjustment_factor,omitempty"`
	DeliveredML      float64   `json:"delivered_ml,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// FeedbackEntry is the per-plant feedback history value handed to the ML
// predictor when requesting an adjustment factor.
type FeedbackEntry struct {
	PlantID   string    `json:"plant_id"`
	Feedback  string    `json:"feedback"`
	VolumeML  float64   `json:"volume_ml,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
